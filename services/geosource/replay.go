package geosource

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/trezcool/hazira/core/sampling"
)

// Script is the TOML form of a replay:
//
//	name = "walks out after a minute"
//	loop = false
//
//	[[step]]
//	latitude = 18.760
//	longitude = 73.690
//	accuracy = 12.0
//	delay = "300ms"
//
//	[[step]]
//	error = "unavailable" # or permission_denied, timeout, unsupported
type Script struct {
	Name  string `toml:"name"`
	Loop  bool   `toml:"loop"`
	Steps []Step `toml:"step"`
}

type Step struct {
	Latitude  float64  `toml:"latitude"`
	Longitude float64  `toml:"longitude"`
	Accuracy  float64  `toml:"accuracy"`
	Delay     Duration `toml:"delay"`
	Error     string   `toml:"error"`
}

// Duration reads TOML strings such as "250ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

var errorKinds = map[string]sampling.ErrorKind{
	"unavailable":       sampling.KindUnavailable,
	"permission_denied": sampling.KindPermissionDenied,
	"timeout":           sampling.KindTimeout,
	"unsupported":       sampling.KindUnsupported,
}

// errScriptExhausted is the provider error once a non looping replay ran out of steps.
var errScriptExhausted = errors.New("replay script exhausted")

func (s Script) validate() error {
	if len(s.Steps) == 0 {
		return errors.New("replay script has no steps")
	}
	for i, step := range s.Steps {
		if step.Error != "" {
			if _, ok := errorKinds[strings.ToLower(step.Error)]; !ok {
				return errors.Errorf("step %d: unknown error %q", i+1, step.Error)
			}
			continue
		}
		if step.Latitude < -90 || step.Latitude > 90 || step.Longitude < -180 || step.Longitude > 180 {
			return errors.Errorf("step %d: coordinates out of range", i+1)
		}
		if step.Accuracy < 0 || step.Delay.Duration < 0 {
			return errors.Errorf("step %d: accuracy and delay must not be negative", i+1)
		}
	}
	return nil
}

// Replay answers each request with the next Step of a Script.
type Replay struct {
	script Script

	mu   sync.Mutex
	next int
}

var _ sampling.Source = (*Replay)(nil)

func NewReplay(script Script) (*Replay, error) {
	if err := script.validate(); err != nil {
		return nil, err
	}
	return &Replay{script: script}, nil
}

// LoadReplay reads a Script from a TOML file.
func LoadReplay(path string) (*Replay, error) {
	var script Script
	md, err := toml.DecodeFile(path, &script)
	if err != nil {
		return nil, errors.Wrapf(err, "reading replay %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, errors.Errorf("replay %s: unknown key %q", path, undecoded[0].String())
	}
	return NewReplay(script)
}

// DecodeReplay reads a Script from TOML.
func DecodeReplay(r io.Reader) (*Replay, error) {
	var script Script
	if _, err := toml.NewDecoder(r).Decode(&script); err != nil {
		return nil, errors.Wrap(err, "decoding replay")
	}
	return NewReplay(script)
}

func (r *Replay) Name() string { return r.script.Name }

func (r *Replay) step() (Step, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.next >= len(r.script.Steps) {
		if !r.script.Loop {
			return Step{}, false
		}
		r.next = 0
	}
	step := r.script.Steps[r.next]
	r.next++
	return step, true
}

func (r *Replay) Acquire(ctx context.Context, _ sampling.Request) (sampling.Fix, error) {
	step, ok := r.step()
	if !ok {
		return sampling.Fix{}, sampling.NewAcquireError(sampling.KindUnavailable, errScriptExhausted)
	}

	if step.Delay.Duration > 0 {
		timer := time.NewTimer(step.Delay.Duration)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return sampling.Fix{}, ctx.Err()
		case <-timer.C:
		}
	}

	if step.Error != "" {
		kind := errorKinds[strings.ToLower(step.Error)]
		return sampling.Fix{}, sampling.NewAcquireError(kind, errors.Errorf("scripted %s", step.Error))
	}
	return sampling.Fix{
		Latitude:       step.Latitude,
		Longitude:      step.Longitude,
		AccuracyMeters: step.Accuracy,
		CapturedAt:     NowFunc().UTC(),
	}, nil
}
