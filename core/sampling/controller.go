// Package sampling collects a fixed size batch of location samples on a timed cadence.
//
// A Controller runs at most one Collection at a time. Every tick makes one acquisition:
// a high accuracy request, retried once in low accuracy unless the device refused or
// cannot provide positions at all. A tick that still fails ends the whole collection,
// partial batches are never handed out.
package sampling

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/hazira/core"
	"github.com/trezcool/hazira/core/attendance"
	"github.com/trezcool/hazira/core/geofence"
)

var (
	ErrCollectionInProgress = errors.New("a collection is already in progress")
	ErrCancelled            = errors.New("collection cancelled")
	ErrNotComplete          = errors.New("collection is not complete")
)

// State of a Collection.
type State int

const (
	StateIdle State = iota
	StateSampling
	StateComplete
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSampling:
		return "sampling"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed || s == StateCancelled
}

// Feedback is the local inside/outside hint for a sample. The server decides the verdict.
type Feedback int

const (
	FeedbackUnknown Feedback = iota
	FeedbackInside
	FeedbackOutside
)

func (f Feedback) String() string {
	switch f {
	case FeedbackInside:
		return "inside"
	case FeedbackOutside:
		return "outside"
	}
	return "unknown"
}

// Progress is emitted after every accepted sample.
type Progress struct {
	Count       int
	Target      int
	Sample      attendance.GeoSample
	Feedback    Feedback
	LowAccuracy bool
	Downgraded  bool
}

type Options struct {
	TargetSampleCount int
	Interval          time.Duration
	AttemptTimeout    time.Duration
	MaximumAge        time.Duration
	// LowAccuracyMeters only drives the Progress warning.
	LowAccuracyMeters float64
	Clock             Clock
	Logger            core.Logger
}

func DefaultOptions() Options {
	return Options{
		TargetSampleCount: attendance.DefaultTargetSampleCount,
		Interval:          5 * time.Second,
		AttemptTimeout:    20 * time.Second,
		MaximumAge:        5 * time.Second,
		LowAccuracyMeters: attendance.DefaultLowAccuracyMeters,
	}
}

func OptionsFromConfig(conf *core.Config) Options {
	return Options{
		TargetSampleCount: conf.Attendance.TargetSampleCount,
		Interval:          conf.Sampling.Interval,
		AttemptTimeout:    conf.Sampling.AttemptTimeout,
		MaximumAge:        conf.Sampling.MaximumAge,
		LowAccuracyMeters: conf.Attendance.LowAccuracyMeters,
	}
}

type Controller struct {
	src    Source
	opts   Options
	policy AcquirePolicy

	mu      sync.Mutex
	current *Collection
}

func NewController(src Source, opts Options) (*Controller, error) {
	err := vala.BeginValidation().Validate(
		vala.IsNotNil(src, "src"),
		vala.GreaterThan(opts.TargetSampleCount, 0, "TargetSampleCount"),
		vala.GreaterThan(int(opts.Interval), 0, "Interval"),
		vala.GreaterThan(int(opts.AttemptTimeout), 0, "AttemptTimeout"),
		vala.GreaterThan(int(opts.MaximumAge), -1, "MaximumAge"),
	).Check()
	if err != nil {
		return nil, errors.Wrap(err, "invalid sampling options")
	}
	if opts.Clock == nil {
		opts.Clock = RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = core.NopLogger{}
	}
	return &Controller{
		src:    src,
		opts:   opts,
		policy: AcquirePolicy{Timeout: opts.AttemptTimeout, MaximumAge: opts.MaximumAge},
	}, nil
}

// Start begins a new Collection. `fence` may be the zero Geofence, in which case
// Progress carries no local feedback. Cancelling ctx cancels the collection.
func (c *Controller) Start(ctx context.Context, fence geofence.Geofence) (*Collection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil && !c.current.State().Terminal() {
		return nil, ErrCollectionInProgress
	}
	return c.begin(ctx, fence), nil
}

// Restart cancels the running Collection, if any, and begins a fresh one.
// Nothing collected by the cancelled run is carried over.
func (c *Controller) Restart(ctx context.Context, fence geofence.Geofence) *Collection {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		c.current.Cancel()
		<-c.current.Done()
	}
	return c.begin(ctx, fence)
}

// Cancel stops the running Collection, if any.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		c.current.Cancel()
	}
}

// State of the latest Collection, or StateIdle if none was started.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return StateIdle
	}
	return c.current.State()
}

func (c *Controller) begin(ctx context.Context, fence geofence.Geofence) *Collection {
	ctx, cancel := context.WithCancel(ctx)
	col := &Collection{
		target:   c.opts.TargetSampleCount,
		cancel:   cancel,
		done:     make(chan struct{}),
		progress: make(chan Progress, c.opts.TargetSampleCount),
		state:    StateSampling,
		samples:  make([]attendance.GeoSample, 0, c.opts.TargetSampleCount),
	}
	if fence.Validate() == nil {
		col.fence = &fence
	}
	c.current = col
	go c.run(ctx, col)
	return col
}

func (c *Controller) run(ctx context.Context, col *Collection) {
	defer close(col.done)
	defer close(col.progress)
	defer col.cancel()

	clock, logger := c.opts.Clock, c.opts.Logger
	ticker := clock.NewTicker(c.opts.Interval)
	defer ticker.Stop()

	for {
		att := c.policy.Acquire(ctx, clock, c.src)
		if ctx.Err() != nil {
			col.finish(StateCancelled, ErrCancelled)
			logger.Debug("sampling cancelled")
			return
		}
		if att.Err != nil {
			logger.Warn(fmt.Sprintf("sampling failed after %d samples", col.count()), att.Err)
			col.finish(StateFailed, att.Err)
			return
		}

		sample := attendance.GeoSample{
			Latitude:       att.Fix.Latitude,
			Longitude:      att.Fix.Longitude,
			AccuracyMeters: att.Fix.AccuracyMeters,
			CapturedAt:     att.Fix.CapturedAt.UTC(),
		}
		prog := col.append(sample)
		prog.Downgraded = att.Downgraded
		prog.LowAccuracy = sample.AccuracyMeters > c.opts.LowAccuracyMeters
		col.progress <- prog

		if prog.Count == col.target {
			col.finish(StateComplete, nil)
			logger.Debug(fmt.Sprintf("sampling complete: %d samples", prog.Count))
			return
		}

		select {
		case <-ctx.Done():
			col.finish(StateCancelled, ErrCancelled)
			logger.Debug("sampling cancelled")
			return
		case <-ticker.C():
		}
	}
}

// Collection is one run of the Controller.
type Collection struct {
	target   int
	fence    *geofence.Geofence
	cancel   context.CancelFunc
	done     chan struct{}
	progress chan Progress

	mu      sync.Mutex
	state   State
	samples []attendance.GeoSample
	err     error
}

// Progress yields one value per accepted sample and is closed once the Collection ends.
func (col *Collection) Progress() <-chan Progress { return col.progress }

// Done is closed once the Collection reached a terminal state.
func (col *Collection) Done() <-chan struct{} { return col.done }

func (col *Collection) Cancel() { col.cancel() }

func (col *Collection) State() State {
	col.mu.Lock()
	defer col.mu.Unlock()
	return col.state
}

// Err is nil unless the Collection failed or was cancelled.
func (col *Collection) Err() error {
	col.mu.Lock()
	defer col.mu.Unlock()
	return col.err
}

// Wait blocks until the Collection ends and returns its samples.
func (col *Collection) Wait(ctx context.Context) ([]attendance.GeoSample, error) {
	select {
	case <-col.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	col.mu.Lock()
	defer col.mu.Unlock()
	if col.state != StateComplete {
		return nil, col.err
	}
	return append([]attendance.GeoSample(nil), col.samples...), nil
}

// Batch packages a complete Collection for submission.
func (col *Collection) Batch(token string) (attendance.SampleBatch, error) {
	col.mu.Lock()
	defer col.mu.Unlock()

	if col.state != StateComplete {
		if col.err != nil {
			return attendance.SampleBatch{}, col.err
		}
		return attendance.SampleBatch{}, ErrNotComplete
	}
	return attendance.SampleBatch{
		SessionToken: token,
		Samples:      append([]attendance.GeoSample(nil), col.samples...),
	}, nil
}

func (col *Collection) count() int {
	col.mu.Lock()
	defer col.mu.Unlock()
	return len(col.samples)
}

func (col *Collection) append(sample attendance.GeoSample) Progress {
	col.mu.Lock()
	defer col.mu.Unlock()

	col.samples = append(col.samples, sample)
	prog := Progress{Count: len(col.samples), Target: col.target, Sample: sample}
	if col.fence != nil {
		prog.Feedback = FeedbackOutside
		if col.fence.Contains(sample.Point()) {
			prog.Feedback = FeedbackInside
		}
	}
	return prog
}

func (col *Collection) finish(state State, err error) {
	col.mu.Lock()
	defer col.mu.Unlock()

	col.state = state
	col.err = err
	if state != StateComplete {
		col.samples = nil
	}
}
