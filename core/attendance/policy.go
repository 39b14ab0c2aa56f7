package attendance

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/hazira/core"
)

// Ratio is an exact fraction. Comparisons use integer math so cut points never drift.
type Ratio struct {
	Num int
	Den int
}

// ParseRatio reads "num/den".
func ParseRatio(s string) (Ratio, error) {
	parts := strings.SplitN(core.CleanString(s), "/", 2)
	if len(parts) != 2 {
		return Ratio{}, errors.Errorf("ratio %q must be of form num/den", s)
	}
	num, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return Ratio{}, errors.Wrapf(err, "ratio %q numerator", s)
	}
	den, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return Ratio{}, errors.Wrapf(err, "ratio %q denominator", s)
	}
	if den <= 0 || num < 0 || num > den {
		return Ratio{}, errors.Errorf("ratio %q must be between 0/1 and 1/1", s)
	}
	return Ratio{Num: num, Den: den}, nil
}

// Reached reports whether count/total >= r.
func (r Ratio) Reached(count, total int) bool {
	return count*r.Den >= total*r.Num
}

func (r Ratio) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

const (
	DefaultTargetSampleCount = 12
	DefaultLowAccuracyMeters = 100
)

// Policy fixes the classification cut points.
//
// With the defaults and a full batch of 12:
//   - 8..12 inside: Present (Late once LateAfter has passed since the session start)
//   - 2..7 inside: Short
//   - 0..1 inside: Invalid
type Policy struct {
	TargetSampleCount int
	Present           Ratio
	Short             Ratio
	LateAfter         time.Duration
	LowAccuracyMeters float64
}

func DefaultPolicy() Policy {
	return Policy{
		TargetSampleCount: DefaultTargetSampleCount,
		Present:           Ratio{Num: 2, Den: 3},
		Short:             Ratio{Num: 1, Den: 6},
		LateAfter:         5 * time.Minute,
		LowAccuracyMeters: DefaultLowAccuracyMeters,
	}
}

// PolicyFromConfig builds and validates a Policy from the attendance config.
func PolicyFromConfig(conf core.AttendanceConfig) (Policy, error) {
	present, err := ParseRatio(conf.PresentRatio)
	if err != nil {
		return Policy{}, errors.Wrap(err, "parsing present ratio")
	}
	short, err := ParseRatio(conf.ShortRatio)
	if err != nil {
		return Policy{}, errors.Wrap(err, "parsing short ratio")
	}
	p := Policy{
		TargetSampleCount: conf.TargetSampleCount,
		Present:           present,
		Short:             short,
		LateAfter:         conf.LateAfter,
		LowAccuracyMeters: conf.LowAccuracyMeters,
	}
	return p, p.Validate()
}

func (p Policy) Validate() error {
	err := vala.BeginValidation().Validate(
		vala.GreaterThan(p.TargetSampleCount, 0, "TargetSampleCount"),
		vala.GreaterThan(p.Present.Den, 0, "Present.Den"),
		vala.GreaterThan(p.Short.Den, 0, "Short.Den"),
		vala.GreaterThan(p.Short.Num, 0, "Short.Num"),
	).Check()
	if err != nil {
		return errors.Wrap(err, "invalid attendance policy")
	}
	// Short must sit strictly below Present
	if p.Short.Num*p.Present.Den >= p.Present.Num*p.Short.Den {
		return errors.Errorf("invalid attendance policy: short ratio %s must be below present ratio %s", p.Short, p.Present)
	}
	if p.LateAfter < 0 {
		return errors.New("invalid attendance policy: LateAfter must not be negative")
	}
	return nil
}
