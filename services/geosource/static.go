// Package geosource provides sampling.Source implementations that do not need a device:
// a fixed position and scripted replays read from TOML.
package geosource

import (
	"context"
	"time"

	"github.com/trezcool/hazira/core/sampling"
)

var NowFunc = time.Now // mockable

// Static always reports the same position.
type Static struct {
	Latitude       float64
	Longitude      float64
	AccuracyMeters float64
	// LowAccuracyMeters is reported for low accuracy requests; AccuracyMeters when zero.
	LowAccuracyMeters float64
}

var _ sampling.Source = Static{}

func (s Static) Acquire(ctx context.Context, req sampling.Request) (sampling.Fix, error) {
	if err := ctx.Err(); err != nil {
		return sampling.Fix{}, err
	}
	acc := s.AccuracyMeters
	if !req.HighAccuracy && s.LowAccuracyMeters > 0 {
		acc = s.LowAccuracyMeters
	}
	return sampling.Fix{
		Latitude:       s.Latitude,
		Longitude:      s.Longitude,
		AccuracyMeters: acc,
		CapturedAt:     NowFunc().UTC(),
	}, nil
}
