package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/hazira/core/attendance"
	"github.com/trezcool/hazira/core/sampling"
	"github.com/trezcool/hazira/core/session"
)

const submitTimeout = 30 * time.Second

var errNothingSubmitted = errors.New("collection did not complete, nothing was submitted")

type gatewayClient interface {
	LookupSession(ctx context.Context, token string) (session.View, error)
	Submit(ctx context.Context, batch attendance.SampleBatch) (attendance.SubmitResult, error)
}

// collector drives one attendance claim: look the session up, sample, submit.
type collector struct {
	gateway gatewayClient
	src     sampling.Source
	opts    sampling.Options
	out     io.Writer
	// tty redraws a single progress line instead of printing one line per sample
	tty bool
}

func (c *collector) run(ctx context.Context, token string) (attendance.SubmitResult, error) {
	view, err := c.gateway.LookupSession(ctx, token)
	if err != nil {
		return attendance.SubmitResult{}, errors.Wrap(err, "looking up session")
	}
	c.printf("%s / %s, open until %s\n", view.SubjectName, view.ClassroomName, view.TokenExpiresAt.Local().Format(time.Kitchen))

	ctrl, err := sampling.NewController(c.src, c.opts)
	if err != nil {
		return attendance.SubmitResult{}, err
	}
	col, err := ctrl.Start(ctx, view.Geofence)
	if err != nil {
		return attendance.SubmitResult{}, err
	}
	for prog := range col.Progress() {
		c.printProgress(prog)
	}
	if c.tty {
		c.printf("\n")
	}

	batch, err := col.Batch(token)
	if err != nil {
		if errors.Is(err, sampling.ErrCancelled) {
			return attendance.SubmitResult{}, errNothingSubmitted
		}
		return attendance.SubmitResult{}, errors.Wrap(err, "collecting samples")
	}

	// the submission must go through even if sampling was slow to finish
	submitCtx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()
	res, err := c.gateway.Submit(submitCtx, batch)
	if err != nil {
		return attendance.SubmitResult{}, errors.Wrap(err, "submitting samples")
	}

	if res.AlreadySubmitted {
		c.printf("already submitted: ")
	}
	c.printf("%s (%d/%d inside", res.Status, res.InsideCount, res.TotalSamples)
	if res.LowAccuracyCount > 0 {
		c.printf(", %d low accuracy", res.LowAccuracyCount)
	}
	c.printf(")\n")
	return res, nil
}

func (c *collector) printProgress(prog sampling.Progress) {
	line := fmt.Sprintf("sample %d/%d: %s (±%.0fm)", prog.Count, prog.Target, prog.Feedback, prog.Sample.AccuracyMeters)
	if prog.LowAccuracy {
		line += " low accuracy"
	}
	if c.tty {
		c.printf("\r\033[K%s", line)
		return
	}
	c.printf("%s\n", line)
}

func (c *collector) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(c.out, format, args...)
}
