package sampling

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/hazira/core/geofence"
)

var (
	t0 = time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)

	campus = geofence.MustNew(
		geofence.Point{Lat: 18.7765, Lng: 73.6944},
		geofence.Point{Lat: 18.7579, Lng: 73.6673},
		geofence.Point{Lat: 18.7438, Lng: 73.6876},
		geofence.Point{Lat: 18.7629, Lng: 73.7194},
	)

	errProvider = errors.New("kCLErrorDomain error 1: raw provider details")
)

// manualClock hands control of ticks and attempt timeouts to the test.
type manualClock struct {
	ticks    chan time.Time
	timeouts chan time.Time
}

func newManualClock() *manualClock {
	return &manualClock{ticks: make(chan time.Time), timeouts: make(chan time.Time)}
}

func (c *manualClock) Now() time.Time                       { return t0 }
func (c *manualClock) After(time.Duration) <-chan time.Time { return c.timeouts }
func (c *manualClock) NewTicker(time.Duration) Ticker       { return manualTicker{c.ticks} }

func (c *manualClock) tick(t *testing.T) {
	t.Helper()
	select {
	case c.ticks <- t0:
	case <-time.After(2 * time.Second):
		t.Fatal("controller is not waiting for a tick")
	}
}

func (c *manualClock) timeout(t *testing.T) {
	t.Helper()
	select {
	case c.timeouts <- t0:
	case <-time.After(2 * time.Second):
		t.Fatal("controller is not waiting on an acquisition")
	}
}

type manualTicker struct {
	c chan time.Time
}

func (t manualTicker) C() <-chan time.Time { return t.c }
func (t manualTicker) Stop()               {}

// scriptedSource answers the n-th request (0-based) with script(n, ...).
type scriptedSource struct {
	mu     sync.Mutex
	reqs   []Request
	script func(n int, ctx context.Context, req Request) (Fix, error)
}

func (s *scriptedSource) Acquire(ctx context.Context, req Request) (Fix, error) {
	s.mu.Lock()
	n := len(s.reqs)
	s.reqs = append(s.reqs, req)
	s.mu.Unlock()
	return s.script(n, ctx, req)
}

func (s *scriptedSource) requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.reqs...)
}

func fixAt(lat, lng, acc float64) Fix {
	return Fix{Latitude: lat, Longitude: lng, AccuracyMeters: acc, CapturedAt: t0}
}

func alwaysInside(int, context.Context, Request) (Fix, error) {
	return fixAt(18.760, 73.690, 12), nil
}

func blockUntilDone(_ int, ctx context.Context, _ Request) (Fix, error) {
	<-ctx.Done()
	return Fix{}, ctx.Err()
}

func newTestController(t *testing.T, src Source) (*Controller, *manualClock) {
	t.Helper()
	clock := newManualClock()
	opts := DefaultOptions()
	opts.Clock = clock
	ctrl, err := NewController(src, opts)
	require.NoError(t, err)
	return ctrl, clock
}

func nextProgress(t *testing.T, col *Collection) Progress {
	t.Helper()
	select {
	case p, ok := <-col.Progress():
		require.True(t, ok, "progress closed early")
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("no progress")
	}
	return Progress{}
}

func waitDone(t *testing.T, col *Collection) {
	t.Helper()
	select {
	case <-col.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("collection did not end")
	}
}

func TestController_complete(t *testing.T) {
	src := &scriptedSource{script: alwaysInside}
	ctrl, clock := newTestController(t, src)
	assert.Equal(t, StateIdle, ctrl.State())

	col, err := ctrl.Start(context.Background(), campus)
	require.NoError(t, err)
	assert.Equal(t, StateSampling, ctrl.State())

	for i := 1; i <= 12; i++ {
		p := nextProgress(t, col)
		assert.Equal(t, i, p.Count)
		assert.Equal(t, 12, p.Target)
		assert.Equal(t, FeedbackInside, p.Feedback)
		assert.False(t, p.Downgraded)
		if i < 12 {
			clock.tick(t)
		}
	}

	samples, err := col.Wait(context.Background())
	require.NoError(t, err)
	assert.Len(t, samples, 12)
	assert.Equal(t, StateComplete, col.State())
	assert.Equal(t, StateComplete, ctrl.State())

	_, open := <-col.Progress()
	assert.False(t, open)

	batch, err := col.Batch("hz_token")
	require.NoError(t, err)
	assert.Equal(t, "hz_token", batch.SessionToken)
	assert.Equal(t, samples, batch.Samples)

	reqs := src.requests()
	assert.Len(t, reqs, 12)
	for _, req := range reqs {
		assert.True(t, req.HighAccuracy)
		assert.Equal(t, 20*time.Second, req.Timeout)
		assert.Equal(t, 5*time.Second, req.MaximumAge)
	}
}

func TestController_acquisitionPolicy(t *testing.T) {
	tests := []struct {
		name         string
		script       func(n int, ctx context.Context, req Request) (Fix, error)
		timeouts     int
		wantState    State
		wantKind     ErrorKind
		wantRequests []bool // HighAccuracy of each request
		wantCount    int
	}{
		{
			name: "low accuracy fallback succeeds",
			script: func(n int, _ context.Context, req Request) (Fix, error) {
				if req.HighAccuracy {
					return Fix{}, NewAcquireError(KindUnavailable, errProvider)
				}
				return fixAt(18.760, 73.690, 800), nil
			},
			wantState:    StateSampling,
			wantRequests: []bool{true, false},
			wantCount:    1,
		},
		{
			name: "both attempts unavailable",
			script: func(int, context.Context, Request) (Fix, error) {
				return Fix{}, errProvider
			},
			wantState:    StateFailed,
			wantKind:     KindUnavailable,
			wantRequests: []bool{true, false},
		},
		{
			name: "permission denied is not retried",
			script: func(int, context.Context, Request) (Fix, error) {
				return Fix{}, NewAcquireError(KindPermissionDenied, errProvider)
			},
			wantState:    StateFailed,
			wantKind:     KindPermissionDenied,
			wantRequests: []bool{true},
		},
		{
			name: "unsupported is not retried",
			script: func(int, context.Context, Request) (Fix, error) {
				return Fix{}, NewAcquireError(KindUnsupported, nil)
			},
			wantState:    StateFailed,
			wantKind:     KindUnsupported,
			wantRequests: []bool{true},
		},
		{
			name: "timeout is retried then fatal",
			script: func(n int, ctx context.Context, req Request) (Fix, error) {
				return blockUntilDone(n, ctx, req)
			},
			timeouts:     2,
			wantState:    StateFailed,
			wantKind:     KindTimeout,
			wantRequests: []bool{true, false},
		},
		{
			name: "timeout then low accuracy fix",
			script: func(n int, ctx context.Context, req Request) (Fix, error) {
				if n == 0 {
					return blockUntilDone(n, ctx, req)
				}
				return fixAt(18.760, 73.690, 60), nil
			},
			timeouts:     1,
			wantState:    StateSampling,
			wantRequests: []bool{true, false},
			wantCount:    1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &scriptedSource{script: tt.script}
			ctrl, clock := newTestController(t, src)

			col, err := ctrl.Start(context.Background(), geofence.Geofence{})
			require.NoError(t, err)
			for i := 0; i < tt.timeouts; i++ {
				clock.timeout(t)
			}

			if tt.wantState == StateSampling {
				p := nextProgress(t, col)
				assert.Equal(t, tt.wantCount, p.Count)
				assert.True(t, p.Downgraded)
				assert.Equal(t, FeedbackUnknown, p.Feedback)
				assert.Equal(t, StateSampling, col.State())
				col.Cancel()
				waitDone(t, col)
			} else {
				waitDone(t, col)
				assert.Equal(t, tt.wantState, col.State())

				var aErr *AcquireError
				require.True(t, errors.As(col.Err(), &aErr), "err = %v", col.Err())
				assert.Equal(t, tt.wantKind, aErr.Kind)
				assert.NotContains(t, aErr.Error(), "kCLErrorDomain")

				samples, err := col.Wait(context.Background())
				assert.Nil(t, samples)
				assert.Equal(t, col.Err(), err)
				_, err = col.Batch("hz_token")
				assert.Error(t, err)
			}

			reqs := src.requests()
			high := make([]bool, 0, len(reqs))
			for _, req := range reqs {
				high = append(high, req.HighAccuracy)
			}
			assert.Equal(t, tt.wantRequests, high)
		})
	}
}

func TestController_failsOnFirstBadTick(t *testing.T) {
	src := &scriptedSource{script: func(n int, _ context.Context, _ Request) (Fix, error) {
		if n < 3 {
			return fixAt(18.760, 73.690, 10), nil
		}
		return Fix{}, NewAcquireError(KindUnavailable, errProvider)
	}}
	ctrl, clock := newTestController(t, src)

	col, err := ctrl.Start(context.Background(), campus)
	require.NoError(t, err)
	for i := 1; i <= 3; i++ {
		assert.Equal(t, i, nextProgress(t, col).Count)
		clock.tick(t)
	}
	waitDone(t, col)

	assert.Equal(t, StateFailed, col.State())
	assert.True(t, errors.Is(col.Err(), &AcquireError{Kind: KindUnavailable}))
	_, err = col.Batch("hz_token")
	assert.True(t, errors.Is(err, &AcquireError{Kind: KindUnavailable}))
	assert.Len(t, src.requests(), 5)
}

func TestController_cancel(t *testing.T) {
	t.Run("between ticks", func(t *testing.T) {
		ctrl, clock := newTestController(t, &scriptedSource{script: alwaysInside})
		col, err := ctrl.Start(context.Background(), campus)
		require.NoError(t, err)

		nextProgress(t, col)
		clock.tick(t)
		nextProgress(t, col)
		ctrl.Cancel()
		waitDone(t, col)

		assert.Equal(t, StateCancelled, col.State())
		samples, err := col.Wait(context.Background())
		assert.Nil(t, samples)
		assert.Equal(t, ErrCancelled, err)
		_, err = col.Batch("hz_token")
		assert.Equal(t, ErrCancelled, err)
	})

	t.Run("during acquisition", func(t *testing.T) {
		ctrl, _ := newTestController(t, &scriptedSource{script: blockUntilDone})
		col, err := ctrl.Start(context.Background(), campus)
		require.NoError(t, err)

		col.Cancel()
		waitDone(t, col)
		assert.Equal(t, StateCancelled, col.State())
		assert.Equal(t, ErrCancelled, col.Err())
	})

	t.Run("parent context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		ctrl, _ := newTestController(t, &scriptedSource{script: alwaysInside})
		col, err := ctrl.Start(ctx, campus)
		require.NoError(t, err)

		nextProgress(t, col)
		cancel()
		waitDone(t, col)
		assert.Equal(t, StateCancelled, col.State())
	})
}

func TestController_singleFlow(t *testing.T) {
	ctrl, clock := newTestController(t, &scriptedSource{script: alwaysInside})

	first, err := ctrl.Start(context.Background(), campus)
	require.NoError(t, err)
	nextProgress(t, first)
	clock.tick(t)
	nextProgress(t, first)

	_, err = ctrl.Start(context.Background(), campus)
	assert.Equal(t, ErrCollectionInProgress, err)

	second := ctrl.Restart(context.Background(), campus)
	assert.Equal(t, StateCancelled, first.State())
	assert.Equal(t, 1, nextProgress(t, second).Count)

	second.Cancel()
	waitDone(t, second)
	third, err := ctrl.Start(context.Background(), campus)
	require.NoError(t, err)
	assert.Equal(t, 1, nextProgress(t, third).Count)
	third.Cancel()
	waitDone(t, third)
}

func TestController_progressFeedback(t *testing.T) {
	fixes := []Fix{
		fixAt(18.760, 73.690, 10),
		fixAt(19.000, 73.690, 10),
		fixAt(18.760, 73.690, 250),
	}
	src := &scriptedSource{script: func(n int, _ context.Context, _ Request) (Fix, error) {
		return fixes[n%len(fixes)], nil
	}}
	ctrl, clock := newTestController(t, src)
	col, err := ctrl.Start(context.Background(), campus)
	require.NoError(t, err)

	tests := []struct {
		wantFeedback Feedback
		wantLow      bool
	}{
		{FeedbackInside, false},
		{FeedbackOutside, false},
		{FeedbackInside, true},
	}
	for i, tt := range tests {
		t.Run(fmt.Sprintf("sample %d", i+1), func(t *testing.T) {
			p := nextProgress(t, col)
			assert.Equal(t, tt.wantFeedback, p.Feedback)
			assert.Equal(t, tt.wantLow, p.LowAccuracy)
			assert.Equal(t, t0, p.Sample.CapturedAt)
		})
		clock.tick(t)
	}
	col.Cancel()
	waitDone(t, col)
}

func TestController_capturedAtFallback(t *testing.T) {
	src := &scriptedSource{script: func(int, context.Context, Request) (Fix, error) {
		return Fix{Latitude: 18.760, Longitude: 73.690, AccuracyMeters: 5}, nil
	}}
	ctrl, _ := newTestController(t, src)
	col, err := ctrl.Start(context.Background(), geofence.Geofence{})
	require.NoError(t, err)

	assert.Equal(t, t0, nextProgress(t, col).Sample.CapturedAt)
	col.Cancel()
	waitDone(t, col)
}

func TestNewController(t *testing.T) {
	src := &scriptedSource{script: alwaysInside}
	tests := []struct {
		name    string
		src     Source
		mutate  func(*Options)
		wantErr bool
	}{
		{name: "defaults", src: src, mutate: func(*Options) {}},
		{name: "nil source", src: nil, mutate: func(*Options) {}, wantErr: true},
		{name: "zero target", src: src, mutate: func(o *Options) { o.TargetSampleCount = 0 }, wantErr: true},
		{name: "zero interval", src: src, mutate: func(o *Options) { o.Interval = 0 }, wantErr: true},
		{name: "zero timeout", src: src, mutate: func(o *Options) { o.AttemptTimeout = 0 }, wantErr: true},
		{name: "negative maximum age", src: src, mutate: func(o *Options) { o.MaximumAge = -time.Second }, wantErr: true},
		{name: "no cache", src: src, mutate: func(o *Options) { o.MaximumAge = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.mutate(&opts)
			ctrl, err := NewController(tt.src, opts)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, ctrl)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, StateIdle, ctrl.State())
		})
	}
}

func TestAcquireError(t *testing.T) {
	for kind := range kindMessages {
		err := NewAcquireError(kind, errProvider)
		assert.NotContains(t, err.Error(), "kCLErrorDomain", kind.String())
		assert.Equal(t, errProvider, errors.Unwrap(err))
	}

	denied := NewAcquireError(KindPermissionDenied, errProvider)
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: KindTimeout},
		{name: "wrapped deadline", err: errors.Wrap(context.DeadlineExceeded, "waiting for fix"), want: KindTimeout},
		{name: "provider error", err: errProvider, want: KindUnavailable},
		{name: "typed", err: denied, want: KindPermissionDenied},
		{name: "wrapped typed", err: errors.Wrap(denied, "gps"), want: KindPermissionDenied},
		{name: "fmt wrapped typed", err: fmt.Errorf("gps: %w", NewAcquireError(KindUnsupported, nil)), want: KindUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, asAcquireError(tt.err).Kind)
		})
	}
	assert.Equal(t, "ErrorKind(42)", ErrorKind(42).String())
}
