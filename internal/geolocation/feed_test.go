package geolocation

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kbdon7718-ui/fleet-dashboard/internal/domain/tracking"
	"github.com/kbdon7718-ui/fleet-dashboard/internal/tracker"
)

type recorder struct {
	mu     sync.Mutex
	events []tracking.Event
}

func (r *recorder) fix(p tracking.GeoPosition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, tracking.FixEvent(p))
}

func (r *recorder) failure(f tracking.Failure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, tracking.FailureEvent(f))
}

func (r *recorder) snapshot() []tracking.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]tracking.Event(nil), r.events...)
}

func TestFeedDeliversInOrder(t *testing.T) {
	f := NewFeed(zap.NewNop())
	defer f.Close()

	r := &recorder{}
	h := f.Watch(r.fix, r.failure, tracker.WatchOptions{HighAccuracy: true})
	require.NotEmpty(t, h)
	require.Equal(t, 1, f.Watching())

	var want []tracking.Event
	for i := 0; i < 20; i++ {
		p := tracking.NewGeoPosition(float64(i), float64(-i))
		f.Publish(p)
		want = append(want, tracking.FixEvent(p))
	}
	fail := tracking.Failure{Cause: tracking.CauseTimeout}
	f.Fail(fail)
	want = append(want, tracking.FailureEvent(fail))

	require.Eventually(t, func() bool {
		return len(r.snapshot()) == len(want)
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, want, r.snapshot())
}

func TestFeedCancelStopsDelivery(t *testing.T) {
	f := NewFeed(zap.NewNop())
	defer f.Close()

	r := &recorder{}
	h := f.Watch(r.fix, r.failure, tracker.WatchOptions{})

	f.Publish(tracking.NewGeoPosition(1, 1))
	require.Eventually(t, func() bool {
		return len(r.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)

	f.Cancel(h)
	f.Cancel(h)
	f.Cancel("unknown")
	require.Equal(t, 0, f.Watching())

	f.Publish(tracking.NewGeoPosition(2, 2))
	time.Sleep(20 * time.Millisecond)
	require.Len(t, r.snapshot(), 1)
}

func TestFeedIndependentWatches(t *testing.T) {
	f := NewFeed(zap.NewNop())
	defer f.Close()

	a, b := &recorder{}, &recorder{}
	ha := f.Watch(a.fix, a.failure, tracker.WatchOptions{})
	hb := f.Watch(b.fix, b.failure, tracker.WatchOptions{})
	require.NotEqual(t, ha, hb)

	f.Publish(tracking.NewGeoPosition(3, 4))
	require.Eventually(t, func() bool {
		return len(a.snapshot()) == 1 && len(b.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)

	f.Cancel(ha)
	f.Publish(tracking.NewGeoPosition(5, 6))
	require.Eventually(t, func() bool {
		return len(b.snapshot()) == 2
	}, time.Second, 5*time.Millisecond)
	require.Len(t, a.snapshot(), 1)
}

func TestFeedFailureSurvivesFullQueue(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	f := NewFeed(zap.New(core))
	defer f.Close()

	r := &recorder{}
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	onFix := func(p tracking.GeoPosition) {
		once.Do(func() { close(started) })
		<-release
		r.fix(p)
	}
	f.Watch(onFix, r.failure, tracker.WatchOptions{})

	// first fix is taken off the queue and blocks in the callback
	f.Publish(tracking.NewGeoPosition(0, 0))
	<-started
	for i := 1; i <= queueSize; i++ {
		f.Publish(tracking.NewGeoPosition(float64(i), 0))
	}
	f.Publish(tracking.NewGeoPosition(99, 99))
	fail := tracking.Failure{Cause: tracking.CausePermissionDenied}
	f.Fail(fail)

	require.Equal(t, 1, logs.FilterMessage("watch queue full, dropping fix").Len())
	require.Equal(t, 1, logs.FilterMessage("watch queue full, failure deferred").Len())

	close(release)
	require.Eventually(t, func() bool {
		return len(r.snapshot()) == queueSize+2
	}, time.Second, 5*time.Millisecond)

	got := r.snapshot()
	require.Equal(t, tracking.FailureEvent(fail), got[len(got)-1])
	for _, ev := range got[:len(got)-1] {
		require.Equal(t, tracking.EventFix, ev.Kind)
		require.NotEqual(t, tracking.NewGeoPosition(99, 99), ev.Position)
	}
}

func TestFeedClose(t *testing.T) {
	f := NewFeed(zap.NewNop())
	r := &recorder{}
	f.Watch(r.fix, r.failure, tracker.WatchOptions{})

	f.Close()
	f.Close()
	require.Equal(t, 0, f.Watching())

	f.Publish(tracking.NewGeoPosition(1, 1))
	h := f.Watch(r.fix, r.failure, tracker.WatchOptions{})
	f.Cancel(h)
	f.Publish(tracking.NewGeoPosition(1, 1))

	time.Sleep(20 * time.Millisecond)
	require.Empty(t, r.snapshot())
}

func TestFeedDrivesController(t *testing.T) {
	f := NewFeed(zap.NewNop())
	defer f.Close()

	surface := &stubSurface{}
	c := tracker.NewController("fleet-map", surface, f, zap.NewNop())
	c.Activate()
	require.Equal(t, 1, f.Watching())

	f.Publish(tracking.NewGeoPosition(28.70, 77.10))
	require.Eventually(t, func() bool {
		return c.Fixes() == 1
	}, time.Second, 5*time.Millisecond)

	f.Fail(tracking.Failure{Cause: tracking.CausePermissionDenied})
	require.Eventually(t, func() bool {
		return c.State().IsError()
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, "Unable to fetch GPS location", c.View().Error)

	c.Deactivate()
	require.Equal(t, 0, f.Watching())
}

type stubSurface struct{}

type stubHandle struct{}

func (stubHandle) SetCenter(tracking.GeoPosition)   {}
func (stubHandle) SetPosition(tracking.GeoPosition) {}

func (stubSurface) CreateMap(string, tracker.MapOptions) tracker.MapHandle { return stubHandle{} }

func (stubSurface) CreateMarker(tracker.MapHandle, tracking.GeoPosition) tracker.MarkerHandle {
	return stubHandle{}
}
