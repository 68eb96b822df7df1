package tracker

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kbdon7718-ui/fleet-dashboard/internal/domain/tracking"
)

type fakeMap struct {
	mountID string
	opts    MapOptions
	center  tracking.GeoPosition
	commits int
}

func (m *fakeMap) SetCenter(c tracking.GeoPosition) { m.center = c }

func (m *fakeMap) Commit() { m.commits++ }

type fakeMarker struct {
	m        *fakeMap
	position tracking.GeoPosition
}

func (k *fakeMarker) SetPosition(p tracking.GeoPosition) { k.position = p }

type fakeSurface struct {
	maps    []*fakeMap
	markers []*fakeMarker
}

func (s *fakeSurface) CreateMap(mountID string, opts MapOptions) MapHandle {
	m := &fakeMap{mountID: mountID, opts: opts, center: opts.Center}
	s.maps = append(s.maps, m)
	return m
}

func (s *fakeSurface) CreateMarker(m MapHandle, p tracking.GeoPosition) MarkerHandle {
	k := &fakeMarker{m: m.(*fakeMap), position: p}
	s.markers = append(s.markers, k)
	return k
}

type watch struct {
	handle    SubscriptionHandle
	onFix     func(tracking.GeoPosition)
	onFailure func(tracking.Failure)
	opts      WatchOptions
}

type fakeSource struct {
	watches []*watch
	cancels []SubscriptionHandle
}

func (s *fakeSource) Watch(onFix func(tracking.GeoPosition), onFailure func(tracking.Failure), opts WatchOptions) SubscriptionHandle {
	w := &watch{
		handle:    SubscriptionHandle(fmt.Sprintf("watch-%d", len(s.watches)+1)),
		onFix:     onFix,
		onFailure: onFailure,
		opts:      opts,
	}
	s.watches = append(s.watches, w)
	return w.handle
}

func (s *fakeSource) Cancel(h SubscriptionHandle) {
	s.cancels = append(s.cancels, h)
}

func (s *fakeSource) last() *watch { return s.watches[len(s.watches)-1] }

func TestActivateWithoutSurface(t *testing.T) {
	src := &fakeSource{}
	c := NewController("fleet-map", nil, src, zap.NewNop())

	c.Activate()

	require.Equal(t, tracking.SDKNotLoaded(), c.State())
	require.Empty(t, src.watches)
	require.Equal(t, View{Error: "Mappls SDK not loaded"}, c.View())
	require.False(t, c.View().ShowsMap())

	c.Deactivate()
	require.Empty(t, src.cancels)
}

func TestActivateCreatesOneMapAndMarker(t *testing.T) {
	surface := &fakeSurface{}
	src := &fakeSource{}
	c := NewController("fleet-map", surface, src, zap.NewNop())

	c.Activate()
	c.Activate()

	require.Len(t, surface.maps, 1)
	require.Len(t, surface.markers, 1)
	require.Len(t, src.watches, 1)

	m := surface.maps[0]
	require.Equal(t, "fleet-map", m.mountID)
	require.Equal(t, MapOptions{Center: DefaultCenter, Zoom: 15}, m.opts)
	require.Equal(t, DefaultCenter, surface.markers[0].position)
	require.Same(t, m, surface.markers[0].m)
	require.True(t, src.last().opts.HighAccuracy)
	require.Equal(t, tracking.Tracking(), c.State())
}

func TestFixesLastWriteWins(t *testing.T) {
	surface := &fakeSurface{}
	src := &fakeSource{}
	c := NewController("fleet-map", surface, src, zap.NewNop())
	c.Activate()

	fixes := []tracking.GeoPosition{
		{Latitude: 28.61, Longitude: 77.20},
		{Latitude: 28.65, Longitude: 77.15},
		{Latitude: 28.65, Longitude: 77.15},
		{Latitude: 28.70, Longitude: 77.10},
	}
	for _, f := range fixes {
		src.last().onFix(f)
	}

	last := fixes[len(fixes)-1]
	require.Equal(t, last, surface.markers[0].position)
	require.Equal(t, last, surface.maps[0].center)
	require.Equal(t, len(fixes), surface.maps[0].commits)
	require.Equal(t, int64(len(fixes)), c.Fixes())
	require.Equal(t, View{MountID: "fleet-map"}, c.View())
}

func TestFailureIsTerminal(t *testing.T) {
	surface := &fakeSurface{}
	src := &fakeSource{}
	c := NewController("fleet-map", surface, src, zap.NewNop())
	c.Activate()

	w := src.last()
	w.onFix(tracking.NewGeoPosition(28.70, 77.10))
	w.onFailure(tracking.Failure{Cause: tracking.CausePermissionDenied})

	require.Equal(t, tracking.SourceFailed(tracking.CausePermissionDenied), c.State())

	w.onFix(tracking.NewGeoPosition(1, 2))
	w.onFailure(tracking.Failure{Cause: tracking.CauseTimeout})

	require.Equal(t, tracking.SourceFailed(tracking.CausePermissionDenied), c.State())
	require.Equal(t, tracking.NewGeoPosition(28.70, 77.10), surface.markers[0].position)
	require.Equal(t, View{Error: "Unable to fetch GPS location"}, c.View())

	// failure does not cancel the watch by itself
	require.Empty(t, src.cancels)
}

func TestDeactivateReleasesOnce(t *testing.T) {
	src := &fakeSource{}
	c := NewController("fleet-map", &fakeSurface{}, src, zap.NewNop())
	c.Activate()
	h := src.last().handle

	c.Deactivate()
	c.Deactivate()

	require.Equal(t, []SubscriptionHandle{h}, src.cancels)
}

func TestDeactivateAfterFailureStillReleases(t *testing.T) {
	src := &fakeSource{}
	c := NewController("fleet-map", &fakeSurface{}, src, zap.NewNop())
	c.Activate()
	src.last().onFailure(tracking.Failure{Cause: tracking.CauseTimeout})

	c.Deactivate()

	require.Equal(t, []SubscriptionHandle{src.last().handle}, src.cancels)
}

func TestDeactivateBeforeActivate(t *testing.T) {
	src := &fakeSource{}
	c := NewController("fleet-map", &fakeSurface{}, src, zap.NewNop())
	c.Deactivate()
	require.Empty(t, src.cancels)
}

// A missing position source is tolerated silently while a missing map
// surface is fatal. This asymmetry is intentional.
func TestMissingPositionSourceIsNotAnError(t *testing.T) {
	surface := &fakeSurface{}
	c := NewController("fleet-map", surface, nil, zap.NewNop())

	c.Activate()

	require.Equal(t, tracking.Uninitialized(), c.State())
	require.Equal(t, View{MountID: "fleet-map"}, c.View())
	require.True(t, c.View().ShowsMap())
	require.Len(t, surface.maps, 1)
	require.Equal(t, DefaultCenter, surface.maps[0].center)
	require.Equal(t, DefaultCenter, surface.markers[0].position)

	c.Deactivate()
}

func TestFixAfterDeactivateIsIgnored(t *testing.T) {
	surface := &fakeSurface{}
	src := &fakeSource{}
	c := NewController("fleet-map", surface, src, zap.NewNop())
	c.Activate()
	w := src.last()
	c.Deactivate()

	w.onFix(tracking.NewGeoPosition(10, 10))
	w.onFailure(tracking.Failure{Cause: tracking.CauseTimeout})

	require.Equal(t, DefaultCenter, surface.markers[0].position)
	require.Equal(t, tracking.Tracking(), c.State())
}

func TestReactivateStartsOver(t *testing.T) {
	surface := &fakeSurface{}
	src := &fakeSource{}
	c := NewController("fleet-map", surface, src, zap.NewNop())

	c.Activate()
	first := src.last()
	first.onFailure(tracking.Failure{Cause: tracking.CausePositionUnavailable})
	require.True(t, c.State().IsError())
	c.Deactivate()

	c.Activate()
	require.Equal(t, tracking.Tracking(), c.State())
	require.Len(t, surface.maps, 2)
	require.Len(t, src.watches, 2)

	// stale callbacks from the first activation are dropped
	first.onFix(tracking.NewGeoPosition(5, 5))
	require.Equal(t, DefaultCenter, surface.markers[1].position)

	src.last().onFix(tracking.NewGeoPosition(6, 6))
	require.Equal(t, tracking.NewGeoPosition(6, 6), surface.markers[1].position)

	c.Deactivate()
	require.Equal(t, []SubscriptionHandle{first.handle, src.last().handle}, src.cancels)
}

func TestCustomOptionsAndObserver(t *testing.T) {
	surface := &fakeSurface{}
	src := &fakeSource{}
	var seen []tracking.State
	center := tracking.NewGeoPosition(19.0760, 72.8777)

	c := NewController("depot-map", surface, src, zap.NewNop(),
		WithOptions(Options{Center: center, Zoom: 12, HighAccuracy: false}),
		WithObserver(func(s tracking.State) { seen = append(seen, s) }),
	)
	c.Activate()
	src.last().onFailure(tracking.Failure{Cause: tracking.CauseTimeout})

	require.Equal(t, MapOptions{Center: center, Zoom: 12}, surface.maps[0].opts)
	require.False(t, src.last().opts.HighAccuracy)
	require.Equal(t, []tracking.State{
		tracking.Tracking(),
		tracking.SourceFailed(tracking.CauseTimeout),
	}, seen)
}

func TestOutOfRangeFixIsAppliedAndLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	surface := &fakeSurface{}
	src := &fakeSource{}
	c := NewController("fleet-map", surface, src, zap.New(core))
	c.Activate()

	src.last().onFix(tracking.NewGeoPosition(95, 200))

	require.Equal(t, tracking.NewGeoPosition(95, 200), surface.markers[0].position)
	require.Equal(t, 1, logs.FilterMessage("applying out-of-range fix").Len())
}

func TestScenarioBaselineWithoutGeolocation(t *testing.T) {
	surface := &fakeSurface{}
	c := NewController("fleet-map", surface, nil, zap.NewNop(), WithOptions(Options{
		Center:       tracking.NewGeoPosition(28.6139, 77.2090),
		Zoom:         15,
		HighAccuracy: true,
	}))
	c.Activate()
	defer c.Deactivate()

	v := c.View()
	require.True(t, v.ShowsMap())
	require.Equal(t, "fleet-map", v.MountID)
	require.Empty(t, v.Error)
	require.Equal(t, tracking.NewGeoPosition(28.6139, 77.2090), surface.maps[0].center)
	require.Zero(t, surface.maps[0].commits)
}

func TestScenarioFixThenPermissionDenied(t *testing.T) {
	src := &fakeSource{}
	c := NewController("fleet-map", &fakeSurface{}, src, zap.NewNop())
	c.Activate()
	defer c.Deactivate()

	src.last().onFix(tracking.NewGeoPosition(28.70, 77.10))
	src.last().onFailure(tracking.Failure{Cause: tracking.ParseFailureCause("PERMISSION_DENIED")})

	v := c.View()
	require.False(t, v.ShowsMap())
	require.Equal(t, "Unable to fetch GPS location", v.Error)
	require.Empty(t, v.MountID)
}
