package mapsurface

import (
	"sync"

	"go.uber.org/zap"

	"github.com/kbdon7718-ui/fleet-dashboard/internal/domain/tracking"
	"github.com/kbdon7718-ui/fleet-dashboard/internal/tracker"
)

// Frame types sent to the browser map SDK.
const (
	FrameMapCreated    = "map_created"
	FrameMarkerCreated = "marker_created"
	FrameViewUpdate    = "view_update"
)

// Frame is one instruction for the map SDK running in the view.
type Frame struct {
	Type    string                `json:"type"`
	MountID string                `json:"mount_id"`
	Center  *tracking.GeoPosition `json:"center,omitempty"`
	Zoom    int                   `json:"zoom,omitempty"`
	Marker  *tracking.GeoPosition `json:"marker,omitempty"`
}

// FrameSink receives frames for one mounted view.
type FrameSink interface {
	SendFrame(f Frame) error
}

// Snapshot is the last committed state of a remote map.
type Snapshot struct {
	Center tracking.GeoPosition  `json:"center"`
	Zoom   int                   `json:"zoom"`
	Marker *tracking.GeoPosition `json:"marker,omitempty"`
}

// RemoteSurface implements tracker.MapSurface by mirroring map operations
// to a view over a FrameSink.
type RemoteSurface struct {
	sink   FrameSink
	logger *zap.Logger

	mu   sync.Mutex
	maps []*Map
}

// NewRemoteSurface creates a RemoteSurface writing to sink.
func NewRemoteSurface(sink FrameSink, logger *zap.Logger) *RemoteSurface {
	return &RemoteSurface{sink: sink, logger: logger}
}

// CreateMap implements tracker.MapSurface.
func (s *RemoteSurface) CreateMap(mountID string, opts tracker.MapOptions) tracker.MapHandle {
	m := &Map{
		surface: s,
		mountID: mountID,
		center:  opts.Center,
		zoom:    opts.Zoom,
	}

	s.mu.Lock()
	s.maps = append(s.maps, m)
	s.mu.Unlock()

	center := opts.Center
	s.send(Frame{
		Type:    FrameMapCreated,
		MountID: mountID,
		Center:  &center,
		Zoom:    opts.Zoom,
	})
	return m
}

// CreateMarker implements tracker.MapSurface.
func (s *RemoteSurface) CreateMarker(h tracker.MapHandle, position tracking.GeoPosition) tracker.MarkerHandle {
	m := h.(*Map)
	k := &Marker{m: m}

	m.mu.Lock()
	m.markerPos = position
	m.hasMarker = true
	m.mu.Unlock()

	pos := position
	s.send(Frame{
		Type:    FrameMarkerCreated,
		MountID: m.mountID,
		Marker:  &pos,
	})
	return k
}

// Snapshot returns the committed state of the most recently created map.
func (s *RemoteSurface) Snapshot() (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.maps) == 0 {
		return Snapshot{}, false
	}
	return s.maps[len(s.maps)-1].snapshot(), true
}

func (s *RemoteSurface) send(f Frame) {
	if err := s.sink.SendFrame(f); err != nil {
		s.logger.Warn("failed to send map frame",
			zap.String("mount_id", f.MountID),
			zap.String("type", f.Type),
			zap.Error(err),
		)
	}
}

// Map is a remote map instance. Center and marker changes are buffered
// until Commit.
type Map struct {
	surface *RemoteSurface
	mountID string

	mu        sync.Mutex
	center    tracking.GeoPosition
	zoom      int
	markerPos tracking.GeoPosition
	hasMarker bool

	pendingCenter *tracking.GeoPosition
	pendingMarker *tracking.GeoPosition
}

// SetCenter implements tracker.MapHandle.
func (m *Map) SetCenter(center tracking.GeoPosition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pendingCenter = &center
}

// Commit implements tracker.Committer. The frame is queued before the
// snapshot changes, so a snapshot never runs ahead of the view.
func (m *Map) Commit() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pendingCenter == nil && m.pendingMarker == nil {
		return
	}
	m.surface.send(Frame{
		Type:    FrameViewUpdate,
		MountID: m.mountID,
		Center:  m.pendingCenter,
		Marker:  m.pendingMarker,
	})
	if m.pendingCenter != nil {
		m.center = *m.pendingCenter
	}
	if m.pendingMarker != nil {
		m.markerPos = *m.pendingMarker
	}
	m.pendingCenter = nil
	m.pendingMarker = nil
}

func (m *Map) snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Snapshot{Center: m.center, Zoom: m.zoom}
	if m.hasMarker {
		pos := m.markerPos
		s.Marker = &pos
	}
	return s
}

// Marker is a remote marker bound to a Map.
type Marker struct {
	m *Map
}

// SetPosition implements tracker.MarkerHandle.
func (k *Marker) SetPosition(position tracking.GeoPosition) {
	k.m.mu.Lock()
	defer k.m.mu.Unlock()
	k.m.pendingMarker = &position
}
