package tracker

import (
	"github.com/kbdon7718-ui/fleet-dashboard/internal/domain/tracking"
)

// MapOptions configures a newly created map surface.
type MapOptions struct {
	Center tracking.GeoPosition
	Zoom   int
}

// MapSurface is the mapping capability a controller draws on.
type MapSurface interface {
	// CreateMap attaches a map to the given mount point.
	CreateMap(mountID string, opts MapOptions) MapHandle

	// CreateMarker places a marker bound to the given map.
	CreateMarker(m MapHandle, position tracking.GeoPosition) MarkerHandle
}

// MapHandle is a map instance created by a MapSurface.
type MapHandle interface {
	SetCenter(center tracking.GeoPosition)
}

// MarkerHandle is a marker instance created by a MapSurface.
type MarkerHandle interface {
	SetPosition(position tracking.GeoPosition)
}

// Committer is implemented by map handles that buffer mutations.
// Commit publishes every mutation made since the previous Commit as one update.
type Committer interface {
	Commit()
}

// SubscriptionHandle identifies a watch started on a PositionSource.
type SubscriptionHandle string

// WatchOptions configures a watch.
type WatchOptions struct {
	HighAccuracy bool
}

// PositionSource is the geolocation capability a controller subscribes to.
type PositionSource interface {
	// Watch starts a continuous subscription. Callbacks for one watch are
	// invoked sequentially, in emission order, until Cancel is called.
	// Watch must return before the first callback runs.
	Watch(onFix func(tracking.GeoPosition), onFailure func(tracking.Failure), opts WatchOptions) SubscriptionHandle

	// Cancel stops the subscription identified by h. It must not wait for
	// a callback that is already running.
	Cancel(h SubscriptionHandle)
}
