package tracker

import (
	"github.com/kbdon7718-ui/fleet-dashboard/internal/domain/tracking"
)

// Default map and watch settings.
const (
	DefaultMountID      = "fleet-map"
	DefaultZoom         = 15
	DefaultHighAccuracy = true
)

// DefaultCenter is the baseline coordinate (New Delhi) the map opens on
// before the first fix arrives.
var DefaultCenter = tracking.NewGeoPosition(28.6139, 77.2090)

// Options holds the externally visible controller configuration.
type Options struct {
	Center       tracking.GeoPosition
	Zoom         int
	HighAccuracy bool
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		Center:       DefaultCenter,
		Zoom:         DefaultZoom,
		HighAccuracy: DefaultHighAccuracy,
	}
}

// Option customizes a Controller.
type Option func(*Controller)

// WithOptions overrides the default center, zoom and accuracy.
func WithOptions(opts Options) Option {
	return func(c *Controller) {
		c.opts = opts
	}
}

// WithObserver registers a callback invoked on every state transition.
// It runs while the controller is locked and must not call back into it.
func WithObserver(fn func(tracking.State)) Option {
	return func(c *Controller) {
		c.observer = fn
	}
}
