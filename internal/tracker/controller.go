package tracker

import (
	"sync"

	"go.uber.org/zap"

	"github.com/kbdon7718-ui/fleet-dashboard/internal/domain/tracking"
)

// View is what the dashboard renders for a tracker: either the error
// message alone, or the mount point the map is attached to.
type View struct {
	MountID string `json:"mount_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ShowsMap returns true if the view renders the map container.
func (v View) ShowsMap() bool { return v.Error == "" }

// Controller binds one position subscription to one map and marker pair.
// A Controller serves a single mount point; callers must not share a
// mount point between controllers.
type Controller struct {
	mountID  string
	surface  MapSurface
	source   PositionSource
	opts     Options
	observer func(tracking.State)
	logger   *zap.Logger

	mu         sync.Mutex
	state      tracking.State
	active     bool
	epoch      uint64
	mapHandle  MapHandle
	marker     MarkerHandle
	handle     SubscriptionHandle
	subscribed bool
	fixes      int64
}

// NewController creates a Controller. A nil surface or source means the
// capability is absent from the runtime.
func NewController(
	mountID string,
	surface MapSurface,
	source PositionSource,
	logger *zap.Logger,
	options ...Option,
) *Controller {
	c := &Controller{
		mountID: mountID,
		surface: surface,
		source:  source,
		opts:    DefaultOptions(),
		logger:  logger.With(zap.String("mount_id", mountID)),
		state:   tracking.Uninitialized(),
	}
	for _, o := range options {
		o(c)
	}
	return c
}

// Activate sets up the map and marker and subscribes to the position source.
// Activating an already active controller does nothing.
func (c *Controller) Activate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active {
		return
	}
	c.active = true
	c.epoch++
	c.fixes = 0
	c.mapHandle = nil
	c.marker = nil
	c.setState(tracking.Uninitialized())

	if c.surface == nil {
		c.logger.Warn("map surface unavailable, tracker disabled")
		c.setState(tracking.SDKNotLoaded())
		return
	}

	c.mapHandle = c.surface.CreateMap(c.mountID, MapOptions{
		Center: c.opts.Center,
		Zoom:   c.opts.Zoom,
	})
	c.marker = c.surface.CreateMarker(c.mapHandle, c.opts.Center)

	if c.source == nil {
		// Map stays on screen at its default center and never moves.
		c.logger.Info("position source unavailable, map will not follow the device")
		return
	}

	epoch := c.epoch
	c.handle = c.source.Watch(
		func(p tracking.GeoPosition) { c.onFix(epoch, p) },
		func(f tracking.Failure) { c.onFailure(epoch, f) },
		WatchOptions{HighAccuracy: c.opts.HighAccuracy},
	)
	c.subscribed = true
	c.setState(tracking.Tracking())

	c.logger.Info("live tracking started",
		zap.String("subscription", string(c.handle)),
		zap.Bool("high_accuracy", c.opts.HighAccuracy),
	)
}

// Deactivate releases the subscription if one was acquired. It is safe to
// call more than once; the release happens at most once per activation.
func (c *Controller) Deactivate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active {
		return
	}
	c.active = false

	if !c.subscribed {
		return
	}
	handle := c.handle
	c.subscribed = false
	c.handle = ""
	c.source.Cancel(handle)

	c.logger.Info("live tracking stopped",
		zap.String("subscription", string(handle)),
		zap.Int64("fixes", c.fixes),
	)
}

// State returns the current tracker state.
func (c *Controller) State() tracking.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// View returns the rendering projection of the current state.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.IsError() {
		return View{Error: c.state.Message}
	}
	return View{MountID: c.mountID}
}

// MountID returns the mount point this controller draws on.
func (c *Controller) MountID() string { return c.mountID }

// Fixes returns the number of fixes applied during the current activation.
func (c *Controller) Fixes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fixes
}

func (c *Controller) onFix(epoch uint64, p tracking.GeoPosition) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.current(epoch) || c.state.IsTerminal() {
		return
	}
	if err := p.Validate(); err != nil {
		c.logger.Warn("applying out-of-range fix", zap.Error(err))
	}

	c.fixes++
	c.marker.SetPosition(p)
	c.mapHandle.SetCenter(p)
	if cm, ok := c.mapHandle.(Committer); ok {
		cm.Commit()
	}

	c.logger.Debug("fix applied",
		zap.Float64("lat", p.Latitude),
		zap.Float64("lng", p.Longitude),
	)
}

func (c *Controller) onFailure(epoch uint64, f tracking.Failure) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.current(epoch) || c.state.IsTerminal() {
		return
	}

	// The watch stays open until Deactivate.
	c.logger.Error("position source failed",
		zap.String("cause", string(f.Cause)),
		zap.String("detail", f.Detail),
	)
	c.setState(tracking.SourceFailed(f.Cause))
}

// current reports whether a callback belongs to the live activation.
func (c *Controller) current(epoch uint64) bool {
	return c.active && c.subscribed && epoch == c.epoch
}

func (c *Controller) setState(s tracking.State) {
	if s == c.state {
		return
	}
	prev := c.state
	c.state = s

	c.logger.Info("tracker state changed",
		zap.String("from", string(prev.Phase)),
		zap.String("to", string(s.Phase)),
		zap.String("message", s.Message),
	)
	if c.observer != nil {
		c.observer(s)
	}
}
