package application

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kbdon7718-ui/fleet-dashboard/internal/domain"
	sessionDomain "github.com/kbdon7718-ui/fleet-dashboard/internal/domain/session"
	"github.com/kbdon7718-ui/fleet-dashboard/internal/domain/tracking"
	"github.com/kbdon7718-ui/fleet-dashboard/internal/events"
	"github.com/kbdon7718-ui/fleet-dashboard/internal/geolocation"
	"github.com/kbdon7718-ui/fleet-dashboard/internal/mapsurface"
	"github.com/kbdon7718-ui/fleet-dashboard/internal/tracker"
	"github.com/kbdon7718-ui/fleet-dashboard/internal/ws"
)

const (
	eventSource = "fleet-dashboard"
	outboxSize  = 256
)

// Capabilities describes what the page hosting a view can do.
type Capabilities struct {
	MapSDK      bool `json:"map_sdk"`
	Geolocation bool `json:"geolocation"`
}

// ViewDTO represents a mounted view in API responses.
type ViewDTO struct {
	MountID      string         `json:"mount_id"`
	SessionID    uuid.UUID      `json:"session_id"`
	Capabilities Capabilities   `json:"capabilities"`
	State        tracking.State `json:"state"`
	Fixes        int64          `json:"fixes"`
	MountedAt    time.Time      `json:"mounted_at"`
}

// RenderDTO is what the dashboard shell renders for a view: the error
// message alone, or the mount point with the current map state.
type RenderDTO struct {
	MountID string               `json:"mount_id,omitempty"`
	Error   string               `json:"error,omitempty"`
	Map     *mapsurface.Snapshot `json:"map,omitempty"`
}

type mountedView struct {
	client     *ws.Client
	controller *tracker.Controller
	surface    *mapsurface.RemoteSurface
	feed       *geolocation.Feed
	session    *sessionDomain.ViewSession
	caps       Capabilities
}

// ViewService implements the live map view use cases: one tracker
// controller per mounted view.
type ViewService struct {
	repo      sessionDomain.Repository
	hub       *ws.Hub
	publisher events.Publisher
	topic     string
	opts      tracker.Options
	logger    *zap.Logger

	mu     sync.Mutex
	views  map[string]*mountedView
	outbox chan *events.CloudEvent
}

// NewViewService creates a new ViewService.
func NewViewService(
	repo sessionDomain.Repository,
	hub *ws.Hub,
	publisher events.Publisher,
	topic string,
	opts tracker.Options,
	logger *zap.Logger,
) *ViewService {
	return &ViewService{
		repo:      repo,
		hub:       hub,
		publisher: publisher,
		topic:     topic,
		opts:      opts,
		logger:    logger,
		views:     make(map[string]*mountedView),
		outbox:    make(chan *events.CloudEvent, outboxSize),
	}
}

// Mount claims the client's mount point and starts a tracker for it.
func (s *ViewService) Mount(ctx context.Context, client *ws.Client, caps Capabilities) (*ViewDTO, error) {
	mountID := client.MountID

	if err := s.hub.Register(client); err != nil {
		return nil, fmt.Errorf("%w: mount point %s: %v", domain.ErrConflict, mountID, err)
	}

	sess := sessionDomain.NewViewSession(mountID, caps.MapSDK, caps.Geolocation)
	if err := s.repo.Save(ctx, sess); err != nil {
		s.hub.Unregister(client)
		return nil, fmt.Errorf("failed to save view session: %w", err)
	}

	view := &mountedView{
		client:  client,
		session: sess,
		caps:    caps,
	}

	// Absent capabilities must stay nil interfaces.
	var surface tracker.MapSurface
	if caps.MapSDK {
		view.surface = mapsurface.NewRemoteSurface(client, s.logger)
		surface = view.surface
	}
	var source tracker.PositionSource
	if caps.Geolocation {
		view.feed = geolocation.NewFeed(s.logger)
		source = view.feed
	}

	view.controller = tracker.NewController(mountID, surface, source, s.logger,
		tracker.WithOptions(s.opts),
		tracker.WithObserver(func(st tracking.State) { s.onStateChange(view, st) }),
	)

	s.mu.Lock()
	s.views[mountID] = view
	s.mu.Unlock()

	s.logger.Info("view mounted",
		zap.String("mount_id", mountID),
		zap.String("session_id", sess.ID().String()),
		zap.Bool("map_sdk", caps.MapSDK),
		zap.Bool("geolocation", caps.Geolocation),
	)
	s.enqueue(events.ViewMounted, mountID, events.ViewMountedEvent{
		SessionID:   sess.ID(),
		MountID:     mountID,
		MapSDK:      caps.MapSDK,
		Geolocation: caps.Geolocation,
		OccurredAt:  time.Now().UTC(),
	})

	view.controller.Activate()

	dto := view.toDTO()
	return &dto, nil
}

// HandleDeviceMessage routes a sensor message from a view into its position feed.
func (s *ViewService) HandleDeviceMessage(mountID string, msg ws.Message) {
	view, ok := s.lookup(mountID)
	if !ok {
		return
	}

	switch msg.Type {
	case ws.MessageFix, ws.MessageFailure:
		if view.feed == nil {
			s.logger.Debug("view has no geolocation capability, ignoring sensor message",
				zap.String("mount_id", mountID),
				zap.String("type", msg.Type),
			)
			return
		}
		if msg.Type == ws.MessageFix {
			view.feed.Publish(msg.Position())
		} else {
			view.feed.Fail(msg.Failure())
		}

	default:
		s.logger.Debug("ignoring unhandled view message",
			zap.String("mount_id", mountID),
			zap.String("type", msg.Type),
		)
	}
}

// Unmount stops the tracker of a view and releases its mount point.
func (s *ViewService) Unmount(ctx context.Context, mountID string) error {
	return s.unmount(ctx, mountID, nil)
}

// Detach unmounts the view owned by client. It returns ErrNotFound if the
// mount point has since been released or taken by another client.
func (s *ViewService) Detach(ctx context.Context, client *ws.Client) error {
	return s.unmount(ctx, client.MountID, client)
}

func (s *ViewService) unmount(ctx context.Context, mountID string, owner *ws.Client) error {
	s.mu.Lock()
	view, ok := s.views[mountID]
	if ok && owner != nil && view.client != owner {
		ok = false
	}
	if ok {
		delete(s.views, mountID)
	}
	s.mu.Unlock()

	if !ok {
		return domain.NewNotFoundError("view", mountID)
	}

	view.controller.Deactivate()
	if view.feed != nil {
		view.feed.Close()
	}
	s.hub.Unregister(view.client)

	final := view.controller.State()
	fixes := view.controller.Fixes()
	if err := view.session.Close(final, fixes); err != nil {
		s.logger.Warn("view session already closed", zap.Error(err))
	} else {
		view.session.IncrementVersion()
		if err := s.repo.Update(ctx, view.session); err != nil {
			s.logger.Error("failed to update view session",
				zap.String("session_id", view.session.ID().String()),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("view unmounted",
		zap.String("mount_id", mountID),
		zap.String("final_phase", string(final.Phase)),
		zap.Int64("fixes", fixes),
	)
	s.enqueue(events.ViewUnmounted, mountID, events.ViewUnmountedEvent{
		SessionID:  view.session.ID(),
		MountID:    mountID,
		FinalPhase: string(final.Phase),
		FixCount:   fixes,
		OccurredAt: time.Now().UTC(),
	})
	return nil
}

// Render returns what the dashboard shows for a mounted view.
func (s *ViewService) Render(mountID string) (*RenderDTO, error) {
	view, ok := s.lookup(mountID)
	if !ok {
		return nil, domain.NewNotFoundError("view", mountID)
	}

	v := view.controller.View()
	if !v.ShowsMap() {
		return &RenderDTO{Error: v.Error}, nil
	}

	out := &RenderDTO{MountID: v.MountID}
	if view.surface != nil {
		if snap, ok := view.surface.Snapshot(); ok {
			out.Map = &snap
		}
	}
	return out, nil
}

// List returns every mounted view ordered by mount point.
func (s *ViewService) List() []ViewDTO {
	s.mu.Lock()
	views := make([]*mountedView, 0, len(s.views))
	for _, v := range s.views {
		views = append(views, v)
	}
	s.mu.Unlock()

	out := make([]ViewDTO, 0, len(views))
	for _, v := range views {
		out = append(out, v.toDTO())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MountID < out[j].MountID })
	return out
}

// UnmountAll unmounts every view. Used on shutdown.
func (s *ViewService) UnmountAll(ctx context.Context) {
	for _, v := range s.List() {
		if err := s.Unmount(ctx, v.MountID); err != nil {
			s.logger.Warn("failed to unmount view", zap.String("mount_id", v.MountID), zap.Error(err))
		}
	}
}

// Announce shows a toast on every mounted view.
func (s *ViewService) Announce(variant, title, message string) int {
	s.hub.Broadcast(ws.NewNotice(variant, title, message))
	return len(s.hub.MountIDs())
}

// Run publishes queued lifecycle events until ctx is cancelled, then
// flushes what is left. Should be called in a goroutine.
func (s *ViewService) Run(ctx context.Context) {
	for {
		select {
		case evt := <-s.outbox:
			s.publish(ctx, evt)

		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			for {
				select {
				case evt := <-s.outbox:
					s.publish(flushCtx, evt)
				default:
					return
				}
			}
		}
	}
}

func (s *ViewService) onStateChange(view *mountedView, st tracking.State) {
	mountID := view.client.MountID
	view.session.RecordState(st)

	if err := view.client.SendJSON(ws.NewStateMessage(mountID, st)); err != nil {
		s.logger.Warn("failed to send state to view", zap.String("mount_id", mountID), zap.Error(err))
	}
	if st.IsError() {
		if err := s.hub.Notify(mountID, ws.NewNotice(ws.NoticeError, "Live tracking", st.Message)); err != nil {
			s.logger.Warn("failed to send notice to view", zap.String("mount_id", mountID), zap.Error(err))
		}
	}

	s.enqueue(events.TrackerStateChanged, mountID, events.TrackerStateChangedEvent{
		SessionID:  view.session.ID(),
		MountID:    mountID,
		Phase:      string(st.Phase),
		Kind:       string(st.Kind),
		Message:    st.Message,
		Cause:      string(st.Cause),
		OccurredAt: time.Now().UTC(),
	})
}

func (s *ViewService) enqueue(eventType, mountID string, data interface{}) {
	evt, err := events.NewCloudEvent(eventSource, eventType, mountID, data)
	if err != nil {
		s.logger.Error("failed to create cloud event", zap.Error(err))
		return
	}
	select {
	case s.outbox <- evt:
	default:
		s.logger.Warn("event outbox full, dropping event",
			zap.String("type", eventType),
			zap.String("mount_id", mountID),
		)
	}
}

func (s *ViewService) publish(ctx context.Context, evt *events.CloudEvent) {
	if err := s.publisher.PublishEvent(ctx, s.topic, evt); err != nil {
		s.logger.Error("failed to publish event",
			zap.String("type", evt.Type),
			zap.Error(err),
		)
	}
}

func (s *ViewService) lookup(mountID string) (*mountedView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.views[mountID]
	return v, ok
}

func (v *mountedView) toDTO() ViewDTO {
	return ViewDTO{
		MountID:      v.client.MountID,
		SessionID:    v.session.ID(),
		Capabilities: v.caps,
		State:        v.controller.State(),
		Fixes:        v.controller.Fixes(),
		MountedAt:    v.session.StartedAt(),
	}
}
