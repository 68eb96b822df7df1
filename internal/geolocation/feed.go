package geolocation

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kbdon7718-ui/fleet-dashboard/internal/domain/tracking"
	"github.com/kbdon7718-ui/fleet-dashboard/internal/tracker"
)

// queueSize is the number of events buffered per watch before new ones are dropped.
const queueSize = 64

type watcher struct {
	handle    tracker.SubscriptionHandle
	opts      tracker.WatchOptions
	events    chan tracking.Event
	done      chan struct{}
	onFix     func(tracking.GeoPosition)
	onFailure func(tracking.Failure)

	// A failure that found the queue full waits here until the queue drains.
	mu       sync.Mutex
	deferred *tracking.Failure
	failed   chan struct{}
}

// Feed is a PositionSource fed by a device sensor. Each watch drains its own
// queue on a dedicated goroutine, so callbacks of one watch never overlap and
// arrive in the order events were published.
type Feed struct {
	mu       sync.Mutex
	watchers map[tracker.SubscriptionHandle]*watcher
	closed   bool
	logger   *zap.Logger
}

// NewFeed creates an empty Feed.
func NewFeed(logger *zap.Logger) *Feed {
	return &Feed{
		watchers: make(map[tracker.SubscriptionHandle]*watcher),
		logger:   logger,
	}
}

// Watch implements tracker.PositionSource.
func (f *Feed) Watch(
	onFix func(tracking.GeoPosition),
	onFailure func(tracking.Failure),
	opts tracker.WatchOptions,
) tracker.SubscriptionHandle {
	w := &watcher{
		handle:    tracker.SubscriptionHandle(uuid.NewString()),
		opts:      opts,
		events:    make(chan tracking.Event, queueSize),
		done:      make(chan struct{}),
		failed:    make(chan struct{}, 1),
		onFix:     onFix,
		onFailure: onFailure,
	}

	f.mu.Lock()
	if f.closed {
		close(w.done)
	} else {
		f.watchers[w.handle] = w
	}
	f.mu.Unlock()

	go w.run()

	f.logger.Debug("watch started",
		zap.String("subscription", string(w.handle)),
		zap.Bool("high_accuracy", opts.HighAccuracy),
	)
	return w.handle
}

// Cancel implements tracker.PositionSource. Unknown or already cancelled
// handles are ignored.
func (f *Feed) Cancel(h tracker.SubscriptionHandle) {
	f.mu.Lock()
	w, ok := f.watchers[h]
	if ok {
		delete(f.watchers, h)
	}
	f.mu.Unlock()

	if !ok {
		return
	}
	close(w.done)

	f.logger.Debug("watch cancelled", zap.String("subscription", string(h)))
}

// Publish delivers a fix to every live watch.
func (f *Feed) Publish(p tracking.GeoPosition) {
	f.emit(tracking.FixEvent(p))
}

// Fail delivers a failure to every live watch.
func (f *Feed) Fail(failure tracking.Failure) {
	f.emit(tracking.FailureEvent(failure))
}

// Watching returns the number of live watches.
func (f *Feed) Watching() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.watchers)
}

// Close cancels every watch. Events published afterwards are discarded.
func (f *Feed) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	watchers := f.watchers
	f.watchers = make(map[tracker.SubscriptionHandle]*watcher)
	f.mu.Unlock()

	for _, w := range watchers {
		close(w.done)
	}
}

func (f *Feed) emit(ev tracking.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}

	for _, w := range f.watchers {
		select {
		case w.events <- ev:
			continue
		default:
		}

		// Fixes are superseded by later ones; a failure must always arrive.
		if ev.Kind == tracking.EventFailure {
			w.deferFailure(ev.Failure)
			f.logger.Warn("watch queue full, failure deferred",
				zap.String("subscription", string(w.handle)),
			)
			continue
		}
		f.logger.Warn("watch queue full, dropping fix",
			zap.String("subscription", string(w.handle)),
		)
	}
}

// deferFailure parks f until run has drained the queue. Only the first
// failure is kept; the tracker is terminal after it anyway.
func (w *watcher) deferFailure(f tracking.Failure) {
	w.mu.Lock()
	if w.deferred == nil {
		w.deferred = &f
	}
	w.mu.Unlock()

	select {
	case w.failed <- struct{}{}:
	default:
	}
}

func (w *watcher) takeFailure() (tracking.Failure, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.deferred == nil {
		return tracking.Failure{}, false
	}
	f := *w.deferred
	w.deferred = nil
	return f, true
}

func (w *watcher) run() {
	for {
		select {
		case <-w.done:
			return

		case ev := <-w.events:
			if !w.deliver(ev) {
				return
			}

		case <-w.failed:
			// Everything queued before the failure goes first.
			for drained := false; !drained; {
				select {
				case ev := <-w.events:
					if !w.deliver(ev) {
						return
					}
				default:
					drained = true
				}
			}
			if f, ok := w.takeFailure(); ok {
				if !w.deliver(tracking.FailureEvent(f)) {
					return
				}
			}
		}
	}
}

// deliver invokes the callback for ev. It returns false if the watch was
// cancelled, in which case nothing is delivered.
func (w *watcher) deliver(ev tracking.Event) bool {
	// a cancel that raced with the receive wins
	select {
	case <-w.done:
		return false
	default:
	}

	switch ev.Kind {
	case tracking.EventFix:
		w.onFix(ev.Position)
	case tracking.EventFailure:
		w.onFailure(ev.Failure)
	}
	return true
}
