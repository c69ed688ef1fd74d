package notify

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"k8s.io/apimachinery/pkg/watch"
)

// DefaultQueueLength is the number of pending events buffered per observer.
const DefaultQueueLength = 1000

// Resolver is the in-process observer registry.
// Observers watch a URI and receive every change at, below, or above it.
type Resolver struct {
	broadcaster *watch.Broadcaster
	logger      *slog.Logger
}

func NewResolver(queueLength int, logger *slog.Logger) *Resolver {
	if queueLength <= 0 {
		queueLength = DefaultQueueLength
	}

	return &Resolver{
		// Notifications are fire-and-forget: a slow observer loses events instead of blocking writers.
		broadcaster: watch.NewBroadcaster(queueLength, watch.DropIfChannelFull),
		logger:      logger.With("component", "resolver"),
	}
}

// NewChangeEvent returns an event for uri with a fresh id.
func NewChangeEvent(uri, action string) *ChangeEvent {
	return &ChangeEvent{
		ID:        uuid.NewString(),
		URI:       uri,
		Action:    action,
		Timestamp: time.Now().UTC(),
	}
}

// Notify delivers event to every observer whose URI matches event.URI.
func (r *Resolver) Notify(event *ChangeEvent) error {
	r.logger.Debug("Notifying change", "uri", event.URI, "action", event.Action, "id", event.ID)

	if err := r.broadcaster.Action(watch.Modified, event); err != nil {
		return fmt.Errorf("failed to notify change of %s: %w", event.URI, err)
	}

	return nil
}

// NotifyChange is a shorthand for Notify(NewChangeEvent(uri, action)).
func (r *Resolver) NotifyChange(uri, action string) error {
	return r.Notify(NewChangeEvent(uri, action))
}

// Watch returns a stream of the changes affecting uri.
func (r *Resolver) Watch(uri string) (watch.Interface, error) {
	w, err := r.broadcaster.Watch()
	if err != nil {
		return nil, fmt.Errorf("failed to watch %s: %w", uri, err)
	}

	return watch.Filter(w, func(in watch.Event) (watch.Event, bool) {
		event, ok := in.Object.(*ChangeEvent)
		if !ok {
			return in, false
		}

		return in, Matches(uri, event.URI)
	}), nil
}

// Shutdown disconnects all observers.
func (r *Resolver) Shutdown() {
	r.broadcaster.Shutdown()
}

// Matches reports whether an observer of observed must hear about a change of changed.
// Both URIs are compared by authority and path segments; query parameters are ignored.
func Matches(observed, changed string) bool {
	o := normalize(observed)
	c := normalize(changed)

	return o == c || strings.HasPrefix(c, o+"/") || strings.HasPrefix(o, c+"/")
}

func normalize(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return strings.TrimSuffix(raw, "/")
	}

	return strings.TrimSuffix(u.Scheme+"://"+u.Host+u.Path, "/")
}
