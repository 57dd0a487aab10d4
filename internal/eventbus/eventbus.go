// Package eventbus is the process-scoped lifecycle event fan-out used by
// the source tracker, source state machine and hop scheduler to announce
// DATASOURCE_OPENED / DATASOURCE_ERROR / DATASOURCE_CLOSED style events
// without every component holding references to every subscriber.
package eventbus

import "sync"

// EventType names the event kinds the core emits. Concrete per-phy
// alert/device-tracker subscribers are external collaborators (spec §1).
type EventType string

const (
	DatasourceOpened EventType = "DATASOURCE_OPENED"
	DatasourceError   EventType = "DATASOURCE_ERROR"
	DatasourceClosed  EventType = "DATASOURCE_CLOSED"
	DatasourceWarning EventType = "DATASOURCE_WARNING"
	AlertRaised        EventType = "ALERT_RAISED"
)

// Event is the payload delivered to subscribers.
type Event struct {
	Type       EventType
	SourceUUID string
	SourceKey  uint32
	Kind       string // kiserr.Kind.String(), empty for non-error events
	Message    string
}

type Handler func(Event)

// Bus is a simple synchronous pub/sub. Handlers are invoked on the
// publisher's goroutine; slow handlers should hand off to their own
// goroutine/queue. This mirrors the teacher's own channel-based event
// hand-off in daemon/internal/cloud_client without requiring a dedicated
// dispatcher goroutine for the common case of a handful of subscribers.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

func New() *Bus {
	return &Bus{handlers: make(map[EventType][]Handler)}
}

// Subscribe registers fn to be called for every event of type t.
func (b *Bus) Subscribe(t EventType, fn Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], fn)
}

// SubscribeAll registers fn for every event type.
func (b *Bus) SubscribeAll(fn Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[""] = append(b.handlers[""], fn)
}

// Publish delivers ev to all matching subscribers.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	hs := append([]Handler{}, b.handlers[ev.Type]...)
	hs = append(hs, b.handlers[""]...)
	b.mu.RUnlock()

	for _, h := range hs {
		h(ev)
	}
}
