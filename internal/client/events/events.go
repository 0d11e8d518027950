package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// EventType represents the type of event.
type EventType int

const (
	// Session lifecycle events
	EventStateChanged EventType = iota
	EventConnected
	EventDisconnected
	EventBackoff

	// Device events
	EventSwitchChanged
	EventNetworkChanged

	// Error events
	EventError

	// Log events (for TUI display)
	EventLog
)

// String returns a human-readable name for the event type.
func (t EventType) String() string {
	switch t {
	case EventStateChanged:
		return "state_changed"
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventBackoff:
		return "backoff"
	case EventSwitchChanged:
		return "switch_changed"
	case EventNetworkChanged:
		return "network_changed"
	case EventError:
		return "error"
	case EventLog:
		return "log"
	default:
		return "unknown"
	}
}

// Event represents an event in the system.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      interface{}
}

// StateData contains data for EventStateChanged.
type StateData struct {
	From string
	To   string
}

// ConnectedData contains data for EventConnected.
type ConnectedData struct {
	BrokerAddr string
	Topic      string
}

// SwitchData contains data for EventSwitchChanged.
type SwitchData struct {
	On     bool
	Source string // "subscribe" or "push"
}

// NetworkData contains data for EventNetworkChanged.
type NetworkData struct {
	Available bool
}

// BackoffData contains data for EventBackoff.
type BackoffData struct {
	Failures int
	Delay    time.Duration
}

// ErrorData contains data for EventError.
type ErrorData struct {
	Error   error
	Context string
}

// LogData contains data for EventLog.
type LogData struct {
	Level   string // "info", "warn", "error"
	Message string
}

// SessionEvents lists every type except EventLog, for observers that
// only care about session activity.
var SessionEvents = []EventType{
	EventStateChanged,
	EventConnected,
	EventDisconnected,
	EventBackoff,
	EventSwitchChanged,
	EventNetworkChanged,
	EventError,
}

type subscriber struct {
	ch    chan Event
	types map[EventType]struct{} // nil receives everything
}

func (s subscriber) wants(t EventType) bool {
	if s.types == nil {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// Bus fans events out to subscribers. Delivery never blocks the publisher;
// a subscriber whose buffer is full misses the event.
type Bus struct {
	mu          sync.RWMutex
	subscribers []subscriber
	bufferSize  int
	closed      bool
	dropped     uint64
}

// NewBus creates a bus with the default per-subscriber buffer of 100.
func NewBus() *Bus {
	return NewBusWithBuffer(100)
}

// NewBusWithBuffer creates a bus with a custom per-subscriber buffer.
func NewBusWithBuffer(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &Bus{bufferSize: bufferSize}
}

// Subscribe returns a channel receiving events of the given types, or of
// every type when none are given. The caller must keep draining it.
func (b *Bus) Subscribe(types ...EventType) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	sub := subscriber{ch: make(chan Event, b.bufferSize)}
	if len(types) > 0 {
		sub.types = make(map[EventType]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}
	b.subscribers = append(b.subscribers, sub)
	return sub.ch
}

// Unsubscribe closes ch and stops delivery to it.
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subscribers {
		if sub.ch == ch {
			close(sub.ch)
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			return
		}
	}
}

// Publish stamps event and delivers it to interested subscribers.
// Publishing on a nil or closed bus is a no-op.
func (b *Bus) Publish(event Event) {
	if b == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, sub := range b.subscribers {
		if !sub.wants(event.Type) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			atomic.AddUint64(&b.dropped, 1)
		}
	}
}

// Dropped returns how many deliveries were skipped because a subscriber
// buffer was full.
func (b *Bus) Dropped() uint64 {
	return atomic.LoadUint64(&b.dropped)
}

// PublishState announces a session state transition.
func (b *Bus) PublishState(from, to string) {
	b.Publish(Event{Type: EventStateChanged, Data: StateData{From: from, To: to}})
}

// PublishConnected announces an open broker socket.
func (b *Bus) PublishConnected(brokerAddr, topic string) {
	b.Publish(Event{Type: EventConnected, Data: ConnectedData{BrokerAddr: brokerAddr, Topic: topic}})
}

// PublishDisconnected announces that the broker socket was closed.
func (b *Bus) PublishDisconnected() {
	b.Publish(Event{Type: EventDisconnected})
}

// PublishSwitch announces the switch position reported by the broker.
func (b *Bus) PublishSwitch(on bool, source string) {
	b.Publish(Event{Type: EventSwitchChanged, Data: SwitchData{On: on, Source: source}})
}

// PublishNetwork announces a change in uplink availability.
func (b *Bus) PublishNetwork(available bool) {
	b.Publish(Event{Type: EventNetworkChanged, Data: NetworkData{Available: available}})
}

// PublishBackoff announces a stretched retry delay.
func (b *Bus) PublishBackoff(failures int, delay time.Duration) {
	b.Publish(Event{Type: EventBackoff, Data: BackoffData{Failures: failures, Delay: delay}})
}

// PublishError publishes an error event. context names the failing step.
func (b *Bus) PublishError(err error, context string) {
	b.Publish(Event{Type: EventError, Data: ErrorData{Error: err, Context: context}})
}

// PublishLog publishes a log line for the TUI.
func (b *Bus) PublishLog(level, message string) {
	b.Publish(Event{Type: EventLog, Data: LogData{Level: level, Message: message}})
}

// Close closes every subscriber channel. Later publishes are dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true
	for _, sub := range b.subscribers {
		close(sub.ch)
	}
	b.subscribers = nil
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
