package status

import (
	"fmt"
	"sync"
	"time"

	"bemfarelay/internal/client/events"
)

// Entry is one recorded event.
type Entry struct {
	ID     int64     `json:"id"`
	Time   time.Time `json:"time"`
	Type   string    `json:"type"`
	Detail string    `json:"detail,omitempty"`
}

// History keeps the most recent events in a fixed-size ring.
type History struct {
	mu      sync.RWMutex
	entries []Entry
	max     int
	nextID  int64
}

// NewHistory creates a history holding up to max entries.
func NewHistory(max int) *History {
	if max <= 0 {
		max = 100
	}
	return &History{max: max}
}

// Add records ev and returns its ID.
func (h *History) Add(ev events.Event) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	entry := Entry{
		ID:     h.nextID,
		Time:   ev.Timestamp,
		Type:   ev.Type.String(),
		Detail: describe(ev),
	}
	if entry.Time.IsZero() {
		entry.Time = time.Now()
	}

	h.entries = append(h.entries, entry)
	if len(h.entries) > h.max {
		h.entries = h.entries[len(h.entries)-h.max:]
	}
	return entry.ID
}

// List returns the entries newest first.
func (h *History) List() []Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Entry, len(h.entries))
	for i, e := range h.entries {
		out[len(h.entries)-1-i] = e
	}
	return out
}

// Len returns the number of stored entries.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

func describe(ev events.Event) string {
	switch d := ev.Data.(type) {
	case events.StateData:
		return d.From + " -> " + d.To
	case events.ConnectedData:
		return d.BrokerAddr + " topic " + d.Topic
	case events.SwitchData:
		state := "off"
		if d.On {
			state = "on"
		}
		return state + " (" + d.Source + ")"
	case events.NetworkData:
		if d.Available {
			return "up"
		}
		return "down"
	case events.BackoffData:
		return fmt.Sprintf("%d failures, waiting %v", d.Failures, d.Delay)
	case events.ErrorData:
		if d.Error == nil {
			return d.Context
		}
		return d.Context + ": " + d.Error.Error()
	default:
		return ""
	}
}
