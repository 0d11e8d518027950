package broker

import (
	"sort"
	"sync"
)

// topicEntry holds the retained value and the live subscribers of a topic.
type topicEntry struct {
	uid         string
	value       string
	hasValue    bool
	subscribers map[*Client]struct{}
}

// TopicRegistry maps topics to their registration, last value and subscribers.
type TopicRegistry struct {
	mu     sync.RWMutex
	topics map[string]*topicEntry
}

// NewTopicRegistry creates an empty registry.
func NewTopicRegistry() *TopicRegistry {
	return &TopicRegistry{
		topics: make(map[string]*topicEntry),
	}
}

func (r *TopicRegistry) entry(topic string) *topicEntry {
	e, ok := r.topics[topic]
	if !ok {
		e = &topicEntry{subscribers: make(map[*Client]struct{})}
		r.topics[topic] = e
	}
	return e
}

// Register records topic for uid. It reports false when the topic already existed.
func (r *TopicRegistry) Register(topic, uid string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.topics[topic]; ok && e.uid != "" {
		return false
	}
	r.entry(topic).uid = uid
	return true
}

// Registered reports whether topic was registered over HTTP.
func (r *TopicRegistry) Registered(topic string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.topics[topic]
	return ok && e.uid != ""
}

// Subscribe adds c to topic and returns the retained value, if any.
func (r *TopicRegistry) Subscribe(topic string, c *Client) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.entry(topic)
	e.subscribers[c] = struct{}{}
	return e.value, e.hasValue
}

// Unsubscribe removes c from every topic.
func (r *TopicRegistry) Unsubscribe(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.topics {
		delete(e.subscribers, c)
	}
}

// Publish stores msg as the topic's value and returns the subscribers other
// than from that should receive it.
func (r *TopicRegistry) Publish(topic, msg string, from *Client) []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.entry(topic)
	e.value = msg
	e.hasValue = true

	out := make([]*Client, 0, len(e.subscribers))
	for c := range e.subscribers {
		if c != from {
			out = append(out, c)
		}
	}
	return out
}

// Value returns the retained value of topic.
func (r *TopicRegistry) Value(topic string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.topics[topic]
	if !ok || !e.hasValue {
		return "", false
	}
	return e.value, true
}

// SubscriberCount returns the number of live subscribers of topic.
func (r *TopicRegistry) SubscriberCount(topic string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.topics[topic]; ok {
		return len(e.subscribers)
	}
	return 0
}

// TopicInfo is a read-only view of one topic.
type TopicInfo struct {
	Topic       string `json:"topic"`
	Registered  bool   `json:"registered"`
	Value       string `json:"value,omitempty"`
	Subscribers int    `json:"subscribers"`
}

// Topics lists every known topic sorted by name.
func (r *TopicRegistry) Topics() []TopicInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]TopicInfo, 0, len(r.topics))
	for name, e := range r.topics {
		out = append(out, TopicInfo{
			Topic:       name,
			Registered:  e.uid != "",
			Value:       e.value,
			Subscribers: len(e.subscribers),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Topic < out[j].Topic })
	return out
}
