// Package event provides the realtime channel: a per-(chat, message)
// publish/subscribe path built on watermill that forwards event payloads to
// connected clients.
package event

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Type identifies the kind of event payload.
type Type string

const (
	ChatMessage      Type = "chat:message"
	ChatMessageDelta Type = "chat:message:delta"
	ChatCompletion   Type = "chat:completion"
	ChatCancelled    Type = "chat:cancelled"
	ChatError        Type = "chat:error"
	ChatTitle        Type = "chat:title"
	ChatTags         Type = "chat:tags"
	ModelSelected    Type = "chat:model"
	ToolExecute      Type = "tool:execute"
	ToolStatus       Type = "tool:status"
)

// Event is one payload forwarded over the realtime channel.
type Event struct {
	Type Type `json:"type"`
	Data any  `json:"data"`
}

// Subscriber receives events published on a key it subscribed to.
type Subscriber func(event Event)

type subscriberEntry struct {
	id uint64
	fn Subscriber
}

// Bus fans events out to subscribers. Keys address one (chat, message)
// stream; a session is the single publisher for its key, and Publish
// delivers synchronously in the caller's goroutine, so subscribers observe
// events in exactly the order the session computed them.
type Bus struct {
	mu sync.RWMutex

	// pubsub mirrors every published event as a JSON watermill message, so
	// consumers outside the callback model can subscribe by key.
	pubsub *gochannel.GoChannel

	subscribers map[string][]subscriberEntry
	global      []subscriberEntry

	nextID uint64
	closed bool
}

// NewBus creates a bus backed by an in-process watermill channel.
func NewBus() *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer: 100,
				Persistent:          false,
			},
			watermill.NopLogger{},
		),
		subscribers: make(map[string][]subscriberEntry),
	}
}

// PubSub exposes the watermill channel carrying the JSON-encoded mirror of
// every published event, keyed by the same topics Publish uses.
func (b *Bus) PubSub() *gochannel.GoChannel {
	return b.pubsub
}

// Key builds the per-(chat, message) session key.
func Key(chatID, messageID string) string {
	return "chat:" + chatID + ":message:" + messageID
}

// ChatKey builds a chat-wide key used for follow-up events that are not
// tied to a single message (title, tags).
func ChatKey(chatID string) string {
	return "chat:" + chatID
}

func (b *Bus) newID() uint64 {
	return atomic.AddUint64(&b.nextID, 1)
}

// Subscribe registers a subscriber for one key. It returns an unsubscribe
// function.
func (b *Bus) Subscribe(key string, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := b.newID()
	b.subscribers[key] = append(b.subscribers[key], subscriberEntry{id: id, fn: fn})

	return func() { b.unsubscribe(key, id) }
}

// SubscribeAll registers a subscriber for every key. Used by the SSE
// endpoint and by direct-tool plumbing.
func (b *Bus) SubscribeAll(fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := b.newID()
	b.global = append(b.global, subscriberEntry{id: id, fn: fn})

	return func() { b.unsubscribeGlobal(id) }
}

func (b *Bus) unsubscribe(key string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[key]
	for i, entry := range subs {
		if entry.id == id {
			b.subscribers[key] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subscribers[key]) == 0 {
		delete(b.subscribers, key)
	}
}

func (b *Bus) unsubscribeGlobal(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, entry := range b.global {
		if entry.id == id {
			b.global = append(b.global[:i], b.global[i+1:]...)
			break
		}
	}
}

// Publish delivers an event to the key's subscribers and to global
// subscribers, synchronously and in registration order. Per-key ordering
// follows from each key having a single publisher.
func (b *Bus) Publish(key string, event Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}

	subs := make([]Subscriber, 0, len(b.subscribers[key])+len(b.global))
	for _, entry := range b.subscribers[key] {
		subs = append(subs, entry.fn)
	}
	for _, entry := range b.global {
		subs = append(subs, entry.fn)
	}
	b.mu.RUnlock()

	for _, fn := range subs {
		fn(event)
	}

	if payload, err := json.Marshal(event); err == nil {
		_ = b.pubsub.Publish(key, message.NewMessage(watermill.NewUUID(), payload))
	}
}

// Close shuts the bus down; further publishes are dropped.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.subscribers = make(map[string][]subscriberEntry)
	b.global = nil
	b.mu.Unlock()

	return b.pubsub.Close()
}
