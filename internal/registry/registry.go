// Package registry maps wire topic ids to the codec pair and host channel
// names for that topic's payload schema. Adding a topic to the bridge is a
// data-only change: register a new entry, no dispatch code is touched.
package registry

import (
	"fmt"
	"sort"
	"sync"

	errspkg "github.com/mculink/mculink/internal/errors"
	"github.com/mculink/mculink/internal/frame"
)

// Codec describes how one topic's payloads cross the bridge.
//
// Decode turns wire bytes into a host message value (later JSON-encoded for
// the host router) and is required when PublishChannel is set. Encode turns
// the host-side JSON payload into wire bytes and is required when
// SubscribeChannel is set. A bidirectional topic sets both.
type Codec struct {
	Name string

	// PublishChannel is the host channel inbound frames are published to.
	PublishChannel string

	// SubscribeChannel is the host channel whose messages are encoded and
	// sent to the controller.
	SubscribeChannel string

	Decode func(payload []byte) (any, error)
	Encode func(hostPayload []byte) ([]byte, error)
}

// Entry pairs a registered codec with its topic id.
type Entry struct {
	Topic frame.TopicID
	Codec Codec
}

// Registry is the topic table. Built once at startup and read on every frame;
// the mutex only matters during registration.
type Registry struct {
	mu      sync.RWMutex
	entries map[frame.TopicID]Codec
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[frame.TopicID]Codec)}
}

// Register adds a topic codec. A duplicate topic id is a programming error
// and fails registration; callers are expected to abort startup on it.
func (r *Registry) Register(topic frame.TopicID, codec Codec) error {
	if codec.PublishChannel == "" && codec.SubscribeChannel == "" {
		return errspkg.ErrChannelRequired
	}
	if codec.PublishChannel != "" && codec.Decode == nil {
		return fmt.Errorf("%w: topic %s", errspkg.ErrCodecRequired, topic)
	}
	if codec.SubscribeChannel != "" && codec.Encode == nil {
		return fmt.Errorf("%w: topic %s", errspkg.ErrCodecRequired, topic)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[topic]; exists {
		return fmt.Errorf("%w: %s", errspkg.ErrDuplicateTopic, topic)
	}
	r.entries[topic] = codec
	return nil
}

// Lookup returns the codec for a topic id. A missing entry is expected when
// the peer runs a newer schema; the caller drops the frame and continues.
func (r *Registry) Lookup(topic frame.TopicID) (Codec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	codec, ok := r.entries[topic]
	return codec, ok
}

// Entries returns all registered topics sorted by id. Used at startup to wire
// one outbound handler per subscribing topic.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]Entry, 0, len(r.entries))
	for topic, codec := range r.entries {
		entries = append(entries, Entry{Topic: topic, Codec: codec})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Topic < entries[j].Topic })
	return entries
}

// Len reports the number of registered topics.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
