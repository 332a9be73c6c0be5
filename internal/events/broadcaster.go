// Package events fans simulation events out to in-process subscribers. The
// durable log is elsewhere; this is the live notification path feeding the
// websocket hub.
package events

import (
	"sync"

	"github.com/vadiminshakov/corpsim/internal/entity"
)

// Channel names subscribers can select.
const (
	ChannelGameEvents  = "game_events"
	ChannelDataChanged = "data_changed"
)

// Notification is one fan-out message: the channel it belongs to plus the
// event record with its durable log index.
type Notification struct {
	Channel string             `json:"channel"`
	Record  entity.EventRecord `json:"record"`
}

// Broadcaster fans out notifications to all subscribers via buffered
// channels. Delivery is best-effort: a slow reader's messages are dropped,
// never blocked on; the durable log covers re-sync.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[chan Notification]map[string]struct{}
	buffer int
}

// NewBroadcaster creates a broadcaster with the given per-subscriber buffer.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer < 1 {
		buffer = 64
	}
	return &Broadcaster{
		subs:   make(map[chan Notification]map[string]struct{}),
		buffer: buffer,
	}
}

// Publish sends the record to subscribers of channel, dropping if a reader
// is slow.
func (b *Broadcaster) Publish(channel string, record entity.EventRecord) {
	n := Notification{Channel: channel, Record: record}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch, channels := range b.subs {
		if _, ok := channels[channel]; !ok {
			continue
		}
		select {
		case ch <- n:
		default:
			// drop slow consumer
		}
	}
}

// Subscribe returns a channel receiving notifications for the named channels
// until Unsubscribe is called. No channels means all channels.
func (b *Broadcaster) Subscribe(channels ...string) chan Notification {
	if len(channels) == 0 {
		channels = []string{ChannelGameEvents, ChannelDataChanged}
	}
	set := make(map[string]struct{}, len(channels))
	for _, c := range channels {
		set[c] = struct{}{}
	}

	ch := make(chan Notification, b.buffer)
	b.mu.Lock()
	b.subs[ch] = set
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the channel and closes it.
func (b *Broadcaster) Unsubscribe(ch chan Notification) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}
