package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/corpsim/internal/entity"
)

func record(id string) entity.EventRecord {
	return entity.EventRecord{Index: 1, Event: entity.Event{ID: id, Type: "market_event"}}
}

func TestBroadcasterChannelFiltering(t *testing.T) {
	b := NewBroadcaster(4)
	game := b.Subscribe(ChannelGameEvents)
	defer b.Unsubscribe(game)
	all := b.Subscribe()
	defer b.Unsubscribe(all)

	b.Publish(ChannelDataChanged, record("e1"))
	b.Publish(ChannelGameEvents, record("e2"))

	n := <-game
	assert.Equal(t, "e2", n.Record.Event.ID, "game subscriber skips data_changed")

	first := <-all
	second := <-all
	assert.Equal(t, "e1", first.Record.Event.ID)
	assert.Equal(t, "e2", second.Record.Event.ID)
}

func TestBroadcasterDropsSlowConsumer(t *testing.T) {
	b := NewBroadcaster(1)
	slow := b.Subscribe(ChannelGameEvents)
	defer b.Unsubscribe(slow)

	b.Publish(ChannelGameEvents, record("kept"))
	b.Publish(ChannelGameEvents, record("dropped"))

	n := <-slow
	assert.Equal(t, "kept", n.Record.Event.ID)
	select {
	case extra := <-slow:
		t.Fatalf("expected drop, got %s", extra.Record.Event.ID)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroadcaster(4)
	ch := b.Subscribe(ChannelGameEvents)
	b.Unsubscribe(ch)

	_, open := <-ch
	require.False(t, open)

	// Publishing after unsubscribe must not panic.
	b.Publish(ChannelGameEvents, record("late"))
}
