package storage

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/vadiminshakov/corpsim/internal/entity"
)

const (
	eventSegmentLimit = 1000
	eventMaxSegments  = 20
	eventKeyPrefix    = "event_"
)

// EventLog is the append-only durable log of simulation events. Entries are
// never mutated or deleted; consumers re-sync with EventsAfter using the last
// index they saw.
type EventLog struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewEventLog opens the WAL-backed event log under dir.
func NewEventLog(dir string) (*EventLog, error) {
	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "event_",
		SegmentThreshold: eventSegmentLimit,
		MaxSegments:      eventMaxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init event WAL")
	}
	return &EventLog{wal: wal}, nil
}

// Append writes one event to the log and returns its index.
func (l *EventLog) Append(event entity.Event) (uint64, error) {
	if l == nil || l.wal == nil {
		return 0, errors.New("event log is not initialized")
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return 0, errors.Wrap(err, "marshal event")
	}

	key := fmt.Sprintf("%s%s", eventKeyPrefix, event.Type)

	l.mu.Lock()
	defer l.mu.Unlock()

	next := l.wal.CurrentIndex() + 1
	if err := l.wal.Write(next, key, payload); err != nil {
		return 0, errors.Wrap(err, "write event")
	}
	return next, nil
}

// EventsAfter returns all events written after index, oldest first.
func (l *EventLog) EventsAfter(index uint64) ([]entity.EventRecord, error) {
	if l == nil || l.wal == nil {
		return nil, errors.New("event log is not initialized")
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	current := l.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	records := make([]entity.EventRecord, 0, current-index)
	for idx := index + 1; idx <= current; idx++ {
		key, payload, err := l.wal.Get(idx)
		if err != nil || !strings.HasPrefix(key, eventKeyPrefix) {
			continue
		}
		var event entity.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, errors.Wrap(err, "decode event")
		}
		records = append(records, entity.EventRecord{Index: idx, Event: event})
	}
	return records, nil
}

// RecentEvents returns up to limit most recent events for a company, oldest
// of the window first. Feeds situation snapshots.
func (l *EventLog) RecentEvents(companyID string, limit int) ([]entity.Event, error) {
	if l == nil || l.wal == nil {
		return nil, errors.New("event log is not initialized")
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []entity.Event
	current := l.wal.CurrentIndex()
	for idx := current; idx >= 1 && len(out) < limit; idx-- {
		key, payload, err := l.wal.Get(idx)
		if err != nil || !strings.HasPrefix(key, eventKeyPrefix) {
			continue
		}
		var event entity.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, errors.Wrap(err, "decode event")
		}
		if companyID != "" && event.CompanyID != companyID {
			continue
		}
		out = append(out, event)
	}
	// Reverse into chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// CurrentIndex returns the latest log index.
func (l *EventLog) CurrentIndex() uint64 {
	if l == nil || l.wal == nil {
		return 0
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (l *EventLog) Close() error {
	if l == nil || l.wal == nil {
		return errors.New("event log is not initialized")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.wal.Close()
}
