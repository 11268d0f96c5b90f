// Package stream fans committed bridge events out to live subscribers.
package stream

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	bridgeerrors "stakebridge/core/errors"
	"stakebridge/core/events"
)

// DefaultHistory is the number of updates retained for cursor replay.
const DefaultHistory = 1024

const subscriberBuffer = 32

// Update is one committed event with its position in the stream.
type Update struct {
	Sequence   uint64
	Type       string
	Attributes map[string]string
	Timestamp  int64
}

// Cursor returns the resume token that replays everything after u.
func (u Update) Cursor() string {
	return strconv.FormatUint(u.Sequence, 10)
}

func (u Update) clone() Update {
	out := u
	out.Attributes = make(map[string]string, len(u.Attributes))
	for k, v := range u.Attributes {
		out.Attributes[k] = v
	}
	return out
}

// Hub keeps a bounded history of updates and the live subscriber set. Slow
// subscribers miss updates rather than block the publisher.
type Hub struct {
	mu      sync.Mutex
	limit   int
	seq     uint64
	nextID  uint64
	history []Update
	subs    map[uint64]chan Update

	now func() time.Time
}

// NewHub returns a hub retaining up to limit updates. A non-positive limit
// selects DefaultHistory.
func NewHub(limit int) *Hub {
	if limit <= 0 {
		limit = DefaultHistory
	}
	return &Hub{limit: limit, subs: make(map[uint64]chan Update), now: time.Now}
}

// Emit implements events.Emitter. Events without an attribute form are
// skipped.
func (h *Hub) Emit(evt events.Event) {
	b, ok := evt.(events.Broadcastable)
	if !ok {
		return
	}
	flat := b.Event()
	if flat == nil {
		return
	}
	flat = flat.Clone()
	h.publish(Update{Type: flat.Type, Attributes: flat.Attributes})
}

func (h *Hub) publish(update Update) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	update.Sequence = h.seq
	update.Timestamp = h.now().Unix()
	h.history = append(h.history, update.clone())
	if excess := len(h.history) - h.limit; excess > 0 {
		trimmed := make([]Update, h.limit)
		copy(trimmed, h.history[excess:])
		h.history = trimmed
	}
	for _, ch := range h.subs {
		select {
		case ch <- update.clone():
		default:
		}
	}
}

// ParseCursor validates a resume token. The empty cursor starts at the oldest
// retained update.
func ParseCursor(raw string) (uint64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}
	since, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid cursor %q", bridgeerrors.ErrInvalidInput, raw)
	}
	return since, nil
}

// Subscribe registers a subscriber and returns the retained updates after
// since together with the live channel. The channel closes when cancel runs or
// ctx ends.
func (h *Hub) Subscribe(ctx context.Context, since uint64) (<-chan Update, []Update, func()) {
	updates := make(chan Update, subscriberBuffer)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = updates
	backlog := make([]Update, 0, len(h.history))
	for _, u := range h.history {
		if u.Sequence > since {
			backlog = append(backlog, u.clone())
		}
	}
	h.mu.Unlock()

	var once sync.Once
	done := make(chan struct{})
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if ch, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(ch)
			}
			h.mu.Unlock()
			close(done)
		})
	}
	if ctx != nil {
		go func() {
			select {
			case <-ctx.Done():
				cancel()
			case <-done:
			}
		}()
	}
	return updates, backlog, cancel
}

// Subscribers reports the number of live subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
