package stream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	bridgeerrors "stakebridge/core/errors"
	"stakebridge/core/types"
)

type testEvent struct {
	kind string
	hash string
}

func (e testEvent) EventType() string { return e.kind }

func (e testEvent) Event() *types.Event {
	return &types.Event{Type: e.kind, Attributes: map[string]string{"messageHash": e.hash}}
}

type bareEvent struct{}

func (bareEvent) EventType() string { return "bare" }

func TestHubReplaysAfterCursor(t *testing.T) {
	hub := NewHub(0)
	hub.now = func() time.Time { return time.Unix(1700000000, 0) }
	hub.Emit(testEvent{kind: "bridge.stake.declared", hash: "0x01"})
	hub.Emit(bareEvent{})
	hub.Emit(testEvent{kind: "bridge.stake.progressed", hash: "0x01"})

	_, backlog, cancel := hub.Subscribe(context.Background(), 0)
	defer cancel()
	require.Len(t, backlog, 2)
	require.Equal(t, "bridge.stake.declared", backlog[0].Type)
	require.Equal(t, "1", backlog[0].Cursor())
	require.Equal(t, int64(1700000000), backlog[0].Timestamp)

	_, backlog, cancel2 := hub.Subscribe(context.Background(), 1)
	defer cancel2()
	require.Len(t, backlog, 1)
	require.Equal(t, "bridge.stake.progressed", backlog[0].Type)
	require.Equal(t, "0x01", backlog[0].Attributes["messageHash"])
}

func TestHubHistoryIsBounded(t *testing.T) {
	hub := NewHub(2)
	for i := 0; i < 5; i++ {
		hub.Emit(testEvent{kind: "bridge.gateway.proven"})
	}
	_, backlog, cancel := hub.Subscribe(context.TODO(), 0)
	defer cancel()
	require.Len(t, backlog, 2)
	require.EqualValues(t, 4, backlog[0].Sequence)
	require.EqualValues(t, 5, backlog[1].Sequence)
}

func TestHubDeliversLiveUpdatesUntilCancelled(t *testing.T) {
	hub := NewHub(8)
	ctx, stop := context.WithCancel(context.Background())
	updates, backlog, _ := hub.Subscribe(ctx, 0)
	require.Empty(t, backlog)
	require.Equal(t, 1, hub.Subscribers())

	hub.Emit(testEvent{kind: "bridge.link.declared", hash: "0xaa"})
	select {
	case u := <-updates:
		require.Equal(t, "bridge.link.declared", u.Type)
		require.EqualValues(t, 1, u.Sequence)
	case <-time.After(time.Second):
		t.Fatal("no live update")
	}

	stop()
	require.Eventually(t, func() bool { return hub.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
	_, open := <-updates
	require.False(t, open)
}

func TestHubDropsForSlowSubscribers(t *testing.T) {
	hub := NewHub(0)
	updates, _, cancel := hub.Subscribe(context.Background(), 0)
	defer cancel()
	for i := 0; i < subscriberBuffer+10; i++ {
		hub.Emit(testEvent{kind: "bridge.gateway.proven"})
	}
	require.Len(t, updates, subscriberBuffer)
}

func TestParseCursor(t *testing.T) {
	since, err := ParseCursor(" 42 ")
	require.NoError(t, err)
	require.EqualValues(t, 42, since)

	since, err = ParseCursor("")
	require.NoError(t, err)
	require.Zero(t, since)

	_, err = ParseCursor("latest")
	require.ErrorIs(t, err, bridgeerrors.ErrInvalidInput)
}
