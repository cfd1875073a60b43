package messaging

import (
	"context"
	"testing"
	"time"

	"agency-chat/internal/clock"
	"agency-chat/internal/markers"
	"agency-chat/internal/model"

	"github.com/stretchr/testify/require"
)

func startTracker(t *testing.T, gw *fakeGateway, store markers.Store, clk clock.Clock) *Tracker {
	t.Helper()
	tr := NewTracker(gw, store, ada, clk, discard())
	require.NoError(t, tr.Start(context.Background()))
	t.Cleanup(func() { tr.Close() })
	return tr
}

func TestTracker_UnreadRule(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	gw.latest = map[string]time.Time{"seen": t0, "stale": t0.Add(time.Hour), "never": t0}
	store := markers.NewMemoryStore()
	require.NoError(t, store.Set(ctx, markers.ViewedKey("seen"), t0))
	require.NoError(t, store.Set(ctx, markers.ViewedKey("stale"), t0))

	tr := startTracker(t, gw, store, clock.Fake(t0))

	for id, want := range map[string]bool{
		"seen":  false, // marker equals newest message
		"stale": true,
		"never": true,
		"quiet": false, // no messages at all
	} {
		got, err := tr.IsUnread(ctx, id)
		require.NoError(t, err)
		require.Equal(t, want, got, id)
	}
}

func TestTracker_MarkViewedClearsBadge(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	gw.latest = map[string]time.Time{"p1": t0}
	clk := clock.Fake(t0.Add(time.Minute))
	tr := startTracker(t, gw, markers.NewMemoryStore(), clk)

	unread, _ := tr.IsUnread(ctx, "p1")
	require.True(t, unread)
	require.NoError(t, tr.MarkViewed(ctx, "p1"))
	unread, _ = tr.IsUnread(ctx, "p1")
	require.False(t, unread)

	gw.Emit(model.Event{Type: model.EventInsert, Record: msg("m9", "p1", bob.ID, 2*time.Minute)})
	eventually(t, func() bool {
		unread, _ := tr.IsUnread(ctx, "p1")
		return unread
	})
}

func TestTracker_CounterCountsOthersOnce(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	gw.count = 2
	store := markers.NewMemoryStore()
	checked := t0.Add(-time.Hour)
	require.NoError(t, store.Set(ctx, markers.LastCheckedKey, checked))

	tr := startTracker(t, gw, store, clock.Fake(t0))
	require.Equal(t, 2, tr.Count())
	require.Len(t, gw.since, 1)
	require.True(t, checked.Equal(gw.since[0]))

	open := gw.Open()
	require.Len(t, open, 1)
	require.Empty(t, open[0].projectID, "the tracker watches every conversation")

	theirs := msg("m1", "p9", bob.ID, 1)
	gw.Emit(model.Event{Type: model.EventInsert, Record: theirs})
	gw.Emit(model.Event{Type: model.EventInsert, Record: theirs})
	gw.Emit(model.Event{Type: model.EventInsert, Record: msg("m2", "p9", ada.ID, 2)})
	gw.Emit(model.Event{Type: model.EventUpdate, Record: msg("m3", "p9", bob.ID, 3)})
	eventually(t, func() bool {
		unread, _ := tr.IsUnread(ctx, "p9")
		return unread
	})
	eventually(t, func() bool { return tr.Count() == 3 })
	require.Never(t, func() bool { return tr.Count() != 3 }, 50*time.Millisecond, 5*time.Millisecond)

	require.NoError(t, tr.MarkChecked(ctx))
	require.Zero(t, tr.Count())
	at, ok, err := store.Get(ctx, markers.LastCheckedKey)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, t0.Equal(at))
}

func TestTracker_Close(t *testing.T) {
	gw := newFakeGateway()
	tr := NewTracker(gw, markers.NewMemoryStore(), ada, clock.Fake(t0), discard())
	require.NoError(t, tr.Close(), "closing an unstarted tracker is a no-op")

	require.NoError(t, tr.Start(context.Background()))
	require.NoError(t, tr.Close())
	require.Empty(t, gw.Open())
}

func TestTracker_RequiresActor(t *testing.T) {
	tr := NewTracker(newFakeGateway(), markers.NewMemoryStore(), model.Actor{}, clock.Fake(t0), discard())
	require.ErrorIs(t, tr.Start(context.Background()), ErrNotAuthenticated)
}
