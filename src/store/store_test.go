package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/monetiq/realtime/src/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMutator records calls and fails on demand.
type fakeMutator struct {
	failMarkRead    bool
	failMarkAllRead bool
	failDelete      bool
	calls           []string
}

func (m *fakeMutator) MarkRead(ctx context.Context, id string) error {
	m.calls = append(m.calls, "mark_read:"+id)
	if m.failMarkRead {
		return errors.New("server rejected")
	}
	return nil
}

func (m *fakeMutator) MarkAllRead(ctx context.Context) error {
	m.calls = append(m.calls, "mark_all_read")
	if m.failMarkAllRead {
		return errors.New("server rejected")
	}
	return nil
}

func (m *fakeMutator) Delete(ctx context.Context, id string) error {
	m.calls = append(m.calls, "delete:"+id)
	if m.failDelete {
		return errors.New("server rejected")
	}
	return nil
}

func notif(id string, age time.Duration, read bool) types.Notification {
	n := types.Notification{
		ID:        id,
		Type:      "order",
		Title:     "Order " + id,
		Message:   "message " + id,
		Priority:  types.PriorityMedium,
		CreatedAt: time.Now().Add(-age),
		Read:      read,
	}
	if read {
		at := n.CreatedAt.Add(time.Minute)
		n.ReadAt = &at
	}
	return n
}

func newTestStore(m Mutator) *Store {
	return New(m, zerolog.Nop())
}

func TestHandlePushedDeduplicatesByID(t *testing.T) {
	s := newTestStore(nil)

	assert.True(t, s.HandlePushed(notif("n1", time.Minute, false)))
	assert.False(t, s.HandlePushed(notif("n1", time.Second, false)))

	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 1, s.UnreadCount())
}

func TestHandlePushedKeepsNewestFirst(t *testing.T) {
	s := newTestStore(nil)

	s.HandlePushed(notif("old", time.Hour, false))
	s.HandlePushed(notif("new", time.Minute, false))
	s.HandlePushed(notif("mid", 30*time.Minute, true))

	list := s.List()
	require.Len(t, list, 3)
	assert.Equal(t, "new", list[0].ID)
	assert.Equal(t, "mid", list[1].ID)
	assert.Equal(t, "old", list[2].ID)
	assert.Equal(t, 2, s.UnreadCount())

	latest := s.Latest()
	require.NotNil(t, latest)
	assert.Equal(t, "new", latest.ID)
}

func TestMarkReadUnknownID(t *testing.T) {
	s := newTestStore(nil)
	assert.False(t, s.MarkRead(context.Background(), "ghost"))
	assert.Equal(t, 0, s.UnreadCount())
}

func TestMarkReadFlipsAndCounts(t *testing.T) {
	m := &fakeMutator{}
	s := newTestStore(m)
	s.HandlePushed(notif("n1", time.Minute, false))

	assert.True(t, s.MarkRead(context.Background(), "n1"))
	assert.Equal(t, 0, s.UnreadCount())

	rec := s.List()[0]
	assert.True(t, rec.Read)
	require.NotNil(t, rec.ReadAt)
	assert.Equal(t, []string{"mark_read:n1"}, m.calls)

	// Already read: success without another server call.
	assert.True(t, s.MarkRead(context.Background(), "n1"))
	assert.Len(t, m.calls, 1)
}

func TestMarkReadRollsBackOnServerRejection(t *testing.T) {
	m := &fakeMutator{failMarkRead: true}
	s := newTestStore(m)
	s.HandlePushed(notif("n3", time.Minute, false))

	assert.False(t, s.MarkRead(context.Background(), "n3"))

	rec := s.List()[0]
	assert.False(t, rec.Read)
	assert.Nil(t, rec.ReadAt)
	assert.Equal(t, 1, s.UnreadCount())
}

func TestMarkAllRead(t *testing.T) {
	s := newTestStore(&fakeMutator{})
	s.HandlePushed(notif("a", time.Minute, false))
	s.HandlePushed(notif("b", time.Hour, false))
	s.HandlePushed(notif("c", 2*time.Hour, true))

	assert.True(t, s.MarkAllRead(context.Background()))
	assert.Equal(t, 0, s.UnreadCount())
	for _, r := range s.List() {
		assert.True(t, r.Read)
	}
}

func TestMarkAllReadRollsBackOnServerRejection(t *testing.T) {
	s := newTestStore(&fakeMutator{failMarkAllRead: true})
	s.HandlePushed(notif("a", time.Minute, false))
	s.HandlePushed(notif("b", time.Hour, true))

	assert.False(t, s.MarkAllRead(context.Background()))
	assert.Equal(t, 1, s.UnreadCount())

	list := s.List()
	assert.False(t, list[0].Read) // "a" restored to unread
	assert.True(t, list[1].Read)  // "b" was read before, stays read
}

func TestDeleteTwiceAndUnknown(t *testing.T) {
	s := newTestStore(nil)
	s.HandlePushed(notif("n1", time.Minute, false))

	assert.False(t, s.Delete(context.Background(), "ghost"))
	assert.Equal(t, 1, s.UnreadCount())

	assert.True(t, s.Delete(context.Background(), "n1"))
	assert.Equal(t, 0, s.UnreadCount())

	// Second delete of the same id is a safe no-op failure.
	assert.False(t, s.Delete(context.Background(), "n1"))
	assert.Equal(t, 0, s.UnreadCount())
}

func TestDeleteRollsBackOnServerRejection(t *testing.T) {
	s := newTestStore(&fakeMutator{failDelete: true})
	s.HandlePushed(notif("n1", time.Minute, false))

	assert.False(t, s.Delete(context.Background(), "n1"))
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 1, s.UnreadCount())
}

func TestReconcileMergesByID(t *testing.T) {
	s := newTestStore(nil)
	s.HandlePushed(notif("n1", time.Hour, false))

	page := types.Page{
		Records:  []types.Notification{notif("n1", time.Hour, true), notif("n2", time.Minute, false)},
		Complete: true,
	}
	s.Reconcile(page)

	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 1, s.UnreadCount())
	assert.Equal(t, "n2", s.List()[0].ID)
}

func TestReconcileIdempotent(t *testing.T) {
	s := newTestStore(nil)
	page := types.Page{
		Records: []types.Notification{
			notif("n1", time.Hour, true),
			notif("n2", time.Minute, false),
			notif("n3", 2*time.Hour, false),
		},
		Complete: true,
	}

	s.Reconcile(page)
	once := s.List()
	onceUnread := s.UnreadCount()

	s.Reconcile(page)
	assert.Equal(t, once, s.List())
	assert.Equal(t, onceUnread, s.UnreadCount())
}

func TestPartialPageNeverShrinksTheSet(t *testing.T) {
	s := newTestStore(nil)
	s.HandlePushed(notif("kept", time.Hour, false))

	s.Reconcile(types.Page{
		Records:  []types.Notification{notif("n2", time.Minute, false)},
		Complete: false,
	})

	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 2, s.UnreadCount())
}

func TestCompletePageShrinksTheSet(t *testing.T) {
	s := newTestStore(nil)
	s.HandlePushed(notif("gone", time.Hour, false))

	s.Reconcile(types.Page{
		Records:  []types.Notification{notif("n2", time.Minute, false)},
		Complete: true,
	})

	require.Equal(t, 1, s.Len())
	assert.Equal(t, "n2", s.List()[0].ID)
	assert.Equal(t, 1, s.UnreadCount())
}

func TestPartialPageDoesNotRevertLocalRead(t *testing.T) {
	s := newTestStore(&fakeMutator{})
	n := notif("n1", time.Hour, false)
	s.HandlePushed(n)
	require.True(t, s.MarkRead(context.Background(), "n1"))

	// A stale partial page still claims n1 unread; the local read wins.
	s.Reconcile(types.Page{Records: []types.Notification{n}, Complete: false})

	assert.True(t, s.List()[0].Read)
	assert.Equal(t, 0, s.UnreadCount())
}

// Push then mark read then reconcile with a complete page still holding the
// record as read: count unaffected, record not duplicated.
func TestPushMarkReadReconcileRoundTrip(t *testing.T) {
	s := newTestStore(&fakeMutator{})
	n := notif("n2", time.Minute, false)
	require.True(t, s.HandlePushed(n))
	require.True(t, s.MarkRead(context.Background(), "n2"))
	require.Equal(t, 0, s.UnreadCount())

	serverCopy := n
	serverCopy.Read = true
	at := time.Now()
	serverCopy.ReadAt = &at
	s.Reconcile(types.Page{Records: []types.Notification{serverCopy}, Complete: true})

	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 0, s.UnreadCount())
}

func TestClearEmptiesEverything(t *testing.T) {
	s := newTestStore(nil)
	s.HandlePushed(notif("n1", time.Minute, false))
	s.HandlePushed(notif("n2", time.Hour, true))

	s.Clear()

	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 0, s.UnreadCount())
	assert.Nil(t, s.Latest())
}
