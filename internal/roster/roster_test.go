package roster_test

import (
	"sync"
	"testing"

	"github.com/jaam8/classpoll/internal/models"
	"github.com/jaam8/classpoll/internal/roster"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordedEvent struct {
	Target  string
	Event   string
	Payload interface{}
}

type recorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recorder) Broadcast(event string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Event: event, Payload: payload})
}

func (r *recorder) SendTo(socketID, event string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Target: socketID, Event: event, Payload: payload})
}

func (r *recorder) all() []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedEvent(nil), r.events...)
}

func TestJoin_BroadcastsOrderedList(t *testing.T) {
	rec := &recorder{}
	r := roster.New(rec, zap.NewNop())

	r.Join("s1", "A")
	r.Join("s2", "B")

	list := r.List()
	require.Equal(t, []models.Participant{
		{SocketID: "s1", Name: "A"},
		{SocketID: "s2", Name: "B"},
	}, list)

	events := rec.all()
	require.Len(t, events, 2)
	for _, e := range events {
		require.Equal(t, models.EventRosterChanged, e.Event)
	}
}

func TestJoin_SameSocketOverwritesName(t *testing.T) {
	r := roster.New(&recorder{}, zap.NewNop())

	r.Join("s1", "A")
	r.Join("s1", "Anna")

	require.Equal(t, []models.Participant{{SocketID: "s1", Name: "Anna"}}, r.List())
}

func TestLeave(t *testing.T) {
	rec := &recorder{}
	r := roster.New(rec, zap.NewNop())

	r.Join("s1", "A")
	require.True(t, r.Leave("s1"))
	require.Empty(t, r.List())

	require.False(t, r.Leave("s1"), "second leave is a no-op")
	require.False(t, r.Leave("ghost"), "unknown socket is a no-op")

	events := rec.all()
	// join + one leave broadcast; the no-op leaves emit nothing.
	require.Len(t, events, 2)
}

func TestRemoveByName_KicksAllMatches(t *testing.T) {
	rec := &recorder{}
	r := roster.New(rec, zap.NewNop())

	r.Join("s1", "A")
	r.Join("s2", "B")
	r.Join("s3", "A")

	require.Equal(t, 2, r.RemoveByName("A"))
	require.Equal(t, []models.Participant{{SocketID: "s2", Name: "B"}}, r.List())

	events := rec.all()
	// 3 joins, then targeted notices to s1 and s3, then one
	// roster-changed broadcast, in that order.
	require.Len(t, events, 6)
	require.Equal(t, recordedEvent{Target: "s1", Event: models.EventParticipantRemoved}, events[3])
	require.Equal(t, recordedEvent{Target: "s3", Event: models.EventParticipantRemoved}, events[4])
	require.Equal(t, models.EventRosterChanged, events[5].Event)
	require.Empty(t, events[5].Target)
}

func TestRemoveByName_NoMatch(t *testing.T) {
	rec := &recorder{}
	r := roster.New(rec, zap.NewNop())

	r.Join("s1", "A")
	require.Equal(t, 0, r.RemoveByName("Z"))
	require.Len(t, rec.all(), 1, "no broadcast when nothing was removed")
}

func TestName(t *testing.T) {
	r := roster.New(&recorder{}, zap.NewNop())
	r.Join("s1", "A")

	name, ok := r.Name("s1")
	require.True(t, ok)
	require.Equal(t, "A", name)

	_, ok = r.Name("ghost")
	require.False(t, ok)
}
