package api_test

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jaam8/classpoll/internal/api"
	"github.com/jaam8/classpoll/internal/broadcast"
	"github.com/jaam8/classpoll/internal/chat"
	"github.com/jaam8/classpoll/internal/models"
	"github.com/jaam8/classpoll/internal/roster"
	"github.com/jaam8/classpoll/internal/service"
	"github.com/jaam8/classpoll/internal/session"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	log := zap.NewNop()
	bus := broadcast.New(log)
	participants := roster.New(bus, log)
	polls := service.New(participants, nil, bus, log)
	gate := session.New(participants, polls, log)
	relay := chat.New(bus, log)

	srv := httptest.NewServer(api.New(bus, participants, polls, gate, relay, log))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, data interface{}) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"event": event,
		"data":  data,
	}))
}

// waitFor reads frames until the wanted event arrives, skipping
// everything else. Per-connection ordering makes this deterministic.
func waitFor(t *testing.T, conn *websocket.Conn, event string) json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var f frame
		require.NoError(t, conn.ReadJSON(&f), "waiting for %q", event)
		if f.Event == event {
			return f.Data
		}
	}
}

func TestPollSessionRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	teacher := dial(t, srv)
	student := dial(t, srv)

	send(t, student, models.EventJoinRoster, map[string]string{"displayName": "A"})
	var participants []models.Participant
	require.NoError(t, json.Unmarshal(waitFor(t, teacher, models.EventRosterChanged), &participants))
	require.Len(t, participants, 1)
	require.Equal(t, "A", participants[0].Name)

	// No active poll yet: creation is allowed.
	send(t, teacher, models.EventCheckCanCreatePoll, nil)
	waitFor(t, teacher, models.EventCanCreatePollOK)

	send(t, teacher, models.EventCreatePoll, map[string]interface{}{
		"question":        "Color?",
		"options":         []string{"Red", "Blue"},
		"durationSeconds": 30,
	})
	var poll models.Poll
	require.NoError(t, json.Unmarshal(waitFor(t, student, models.EventPollStarted), &poll))
	require.True(t, poll.Active)
	require.Equal(t, "Color?", poll.Question)

	// Student has not answered: blocked with the pending message.
	send(t, teacher, models.EventCheckCanCreatePoll, nil)
	var advisory string
	require.NoError(t, json.Unmarshal(waitFor(t, teacher, models.EventPollCreateError), &advisory))
	require.Equal(t, api.MsgPendingResponses, advisory)

	send(t, student, models.EventCastVote, map[string]interface{}{
		"pollId":      poll.ID,
		"optionIndex": 0,
	})
	var tally models.TallyUpdate
	require.NoError(t, json.Unmarshal(waitFor(t, teacher, models.EventVoteTallyChanged), &tally))
	require.Equal(t, poll.ID, tally.PollID)
	require.Equal(t, []int{1, 0}, tally.Votes)
	require.Equal(t, map[string]int{"A": 0}, tally.Responses)

	// All answered, poll still active: blocked with the in-progress
	// message, not allowed.
	send(t, teacher, models.EventCheckCanCreatePoll, nil)
	require.NoError(t, json.Unmarshal(waitFor(t, teacher, models.EventPollCreateError), &advisory))
	require.Equal(t, api.MsgPollInProgress, advisory)

	send(t, teacher, models.EventEndPoll, map[string]string{"pollId": poll.ID})
	var endedID string
	require.NoError(t, json.Unmarshal(waitFor(t, student, models.EventPollEnded), &endedID))
	require.Equal(t, poll.ID, endedID)

	send(t, teacher, models.EventGetPollHistory, nil)
	var history []models.Poll
	require.NoError(t, json.Unmarshal(waitFor(t, teacher, models.EventPollHistory), &history))
	require.Len(t, history, 1)
	require.False(t, history[0].Active)
}

func TestCreatePollValidationError(t *testing.T) {
	srv := newTestServer(t)
	teacher := dial(t, srv)

	send(t, teacher, models.EventCreatePoll, map[string]interface{}{
		"question":        "",
		"options":         []string{"X", "Y"},
		"durationSeconds": 30,
	})
	var advisory string
	require.NoError(t, json.Unmarshal(waitFor(t, teacher, models.EventPollCreateError), &advisory))
	require.Equal(t, models.ErrQuestionIsEmpty.Error(), advisory)

	// Nothing was added to history.
	send(t, teacher, models.EventGetPollHistory, nil)
	var history []models.Poll
	require.NoError(t, json.Unmarshal(waitFor(t, teacher, models.EventPollHistory), &history))
	require.Empty(t, history)
}

func TestRemoveParticipantTargetedNotice(t *testing.T) {
	srv := newTestServer(t)
	teacher := dial(t, srv)
	student := dial(t, srv)

	send(t, student, models.EventJoinRoster, map[string]string{"displayName": "B"})
	waitFor(t, teacher, models.EventRosterChanged)

	send(t, teacher, models.EventRemoveParticipant, map[string]string{"displayName": "B"})
	waitFor(t, student, models.EventParticipantRemoved)

	var participants []models.Participant
	require.NoError(t, json.Unmarshal(waitFor(t, teacher, models.EventRosterChanged), &participants))
	require.Empty(t, participants)
}

func TestDisconnectLeavesRosterAndChat(t *testing.T) {
	srv := newTestServer(t)
	teacher := dial(t, srv)
	student := dial(t, srv)

	send(t, student, models.EventJoinRoster, map[string]string{"displayName": "C"})
	waitFor(t, teacher, models.EventRosterChanged)
	send(t, student, models.EventJoinChat, map[string]string{"displayName": "C"})
	waitFor(t, teacher, models.EventParticipantsChanged)

	require.NoError(t, student.Close())

	var participants []models.Participant
	require.NoError(t, json.Unmarshal(waitFor(t, teacher, models.EventRosterChanged), &participants))
	require.Empty(t, participants)
	var names []string
	require.NoError(t, json.Unmarshal(waitFor(t, teacher, models.EventParticipantsChanged), &names))
	require.Empty(t, names)
}

func TestChatRelay(t *testing.T) {
	srv := newTestServer(t)
	a := dial(t, srv)
	b := dial(t, srv)

	send(t, a, models.EventJoinChat, map[string]string{"displayName": "A"})
	var names []string
	require.NoError(t, json.Unmarshal(waitFor(t, b, models.EventParticipantsChanged), &names))
	require.Equal(t, []string{"A"}, names)

	send(t, a, models.EventSendChat, map[string]string{"displayName": "A", "text": "hi there"})
	var msg map[string]string
	require.NoError(t, json.Unmarshal(waitFor(t, b, models.EventChatMessage), &msg))
	require.Equal(t, "hi there", msg["text"])
	require.Equal(t, "A", msg["displayName"])
}
