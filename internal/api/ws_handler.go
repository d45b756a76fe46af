package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jaam8/classpoll/internal/broadcast"
	"github.com/jaam8/classpoll/internal/chat"
	"github.com/jaam8/classpoll/internal/models"
	"github.com/jaam8/classpoll/internal/roster"
	"github.com/jaam8/classpoll/internal/service"
	"github.com/jaam8/classpoll/internal/session"
	"go.uber.org/zap"
)

// Advisory messages sent back for a blocked admission check. Wording
// is part of the moderator-facing contract.
const (
	MsgPendingResponses = "Cannot start a new poll until all students have answered the previous poll."
	MsgPollInProgress   = "A poll is already active. Please wait for it to finish before starting a new one."
)

// wsMessage is the wire frame for client events.
type wsMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Handler upgrades connections and dispatches client events to the
// session components. One goroutine per connection reads frames; all
// writes go through the broadcast bus.
type Handler struct {
	upgrader websocket.Upgrader
	bus      *broadcast.Bus
	roster   *roster.Roster
	polls    *service.PollService
	gate     *session.Gate
	chat     *chat.Relay
	l        *zap.Logger

	mu        sync.Mutex
	chatNames map[string]string
}

func New(bus *broadcast.Bus, r *roster.Roster, polls *service.PollService, gate *session.Gate, relay *chat.Relay, l *zap.Logger) *Handler {
	return &Handler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Role selection is trusted client input; so is origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		bus:       bus,
		roster:    r,
		polls:     polls,
		gate:      gate,
		chat:      relay,
		l:         l,
		chatNames: make(map[string]string),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := h.upgrader.Upgrade(w, req, nil)
	if err != nil {
		h.l.Error("websocket upgrade failed", zap.Error(err))
		return
	}
	socketID := uuid.New().String()
	h.bus.Register(socketID, conn)
	h.l.Info("client connected", zap.String("socket_id", socketID))
	go h.readLoop(socketID, conn)
}

func (h *Handler) readLoop(socketID string, conn *websocket.Conn) {
	defer h.disconnect(socketID)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			h.l.Debug("read loop closed",
				zap.String("socket_id", socketID),
				zap.Error(err))
			return
		}
		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.l.Debug("malformed frame",
				zap.String("socket_id", socketID),
				zap.Error(err))
			continue
		}
		h.dispatch(socketID, msg)
	}
}

// dispatch handles one client event. Malformed payloads are dropped:
// one client's garbage must never take the session down.
func (h *Handler) dispatch(socketID string, msg wsMessage) {
	switch msg.Event {
	case models.EventCreatePoll:
		var req struct {
			Question        string   `json:"question"`
			Options         []string `json:"options"`
			DurationSeconds int      `json:"durationSeconds"`
		}
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			h.l.Debug("bad create-poll payload", zap.Error(err))
			return
		}
		if _, err := h.polls.CreatePoll(req.Question, req.Options, req.DurationSeconds); err != nil {
			h.bus.SendTo(socketID, models.EventPollCreateError, err.Error())
		}

	case models.EventCastVote:
		var req struct {
			PollID      string `json:"pollId"`
			OptionIndex int    `json:"optionIndex"`
		}
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			h.l.Debug("bad cast-vote payload", zap.Error(err))
			return
		}
		h.polls.CastVote(req.PollID, socketID, req.OptionIndex)

	case models.EventEndPoll:
		var req struct {
			PollID string `json:"pollId"`
		}
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			h.l.Debug("bad end-poll payload", zap.Error(err))
			return
		}
		h.polls.EndPoll(req.PollID)

	case models.EventCheckCanCreatePoll:
		decision := h.gate.CanCreatePoll()
		if decision.Allowed {
			h.bus.SendTo(socketID, models.EventCanCreatePollOK, nil)
			return
		}
		message := MsgPollInProgress
		if decision.Reason == session.ReasonPendingResponses {
			message = MsgPendingResponses
		}
		h.bus.SendTo(socketID, models.EventPollCreateError, message)

	case models.EventJoinRoster:
		var req struct {
			DisplayName string `json:"displayName"`
		}
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			h.l.Debug("bad join-roster payload", zap.Error(err))
			return
		}
		h.roster.Join(socketID, req.DisplayName)

	case models.EventRemoveParticipant:
		var req struct {
			DisplayName string `json:"displayName"`
		}
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			h.l.Debug("bad remove-participant payload", zap.Error(err))
			return
		}
		h.roster.RemoveByName(req.DisplayName)

	case models.EventGetPollHistory:
		h.bus.SendTo(socketID, models.EventPollHistory, h.polls.History())

	case models.EventJoinChat:
		var req struct {
			DisplayName string `json:"displayName"`
		}
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			h.l.Debug("bad join-chat payload", zap.Error(err))
			return
		}
		h.mu.Lock()
		h.chatNames[socketID] = req.DisplayName
		h.mu.Unlock()
		h.chat.Join(req.DisplayName)

	case models.EventSendChat:
		h.chat.Send(msg.Data)

	default:
		h.l.Debug("unknown event",
			zap.String("socket_id", socketID),
			zap.String("event", msg.Event))
	}
}

// disconnect tears down everything tied to the connection: roster
// entry, chat presence, bus registration. A client that reconnects
// must re-query state; nothing is replayed.
func (h *Handler) disconnect(socketID string) {
	h.roster.Leave(socketID)

	h.mu.Lock()
	name, ok := h.chatNames[socketID]
	delete(h.chatNames, socketID)
	h.mu.Unlock()
	if ok {
		h.chat.Leave(name)
	}

	h.bus.Unregister(socketID)
	h.l.Info("client disconnected", zap.String("socket_id", socketID))
}
