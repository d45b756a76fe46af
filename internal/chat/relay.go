package chat

import (
	"encoding/json"
	"sync"

	"github.com/jaam8/classpoll/internal/broadcast"
	"github.com/jaam8/classpoll/internal/models"
	"go.uber.org/zap"
)

// Relay is the best-effort chat side channel. It is fully independent
// of poll state: a poll ending never touches the chat participant set.
// Messages are rebroadcast verbatim with no persistence and no rate
// limiting.
type Relay struct {
	mu    sync.Mutex
	names []string
	pub   broadcast.Publisher
	l     *zap.Logger
}

func New(pub broadcast.Publisher, l *zap.Logger) *Relay {
	return &Relay{
		pub: pub,
		l:   l,
	}
}

// Join adds the name to the chat participant set and broadcasts the
// updated set. Joining twice under the same name is a no-op.
func (r *Relay) Join(displayName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range r.names {
		if name == displayName {
			return
		}
	}
	r.names = append(r.names, displayName)
	r.l.Debug("chat join", zap.String("name", displayName))
	r.pub.Broadcast(models.EventParticipantsChanged, r.list())
}

// Leave removes the name if present and broadcasts the updated set.
func (r *Relay) Leave(displayName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, name := range r.names {
		if name == displayName {
			r.names = append(r.names[:i], r.names[i+1:]...)
			r.l.Debug("chat leave", zap.String("name", displayName))
			r.pub.Broadcast(models.EventParticipantsChanged, r.list())
			return
		}
	}
}

// Send rebroadcasts the message object verbatim to all connections.
func (r *Relay) Send(message json.RawMessage) {
	r.pub.Broadcast(models.EventChatMessage, message)
}

// Participants returns the current chat participant names in join
// order.
func (r *Relay) Participants() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.list()
}

func (r *Relay) list() []string {
	names := make([]string, len(r.names))
	copy(names, r.names)
	return names
}
