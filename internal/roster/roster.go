package roster

import (
	"sync"

	"github.com/jaam8/classpoll/internal/broadcast"
	"github.com/jaam8/classpoll/internal/models"
	"go.uber.org/zap"
)

// Roster owns the live participant set. Entries are keyed by socket id;
// display names are client-supplied and may collide (see RemoveByName).
type Roster struct {
	mu    sync.Mutex
	names map[string]string
	order []string
	pub   broadcast.Publisher
	l     *zap.Logger
}

func New(pub broadcast.Publisher, l *zap.Logger) *Roster {
	return &Roster{
		names: make(map[string]string),
		pub:   pub,
		l:     l,
	}
}

// Join registers the participant, overwriting the display name on a
// repeated join from the same socket, and broadcasts the updated list.
func (r *Roster) Join(socketID, displayName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.names[socketID]; !ok {
		r.order = append(r.order, socketID)
	}
	r.names[socketID] = displayName
	r.l.Info("participant joined",
		zap.String("socket_id", socketID),
		zap.String("name", displayName))
	r.pub.Broadcast(models.EventRosterChanged, r.list())
}

// Leave removes the entry if present. No-op for unknown sockets, so a
// late disconnect of an already-removed participant is harmless.
func (r *Roster) Leave(socketID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.names[socketID]; !ok {
		return false
	}
	r.remove(socketID)
	r.l.Info("participant left", zap.String("socket_id", socketID))
	r.pub.Broadcast(models.EventRosterChanged, r.list())
	return true
}

// RemoveByName removes every participant whose display name matches.
// Matching by name is the moderator-facing contract: kicking "Alice"
// kicks all Alices. Each removed connection gets a targeted
// participant-removed notice before the roster broadcast.
func (r *Roster) RemoveByName(displayName string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []string
	for _, id := range r.order {
		if r.names[id] == displayName {
			removed = append(removed, id)
		}
	}
	for _, id := range removed {
		r.pub.SendTo(id, models.EventParticipantRemoved, nil)
		r.remove(id)
	}
	if len(removed) == 0 {
		return 0
	}
	r.l.Info("participant removed by moderator",
		zap.String("name", displayName),
		zap.Int("connections", len(removed)))
	r.pub.Broadcast(models.EventRosterChanged, r.list())
	return len(removed)
}

// List returns a join-ordered snapshot of the roster.
func (r *Roster) List() []models.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.list()
}

// Name resolves a socket id to its display name.
func (r *Roster) Name(socketID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name, ok := r.names[socketID]
	return name, ok
}

func (r *Roster) list() []models.Participant {
	participants := make([]models.Participant, 0, len(r.order))
	for _, id := range r.order {
		participants = append(participants, models.Participant{
			SocketID: id,
			Name:     r.names[id],
		})
	}
	return participants
}

func (r *Roster) remove(socketID string) {
	delete(r.names, socketID)
	for i, id := range r.order {
		if id == socketID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}
