package session

import (
	"github.com/jaam8/classpoll/internal/models"
	"go.uber.org/zap"
)

// Block reasons.
const (
	ReasonPendingResponses = "pending-responses"
	ReasonPollInProgress   = "poll-in-progress"
)

// Decision is the admission verdict for starting a new poll.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// RosterView is the slice of roster state the gate reads.
type RosterView interface {
	List() []models.Participant
}

// PollView is the slice of poll-engine state the gate reads.
type PollView interface {
	ActivePoll() *models.Poll
}

// Gate decides whether the moderator may start a new poll. The
// decision is advisory: it races the subsequent create-poll request,
// and CreatePoll does not re-check it. That race is accepted: the
// gate is a UX guard for the moderator, not a concurrency lock.
type Gate struct {
	roster RosterView
	polls  PollView
	l      *zap.Logger
}

func New(roster RosterView, polls PollView, l *zap.Logger) *Gate {
	return &Gate{
		roster: roster,
		polls:  polls,
		l:      l,
	}
}

// CanCreatePoll evaluates the admission rules in order:
//
//  1. active poll, at least one participant, and someone has not
//     answered yet → blocked, pending-responses
//  2. active poll otherwise (nobody connected, or everyone answered
//     but the poll was never ended) → blocked, poll-in-progress
//  3. no active poll → allowed
func (g *Gate) CanCreatePoll() Decision {
	active := g.polls.ActivePoll()
	if active == nil {
		return Decision{Allowed: true}
	}
	participants := g.roster.List()
	if len(participants) > 0 && !allAnswered(participants, active.Responses) {
		g.l.Debug("poll creation blocked",
			zap.String("poll_id", active.ID),
			zap.String("reason", ReasonPendingResponses))
		return Decision{Reason: ReasonPendingResponses}
	}
	g.l.Debug("poll creation blocked",
		zap.String("poll_id", active.ID),
		zap.String("reason", ReasonPollInProgress))
	return Decision{Reason: ReasonPollInProgress}
}

func allAnswered(participants []models.Participant, responses map[string]int) bool {
	for _, p := range participants {
		if _, ok := responses[p.Name]; !ok {
			return false
		}
	}
	return true
}
