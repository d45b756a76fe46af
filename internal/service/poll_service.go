package service

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jaam8/classpoll/internal/broadcast"
	"github.com/jaam8/classpoll/internal/models"
	"go.uber.org/zap"
)

// HistoryStore is the external persistence collaborator. Appends are
// best-effort: a store failure is logged and never fails the poll
// operation. A nil store disables persistence.
type HistoryStore interface {
	SavePoll(poll *models.Poll) error
	MarkEnded(poll *models.Poll) error
}

// NameResolver maps a socket id to the participant's display name.
// The roster implements it.
type NameResolver interface {
	Name(socketID string) (string, bool)
}

// PollService owns the poll history and the active-poll reference.
// All mutations run under one mutex; the per-poll expiry timer is the
// only other caller and goes through the same guarded transition as an
// explicit end, so a poll leaves the active state exactly once.
type PollService struct {
	mu     sync.Mutex
	polls  []*models.Poll
	timers map[string]*time.Timer

	resolver NameResolver
	store    HistoryStore
	pub      broadcast.Publisher
	l        *zap.Logger
}

func New(resolver NameResolver, store HistoryStore, pub broadcast.Publisher, l *zap.Logger) *PollService {
	return &PollService{
		timers:   make(map[string]*time.Timer),
		resolver: resolver,
		store:    store,
		pub:      pub,
		l:        l,
	}
}

// CreatePoll validates the input, opens a new active poll and schedules
// its expiry. The admission gate is advisory: CreatePoll does not
// re-check it, but it does close a still-active predecessor first so at
// most one poll is ever active.
func (s *PollService) CreatePoll(question string, options []string, durationSeconds int) (*models.Poll, error) {
	if strings.TrimSpace(question) == "" {
		return nil, models.ErrQuestionIsEmpty
	}
	if len(options) < 2 {
		return nil, models.ErrNotEnoughOptions
	}
	opts := make([]models.Option, len(options))
	for i, text := range options {
		if strings.TrimSpace(text) == "" {
			return nil, models.ErrOptionIsEmpty
		}
		opts[i] = models.Option{Text: text}
	}

	poll := &models.Poll{
		ID:        uuid.New().String()[:8],
		Question:  question,
		Options:   opts,
		Duration:  durationSeconds,
		CreatedAt: time.Now(),
		Active:    true,
		Responses: make(map[string]int),
	}

	var superseded *models.Poll
	s.mu.Lock()
	if prev := s.activeLocked(); prev != nil {
		s.endLocked(prev, "superseded")
		superseded = prev.Clone()
	}
	s.polls = append([]*models.Poll{poll}, s.polls...)
	s.timers[poll.ID] = time.AfterFunc(time.Duration(durationSeconds)*time.Second, func() {
		s.expirePoll(poll.ID)
	})
	snapshot := poll.Clone()
	s.pub.Broadcast(models.EventPollStarted, snapshot)
	s.mu.Unlock()

	s.l.Info("poll created",
		zap.String("poll_id", poll.ID),
		zap.String("question", question),
		zap.Int("options", len(options)),
		zap.Int("duration_seconds", durationSeconds))
	if superseded != nil {
		s.markEnded(superseded)
	}
	s.persist(snapshot)
	return snapshot, nil
}

// CastVote records a vote on the active poll. Stale or malformed votes
// (unknown poll, ended poll, index out of range) are silently ignored:
// duplicate and late client messages are expected, not errors. A
// re-vote under the same display name moves the previously counted
// vote, so the tally always matches the ledger.
func (s *PollService) CastVote(pollID, socketID string, optionIndex int) bool {
	name, ok := s.resolver.Name(socketID)
	if !ok {
		name = "Unknown"
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	poll := s.findLocked(pollID)
	if poll == nil || !poll.Active {
		return false
	}
	if optionIndex < 0 || optionIndex >= len(poll.Options) {
		return false
	}
	if prev, voted := poll.Responses[name]; !voted || prev != optionIndex {
		if voted {
			poll.Options[prev].Votes--
		}
		poll.Options[optionIndex].Votes++
		poll.Responses[name] = optionIndex
	}

	s.l.Debug("vote cast",
		zap.String("poll_id", pollID),
		zap.String("name", name),
		zap.Int("option", optionIndex))
	s.pub.Broadcast(models.EventVoteTallyChanged, models.TallyUpdate{
		PollID:    pollID,
		Votes:     poll.Counts(),
		Responses: poll.Clone().Responses,
	})
	return true
}

// EndPoll deactivates the poll and cancels its expiry timer. Ending an
// already-ended or unknown poll is a no-op, which makes the explicit
// end idempotent with the timer-driven expiry: whichever fires first
// wins and exactly one poll-ended event goes out.
func (s *PollService) EndPoll(pollID string) bool {
	s.mu.Lock()
	poll := s.findLocked(pollID)
	if poll == nil || !poll.Active {
		s.mu.Unlock()
		return false
	}
	s.endLocked(poll, "moderator")
	snapshot := poll.Clone()
	s.mu.Unlock()

	s.markEnded(snapshot)
	return true
}

// History returns the poll collection newest-first, as deep copies.
func (s *PollService) History() []*models.Poll {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := make([]*models.Poll, len(s.polls))
	for i, poll := range s.polls {
		history[i] = poll.Clone()
	}
	return history
}

// ActivePoll returns a copy of the currently active poll, or nil.
func (s *PollService) ActivePoll() *models.Poll {
	s.mu.Lock()
	defer s.mu.Unlock()
	if poll := s.activeLocked(); poll != nil {
		return poll.Clone()
	}
	return nil
}

// expirePoll is the timer callback.
func (s *PollService) expirePoll(pollID string) {
	s.mu.Lock()
	poll := s.findLocked(pollID)
	if poll == nil || !poll.Active {
		s.mu.Unlock()
		return
	}
	s.endLocked(poll, "expired")
	snapshot := poll.Clone()
	s.mu.Unlock()

	s.markEnded(snapshot)
}

// endLocked flips the poll to its terminal inactive state and emits
// poll-ended. Must run with s.mu held and poll.Active true.
func (s *PollService) endLocked(poll *models.Poll, cause string) {
	poll.Active = false
	if timer, ok := s.timers[poll.ID]; ok {
		timer.Stop()
		delete(s.timers, poll.ID)
	}
	s.l.Info("poll ended",
		zap.String("poll_id", poll.ID),
		zap.String("cause", cause))
	s.pub.Broadcast(models.EventPollEnded, poll.ID)
}

func (s *PollService) findLocked(pollID string) *models.Poll {
	for _, poll := range s.polls {
		if poll.ID == pollID {
			return poll
		}
	}
	return nil
}

func (s *PollService) activeLocked() *models.Poll {
	for _, poll := range s.polls {
		if poll.Active {
			return poll
		}
	}
	return nil
}

func (s *PollService) persist(poll *models.Poll) {
	if s.store == nil {
		return
	}
	if err := s.store.SavePoll(poll); err != nil {
		s.l.Error("failed to persist poll",
			zap.String("poll_id", poll.ID),
			zap.Error(fmt.Errorf("service: history append: %w", err)))
	}
}

func (s *PollService) markEnded(poll *models.Poll) {
	if s.store == nil {
		return
	}
	if err := s.store.MarkEnded(poll); err != nil {
		s.l.Error("failed to persist poll end",
			zap.String("poll_id", poll.ID),
			zap.Error(fmt.Errorf("service: history update: %w", err)))
	}
}
