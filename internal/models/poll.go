package models

import (
	"errors"
	"time"
)

var (
	ErrQuestionIsEmpty  = errors.New("question is empty")
	ErrNotEnoughOptions = errors.New("the number of options should be at least 2")
	ErrOptionIsEmpty    = errors.New("option is empty")
	ErrPollNotFound     = errors.New("poll is not found")

	ErrFailedToProcessData = errors.New("failed to process data")
)

type Option struct {
	Text  string `json:"text"`
	Votes int    `json:"votes"`
}

type Poll struct {
	ID       string   `json:"id"`
	Question string   `json:"question"`
	Options  []Option `json:"options"`
	// Duration is the active window in seconds.
	Duration  int       `json:"duration"`
	CreatedAt time.Time `json:"createdAt"`
	Active    bool      `json:"isActive"`
	// Responses maps a participant display name to the option index
	// they last chose. Keyed by name, not connection: two participants
	// sharing a name share one ledger entry.
	Responses map[string]int `json:"responses"`
}

// Counts returns the per-option vote counts in option order.
func (p *Poll) Counts() []int {
	counts := make([]int, len(p.Options))
	for i, opt := range p.Options {
		counts[i] = opt.Votes
	}
	return counts
}

// Percentages returns per-option vote shares in percent.
// All zeros when nobody has voted yet.
func (p *Poll) Percentages() []float64 {
	total := 0
	for _, opt := range p.Options {
		total += opt.Votes
	}
	shares := make([]float64, len(p.Options))
	if total == 0 {
		return shares
	}
	for i, opt := range p.Options {
		shares[i] = float64(opt.Votes) / float64(total) * 100
	}
	return shares
}

// Clone returns a deep copy safe to hand to other goroutines.
func (p *Poll) Clone() *Poll {
	cp := *p
	cp.Options = make([]Option, len(p.Options))
	copy(cp.Options, p.Options)
	cp.Responses = make(map[string]int, len(p.Responses))
	for name, idx := range p.Responses {
		cp.Responses[name] = idx
	}
	return &cp
}

type Participant struct {
	SocketID string `json:"socketId"`
	Name     string `json:"name"`
}

// TallyUpdate is the payload of a vote-tally-changed event.
type TallyUpdate struct {
	PollID    string         `json:"pollId"`
	Votes     []int          `json:"votes"`
	Responses map[string]int `json:"responses"`
}
