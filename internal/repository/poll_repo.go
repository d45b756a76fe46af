package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jaam8/classpoll/internal/models"
	"github.com/tarantool/go-tarantool"
	"go.uber.org/zap"
)

// PollRepository mirrors the in-memory poll history into Tarantool.
// The in-memory history stays authoritative; this store exists so an
// operator can keep poll records past process lifetime. Space "polls",
// primary index on the poll id:
//
//	{id, question, options, responses(JSON), duration, created_at(unix), is_active}
type PollRepository struct {
	db *tarantool.Connection
	l  *zap.Logger
}

func New(db *tarantool.Connection, l *zap.Logger) *PollRepository {
	return &PollRepository{
		db: db,
		l:  l,
	}
}

// SavePoll appends the poll tuple.
func (r *PollRepository) SavePoll(poll *models.Poll) error {
	responsesJSON, err := json.Marshal(poll.Responses)
	if err != nil {
		return fmt.Errorf("repository: json marshal error: %w", err)
	}

	tuple := []interface{}{
		poll.ID,
		poll.Question,
		poll.Options,
		string(responsesJSON),
		poll.Duration,
		poll.CreatedAt.Unix(),
		poll.Active,
	}
	resp, err := r.db.Insert("polls", tuple)
	if err != nil {
		r.l.Debug("error inserting poll", zap.Error(err))
		return fmt.Errorf("repository: database insert error: %w, tarantool error: %v", err, resp.Error)
	}
	r.l.Debug("poll saved",
		zap.String("poll_id", poll.ID),
		zap.Uint32("status_code", resp.Code))
	return nil
}

// MarkEnded flips the stored is_active flag and writes the final
// options and response ledger, so the stored record carries the tally
// the poll ended with.
func (r *PollRepository) MarkEnded(poll *models.Poll) error {
	responsesJSON, err := json.Marshal(poll.Responses)
	if err != nil {
		return fmt.Errorf("repository: json marshal error: %w", err)
	}
	resp, err := r.db.Update("polls", "primary",
		[]interface{}{poll.ID},
		[]interface{}{
			[]interface{}{"=", 2, poll.Options},
			[]interface{}{"=", 3, string(responsesJSON)},
			[]interface{}{"=", 6, false},
		})
	if err != nil {
		r.l.Debug("failed to update poll", zap.Error(err))
		return fmt.Errorf("repository: database update error: %w", err)
	}
	if len(resp.Data) == 0 {
		return models.ErrPollNotFound
	}
	r.l.Debug("poll marked ended",
		zap.String("poll_id", poll.ID),
		zap.Uint32("status_code", resp.Code))
	return nil
}

// GetPolls reads back up to limit stored polls.
func (r *PollRepository) GetPolls(limit uint32) ([]*models.Poll, error) {
	resp, err := r.db.Select("polls", "primary", 0, limit, tarantool.IterAll, []interface{}{})
	if err != nil {
		r.l.Debug("failed to select polls", zap.Error(err))
		return nil, fmt.Errorf("repository: database select error: %w", err)
	}
	polls := make([]*models.Poll, 0, len(resp.Data))
	for _, raw := range resp.Data {
		tuple, ok := raw.([]interface{})
		if !ok || len(tuple) < 7 {
			r.l.Debug("unexpected tuple shape", zap.Any("tuple", raw))
			return nil, models.ErrFailedToProcessData
		}
		poll, err := decodePoll(tuple)
		if err != nil {
			return nil, err
		}
		polls = append(polls, poll)
	}
	return polls, nil
}

func decodePoll(tuple []interface{}) (*models.Poll, error) {
	poll := &models.Poll{}
	var ok bool
	if poll.ID, ok = tuple[0].(string); !ok {
		return nil, models.ErrFailedToProcessData
	}
	if poll.Question, ok = tuple[1].(string); !ok {
		return nil, models.ErrFailedToProcessData
	}

	optionsRaw, ok := tuple[2].([]interface{})
	if !ok {
		return nil, fmt.Errorf("repository: unexpected type for options: %w",
			models.ErrFailedToProcessData)
	}
	for _, raw := range optionsRaw {
		optBytes, err := json.Marshal(convertKeys(raw))
		if err != nil {
			return nil, fmt.Errorf("repository: failed to marshal option: %w", err)
		}
		var option models.Option
		if err = json.Unmarshal(optBytes, &option); err != nil {
			return nil, fmt.Errorf("repository: failed to unmarshal option: %w", err)
		}
		poll.Options = append(poll.Options, option)
	}

	responsesField, ok := tuple[3].(string)
	if !ok {
		return nil, models.ErrFailedToProcessData
	}
	poll.Responses = make(map[string]int)
	if err := json.Unmarshal([]byte(responsesField), &poll.Responses); err != nil {
		return nil, fmt.Errorf("repository: failed to unmarshal responses: %w", err)
	}

	poll.Duration = int(toInt64(tuple[4]))
	poll.CreatedAt = time.Unix(toInt64(tuple[5]), 0)
	poll.Active, _ = tuple[6].(bool)
	return poll, nil
}

// toInt64 tolerates the numeric types msgpack decoding may produce.
func toInt64(v interface{}) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case uint64:
		return int64(x)
	case int:
		return int64(x)
	case float64:
		return int64(x)
	default:
		return 0
	}
}

func convertKeys(i interface{}) interface{} {
	switch x := i.(type) {
	case map[interface{}]interface{}:
		m2 := make(map[string]interface{})
		for k, v := range x {
			m2[fmt.Sprintf("%v", k)] = convertKeys(v)
		}
		return m2
	case []interface{}:
		for idx, item := range x {
			x[idx] = convertKeys(item)
		}
		return x
	default:
		return i
	}
}
