package whatsapp

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/vibin/lead-assistant/internal/core/domain"
	"github.com/vibin/lead-assistant/internal/core/ports"
)

// pollOption pairs the label shown to the user with the callback data it
// stands for
type pollOption struct {
	Label string
	Data  string
}

// pollRecord remembers a poll the bot sent so votes can be decoded
type pollRecord struct {
	ChatID  string
	Kind    domain.ControlKind
	Options []pollOption
	SentAt  time.Time
}

const pollRetention = 24 * time.Hour

// pollOptions renders an interactive control as poll options. WhatsApp has
// no inline buttons, so every control is a single-choice poll.
func pollOptions(kind domain.ControlKind) ([]pollOption, error) {
	switch kind {
	case domain.ControlRating:
		opts := make([]pollOption, 0, 6)
		for i := 1; i <= 5; i++ {
			opts = append(opts, pollOption{Label: fmt.Sprintf("%d ⭐", i), Data: fmt.Sprintf("rate:%d", i)})
		}
		return append(opts, pollOption{Label: "Пропустить", Data: "rate:skip"}), nil
	case domain.ControlFeedback:
		return []pollOption{
			{Label: "✍️ Оставить отзыв", Data: "feedback:add"},
			{Label: "Не сейчас", Data: "feedback:skip"},
		}, nil
	default:
		return nil, fmt.Errorf("control %q has no poll form", kind)
	}
}

func labels(opts []pollOption) []string {
	out := make([]string, len(opts))
	for i, o := range opts {
		out[i] = o.Label
	}
	return out
}

// optionHash is the SHA-256 of the option label, which is how poll votes
// reference options
func optionHash(label string) []byte {
	sum := sha256.Sum256([]byte(label))
	return sum[:]
}

// matchVote maps the selected option hashes to callback data. A vote with no
// selection (a retracted vote) or an unknown hash matches nothing.
func matchVote(opts []pollOption, selected [][]byte) (string, bool) {
	if len(selected) == 0 {
		return "", false
	}
	for _, o := range opts {
		if bytes.Equal(optionHash(o.Label), selected[0]) {
			return o.Data, true
		}
	}
	return "", false
}

// pollRegistry tracks live polls by message id
type pollRegistry struct {
	polls ports.SessionStore[string, pollRecord]
	now   func() time.Time
}

func newPollRegistry(store ports.SessionStore[string, pollRecord], now func() time.Time) *pollRegistry {
	return &pollRegistry{polls: store, now: now}
}

func (r *pollRegistry) add(messageID string, rec pollRecord) {
	rec.SentAt = r.now()
	r.polls.Put(messageID, rec)
}

func (r *pollRegistry) get(messageID string) (pollRecord, bool) {
	return r.polls.Get(messageID)
}

// retire stops accepting votes for a poll
func (r *pollRegistry) retire(messageID string) bool {
	var found bool
	r.polls.Compute(messageID, func(_ pollRecord, ok bool) (pollRecord, bool) {
		found = ok
		return pollRecord{}, false
	})
	return found
}

// prune drops polls older than the retention window
func (r *pollRegistry) prune() int {
	cutoff := r.now().Add(-pollRetention)
	return r.polls.DeleteFunc(func(_ string, rec pollRecord) bool {
		return rec.SentAt.Before(cutoff)
	})
}

// resolve turns a vote on a known poll into a callback
func (r *pollRegistry) resolve(pollID, voteID, chatID, userID string, selected [][]byte) (domain.Callback, bool) {
	rec, ok := r.get(pollID)
	if !ok || rec.ChatID != chatID {
		return domain.Callback{}, false
	}
	data, ok := matchVote(rec.Options, selected)
	if !ok {
		return domain.Callback{}, false
	}
	return domain.Callback{
		ID:        voteID,
		ChatID:    chatID,
		UserID:    userID,
		MessageID: pollID,
		Data:      data,
	}, true
}
