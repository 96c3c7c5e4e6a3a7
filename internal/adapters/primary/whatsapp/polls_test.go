package whatsapp

import (
	"testing"
	"time"

	"github.com/vibin/lead-assistant/internal/adapters/secondary/repository"
	"github.com/vibin/lead-assistant/internal/core/domain"
)

const chat = "375291234567@s.whatsapp.net"

func TestPollOptions(t *testing.T) {
	rating, err := pollOptions(domain.ControlRating)
	if err != nil {
		t.Fatal(err)
	}
	if len(rating) != 6 || rating[0].Data != "rate:1" || rating[4].Data != "rate:5" || rating[5].Data != "rate:skip" {
		t.Fatalf("rating options = %+v", rating)
	}

	feedback, err := pollOptions(domain.ControlFeedback)
	if err != nil {
		t.Fatal(err)
	}
	if len(feedback) != 2 || feedback[0].Data != "feedback:add" || feedback[1].Data != "feedback:skip" {
		t.Fatalf("feedback options = %+v", feedback)
	}

	if _, err := pollOptions(domain.ControlNone); err == nil {
		t.Fatal("plain text has no poll form")
	}
}

func TestMatchVote(t *testing.T) {
	opts, _ := pollOptions(domain.ControlRating)

	data, ok := matchVote(opts, [][]byte{optionHash("4 ⭐")})
	if !ok || data != "rate:4" {
		t.Fatalf("matchVote = %q, %v", data, ok)
	}
	if _, ok := matchVote(opts, nil); ok {
		t.Fatal("retracted vote matched")
	}
	if _, ok := matchVote(opts, [][]byte{optionHash("7 ⭐")}); ok {
		t.Fatal("unknown option matched")
	}
}

func newTestRegistry(now *time.Time) *pollRegistry {
	return newPollRegistry(repository.NewMemorySessionStore[string, pollRecord](), func() time.Time { return *now })
}

func TestPollRegistryResolve(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	r := newTestRegistry(&now)
	opts, _ := pollOptions(domain.ControlFeedback)
	r.add("poll-1", pollRecord{ChatID: chat, Kind: domain.ControlFeedback, Options: opts})

	cb, ok := r.resolve("poll-1", "vote-1", chat, chat, [][]byte{optionHash("Не сейчас")})
	if !ok {
		t.Fatal("vote not resolved")
	}
	want := domain.Callback{ID: "vote-1", ChatID: chat, UserID: chat, MessageID: "poll-1", Data: "feedback:skip"}
	if cb != want {
		t.Fatalf("callback = %+v, want %+v", cb, want)
	}

	if _, ok := r.resolve("poll-1", "vote-2", "other@s.whatsapp.net", chat, [][]byte{optionHash("Не сейчас")}); ok {
		t.Fatal("vote from another chat resolved")
	}
	if _, ok := r.resolve("poll-2", "vote-3", chat, chat, [][]byte{optionHash("Не сейчас")}); ok {
		t.Fatal("vote on unknown poll resolved")
	}

	if !r.retire("poll-1") {
		t.Fatal("retire did not find the poll")
	}
	if r.retire("poll-1") {
		t.Fatal("poll retired twice")
	}
	if _, ok := r.resolve("poll-1", "vote-4", chat, chat, [][]byte{optionHash("Не сейчас")}); ok {
		t.Fatal("vote on retired poll resolved")
	}
}

func TestPollRegistryPrune(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	r := newTestRegistry(&now)
	opts, _ := pollOptions(domain.ControlRating)

	r.add("old", pollRecord{ChatID: chat, Options: opts})
	now = now.Add(pollRetention)
	r.add("new", pollRecord{ChatID: chat, Options: opts})
	now = now.Add(time.Minute)

	if n := r.prune(); n != 1 {
		t.Fatalf("pruned %d polls, want 1", n)
	}
	if _, ok := r.get("old"); ok {
		t.Fatal("old poll kept")
	}
	if _, ok := r.get("new"); !ok {
		t.Fatal("recent poll pruned")
	}
}
