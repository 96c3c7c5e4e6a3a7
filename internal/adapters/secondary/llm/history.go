package llm

import (
	"strings"
	"sync"
)

// Exchange is one question and the answer given to it
type Exchange struct {
	User      string
	Assistant string
}

// History keeps the most recent exchanges per user
type History struct {
	mu      sync.Mutex
	limit   int
	entries map[string][]Exchange
}

// NewHistory creates a history that keeps at most limit exchanges per user
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = 10
	}
	return &History{limit: limit, entries: make(map[string][]Exchange)}
}

// Append records an exchange, dropping the oldest past the limit
func (h *History) Append(userID string, e Exchange) {
	h.mu.Lock()
	defer h.mu.Unlock()

	list := append(h.entries[userID], e)
	if len(list) > h.limit {
		list = append([]Exchange(nil), list[len(list)-h.limit:]...)
	}
	h.entries[userID] = list
}

// Last returns a copy of the n most recent exchanges for a user
func (h *History) Last(userID string, n int) []Exchange {
	h.mu.Lock()
	defer h.mu.Unlock()

	list := h.entries[userID]
	if n < len(list) {
		list = list[len(list)-n:]
	}
	return append([]Exchange(nil), list...)
}

// Forget drops a user's history
func (h *History) Forget(userID string) {
	h.mu.Lock()
	delete(h.entries, userID)
	h.mu.Unlock()
}

func formatHistory(list []Exchange) string {
	if len(list) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("История диалога:\n")
	for _, e := range list {
		b.WriteString("Пользователь: ")
		b.WriteString(e.User)
		b.WriteString("\nАссистент: ")
		b.WriteString(e.Assistant)
		b.WriteString("\n")
	}
	return b.String()
}
