// Package session keeps per-conversation follow-up context in memory.
package session

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sells-group/invoice-recon/internal/model"
)

// DefaultHistoryLimit bounds the interactions kept per session.
const DefaultHistoryLimit = 50

// previewLen is how much of a previous answer Context includes.
const previewLen = 200

type slot struct {
	mu      sync.Mutex
	state   model.SessionState
	touched time.Time
	evicted bool
}

// Memory maps session ids to their state. The map lock is held only to
// find or create a slot; each slot has its own lock.
type Memory struct {
	mu    sync.Mutex
	slots map[string]*slot
	limit int
	now   func() time.Time
}

// New creates a Memory keeping at most historyLimit interactions per
// session. A non-positive limit uses DefaultHistoryLimit.
func New(historyLimit int) *Memory {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Memory{
		slots: make(map[string]*slot),
		limit: historyLimit,
		now:   time.Now,
	}
}

func (m *Memory) slot(sessionID string, create bool) *slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[sessionID]
	if !ok && create {
		s = &slot{state: model.SessionState{SessionID: sessionID}}
		m.slots[sessionID] = s
	}
	return s
}

// lock returns the session's slot locked, or nil when it does not exist and
// create is false. A slot evicted while waiting is looked up again.
func (m *Memory) lock(sessionID string, create bool) *slot {
	for {
		s := m.slot(sessionID, create)
		if s == nil {
			return nil
		}
		s.mu.Lock()
		if !s.evicted {
			return s
		}
		s.mu.Unlock()
	}
}

// Remember stores the session's most recent invoice and its verdict.
func (m *Memory) Remember(sessionID, invoiceID string, verdict *model.VerifierResult) {
	s := m.lock(sessionID, true)
	defer s.mu.Unlock()
	s.touched = m.now()
	s.state.InvoiceID = invoiceID
	s.state.Verdict = copyVerdict(verdict)
}

// Recall returns the session's most recent invoice and verdict. ok is false
// when nothing has been remembered for the session.
func (m *Memory) Recall(sessionID string) (invoiceID string, verdict *model.VerifierResult, ok bool) {
	s := m.lock(sessionID, false)
	if s == nil {
		return "", nil, false
	}
	defer s.mu.Unlock()
	if s.state.InvoiceID == "" {
		return "", nil, false
	}
	return s.state.InvoiceID, copyVerdict(s.state.Verdict), true
}

// Record appends an interaction to the session history, dropping the oldest
// beyond the limit.
func (m *Memory) Record(sessionID string, in model.Interaction) {
	if in.Timestamp.IsZero() {
		in.Timestamp = m.now().UTC()
	}
	s := m.lock(sessionID, true)
	defer s.mu.Unlock()
	s.touched = m.now()
	s.state.History = append(s.state.History, in)
	if over := len(s.state.History) - m.limit; over > 0 {
		s.state.History = append([]model.Interaction(nil), s.state.History[over:]...)
	}
}

// History returns a copy of the session's interactions, oldest first.
func (m *Memory) History(sessionID string) []model.Interaction {
	s := m.lock(sessionID, false)
	if s == nil {
		return nil
	}
	defer s.mu.Unlock()
	return append([]model.Interaction(nil), s.state.History...)
}

// Context renders the last window interactions as planner context.
func (m *Memory) Context(sessionID string, window int) string {
	h := m.History(sessionID)
	if window > 0 && len(h) > window {
		h = h[len(h)-window:]
	}
	var b strings.Builder
	for _, in := range h {
		fmt.Fprintf(&b, "Previous Query: %s\n", in.Query)
		if in.Explanation != "" {
			fmt.Fprintf(&b, "Previous Response: %s...\n", preview(in.Explanation))
		}
	}
	return b.String()
}

// State returns a copy of the full session state.
func (m *Memory) State(sessionID string) (model.SessionState, bool) {
	s := m.lock(sessionID, false)
	if s == nil {
		return model.SessionState{}, false
	}
	defer s.mu.Unlock()
	st := s.state
	st.Verdict = copyVerdict(s.state.Verdict)
	st.History = append([]model.Interaction(nil), s.state.History...)
	return st, true
}

// Forget drops a session.
func (m *Memory) Forget(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.slots[sessionID]; ok {
		s.mu.Lock()
		s.evicted = true
		s.mu.Unlock()
		delete(m.slots, sessionID)
	}
}

// Prune drops sessions untouched since before cutoff and returns how many
// were dropped. Sessions busy in another call are kept.
func (m *Memory) Prune(cutoff time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.slots {
		if !s.mu.TryLock() {
			continue
		}
		if s.touched.Before(cutoff) {
			s.evicted = true
			delete(m.slots, id)
			n++
		}
		s.mu.Unlock()
	}
	return n
}

// Len returns the number of sessions held.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.slots)
}

func preview(s string) string {
	r := []rune(s)
	if len(r) > previewLen {
		r = r[:previewLen]
	}
	return string(r)
}

func copyVerdict(v *model.VerifierResult) *model.VerifierResult {
	if v == nil {
		return nil
	}
	c := *v
	c.Reasons = append([]string(nil), v.Reasons...)
	return &c
}
