package model

import "time"

// Interaction is one answered query kept in session history.
type Interaction struct {
	Timestamp   time.Time `json:"timestamp"`
	Query       string    `json:"query"`
	InvoiceID   string    `json:"invoice_id,omitempty"`
	Explanation string    `json:"explanation,omitempty"`
}

// SessionState is the follow-up context of one conversation.
type SessionState struct {
	SessionID string          `json:"session_id"`
	InvoiceID string          `json:"invoice_id,omitempty"`
	Verdict   *VerifierResult `json:"verdict,omitempty"`
	History   []Interaction   `json:"history,omitempty"`
}
