package model

import "time"

// Run is a persisted reconciliation request and its outcome.
type Run struct {
	ID          string          `json:"id"`
	SessionID   string          `json:"session_id"`
	Query       string          `json:"query"`
	InvoiceID   string          `json:"invoice_id,omitempty"`
	Verdict     *VerifierResult `json:"verdict,omitempty"`
	Explanation string          `json:"explanation"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ApprovalStatus is the lifecycle state of an approval request.
type ApprovalStatus string

const (
	ApprovalPending   ApprovalStatus = "pending"
	ApprovalConfirmed ApprovalStatus = "confirmed"
)

// Approval is a request to approve an invoice. It has no effect until a
// human confirms it.
type Approval struct {
	ID              string         `json:"id"`
	SessionID       string         `json:"session_id"`
	InvoiceID       string         `json:"invoice_id"`
	Status          ApprovalStatus `json:"status"`
	PriorConfidence *float64       `json:"prior_verifier_confidence,omitempty"`
	RequestedAt     time.Time      `json:"requested_at"`
	ConfirmedBy     string         `json:"confirmed_by,omitempty"`
	ConfirmedAt     *time.Time     `json:"confirmed_at,omitempty"`
}

// Answer is the structured result returned for every query.
type Answer struct {
	SessionID          string            `json:"session_id"`
	RunID              string            `json:"run_id,omitempty"`
	InvoiceID          string            `json:"invoice_id,omitempty"`
	Explanation        string            `json:"explanation"`
	Evidence           *EvidenceSummary  `json:"evidence_summary,omitempty"`
	Verdict            *VerifierResult   `json:"verdict,omitempty"`
	MatchScore         float64           `json:"match_score"`
	VerifierConfidence float64           `json:"verifier_confidence"`
	Plan               Plan              `json:"plan"`
	Approval           *ApprovalResponse `json:"approval,omitempty"`
	AuditLogPath       string            `json:"audit_log_path"`
}

// ApprovalResponse is returned by an approval request. RequiresConfirmation
// is always true.
type ApprovalResponse struct {
	Message              string    `json:"message"`
	SessionID            string    `json:"session_id"`
	InvoiceID            string    `json:"invoice_id,omitempty"`
	ApprovalID           string    `json:"approval_id,omitempty"`
	Policy               string    `json:"policy,omitempty"`
	PriorConfidence      *float64  `json:"prior_verifier_confidence,omitempty"`
	RequiresConfirmation bool      `json:"requires_confirmation"`
	AuditLogPath         string    `json:"audit_log_path"`
	Approval             *Approval `json:"approval,omitempty"`
}
