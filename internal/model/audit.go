package model

import "time"

// Stage names written to the audit trail.
const (
	StageQuery      = "query"
	StagePlan       = "plan"
	StageRetrieve   = "retrieve"
	StageAuxiliary  = "auxiliary"
	StageVerify     = "verify"
	StageSynthesize = "synthesize"
	StageApprove    = "approve"
	StageConfirm    = "confirm"
	StageFollowup   = "followup_error"
)

// AuditEntry is one immutable record of the audit trail.
type AuditEntry struct {
	Timestamp time.Time `json:"ts"`
	SessionID string    `json:"session_id"`
	Stage     string    `json:"type"`
	Input     any       `json:"input,omitempty"`
	Output    any       `json:"output,omitempty"`
}
