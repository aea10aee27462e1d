package pipeline

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/sells-group/invoice-recon/internal/model"
)

// recall returns the session's last invoice and verdict. A session unknown
// to this process is restored from the last verdict in its audit trail.
func (p *Pipeline) recall(sessionID string) (string, *model.VerifierResult, bool) {
	if id, v, ok := p.memory.Recall(sessionID); ok {
		return id, v, true
	}

	entries, err := p.trail.Read(sessionID)
	if err != nil {
		zap.L().Warn("pipeline: read audit for recall", zap.String("session_id", sessionID), zap.Error(err))
		return "", nil, false
	}
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.Stage != model.StageVerify {
			continue
		}
		id, v := verdictFromEntry(e)
		if id == "" || v == nil {
			continue
		}
		p.memory.Remember(sessionID, id, v)
		return id, v, true
	}
	return "", nil, false
}

func verdictFromEntry(e model.AuditEntry) (string, *model.VerifierResult) {
	in, _ := e.Input.(json.RawMessage)
	out, _ := e.Output.(json.RawMessage)
	if in == nil || out == nil {
		return "", nil
	}

	var input struct {
		InvoiceID string `json:"invoice_id"`
	}
	var output struct {
		Verdict *model.VerifierResult `json:"verdict"`
	}
	if json.Unmarshal(in, &input) != nil || json.Unmarshal(out, &output) != nil {
		return "", nil
	}
	return input.InvoiceID, output.Verdict
}
