package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/invoice-recon/internal/model"
	"github.com/sells-group/invoice-recon/internal/store"
)

// Policy is attached to every recorded approval request.
const Policy = "Human-in-the-loop required for financial actions."

// GuidanceMessage answers an approval request in a session with no verdict.
const GuidanceMessage = "No prior invoice context to approve. Ask 'Why was invoice INV-123 flagged?' first."

var (
	// ErrNoApproval is returned when confirming an unknown approval.
	ErrNoApproval = eris.New("pipeline: approval not found")
	// ErrConfirmerRequired is returned when a confirmation names no one.
	ErrConfirmerRequired = eris.New("pipeline: confirmer required")
)

// Approve records a request to approve the invoice last reconciled in the
// session. invoiceID may be empty; when given it must match the session's
// invoice. The request never takes effect until Confirm is called.
func (p *Pipeline) Approve(ctx context.Context, sessionID, invoiceID string) (*model.ApprovalResponse, error) {
	sl, err := p.begin(sessionID)
	if err != nil {
		return nil, err
	}
	return p.approve(ctx, sl, sessionID, invoiceID)
}

func (p *Pipeline) approve(ctx context.Context, sl *stageLog, sessionID, requested string) (*model.ApprovalResponse, error) {
	if requested != "" {
		requested = normalizeInvoiceID(requested)
	}
	recalled, verdict, ok := p.recall(sessionID)

	resp := &model.ApprovalResponse{
		SessionID:            sessionID,
		RequiresConfirmation: true,
		AuditLogPath:         sl.audit.Path(),
	}

	if !ok || verdict == nil || (requested != "" && requested != recalled) {
		resp.InvoiceID = requested
		resp.Message = GuidanceMessage
		if ok && requested != "" {
			resp.Message = fmt.Sprintf("No verdict for %s in this session. Ask 'Why was invoice %s flagged?' first.", requested, requested)
		}
		if err := sl.record(model.StageFollowup,
			map[string]string{"invoice_id": requested},
			map[string]string{"message": resp.Message},
		); err != nil {
			return nil, err
		}
		sl.log.Info("pipeline: approval without context", zap.String("invoice_id", requested))
		return resp, nil
	}

	conf := verdict.Confidence
	a := &model.Approval{
		SessionID:       sessionID,
		InvoiceID:       recalled,
		PriorConfidence: &conf,
	}
	if err := p.store.CreateApproval(ctx, a); err != nil {
		return nil, eris.Wrapf(err, "pipeline: record approval for %s", recalled)
	}

	resp.InvoiceID = recalled
	resp.ApprovalID = a.ID
	resp.Message = fmt.Sprintf("Request to approve %s recorded. Human confirmation required per policy.", recalled)
	resp.Policy = Policy
	resp.PriorConfidence = &conf
	resp.Approval = a

	if err := sl.record(model.StageApprove, map[string]string{"invoice_id": recalled}, resp); err != nil {
		return nil, err
	}
	sl.log.Info("pipeline: approval requested",
		zap.String("invoice_id", recalled),
		zap.String("approval_id", a.ID),
		zap.Bool("flagged", verdict.Flagged),
	)
	return resp, nil
}

// Confirm is the explicit human step that completes an approval request.
func (p *Pipeline) Confirm(ctx context.Context, approvalID, by string) (*model.Approval, error) {
	by = strings.TrimSpace(by)
	if by == "" {
		return nil, ErrConfirmerRequired
	}

	a, err := p.store.GetApproval(ctx, approvalID)
	if eris.Is(err, store.ErrNotFound) {
		return nil, eris.Wrapf(ErrNoApproval, "pipeline: approval %s", approvalID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load approval")
	}

	sl, err := p.begin(a.SessionID)
	if err != nil {
		return nil, err
	}

	confirmed, err := p.store.ConfirmApproval(ctx, approvalID, by)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: confirm approval %s", approvalID)
	}

	if err := sl.record(model.StageConfirm,
		map[string]string{"approval_id": approvalID, "confirmed_by": by},
		confirmed,
	); err != nil {
		return nil, err
	}
	sl.log.Info("pipeline: approval confirmed",
		zap.String("invoice_id", confirmed.InvoiceID),
		zap.String("approval_id", approvalID),
		zap.String("confirmed_by", by),
	)
	return confirmed, nil
}
