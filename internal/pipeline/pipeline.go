// Package pipeline wires the router, evidence assembler, verifier and
// collaborators into the request flow, recording every stage in the audit
// trail.
package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/invoice-recon/internal/audit"
	"github.com/sells-group/invoice-recon/internal/auxiliary"
	"github.com/sells-group/invoice-recon/internal/evidence"
	"github.com/sells-group/invoice-recon/internal/model"
	"github.com/sells-group/invoice-recon/internal/router"
	"github.com/sells-group/invoice-recon/internal/session"
	"github.com/sells-group/invoice-recon/internal/store"
	"github.com/sells-group/invoice-recon/internal/synthesis"
	"github.com/sells-group/invoice-recon/internal/verify"
)

// Deps are the collaborators of a Pipeline. Trail and Assembler are
// required; a nil Store keeps runs and approvals in memory.
type Deps struct {
	Planner       router.Planner
	Assembler     *evidence.Assembler
	Verifier      *verify.Verifier
	Auxiliary     auxiliary.Provider
	Synthesizer   synthesis.Synthesizer
	Trail         *audit.Trail
	Memory        *session.Memory
	Store         store.Store
	ContextWindow int
}

// Pipeline handles reconciliation queries and approval requests. It is safe
// for concurrent use across sessions.
type Pipeline struct {
	planner       router.Planner
	assembler     *evidence.Assembler
	verifier      *verify.Verifier
	aux           auxiliary.Provider
	synth         synthesis.Synthesizer
	trail         *audit.Trail
	memory        *session.Memory
	store         store.Store
	contextWindow int
	now           func() time.Time
}

// New creates a Pipeline. Missing optional collaborators get offline
// defaults.
func New(d Deps) *Pipeline {
	p := &Pipeline{
		planner:       d.Planner,
		assembler:     d.Assembler,
		verifier:      d.Verifier,
		aux:           d.Auxiliary,
		synth:         d.Synthesizer,
		trail:         d.Trail,
		memory:        d.Memory,
		store:         d.Store,
		contextWindow: d.ContextWindow,
		now:           func() time.Time { return time.Now().UTC() },
	}
	if p.planner == nil {
		p.planner = router.NewRulePlanner()
	}
	if p.verifier == nil {
		p.verifier = verify.New(verify.DefaultPolicy())
	}
	if p.aux == nil {
		p.aux = auxiliary.None{}
	}
	if p.synth == nil {
		p.synth = synthesis.Fallback{}
	}
	if p.memory == nil {
		p.memory = session.New(0)
	}
	if p.store == nil {
		p.store = store.NewMemory()
	}
	return p
}

// PruneIdle drops session memory and audit file state untouched since
// before cutoff. Approval context of a pruned session is restored from its
// audit trail on demand.
func (p *Pipeline) PruneIdle(cutoff time.Time) (sessions, files int) {
	sessions = p.memory.Prune(cutoff)
	if p.trail != nil {
		files = p.trail.Prune(cutoff)
	}
	return sessions, files
}

// Memory returns the session memory.
func (p *Pipeline) Memory() *session.Memory { return p.memory }

// Trail returns the audit trail.
func (p *Pipeline) Trail() *audit.Trail { return p.trail }

// Store returns the run and approval store.
func (p *Pipeline) Store() store.Store { return p.store }

// stageLog records stages for one request and logs their duration.
type stageLog struct {
	audit *audit.Session
	log   *zap.Logger
	start time.Time
}

func (p *Pipeline) begin(sessionID string) (*stageLog, error) {
	if p.trail == nil {
		return nil, eris.New("pipeline: no audit trail configured")
	}
	if !audit.ValidSessionID(sessionID) {
		return nil, eris.Wrapf(audit.ErrInvalidSession, "pipeline: session %q", sessionID)
	}
	return &stageLog{
		audit: p.trail.Session(sessionID),
		log:   zap.L().With(zap.String("session_id", sessionID)),
		start: time.Now(),
	}, nil
}

func (s *stageLog) record(stage string, input, output any) error {
	if err := s.audit.Log(stage, input, output); err != nil {
		return eris.Wrapf(err, "pipeline: audit %s", stage)
	}
	s.log.Debug("pipeline: stage recorded",
		zap.String("stage", stage),
		zap.Int64("elapsed_ms", time.Since(s.start).Milliseconds()),
	)
	return nil
}

// Handle answers one query for a session. Only record-store and audit
// failures are returned as errors; collaborator failures degrade to
// fallbacks.
func (p *Pipeline) Handle(ctx context.Context, sessionID, query string) (*model.Answer, error) {
	sl, err := p.begin(sessionID)
	if err != nil {
		return nil, err
	}
	if err := sl.record(model.StageQuery, map[string]string{"query": query}, nil); err != nil {
		return nil, err
	}

	if router.IsApproval(query) {
		resp, err := p.approve(ctx, sl, sessionID, "")
		if err != nil {
			return nil, err
		}
		return &model.Answer{
			SessionID:    sessionID,
			InvoiceID:    resp.InvoiceID,
			Explanation:  resp.Message,
			Approval:     resp,
			AuditLogPath: resp.AuditLogPath,
		}, nil
	}

	planCtx := router.WithConversation(ctx, p.memory.Context(sessionID, p.contextWindow))
	plan := p.planner.Plan(planCtx, query)
	if err := sl.record(model.StagePlan, map[string]string{"query": query}, plan); err != nil {
		return nil, err
	}

	invoiceID := plan.InvoiceID
	reconcile := invoiceID != "" && (plan.Has(model.ActionRetrieve) || plan.Has(model.ActionVerify))
	verifying := reconcile && plan.Has(model.ActionVerify)

	var ev model.Evidence
	if reconcile {
		if p.assembler == nil {
			return nil, eris.New("pipeline: no record store configured")
		}
		ev, err = p.assembler.Assemble(ctx, invoiceID)
		if err != nil {
			sl.log.Error("pipeline: retrieve failed", zap.String("invoice_id", invoiceID), zap.Error(err))
			return nil, eris.Wrap(err, "pipeline: retrieve")
		}
		if err := sl.record(model.StageRetrieve,
			map[string]string{"invoice_id": invoiceID},
			map[string]any{"counts": ev.Counts(), "sources": ev.Sources},
		); err != nil {
			return nil, err
		}
	}

	var signals []model.Signal
	if plan.Has(model.ActionAuxiliary) {
		q := auxiliary.Query{
			Key:  plan.Arg(model.ActionAuxiliary, router.ArgKey),
			Text: plan.Arg(model.ActionAuxiliary, router.ArgQuery),
		}
		signals = p.aux.Lookup(ctx, q)
		if err := sl.record(model.StageAuxiliary, q, map[string]any{"results": signals}); err != nil {
			return nil, err
		}
		if reconcile {
			ev = evidence.AttachAuxiliary(ev, signals)
		}
	}

	var verdict *model.VerifierResult
	if verifying {
		res, sig := p.verifier.Analyze(ev)
		verdict = &res
		if err := sl.record(model.StageVerify,
			map[string]any{"invoice_id": invoiceID, "counts": ev.Counts()},
			map[string]any{"verdict": res, "signals": sig},
		); err != nil {
			return nil, err
		}
	} else {
		if err := sl.record(model.StageVerify, nil, map[string]bool{"skipped": true}); err != nil {
			return nil, err
		}
	}

	var summary *model.EvidenceSummary
	if reconcile {
		s := ev.Summary()
		summary = &s
	} else if len(signals) > 0 {
		summary = &model.EvidenceSummary{Auxiliary: signals}
	}

	explanation := p.synth.Render(ctx, query, summary, verdict)
	if err := sl.record(model.StageSynthesize,
		map[string]any{"query": query, "verdict": verdict},
		map[string]int{"len": len(explanation)},
	); err != nil {
		return nil, err
	}

	if invoiceID != "" && verdict != nil {
		p.memory.Remember(sessionID, invoiceID, verdict)
	}
	p.memory.Record(sessionID, model.Interaction{
		Timestamp:   p.now(),
		Query:       query,
		InvoiceID:   invoiceID,
		Explanation: explanation,
	})

	ans := &model.Answer{
		SessionID:    sessionID,
		InvoiceID:    invoiceID,
		Explanation:  explanation,
		Evidence:     summary,
		Verdict:      verdict,
		Plan:         plan,
		AuditLogPath: sl.audit.Path(),
	}
	if verdict != nil {
		ans.MatchScore = verdict.MatchScore
		ans.VerifierConfidence = verdict.Confidence
	}

	run := &model.Run{
		SessionID:   sessionID,
		Query:       query,
		InvoiceID:   invoiceID,
		Verdict:     verdict,
		Explanation: explanation,
	}
	if err := p.store.SaveRun(ctx, run); err != nil {
		sl.log.Warn("pipeline: failed to save run", zap.Error(err))
	} else {
		ans.RunID = run.ID
	}

	sl.log.Info("pipeline: query handled",
		zap.String("invoice_id", invoiceID),
		zap.String("strategy", plan.Strategy),
		zap.Bool("flagged", verdict != nil && verdict.Flagged),
		zap.Int64("duration_ms", time.Since(sl.start).Milliseconds()),
	)
	return ans, nil
}

func normalizeInvoiceID(id string) string {
	id = strings.TrimSpace(id)
	if canon := router.ExtractInvoiceID(id); canon != "" {
		return canon
	}
	return strings.ToUpper(id)
}
