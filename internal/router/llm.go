package router

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/invoice-recon/internal/model"
	"github.com/sells-group/invoice-recon/pkg/anthropic"
)

const plannerPrompt = `You are the query planner of an invoice three-way matching system.
Decide which steps answer the user's question. Available actions:
- retrieve: load invoice, purchase order and receipt lines for an invoice
- auxiliary: look up vendor and compliance signals
- verify: reconcile the invoice against its purchase orders and receipts
- synthesize: write the answer (always last)
Respond with JSON only: {"steps": [{"action": "retrieve"}, ...]}`

// LLMPlanner asks Anthropic for the step sequence and validates it. The
// invoice identifier and every step argument are always derived by the rule
// extractor. Any failure falls back to the rule plan.
type LLMPlanner struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewLLMPlanner creates an LLMPlanner.
func NewLLMPlanner(client anthropic.Client, model string, maxTokens int64) *LLMPlanner {
	if maxTokens <= 0 {
		maxTokens = 256
	}
	return &LLMPlanner{client: client, model: model, maxTokens: maxTokens}
}

// Plan implements Planner.
func (p *LLMPlanner) Plan(ctx context.Context, query string) model.Plan {
	plan, err := p.plan(ctx, query)
	if err != nil {
		zap.L().Warn("router: llm plan rejected, using rule plan",
			zap.String("query", query),
			zap.Error(err),
		)
		return rulePlan(query)
	}
	return plan
}

func (p *LLMPlanner) plan(ctx context.Context, query string) (model.Plan, error) {
	temp := 0.0
	resp, err := p.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       p.model,
		MaxTokens:   p.maxTokens,
		System:      anthropic.BuildCachedSystemBlocks(plannerPrompt),
		Messages:    []anthropic.Message{{Role: "user", Content: ConversationFrom(ctx) + query}},
		Temperature: &temp,
	})
	if err != nil {
		return model.Plan{}, eris.Wrap(err, "router: plan request")
	}
	resp.Usage.LogCost(p.model, "plan")

	actions, err := parseActions(resp.Text())
	if err != nil {
		return model.Plan{}, err
	}
	return buildPlan(query, actions)
}

type llmPlan struct {
	Steps []struct {
		Action string `json:"action"`
	} `json:"steps"`
}

// parseActions extracts the action list from the first JSON object in text.
func parseActions(text string) ([]model.Action, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, eris.New("router: no JSON object in plan response")
	}

	var raw llmPlan
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return nil, eris.Wrap(err, "router: decode plan")
	}
	if len(raw.Steps) == 0 {
		return nil, eris.New("router: empty plan")
	}

	actions := make([]model.Action, 0, len(raw.Steps))
	for _, s := range raw.Steps {
		a := model.Action(strings.ToLower(strings.TrimSpace(s.Action)))
		if !a.Valid() {
			return nil, eris.Errorf("router: unknown action %q", s.Action)
		}
		actions = append(actions, a)
	}
	return actions, nil
}

// buildPlan validates the proposed actions against the rule-extracted
// invoice id and attaches deterministic arguments.
func buildPlan(query string, actions []model.Action) (model.Plan, error) {
	if actions[len(actions)-1] != model.ActionSynthesize {
		return model.Plan{}, eris.New("router: plan must end with synthesize")
	}

	id := ExtractInvoiceID(query)
	seen := make(map[model.Action]bool, len(actions))
	for _, a := range actions {
		if seen[a] {
			return model.Plan{}, eris.Errorf("router: duplicate action %q", a)
		}
		if a == model.ActionVerify && !seen[model.ActionRetrieve] {
			return model.Plan{}, eris.New("router: verify planned before retrieve")
		}
		seen[a] = true
	}

	if seen[model.ActionRetrieve] && !seen[model.ActionVerify] {
		return model.Plan{}, eris.New("router: retrieve planned without verify")
	}
	if id == "" && (seen[model.ActionRetrieve] || seen[model.ActionVerify]) {
		return model.Plan{}, eris.New("router: reconciliation planned without an invoice id")
	}

	plan := model.Plan{InvoiceID: id, Strategy: StrategyLLM}
	for _, a := range actions {
		step := model.Step{Action: a}
		switch a {
		case model.ActionRetrieve:
			step.Args = map[string]string{ArgInvoiceID: id}
		case model.ActionAuxiliary:
			if id != "" {
				step.Args = map[string]string{ArgKey: id, ArgQuery: SearchQuery(id)}
			} else {
				step.Args = map[string]string{ArgKey: query, ArgQuery: query}
			}
		}
		plan.Steps = append(plan.Steps, step)
	}
	return plan, nil
}
