// Package router turns a free-text question into an ordered execution plan.
package router

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/sells-group/invoice-recon/internal/model"
)

// Strategy names recorded on plans.
const (
	StrategyRule = "rule"
	StrategyLLM  = "llm"
)

// Step argument names.
const (
	ArgInvoiceID = "invoice_id"
	ArgKey       = "key"
	ArgQuery     = "query"
)

// Planner produces a plan for a query. Implementations never fail: a
// strategy that cannot produce a plan degrades to the rule plan.
type Planner interface {
	Plan(ctx context.Context, query string) model.Plan
}

type conversationKey struct{}

// WithConversation attaches rendered session history to ctx. Strategies that
// consult a model prepend it to the query.
func WithConversation(ctx context.Context, history string) context.Context {
	if history == "" {
		return ctx
	}
	return context.WithValue(ctx, conversationKey{}, history)
}

// ConversationFrom returns the history attached by WithConversation.
func ConversationFrom(ctx context.Context) string {
	s, _ := ctx.Value(conversationKey{}).(string)
	return s
}

var invoicePattern = regexp.MustCompile(`(?i)INV[- ]?(\d+)`)

// ExtractInvoiceID returns the first invoice identifier in the query in
// canonical "INV-<digits>" form, or "" when there is none. Later candidates
// are ignored.
func ExtractInvoiceID(query string) string {
	m := invoicePattern.FindStringSubmatch(query)
	if m == nil {
		return ""
	}
	return "INV-" + m[1]
}

// IsApproval reports whether the query is an approval follow-up such as
// "approve it".
func IsApproval(query string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(query)), "approve")
}

// SearchQuery is the auxiliary search phrasing for an invoice.
func SearchQuery(invoiceID string) string {
	return fmt.Sprintf("invoice %s matching policy price variance tolerance", invoiceID)
}

// RulePlanner is the deterministic closed-form planner. It never calls out
// to a model.
type RulePlanner struct{}

// NewRulePlanner creates a RulePlanner.
func NewRulePlanner() *RulePlanner { return &RulePlanner{} }

// Plan implements Planner.
func (RulePlanner) Plan(_ context.Context, query string) model.Plan {
	return rulePlan(query)
}

func rulePlan(query string) model.Plan {
	id := ExtractInvoiceID(query)
	if id == "" {
		return model.Plan{
			Strategy: StrategyRule,
			Steps: []model.Step{
				{Action: model.ActionAuxiliary, Args: map[string]string{ArgKey: query, ArgQuery: query}},
				{Action: model.ActionSynthesize},
			},
		}
	}
	return model.Plan{
		InvoiceID: id,
		Strategy:  StrategyRule,
		Steps:     invoiceSteps(id),
	}
}

func invoiceSteps(id string) []model.Step {
	return []model.Step{
		{Action: model.ActionRetrieve, Args: map[string]string{ArgInvoiceID: id}},
		{Action: model.ActionAuxiliary, Args: map[string]string{ArgKey: id, ArgQuery: SearchQuery(id)}},
		{Action: model.ActionVerify},
		{Action: model.ActionSynthesize},
	}
}
