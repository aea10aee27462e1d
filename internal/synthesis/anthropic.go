package synthesis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/invoice-recon/internal/model"
	"github.com/sells-group/invoice-recon/internal/resilience"
	"github.com/sells-group/invoice-recon/pkg/anthropic"
)

const systemPrompt = "You are an accounts payable assistant. Answer briefly (120-200 words) " +
	"and always include a 'Sources' section listing dataset names and row indices provided."

// Anthropic renders answers with Claude and falls back to the template on
// any failure.
type Anthropic struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	guard     *resilience.Guard
}

// NewAnthropic creates an Anthropic synthesizer. guard may be nil.
func NewAnthropic(client anthropic.Client, model string, maxTokens int64, guard *resilience.Guard) *Anthropic {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Anthropic{client: client, model: model, maxTokens: maxTokens, guard: guard}
}

// Render implements Synthesizer.
func (a *Anthropic) Render(ctx context.Context, query string, summary *model.EvidenceSummary, verdict *model.VerifierResult) string {
	text, err := a.render(ctx, query, summary, verdict)
	if err != nil || strings.TrimSpace(text) == "" {
		zap.L().Warn("synthesis: model unavailable, using template",
			zap.String("model", a.model),
			zap.Error(err),
		)
		return Fallback{}.Render(ctx, query, summary, verdict)
	}
	if summary != nil && summary.Sources != "" && !strings.Contains(text, "Sources") {
		text += "\n\nSources: " + summary.Sources
	}
	return text
}

func (a *Anthropic) render(ctx context.Context, query string, summary *model.EvidenceSummary, verdict *model.VerifierResult) (string, error) {
	prompt, err := userPrompt(query, summary, verdict)
	if err != nil {
		return "", err
	}

	temp := 0.2
	req := anthropic.MessageRequest{
		Model:       a.model,
		MaxTokens:   a.maxTokens,
		System:      anthropic.BuildCachedSystemBlocks(systemPrompt),
		Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
		Temperature: &temp,
	}

	call := func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return a.client.CreateMessage(ctx, req)
	}
	var resp *anthropic.MessageResponse
	if a.guard != nil {
		resp, err = resilience.Call(ctx, a.guard, call)
	} else {
		resp, err = call(ctx)
	}
	if err != nil {
		return "", err
	}
	resp.Usage.LogCost(a.model, model.StageSynthesize)
	return strings.TrimSpace(resp.Text()), nil
}

func userPrompt(query string, summary *model.EvidenceSummary, verdict *model.VerifierResult) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\n", query)
	if verdict != nil {
		fmt.Fprintf(&b, "Verifier flagged: %t | match_score=%.2f | confidence=%.2f\nReasons: %s\n\n",
			verdict.Flagged, verdict.MatchScore, verdict.Confidence, strings.Join(verdict.Reasons, "; "))
	} else {
		b.WriteString("No invoice was reconciled for this question.\n\n")
	}
	if summary != nil {
		data, err := json.Marshal(summary)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "Evidence (summarized): %s", data)
	}
	return b.String(), nil
}
