// Package synthesis writes the natural-language answer for a reconciled
// invoice. Any model failure degrades to a fixed template.
package synthesis

import (
	"context"
	"fmt"
	"strings"

	"github.com/sells-group/invoice-recon/internal/model"
)

// NoInvoiceText answers queries that reference no invoice.
const NoInvoiceText = "No specific invoice analysis performed. Try asking about a specific invoice ID (e.g., 'Why was invoice INV-123 flagged?')"

// Synthesizer renders the answer to a query. Implementations never fail.
// summary and verdict are nil when no invoice was reconciled.
type Synthesizer interface {
	Render(ctx context.Context, query string, summary *model.EvidenceSummary, verdict *model.VerifierResult) string
}

// Fallback renders the fixed template.
type Fallback struct{}

// Render implements Synthesizer.
func (Fallback) Render(_ context.Context, _ string, summary *model.EvidenceSummary, verdict *model.VerifierResult) string {
	if verdict == nil || summary == nil {
		var signals []model.Signal
		if summary != nil {
			signals = summary.Auxiliary
		}
		return NoInvoiceAnswer(signals)
	}
	return FallbackText(*verdict, summary.Sources)
}

// FallbackText is the template explanation of a verdict.
func FallbackText(v model.VerifierResult, sources string) string {
	reasons := "No variance detected."
	if len(v.Reasons) > 0 {
		reasons = strings.Join(v.Reasons, "; ")
	}
	return fmt.Sprintf("Invoice status: %s\nMatch score: %.2f, Verifier confidence: %.2f\nReasons: %s\n\nSources: %s",
		v.Status(), v.MatchScore, v.Confidence, reasons, sources)
}

// NoInvoiceAnswer lists any auxiliary signals after the no-invoice notice.
func NoInvoiceAnswer(signals []model.Signal) string {
	if len(signals) == 0 {
		return NoInvoiceText
	}
	var b strings.Builder
	b.WriteString(NoInvoiceText)
	b.WriteString("\n\nRelated signals:")
	for _, s := range signals {
		fmt.Fprintf(&b, "\n- %s", s.Title)
		if s.Reference != "" {
			fmt.Fprintf(&b, " (%s)", s.Reference)
		}
	}
	return b.String()
}
