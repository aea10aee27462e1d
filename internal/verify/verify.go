// Package verify scores an evidence bundle against the three-way match policy.
package verify

import (
	"fmt"
	"math"

	"github.com/sells-group/invoice-recon/internal/config"
	"github.com/sells-group/invoice-recon/internal/model"
)

// NotFoundReason is the single reason reported when an invoice has no lines.
const NotFoundReason = "Invoice not found in local data"

// NonFiniteReason is reported when amounts produce a NaN or infinite variance.
const NonFiniteReason = "Variance could not be measured from non-finite amounts"

// Policy is the numeric three-way match policy.
type Policy struct {
	// Tolerance is the band each variance signal may reach before the
	// invoice is flagged.
	Tolerance float64

	// Score penalty weights for total, unit price and quantity variance.
	TotalWeight    float64
	PriceWeight    float64
	QuantityWeight float64

	// Epsilon guards every division.
	Epsilon float64

	NotFoundConfidence float64

	// confidence = min(Cap, Base + Slope*min(1, Gain*worst signal))
	ConfidenceBase  float64
	ConfidenceSlope float64
	ConfidenceGain  float64
	ConfidenceCap   float64
}

// DefaultPolicy returns the standard accounts-payable policy.
func DefaultPolicy() Policy {
	return Policy{
		Tolerance:          0.05,
		TotalWeight:        0.5,
		PriceWeight:        0.3,
		QuantityWeight:     0.2,
		Epsilon:            1e-9,
		NotFoundConfidence: 0.9,
		ConfidenceBase:     0.5,
		ConfidenceSlope:    0.4,
		ConfidenceGain:     5,
		ConfidenceCap:      0.95,
	}
}

// PolicyFromConfig builds a Policy from match configuration. Zero values
// fall back to DefaultPolicy, except Tolerance which may legitimately be 0.
func PolicyFromConfig(c config.MatchConfig) Policy {
	p := DefaultPolicy()
	p.Tolerance = c.Tolerance
	if c.TotalWeight > 0 || c.PriceWeight > 0 || c.QuantityWeight > 0 {
		p.TotalWeight = c.TotalWeight
		p.PriceWeight = c.PriceWeight
		p.QuantityWeight = c.QuantityWeight
	}
	if c.Epsilon > 0 {
		p.Epsilon = c.Epsilon
	}
	if c.NotFoundConfidence > 0 {
		p.NotFoundConfidence = c.NotFoundConfidence
	}
	if c.ConfidenceBase > 0 {
		p.ConfidenceBase = c.ConfidenceBase
	}
	if c.ConfidenceSlope > 0 {
		p.ConfidenceSlope = c.ConfidenceSlope
	}
	if c.ConfidenceGain > 0 {
		p.ConfidenceGain = c.ConfidenceGain
	}
	if c.ConfidenceCap > 0 {
		p.ConfidenceCap = c.ConfidenceCap
	}
	return p
}

// Signals are the aggregated discrepancy measurements of one bundle.
type Signals struct {
	TotalVariance    float64 `json:"total_variance"`
	AvgPriceVariance float64 `json:"avg_price_variance"`
	AvgQtyShortfall  float64 `json:"avg_qty_shortfall"`
	InvoiceTotal     float64 `json:"invoice_total"`
	ExpectedTotal    float64 `json:"expected_total"`
	MatchedLines     int     `json:"matched_lines"`
	UnmatchedLines   int     `json:"unmatched_lines"`
	DuplicateKeys    int     `json:"duplicate_keys"`
}

func (s Signals) nonFinite() bool {
	for _, v := range []float64{s.TotalVariance, s.AvgPriceVariance, s.AvgQtyShortfall, s.InvoiceTotal, s.ExpectedTotal} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return true
		}
	}
	return false
}

// zeroNonFinite clears NaN and Inf measurements so the signals stay
// JSON-encodable.
func (s *Signals) zeroNonFinite() {
	for _, v := range []*float64{&s.TotalVariance, &s.AvgPriceVariance, &s.AvgQtyShortfall, &s.InvoiceTotal, &s.ExpectedTotal} {
		if math.IsNaN(*v) || math.IsInf(*v, 0) {
			*v = 0
		}
	}
}

// Verifier reconciles evidence bundles. It holds no mutable state and is
// safe for concurrent use.
type Verifier struct {
	policy Policy
}

// New creates a Verifier with the given policy.
func New(p Policy) *Verifier {
	return &Verifier{policy: p}
}

// Policy returns the verifier's policy.
func (v *Verifier) Policy() Policy { return v.policy }

// Verify scores the evidence and explains the verdict.
func (v *Verifier) Verify(ev model.Evidence) model.VerifierResult {
	res, _ := v.Analyze(ev)
	return res
}

// Analyze is Verify plus the raw discrepancy signals behind the verdict.
func (v *Verifier) Analyze(ev model.Evidence) (model.VerifierResult, Signals) {
	p := v.policy

	if len(ev.InvoiceLines) == 0 {
		return model.VerifierResult{
			Flagged:    true,
			MatchScore: 0.0,
			Confidence: p.NotFoundConfidence,
			Reasons:    []string{NotFoundReason},
		}, Signals{}
	}

	var reasons []string
	var sig Signals

	poIndex, dupReasons := indexPOLines(ev.POLines)
	reasons = append(reasons, dupReasons...)
	sig.DuplicateKeys = len(dupReasons)

	received := make(map[model.LineKey]float64, len(ev.Receipts))
	for _, r := range ev.Receipts {
		received[r.Key()] += r.QuantityReceived
	}

	var priceVarSum, shortfallSum float64
	for _, inv := range ev.InvoiceLines {
		sig.InvoiceTotal += inv.Amount

		po, ok := poIndex[inv.Key()]
		if !ok {
			reasons = append(reasons, fmt.Sprintf("No PO line for item '%s' on %s", inv.Item, inv.PONumber))
			sig.UnmatchedLines++
			continue
		}
		sig.MatchedLines++
		sig.ExpectedTotal += po.Quantity * po.UnitPrice

		priceVar := (inv.UnitPrice - po.UnitPrice) / math.Max(po.UnitPrice, p.Epsilon)
		priceVarSum += math.Abs(priceVar)

		shortfall := (inv.Quantity - received[inv.Key()]) / math.Max(inv.Quantity, p.Epsilon)
		shortfallSum += math.Max(0, shortfall)
	}

	matched := float64(max(sig.MatchedLines, 1))
	sig.AvgPriceVariance = priceVarSum / matched
	sig.AvgQtyShortfall = shortfallSum / matched
	sig.TotalVariance = math.Abs(sig.InvoiceTotal-sig.ExpectedTotal) / math.Max(sig.ExpectedTotal, p.Epsilon)

	penalty := p.TotalWeight*sig.TotalVariance + p.PriceWeight*sig.AvgPriceVariance + p.QuantityWeight*sig.AvgQtyShortfall
	score := clamp01(1 - penalty)

	nonFinite := sig.nonFinite()

	flagged := sig.TotalVariance > p.Tolerance ||
		sig.AvgPriceVariance > p.Tolerance ||
		sig.AvgQtyShortfall > p.Tolerance ||
		nonFinite ||
		len(reasons) > 0

	// A non-finite signal counts as a full breach.
	worst := 1.0
	if !nonFinite {
		worst = math.Min(1, p.ConfidenceGain*math.Max(sig.TotalVariance, math.Max(sig.AvgPriceVariance, sig.AvgQtyShortfall)))
	}
	confidence := math.Min(p.ConfidenceCap, p.ConfidenceBase+p.ConfidenceSlope*worst)
	if math.IsNaN(confidence) || confidence < 0 {
		confidence = 0
	}

	if sig.AvgPriceVariance > p.Tolerance {
		reasons = append(reasons, fmt.Sprintf("Unit price variance avg=%s exceeds tolerance", percent(sig.AvgPriceVariance)))
	}
	if sig.AvgQtyShortfall > p.Tolerance {
		reasons = append(reasons, fmt.Sprintf("Goods receipt shortfall avg=%s vs invoiced quantity", percent(sig.AvgQtyShortfall)))
	}
	if sig.TotalVariance > p.Tolerance {
		reasons = append(reasons, fmt.Sprintf("Total amount variance=%s (invoice vs PO)", percent(sig.TotalVariance)))
	}

	if nonFinite {
		reasons = append(reasons, NonFiniteReason)
		sig.zeroNonFinite()
	}

	return model.VerifierResult{
		Flagged:    flagged,
		MatchScore: score,
		Confidence: confidence,
		Reasons:    reasons,
	}, sig
}

// indexPOLines keys PO lines by (item, PO number). The first line of a
// duplicated key wins; each duplicated key yields one reason.
func indexPOLines(lines []model.POLine) (map[model.LineKey]model.POLine, []string) {
	index := make(map[model.LineKey]model.POLine, len(lines))
	counts := make(map[model.LineKey]int, len(lines))
	var order []model.LineKey

	for _, l := range lines {
		k := l.Key()
		counts[k]++
		if counts[k] == 1 {
			index[k] = l
			continue
		}
		if counts[k] == 2 {
			order = append(order, k)
		}
	}

	reasons := make([]string, 0, len(order))
	for _, k := range order {
		reasons = append(reasons, fmt.Sprintf("Duplicate PO line for item '%s' on %s (%d rows)", k.Item, k.PONumber, counts[k]))
	}
	return index, reasons
}

func percent(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
