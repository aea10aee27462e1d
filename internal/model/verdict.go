package model

// VerifierResult is the outcome of reconciling one evidence bundle.
type VerifierResult struct {
	Flagged    bool     `json:"flagged"`
	MatchScore float64  `json:"match_score"`
	Confidence float64  `json:"confidence"`
	Reasons    []string `json:"reasons"`
}

// Status returns the label used in explanations.
func (v VerifierResult) Status() string {
	if v.Flagged {
		return "FLAGGED"
	}
	return "OK"
}
