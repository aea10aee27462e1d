package model

// Action is a single step kind in an execution plan.
type Action string

const (
	ActionRetrieve   Action = "retrieve"
	ActionAuxiliary  Action = "auxiliary"
	ActionVerify     Action = "verify"
	ActionSynthesize Action = "synthesize"
)

// Valid reports whether a is one of the known plan actions.
func (a Action) Valid() bool {
	switch a {
	case ActionRetrieve, ActionAuxiliary, ActionVerify, ActionSynthesize:
		return true
	}
	return false
}

// Step is one ordered step of a plan with its parameters.
type Step struct {
	Action Action            `json:"action"`
	Args   map[string]string `json:"args,omitempty"`
}

// Plan is the ordered execution plan for a query. InvoiceID is empty when the
// query references no invoice.
type Plan struct {
	InvoiceID string `json:"invoice_id,omitempty"`
	Steps     []Step `json:"steps"`
	Strategy  string `json:"strategy,omitempty"`
}

// Has reports whether the plan contains the given action.
func (p Plan) Has(a Action) bool {
	for _, s := range p.Steps {
		if s.Action == a {
			return true
		}
	}
	return false
}

// Arg returns the named argument of the first step with the given action.
func (p Plan) Arg(a Action, name string) string {
	for _, s := range p.Steps {
		if s.Action == a {
			return s.Args[name]
		}
	}
	return ""
}
