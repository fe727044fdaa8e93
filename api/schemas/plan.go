package schemas

import "encoding/json"

// ActionKind enumerates the actions a plan may request.
type ActionKind string

const (
	ActionClick   ActionKind = "click"
	ActionType    ActionKind = "type"
	ActionExtract ActionKind = "extract"
)

// DefaultMaxRetries is the effective retry budget when a plan leaves
// MaxRetries unset. It matches the server's documented default.
const DefaultMaxRetries = 3

// Plan is a single declarative multi-attempt action submitted to the server.
// It is an immutable request value; the attempt/verify/retry loop runs
// entirely on the remote side.
type Plan struct {
	Action          ActionKind `json:"action"`
	Target          string     `json:"target"`
	ExpectedOutcome string     `json:"expected_outcome"`
	MaxRetries      int        `json:"max_retries,omitempty"`
}

// EffectiveMaxRetries returns the retry budget the server will apply.
func (p Plan) EffectiveMaxRetries() int {
	if p.MaxRetries > 0 {
		return p.MaxRetries
	}
	return DefaultMaxRetries
}

// PlanStep is one entry of a plan execution's history.
type PlanStep struct {
	Action    ActionKind `json:"action"`
	Target    string     `json:"target"`
	Attempts  int        `json:"attempts"`
	Success   bool       `json:"success"`
	Recovered bool       `json:"recovered"`
	Error     string     `json:"error,omitempty"`
}

// PlanExecution is the aggregated record the server returns for one plan.
// Invariant: Recovered implies Attempts > 1 and Success.
type PlanExecution struct {
	Success   bool         `json:"success"`
	Attempts  int          `json:"attempts"`
	Recovered bool         `json:"recovered"`
	Result    ActionResult `json:"result"`
	History   []PlanStep   `json:"history,omitempty"`
}

// UnmarshalJSON derives Recovered from Attempts and Success when the server
// omits the field. A server that reports the flag explicitly wins.
func (e *PlanExecution) UnmarshalJSON(data []byte) error {
	type alias PlanExecution
	aux := struct {
		*alias
		Recovered *bool `json:"recovered"`
	}{alias: (*alias)(e)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Recovered != nil {
		e.Recovered = *aux.Recovered
	} else {
		e.Recovered = e.Attempts > 1 && e.Success
	}
	return nil
}
