// Package planner submits declarative multi-attempt action plans to the
// pilot service and interprets the aggregated execution record. The
// attempt/verify/retry loop itself runs remotely; the client submits once and
// receives one record.
package planner

import (
	"context"

	"go.uber.org/zap"

	"github.com/openreach/browserpilot/api/schemas"
	"github.com/openreach/browserpilot/internal/remote"
)

// API is the plan-execution slice of the service's REST surface.
type API interface {
	ExecutePlan(ctx context.Context, id string, plan schemas.Plan) (*schemas.PlanExecution, error)
}

// State is the mirror owner the executor refreshes after each plan. It also
// holds the error state declarative consumers render, so executor failures
// are mirrored into it as well as returned. *browser.Controller satisfies it.
type State interface {
	SessionID() string
	Refresh(ctx context.Context, includeHidden bool) error
	RecordErr(err error)
}

// Executor runs plans against the session owned by its State.
type Executor struct {
	api           API
	state         State
	logger        *zap.Logger
	includeHidden bool
}

// Option customizes an Executor.
type Option func(*Executor)

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Executor) { e.logger = logger.Named("planner") }
}

// WithIncludeHidden makes the post-plan refresh request hidden elements too.
func WithIncludeHidden(include bool) Option {
	return func(e *Executor) { e.includeHidden = include }
}

// New builds an Executor.
func New(api API, state State, opts ...Option) *Executor {
	e := &Executor{
		api:    api,
		state:  state,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute submits one plan and returns the server's execution record after
// exactly one accessibility refresh, no matter how many attempts the server
// made. A record that violates its own invariants is a ValidationError,
// surfaced distinctly from ordinary remote failures.
func (e *Executor) Execute(ctx context.Context, plan schemas.Plan) (*schemas.PlanExecution, error) {
	e.state.RecordErr(nil)

	sessionID := e.state.SessionID()
	if sessionID == "" {
		return nil, e.fail(remote.NewValidationError("no session attached"))
	}
	if err := validatePlan(plan); err != nil {
		return nil, e.fail(err)
	}

	exec, err := e.api.ExecutePlan(ctx, sessionID, plan)
	if err != nil {
		return nil, e.fail(err)
	}

	e.logger.Info("plan executed",
		zap.String("session_id", sessionID),
		zap.String("action", string(plan.Action)),
		zap.String("target", plan.Target),
		zap.Int("attempts", exec.Attempts),
		zap.Bool("success", exec.Success),
		zap.Bool("recovered", exec.Recovered))

	// One refresh per plan, win or lose.
	refreshErr := e.state.Refresh(ctx, e.includeHidden)

	if err := validateRecord(plan, exec); err != nil {
		return exec, e.fail(err)
	}
	return exec, refreshErr
}

// fail mirrors the error into the state owner for declarative consumers and
// returns it for imperative ones.
func (e *Executor) fail(err error) error {
	e.state.RecordErr(err)
	return err
}

func validatePlan(plan schemas.Plan) error {
	switch plan.Action {
	case schemas.ActionClick, schemas.ActionType, schemas.ActionExtract:
	default:
		return remote.NewValidationError("unsupported plan action %q", plan.Action)
	}
	if plan.Target == "" {
		return remote.NewValidationError("plan has no target")
	}
	if plan.MaxRetries < 0 {
		return remote.NewValidationError("max_retries must not be negative")
	}
	return nil
}

// validateRecord enforces 1 <= attempts <= max_retries+1 and
// recovered implies attempts > 1 and success.
func validateRecord(plan schemas.Plan, exec *schemas.PlanExecution) error {
	maxAttempts := plan.EffectiveMaxRetries() + 1
	if exec.Attempts < 1 || exec.Attempts > maxAttempts {
		return remote.NewValidationError(
			"execution record reports %d attempts, want between 1 and %d", exec.Attempts, maxAttempts)
	}
	if exec.Recovered && (exec.Attempts <= 1 || !exec.Success) {
		return remote.NewValidationError(
			"execution record claims recovery with attempts=%d success=%t", exec.Attempts, exec.Success)
	}
	return nil
}
