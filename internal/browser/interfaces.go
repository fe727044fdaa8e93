package browser

import (
	"context"

	"github.com/openreach/browserpilot/api/schemas"
)

// API is the slice of the pilot service's REST surface the controller needs.
// *remote.Client satisfies it; tests substitute a mock.
type API interface {
	CreateSession(ctx context.Context, opts schemas.CreateSessionOptions) (*schemas.Session, error)
	GetSession(ctx context.Context, id string) (*schemas.Session, error)
	DeleteSession(ctx context.Context, id string) error
	Navigate(ctx context.Context, id string, req schemas.NavigateRequest) error
	AXTree(ctx context.Context, id string, includeHidden bool) (*schemas.AXTree, error)
	Click(ctx context.Context, id string, req schemas.ClickRequest) (*schemas.ActionResult, error)
	TypeText(ctx context.Context, id string, req schemas.TypeRequest) (*schemas.ActionResult, error)
	Extract(ctx context.Context, id string, req schemas.ExtractRequest) (*schemas.ActionResult, error)
	ExecutePlan(ctx context.Context, id string, plan schemas.Plan) (*schemas.PlanExecution, error)
}
