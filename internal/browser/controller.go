package browser

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/openreach/browserpilot/api/schemas"
	"github.com/openreach/browserpilot/internal/remote"
)

// Controller owns the lifecycle of one remote browser session and its local
// mirrors: the session descriptor, the accessibility snapshot, and the action
// history. Mirrors are server-authoritative and always replaced wholesale.
//
// Actions on the same session are not serialized internally; callers must
// await one action before issuing the next, or two refreshes may race and one
// clobber the other's freshness.
type Controller struct {
	api    API
	sync   *Synchronizer
	logger *zap.Logger

	// includeHidden is applied to every implicit refresh.
	includeHidden bool

	mu      sync.Mutex
	session *schemas.Session
	tree    *schemas.AXTree
	history []schemas.ActionResult
	lastErr error
	// epoch is bumped on Close. A refresh started before the bump finds the
	// world changed underneath it and discards its result instead of
	// resurrecting a closed session in the mirrors.
	epoch int
}

// ControllerOption customizes a Controller.
type ControllerOption func(*Controller)

// WithControllerLogger attaches a logger.
func WithControllerLogger(logger *zap.Logger) ControllerOption {
	return func(c *Controller) { c.logger = logger.Named("browser") }
}

// WithIncludeHidden makes every implicit refresh request hidden elements too.
func WithIncludeHidden(include bool) ControllerOption {
	return func(c *Controller) { c.includeHidden = include }
}

// NewController builds a Controller with no session attached.
func NewController(api API, opts ...ControllerOption) *Controller {
	c := &Controller{
		api:    api,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.sync = NewSynchronizer(api, c.logger)
	return c
}

// -- Mirror accessors --

// Session returns a copy of the mirrored descriptor, or nil when no session
// is attached.
func (c *Controller) Session() *schemas.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	session := *c.session
	return &session
}

// Tree returns the mirrored accessibility snapshot, or nil before the first
// refresh. The snapshot is replaced, never mutated, so it is safe to read.
func (c *Controller) Tree() *schemas.AXTree {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tree
}

// History returns a copy of the recorded action results, oldest first.
func (c *Controller) History() []schemas.ActionResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]schemas.ActionResult, len(c.history))
	copy(out, c.history)
	return out
}

// LastErr returns the error state from the most recent operation, for
// declarative consumers. It is cleared at the start of every operation.
func (c *Controller) LastErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// RecordErr stores err in the controller's error state for declarative
// consumers. Collaborators that run operations against the session, like the
// plan executor, route their failures through it; nil clears the state.
func (c *Controller) RecordErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = err
}

// SessionID returns the attached session's ID, or "".
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ""
	}
	return c.session.ID
}

// -- Lifecycle --

// Create starts a new remote browser session, installs its descriptor, and
// takes the first accessibility snapshot.
func (c *Controller) Create(ctx context.Context, opts schemas.CreateSessionOptions) (*schemas.Session, error) {
	c.clearErr()

	session, err := c.api.CreateSession(ctx, opts)
	if err != nil {
		return nil, c.fail("create", err)
	}

	c.mu.Lock()
	c.session = session
	c.tree = nil
	c.history = nil
	epoch := c.epoch
	c.mu.Unlock()

	c.logger.Info("browser session created",
		zap.String("session_id", session.ID),
		zap.String("browser_type", opts.BrowserType))

	if err := c.refresh(ctx, epoch); err != nil {
		return session, err
	}
	result := *session
	return &result, nil
}

// Attach adopts an existing remote session by ID and refreshes the mirrors.
func (c *Controller) Attach(ctx context.Context, sessionID string) error {
	c.clearErr()

	session, err := c.api.GetSession(ctx, sessionID)
	if err != nil {
		return c.fail("attach", err)
	}

	c.mu.Lock()
	c.session = session
	c.tree = nil
	c.history = nil
	epoch := c.epoch
	c.mu.Unlock()

	return c.refresh(ctx, epoch)
}

// Close issues the remote close and then unconditionally resets every local
// mirror, win or lose: a closed session must never appear live in the UI.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		return nil
	}

	closeErr := c.api.DeleteSession(ctx, session.ID)

	c.mu.Lock()
	c.epoch++
	c.session = nil
	c.tree = nil
	c.history = nil
	c.lastErr = closeErr
	c.mu.Unlock()

	if closeErr != nil {
		c.logger.Warn("remote close failed, local state reset anyway",
			zap.String("session_id", session.ID), zap.Error(closeErr))
		return closeErr
	}
	c.logger.Info("browser session closed", zap.String("session_id", session.ID))
	return nil
}

// -- Actions --

// Navigate points the session at a new URL and refreshes both mirrors.
func (c *Controller) Navigate(ctx context.Context, req schemas.NavigateRequest) error {
	c.clearErr()
	sessionID, epoch, err := c.requireSession()
	if err != nil {
		return err
	}

	if err := c.api.Navigate(ctx, sessionID, req); err != nil {
		return c.fail("navigate", err)
	}
	c.logger.Debug("navigated", zap.String("session_id", sessionID), zap.String("url", req.URL))
	return c.refresh(ctx, epoch)
}

// Click performs a click and refreshes the mirrors afterward regardless of
// the result's success flag. The result is recorded in the action history.
func (c *Controller) Click(ctx context.Context, selector string, verify bool) (*schemas.ActionResult, error) {
	c.clearErr()
	sessionID, epoch, err := c.requireSession()
	if err != nil {
		return nil, err
	}

	result, err := c.api.Click(ctx, sessionID, schemas.ClickRequest{Selector: selector, Verify: verify})
	if err != nil {
		return nil, c.fail("click", err)
	}
	c.record(*result)

	if err := c.refresh(ctx, epoch); err != nil {
		return result, err
	}
	return result, nil
}

// TypeText types into an element and refreshes the mirrors afterward
// regardless of the result's success flag.
func (c *Controller) TypeText(ctx context.Context, selector, text string, clearFirst bool) (*schemas.ActionResult, error) {
	c.clearErr()
	sessionID, epoch, err := c.requireSession()
	if err != nil {
		return nil, err
	}

	result, err := c.api.TypeText(ctx, sessionID, schemas.TypeRequest{
		Selector:   selector,
		Text:       text,
		ClearFirst: clearFirst,
	})
	if err != nil {
		return nil, c.fail("type", err)
	}
	c.record(*result)

	if err := c.refresh(ctx, epoch); err != nil {
		return result, err
	}
	return result, nil
}

// Extract reads from the page without mutating it; the result is recorded
// but no refresh runs.
func (c *Controller) Extract(ctx context.Context, selector string) (*schemas.ActionResult, error) {
	c.clearErr()
	sessionID, _, err := c.requireSession()
	if err != nil {
		return nil, err
	}

	result, err := c.api.Extract(ctx, sessionID, schemas.ExtractRequest{Selector: selector})
	if err != nil {
		return nil, c.fail("extract", err)
	}
	c.record(*result)
	return result, nil
}

// Refresh re-fetches the session descriptor and accessibility snapshot and
// replaces both mirrors as a single state update.
func (c *Controller) Refresh(ctx context.Context, includeHidden bool) error {
	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return remote.NewValidationError("no session attached")
	}
	epoch := c.epoch
	c.mu.Unlock()
	return c.refreshWith(ctx, epoch, includeHidden)
}

// -- Internals --

func (c *Controller) refresh(ctx context.Context, epoch int) error {
	return c.refreshWith(ctx, epoch, c.includeHidden)
}

func (c *Controller) refreshWith(ctx context.Context, epoch int, includeHidden bool) error {
	c.mu.Lock()
	if c.session == nil || epoch != c.epoch {
		c.mu.Unlock()
		return nil
	}
	sessionID := c.session.ID
	c.mu.Unlock()

	session, tree, err := c.sync.Fetch(ctx, sessionID, includeHidden)
	if err != nil {
		return c.fail("refresh", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch {
		// The session was closed while the fetch was in flight; applying
		// this response would resurrect dead state.
		c.logger.Debug("discarding stale refresh", zap.String("session_id", sessionID))
		return nil
	}
	c.session = session
	c.tree = tree
	return nil
}

// requireSession snapshots the current session ID and epoch, or reports a
// ValidationError when no session is attached.
func (c *Controller) requireSession() (string, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		err := remote.NewValidationError("no session attached")
		c.lastErr = err
		return "", 0, err
	}
	return c.session.ID, c.epoch, nil
}

func (c *Controller) record(result schemas.ActionResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, result)
}

func (c *Controller) clearErr() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = nil
}

// fail records the error state for declarative consumers and returns the
// same error for imperative ones.
func (c *Controller) fail(op string, err error) error {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
	c.logger.Warn("browser operation failed", zap.String("op", op), zap.Error(err))
	return err
}
