package browser

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/openreach/browserpilot/api/schemas"
)

// Synchronizer is the single choke point for refreshing locally mirrored
// session state. It fetches the session descriptor and the accessibility
// snapshot together and hands them back as a pair, so callers can only ever
// install both or neither; a stale partial tree can never coexist with a
// fresher descriptor.
type Synchronizer struct {
	api    API
	logger *zap.Logger
}

// NewSynchronizer builds a Synchronizer over the given API surface.
func NewSynchronizer(api API, logger *zap.Logger) *Synchronizer {
	return &Synchronizer{api: api, logger: logger.Named("sync")}
}

// Fetch retrieves the current descriptor and accessibility snapshot for a
// session. Either both values are returned or an error is.
func (s *Synchronizer) Fetch(ctx context.Context, sessionID string, includeHidden bool) (*schemas.Session, *schemas.AXTree, error) {
	session, err := s.api.GetSession(ctx, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching session descriptor: %w", err)
	}

	tree, err := s.api.AXTree(ctx, sessionID, includeHidden)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching accessibility tree: %w", err)
	}

	s.logger.Debug("mirrors fetched",
		zap.String("session_id", sessionID),
		zap.String("current_url", session.CurrentURL),
		zap.Int("interactive_elements", len(tree.InteractiveElements)))
	return session, tree, nil
}
