package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/crabzie/workspace-fleet/internal/core/domain"
	"github.com/crabzie/workspace-fleet/internal/core/port"
	"go.uber.org/zap"
)

// HighlightRequest is the body of a graph highlight webhook
type HighlightRequest struct {
	NodeIDs     []string `json:"node_ids"`
	WorkspaceID string   `json:"workspace_id"`
	Depth       int      `json:"depth"`
	Title       string   `json:"title"`
}

// Validate requires at least one node id and rejects blank ones
func (r HighlightRequest) Validate() error {
	if len(r.NodeIDs) == 0 {
		return fmt.Errorf("%w: node_ids must be a non-empty array", domain.ErrValidation)
	}
	for _, id := range r.NodeIDs {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("%w: node_ids must not contain blank ids", domain.ErrValidation)
		}
	}
	if r.Depth < 0 {
		return fmt.Errorf("%w: depth must not be negative", domain.ErrValidation)
	}
	return nil
}

// HighlightService relays knowledge-graph highlights to real-time subscribers
type HighlightService struct {
	live   port.Broadcaster
	mirror port.Broadcaster
	now    func() time.Time
	log    *zap.Logger
}

// NewHighlightService delivers highlights through live. mirror, when not nil,
// receives a copy (the event queue) whose failures are only logged.
func NewHighlightService(live, mirror port.Broadcaster, log *zap.Logger) *HighlightService {
	if log == nil {
		log = zap.NewNop()
	}
	return &HighlightService{
		live:   live,
		mirror: mirror,
		now:    time.Now,
		log:    log,
	}
}

// Highlight broadcasts the nodes to the workspace channel, or to the global
// graph channel when no workspace is given. Only a failed live delivery is
// returned, as ErrUpstreamFailure.
func (s *HighlightService) Highlight(ctx context.Context, req HighlightRequest) (*domain.HighlightEvent, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	channel := domain.GraphHighlightChannel
	workspaceID := strings.TrimSpace(req.WorkspaceID)
	if workspaceID != "" {
		channel = domain.WorkspaceChannel(workspaceID)
	}

	event := domain.HighlightEvent{
		NodeIDs:     append([]string(nil), req.NodeIDs...),
		WorkspaceID: workspaceID,
		Depth:       req.Depth,
		Title:       req.Title,
		Timestamp:   s.now().UTC(),
	}

	msg := domain.Event{
		Channel: channel,
		Name:    domain.EventHighlightNodes,
		Payload: event,
	}
	if err := s.live.Broadcast(ctx, msg); err != nil {
		s.log.Error("Failed to broadcast graph highlight", zap.String("channel", channel), zap.Error(err))
		return nil, fmt.Errorf("%w: broadcast highlight: %v", domain.ErrUpstreamFailure, err)
	}
	if s.mirror != nil {
		if err := s.mirror.Broadcast(ctx, msg); err != nil {
			s.log.Warn("Failed to mirror graph highlight", zap.String("channel", channel), zap.Error(err))
		}
	}

	s.log.Debug("Graph highlight broadcast",
		zap.String("channel", channel),
		zap.Int("nodes", len(event.NodeIDs)))
	return &event, nil
}
