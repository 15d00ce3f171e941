package service

import (
	"context"
	"testing"
	"time"

	"github.com/crabzie/workspace-fleet/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHighlightService_Channels(t *testing.T) {
	tests := []struct {
		name        string
		req         HighlightRequest
		wantChannel string
	}{
		{"workspace scoped", HighlightRequest{NodeIDs: []string{"a", "b"}, WorkspaceID: "W", Depth: 1}, "workspace-W"},
		{"global", HighlightRequest{NodeIDs: []string{"a"}}, domain.GraphHighlightChannel},
		{"blank workspace is global", HighlightRequest{NodeIDs: []string{"a"}, WorkspaceID: "  "}, domain.GraphHighlightChannel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &recordingBroadcaster{}
			s := NewHighlightService(b, nil, zap.NewNop())
			s.now = func() time.Time { return fixedNow }

			event, err := s.Highlight(context.Background(), tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.req.NodeIDs, event.NodeIDs)
			assert.Equal(t, fixedNow, event.Timestamp)

			events := b.Events()
			require.Len(t, events, 1)
			assert.Equal(t, tt.wantChannel, events[0].Channel)
			assert.Equal(t, domain.EventHighlightNodes, events[0].Name)
		})
	}
}

func TestHighlightService_Validation(t *testing.T) {
	s := NewHighlightService(&recordingBroadcaster{}, nil, zap.NewNop())

	for _, req := range []HighlightRequest{
		{},
		{NodeIDs: []string{}},
		{NodeIDs: []string{"a", " "}},
		{NodeIDs: []string{"a"}, Depth: -1},
	} {
		_, err := s.Highlight(context.Background(), req)
		assert.ErrorIs(t, err, domain.ErrValidation)
	}
}

func TestHighlightService_BroadcastFailure(t *testing.T) {
	mirror := &recordingBroadcaster{}
	s := NewHighlightService(&recordingBroadcaster{err: errBroker}, mirror, zap.NewNop())

	_, err := s.Highlight(context.Background(), HighlightRequest{NodeIDs: []string{"a"}})
	assert.ErrorIs(t, err, domain.ErrUpstreamFailure)
	assert.Empty(t, mirror.Events(), "nothing is mirrored when live delivery fails")
}

func TestHighlightService_MirrorFailureIsNotFatal(t *testing.T) {
	live := &recordingBroadcaster{}
	queue := &recordingBroadcaster{err: errBroker}
	s := NewHighlightService(live, queue, zap.NewNop())

	event, err := s.Highlight(context.Background(), HighlightRequest{NodeIDs: []string{"a"}, WorkspaceID: "W"})
	require.NoError(t, err)
	assert.Equal(t, "W", event.WorkspaceID)
	require.Len(t, live.Events(), 1)
	require.Len(t, queue.Events(), 1)
	assert.Equal(t, live.Events()[0], queue.Events()[0])
}
