package http

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/crabzie/workspace-fleet/internal/core/domain"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidChannel(t *testing.T) {
	tests := []struct {
		channel string
		want    bool
	}{
		{"task-123", true},
		{"workspace-W", true},
		{domain.GraphHighlightChannel, true},
		{"task-", false},
		{"workspace-", false},
		{"admin", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.channel, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidChannel(tt.channel))
		})
	}
}

func wsURL(env *testEnv, query string) string {
	return "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws?" + query
}

func TestEventStream_RelaysChannelEvents(t *testing.T) {
	env := newTestEnv(t)

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(env, "channel=task-T&token="+viewerToken), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	ctx := context.Background()
	require.NoError(t, env.hub.Broadcast(ctx, domain.Event{Channel: "task-other", Name: "noise"}))
	require.NoError(t, env.hub.Broadcast(ctx, domain.Event{
		Channel: "task-T",
		Name:    domain.EventWorkflowStatusUpdate,
		Payload: domain.TaskStatusEvent{TaskID: "T", WorkflowStatus: domain.WorkflowStatusCompleted},
	}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got struct {
		Channel string `json:"channel"`
		Event   string `json:"event"`
		Payload struct {
			TaskID         string `json:"taskId"`
			WorkflowStatus string `json:"workflowStatus"`
		} `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "task-T", got.Channel)
	assert.Equal(t, domain.EventWorkflowStatusUpdate, got.Event)
	assert.Equal(t, "T", got.Payload.TaskID)
	assert.Equal(t, string(domain.WorkflowStatusCompleted), got.Payload.WorkflowStatus)
}

func TestEventStream_Rejections(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name       string
		query      string
		wantStatus int
	}{
		{"no token", "channel=task-T", http.StatusUnauthorized},
		{"unknown channel", "channel=secrets&token=" + viewerToken, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(wsURL(env, tt.query), nil)
			require.ErrorIs(t, err, websocket.ErrBadHandshake)
			require.NotNil(t, resp)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}

	t.Run("query token ignored outside upgrades", func(t *testing.T) {
		status, _ := env.call(t, http.MethodGet, "/api/runs/r1/thinking?token="+viewerToken, "", nil)
		assert.Equal(t, http.StatusUnauthorized, status)
	})
}
