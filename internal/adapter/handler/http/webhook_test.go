package http

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/crabzie/workspace-fleet/internal/core/domain"
	"github.com/crabzie/workspace-fleet/internal/core/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signed(body string) map[string]string {
	return map[string]string{
		"Content-Type":  "application/json",
		HeaderSignature: service.Sign([]byte(testSecret), []byte(body)),
	}
}

func TestWebhook_WorkflowStatus(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		headers    map[string]string
		wantStatus int
		wantCode   string
		wantAction string
		wantTask   domain.WorkflowStatus
	}{
		{
			name:       "completed",
			path:       "/api/stakwork/webhook",
			body:       `{"project_status":"completed","task_id":"T"}`,
			wantStatus: http.StatusOK,
			wantAction: service.ActionUpdated,
			wantTask:   domain.WorkflowStatusCompleted,
		},
		{
			name:       "legacy alias with prefixed signature",
			path:       "/webhook",
			body:       `{"project_status":"running","task_id":"T"}`,
			headers:    map[string]string{HeaderSignature: "sha256=" + service.Sign([]byte(testSecret), []byte(`{"project_status":"running","task_id":"T"}`))},
			wantStatus: http.StatusOK,
			wantAction: service.ActionUpdated,
			wantTask:   domain.WorkflowStatusInProgress,
		},
		{
			name:       "task id from query",
			path:       "/api/stakwork/webhook?task_id=T",
			body:       `{"project_status":"failed"}`,
			wantStatus: http.StatusOK,
			wantAction: service.ActionUpdated,
			wantTask:   domain.WorkflowStatusFailed,
		},
		{
			name:       "unknown status is ignored",
			path:       "/api/stakwork/webhook",
			body:       `{"project_status":"weird_status","task_id":"T"}`,
			wantStatus: http.StatusOK,
			wantAction: service.ActionIgnored,
			wantTask:   domain.WorkflowStatusPending,
		},
		{
			name:       "invalid json",
			path:       "/api/stakwork/webhook",
			body:       `{"project_status":`,
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeInvalidJSON,
			wantTask:   domain.WorkflowStatusPending,
		},
		{
			name:       "missing signature",
			path:       "/api/stakwork/webhook",
			body:       `{"project_status":"completed","task_id":"T"}`,
			headers:    map[string]string{HeaderSignature: ""},
			wantStatus: http.StatusUnauthorized,
			wantCode:   CodeUnauthorized,
			wantTask:   domain.WorkflowStatusPending,
		},
		{
			name:       "wrong secret",
			path:       "/api/stakwork/webhook",
			body:       `{"project_status":"completed","task_id":"T"}`,
			headers:    map[string]string{HeaderSignature: service.Sign([]byte("other"), []byte(`{"project_status":"completed","task_id":"T"}`))},
			wantStatus: http.StatusUnauthorized,
			wantCode:   CodeUnauthorized,
			wantTask:   domain.WorkflowStatusPending,
		},
		{
			name:       "missing task id",
			path:       "/api/stakwork/webhook",
			body:       `{"project_status":"completed"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeValidation,
			wantTask:   domain.WorkflowStatusPending,
		},
		{
			name:       "missing project status",
			path:       "/api/stakwork/webhook",
			body:       `{"task_id":"T"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeValidation,
			wantTask:   domain.WorkflowStatusPending,
		},
		{
			name:       "unknown task",
			path:       "/api/stakwork/webhook",
			body:       `{"project_status":"completed","task_id":"missing"}`,
			wantStatus: http.StatusNotFound,
			wantCode:   CodeNotFound,
			wantTask:   domain.WorkflowStatusPending,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.seedTask(t, "T", domain.WorkflowStatusPending)

			headers := signed(tt.body)
			for k, v := range tt.headers {
				headers[k] = v
			}
			status, body := env.request(t, http.MethodPost, tt.path, []byte(tt.body), headers)
			require.Equal(t, tt.wantStatus, status, string(body))

			if tt.wantCode != "" {
				res := decodeEnvelope(t, body)
				assert.False(t, res.Success)
				assert.Equal(t, tt.wantCode, res.Error.Code)
			} else {
				var result service.WorkflowResult
				decodeData(t, body, &result)
				assert.Equal(t, "T", result.TaskID)
				assert.Equal(t, tt.wantAction, result.Action)
				assert.Equal(t, tt.wantTask, result.WorkflowStatus)
			}

			task, err := env.tasks.GetByID(context.Background(), "T")
			require.NoError(t, err)
			assert.Equal(t, tt.wantTask, task.WorkflowStatus)
		})
	}
}

func TestWebhook_TamperedBodyIsRejected(t *testing.T) {
	env := newTestEnv(t)
	env.seedTask(t, "T", domain.WorkflowStatusInProgress)

	original := `{"project_status":"failed","task_id":"T"}`
	tampered := `{"project_status":"completed","task_id":"T"}`
	status, body := env.request(t, http.MethodPost, "/api/stakwork/webhook", []byte(tampered), signed(original))

	require.Equal(t, http.StatusUnauthorized, status)
	assert.NotContains(t, string(body), service.Sign([]byte(testSecret), []byte(tampered)))

	task, err := env.tasks.GetByID(context.Background(), "T")
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowStatusInProgress, task.WorkflowStatus)
}

func TestWebhook_SecretNotConfigured(t *testing.T) {
	env := newTestEnvWith(t, WebhookConfig{GraphAPIKey: testGraphKey})
	env.seedTask(t, "T", domain.WorkflowStatusPending)

	body := `{"project_status":"completed","task_id":"T"}`
	status, raw := env.request(t, http.MethodPost, "/api/stakwork/webhook", []byte(body), signed(body))

	require.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, CodeMisconfigured, decodeEnvelope(t, raw).Error.Code)
}

func TestWebhook_PayloadTooLarge(t *testing.T) {
	env := newTestEnv(t)
	body := `{"project_status":"completed","task_id":"T","pad":"` + strings.Repeat("x", 5000) + `"}`
	status, raw := env.request(t, http.MethodPost, "/api/stakwork/webhook", []byte(body), signed(body))

	require.Equal(t, http.StatusRequestEntityTooLarge, status)
	assert.Equal(t, CodePayloadTooLarge, decodeEnvelope(t, raw).Error.Code)
}

func TestWebhook_BroadcastsOnUpdate(t *testing.T) {
	env := newTestEnv(t)
	env.seedTask(t, "T", domain.WorkflowStatusPending)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	taskEvents, err := env.hub.Subscribe(ctx, domain.TaskChannel("T"))
	require.NoError(t, err)
	workspaceEvents, err := env.hub.Subscribe(ctx, domain.WorkspaceChannel("W"))
	require.NoError(t, err)

	body := `{"project_status":"in_progress","task_id":"T"}`
	status, _ := env.request(t, http.MethodPost, "/api/stakwork/webhook", []byte(body), signed(body))
	require.Equal(t, http.StatusOK, status)

	e := nextEvent(t, taskEvents)
	assert.Equal(t, domain.EventWorkflowStatusUpdate, e.Name)
	payload, ok := e.Payload.(domain.TaskStatusEvent)
	require.True(t, ok)
	assert.Equal(t, domain.WorkflowStatusInProgress, payload.WorkflowStatus)

	e = nextEvent(t, workspaceEvents)
	assert.Equal(t, domain.EventWorkspaceTaskStatusUpdate, e.Name)
}

func TestWebhook_DeliveryReplay(t *testing.T) {
	t.Run("duplicate delivery is acknowledged without processing", func(t *testing.T) {
		env := newTestEnv(t)
		env.seedTask(t, "T", domain.WorkflowStatusPending)

		body := `{"project_status":"in_progress","task_id":"T"}`
		headers := signed(body)
		headers[HeaderDeliveryID] = "d-1"

		status, raw := env.request(t, http.MethodPost, "/api/stakwork/webhook", []byte(body), headers)
		require.Equal(t, http.StatusOK, status)
		var first service.WorkflowResult
		decodeData(t, raw, &first)
		assert.Equal(t, service.ActionUpdated, first.Action)

		status, raw = env.request(t, http.MethodPost, "/api/stakwork/webhook", []byte(body), headers)
		require.Equal(t, http.StatusOK, status)
		var second service.WorkflowResult
		decodeData(t, raw, &second)
		assert.Equal(t, service.ActionDuplicate, second.Action)
	})

	t.Run("failed delivery can be retried", func(t *testing.T) {
		env := newTestEnv(t)

		body := `{"project_status":"completed","task_id":"late"}`
		headers := signed(body)
		headers[HeaderDeliveryID] = "d-2"

		status, _ := env.request(t, http.MethodPost, "/api/stakwork/webhook", []byte(body), headers)
		require.Equal(t, http.StatusNotFound, status)

		env.seedTask(t, "late", domain.WorkflowStatusInProgress)
		status, raw := env.request(t, http.MethodPost, "/api/stakwork/webhook", []byte(body), headers)
		require.Equal(t, http.StatusOK, status)

		var result service.WorkflowResult
		decodeData(t, raw, &result)
		assert.Equal(t, service.ActionUpdated, result.Action)
		assert.Equal(t, domain.WorkflowStatusCompleted, result.WorkflowStatus)
	})
}

func TestWebhook_GraphHighlight(t *testing.T) {
	tests := []struct {
		name        string
		key         string
		body        string
		wantStatus  int
		wantCode    string
		wantChannel string
	}{
		{"workspace highlight", testGraphKey, `{"node_ids":["a","b"],"workspace_id":"W","depth":2,"title":"Auth"}`, http.StatusOK, "", "workspace-W"},
		{"global highlight", testGraphKey, `{"node_ids":["a"]}`, http.StatusOK, "", domain.GraphHighlightChannel},
		{"missing key", "", `{"node_ids":["a"]}`, http.StatusUnauthorized, CodeUnauthorized, ""},
		{"wrong key", "nope", `{"node_ids":["a"]}`, http.StatusUnauthorized, CodeUnauthorized, ""},
		{"empty node ids", testGraphKey, `{"node_ids":[]}`, http.StatusBadRequest, CodeValidation, ""},
		{"negative depth", testGraphKey, `{"node_ids":["a"],"depth":-1}`, http.StatusBadRequest, CodeValidation, ""},
		{"invalid json", testGraphKey, `{"node_ids":`, http.StatusBadRequest, CodeInvalidJSON, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			var events <-chan domain.Event
			if tt.wantChannel != "" {
				var err error
				events, err = env.hub.Subscribe(ctx, tt.wantChannel)
				require.NoError(t, err)
			}

			headers := map[string]string{"Content-Type": "application/json"}
			if tt.key != "" {
				headers[HeaderAPIKey] = tt.key
			}
			status, raw := env.request(t, http.MethodPost, "/api/graph/webhook", []byte(tt.body), headers)
			require.Equal(t, tt.wantStatus, status, string(raw))

			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decodeEnvelope(t, raw).Error.Code)
				return
			}
			e := nextEvent(t, events)
			assert.Equal(t, domain.EventHighlightNodes, e.Name)
			assert.Equal(t, tt.wantChannel, e.Channel)
		})
	}
}

func TestWebhook_GraphKeyNotConfigured(t *testing.T) {
	env := newTestEnvWith(t, WebhookConfig{Secret: testSecret})
	status, raw := env.request(t, http.MethodPost, "/api/graph/webhook", []byte(`{"node_ids":["a"]}`),
		map[string]string{HeaderAPIKey: "anything"})

	require.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, CodeMisconfigured, decodeEnvelope(t, raw).Error.Code)
}
