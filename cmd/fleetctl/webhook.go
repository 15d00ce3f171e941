package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	httphandler "github.com/crabzie/workspace-fleet/internal/adapter/handler/http"
	"github.com/crabzie/workspace-fleet/internal/core/service"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newWebhookCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Send workflow engine callbacks",
	}
	cmd.AddCommand(newWebhookSendCmd(opts))
	return cmd
}

func newWebhookSendCmd(opts *rootOptions) *cobra.Command {
	var (
		secret     string
		taskID     string
		status     string
		deliveryID string
	)
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a signed workflow status callback",
		Long: `Send a signed project_status callback, exactly as the workflow engine would.

Examples:
  fleetctl webhook send --task T --status in_progress
  fleetctl webhook send --task T --status completed --delivery-id d-42`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return fmt.Errorf("--secret is required")
			}
			body, err := json.Marshal(map[string]string{"task_id": taskID, "project_status": status})
			if err != nil {
				return err
			}
			if deliveryID == "" {
				deliveryID = uuid.NewString()
			}

			data, err := newAPIClient(opts).send(cmd.Context(), http.MethodPost, "/api/stakwork/webhook", body, map[string]string{
				httphandler.HeaderSignature:  service.SignaturePrefix + service.Sign([]byte(secret), body),
				httphandler.HeaderDeliveryID: deliveryID,
			})
			if err != nil {
				return err
			}

			var envelope struct {
				Data service.WorkflowResult `json:"data"`
			}
			if err := json.Unmarshal(data, &envelope); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: task %s is %s (delivery %s)\n",
				envelope.Data.Action, envelope.Data.TaskID, envelope.Data.WorkflowStatus, deliveryID)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", os.Getenv("STAKWORK_WEBHOOK_SECRET"), "Webhook signing secret")
	cmd.Flags().StringVar(&taskID, "task", "", "Task id")
	cmd.Flags().StringVar(&status, "status", "", "Engine project_status (in_progress, running, completed, failed, halted)")
	cmd.Flags().StringVar(&deliveryID, "delivery-id", "", "Delivery id, random when empty")
	_ = cmd.MarkFlagRequired("task")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}
