package main

import (
	"fmt"
	"io"
	"os"

	"github.com/crabzie/workspace-fleet/internal/core/service"
	"github.com/spf13/cobra"
)

func newSignCmd() *cobra.Command {
	var secret string
	cmd := &cobra.Command{
		Use:   "sign [file]",
		Short: "Print the x-signature of a webhook body",
		Long: `Compute the HMAC-SHA256 signature the workflow webhook expects.
The body is read from the file argument, or from stdin when omitted or "-".

Examples:
  fleetctl sign --secret "$STAKWORK_WEBHOOK_SECRET" body.json
  echo -n '{"project_status":"completed","task_id":"T"}' | fleetctl sign --secret s3cr3t`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return fmt.Errorf("--secret is required")
			}
			var (
				body []byte
				err  error
			)
			if len(args) == 0 || args[0] == "-" {
				body, err = io.ReadAll(cmd.InOrStdin())
			} else {
				body, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), service.SignaturePrefix+service.Sign([]byte(secret), body))
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", os.Getenv("STAKWORK_WEBHOOK_SECRET"), "Webhook signing secret")
	return cmd
}
