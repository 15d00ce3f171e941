// Command fleetctl is the operator CLI of the workspace fleet service.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	server  string
	token   string
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "fleetctl",
		Short:         "Operate the workspace fleet service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.server, "server", envOr("FLEET_SERVER", "http://localhost:8080"), "Fleet API base URL")
	cmd.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("FLEET_TOKEN"), "Bearer token (or pool API key for pool commands)")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "Request timeout")

	cmd.AddCommand(
		newSignCmd(),
		newWebhookCmd(opts),
		newPoolCmd(opts),
		newPodCmd(opts),
		newDoctorCmd(opts),
		newSimulateCmd(opts),
	)
	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
