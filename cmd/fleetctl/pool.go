package main

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"text/tabwriter"

	"github.com/crabzie/workspace-fleet/internal/core/domain"
	"github.com/spf13/cobra"
)

func newPoolCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pool",
		Short: "Inspect pod pools (SUPER_ADMIN)",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status <pool>",
		Short: "Show pool counters and pods",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var status domain.PoolStatus
			if err := newAPIClient(opts).call(cmd.Context(), http.MethodGet, "/api/fleet/pools/"+url.PathEscape(args[0]), nil, &status); err != nil {
				return err
			}
			printPoolStatus(cmd.OutOrStdout(), status)
			return nil
		},
	})
	return cmd
}

func printPoolStatus(w io.Writer, status domain.PoolStatus) {
	fmt.Fprintf(w, "Pool %s: %d pods, %d available, %d claimed\n\n", status.Name, status.Total, status.Available, status.Claimed)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATE\tCLAIMED BY\tREPOSITORIES\tCPU%\tMEM%")
	for _, pod := range status.Pods {
		claimedBy := pod.ClaimedBy
		if claimedBy == "" {
			claimedBy = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.1f\t%.1f\n",
			pod.ID, pod.State, claimedBy, strings.Join(pod.Repositories, ","),
			pod.ResourceUsage.CPUPercent, pod.ResourceUsage.MemoryPercent)
	}
	_ = tw.Flush()
}

func newPodCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pod",
		Short: "Claim and release pods (SUPER_ADMIN)",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "claim <pool> <workspace-id>",
			Short: "Claim a pod for a workspace",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				var pod domain.Pod
				path := "/api/fleet/pools/" + url.PathEscape(args[0]) + "/claim"
				if err := newAPIClient(opts).call(cmd.Context(), http.MethodPost, path, map[string]string{"workspace_id": args[1]}, &pod); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Claimed %s (%s) for %s\n", pod.ID, pod.URL, pod.ClaimedBy)
				return nil
			},
		},
		&cobra.Command{
			Use:   "release <pod-id>",
			Short: "Return a pod to its pool",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				var pod domain.Pod
				path := "/api/fleet/pods/" + url.PathEscape(args[0]) + "/release"
				if err := newAPIClient(opts).call(cmd.Context(), http.MethodPost, path, nil, &pod); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Released %s, now %s\n", pod.ID, pod.State)
				return nil
			},
		},
	)
	return cmd
}
