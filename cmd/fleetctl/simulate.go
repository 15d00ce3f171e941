package main

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"github.com/crabzie/workspace-fleet/internal/core/domain"
	"github.com/spf13/cobra"
)

type simulateOptions struct {
	pool     string
	duration time.Duration
	interval time.Duration
	maxBatch int
}

func newSimulateCmd(opts *rootOptions) *cobra.Command {
	sim := &simulateOptions{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Generate claim/release traffic against a pool (SUPER_ADMIN)",
		Long: `Claim pods for synthetic workspaces and release them at random, printing the
pool counters after every batch. Pods still held when the run ends are released.

Examples:
  fleetctl simulate --pool default-pool --duration 1m
  fleetctl simulate --interval 500ms --max-batch 10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), sim.duration)
			defer cancel()
			return simulate(ctx, cmd.OutOrStdout(), newAPIClient(opts), sim, rand.New(rand.NewSource(time.Now().UnixNano())))
		},
	}
	cmd.Flags().StringVar(&sim.pool, "pool", "default-pool", "Pool to exercise")
	cmd.Flags().DurationVar(&sim.duration, "duration", 5*time.Minute, "How long to run")
	cmd.Flags().DurationVar(&sim.interval, "interval", 2*time.Second, "Delay between batches")
	cmd.Flags().IntVar(&sim.maxBatch, "max-batch", 5, "Largest number of operations per batch")
	return cmd
}

func simulate(ctx context.Context, w io.Writer, c *apiClient, sim *simulateOptions, rnd *rand.Rand) error {
	if sim.maxBatch <= 0 {
		sim.maxBatch = 1
	}
	fmt.Fprintf(w, "🚀 Simulating traffic on %s for %s...\n", sim.pool, sim.duration)

	var held []string
	defer func() {
		// Leave the pool as we found it
		cleanup, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, id := range held {
			_ = c.call(cleanup, http.MethodPost, "/api/fleet/pods/"+url.PathEscape(id)+"/release", nil, nil)
		}
	}()

	// A request cut short by the deadline ends the run normally
	finish := func(err error) error {
		if ctx.Err() != nil {
			fmt.Fprintln(w, "\n✅ Simulation Complete.")
			return nil
		}
		return err
	}

	ticker := time.NewTicker(sim.interval)
	defer ticker.Stop()

	workspace := 0
	for {
		select {
		case <-ctx.Done():
			return finish(nil)
		case <-ticker.C:
		}

		batch := rnd.Intn(sim.maxBatch) + 1
		for i := 0; i < batch; i++ {
			if len(held) > 0 && rnd.Float64() < 0.4 {
				idx := rnd.Intn(len(held))
				id := held[idx]
				if err := c.call(ctx, http.MethodPost, "/api/fleet/pods/"+url.PathEscape(id)+"/release", nil, nil); err != nil {
					return finish(err)
				}
				held = append(held[:idx], held[idx+1:]...)
				fmt.Fprintf(w, "   ↩️  released %s\n", id)
				continue
			}

			workspace++
			var pod domain.Pod
			path := "/api/fleet/pools/" + url.PathEscape(sim.pool) + "/claim"
			body := map[string]string{"workspace_id": fmt.Sprintf("sim-ws-%d", workspace)}
			if err := c.call(ctx, http.MethodPost, path, body, &pod); err != nil {
				return finish(err)
			}
			held = append(held, pod.ID)
			fmt.Fprintf(w, "   📥 %s claimed %s\n", pod.ClaimedBy, pod.ID)
		}

		var status domain.PoolStatus
		if err := c.call(ctx, http.MethodGet, "/api/fleet/pools/"+url.PathEscape(sim.pool), nil, &status); err != nil {
			return finish(err)
		}
		fmt.Fprintf(w, "[%s] %d pods, %d available, %d claimed\n", status.Name, status.Total, status.Available, status.Claimed)
	}
}
