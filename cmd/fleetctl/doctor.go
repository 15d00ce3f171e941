package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	postgres "github.com/crabzie/workspace-fleet/config/storage/postgresql"
	redis "github.com/crabzie/workspace-fleet/config/storage/redis"
	config "github.com/crabzie/workspace-fleet/config/utils"
	"github.com/crabzie/workspace-fleet/internal/adapter/monitoring/prometheus"
	"github.com/crabzie/workspace-fleet/internal/adapter/queue/rabbitmq"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type doctorCheck struct {
	name string
	skip string // reason the check does not apply, empty to run it
	run  func(ctx context.Context) (string, error)
}

func newDoctorCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check connectivity to every configured dependency",
		Long: `Load the service configuration (config.yaml and FLEET_* env) and probe each
dependency it enables: Postgres, Redis, RabbitMQ, Prometheus and the API itself.

Examples:
  fleetctl doctor
  fleetctl doctor --server http://fleet.internal:8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.New())
			if err != nil {
				return err
			}
			if !runChecks(cmd.Context(), cmd.OutOrStdout(), doctorChecks(cfg, opts)) {
				return fmt.Errorf("some checks failed")
			}
			return nil
		},
	}
}

func doctorChecks(cfg *config.AppConfig, opts *rootOptions) []doctorCheck {
	log := zap.NewNop()
	checks := []doctorCheck{
		{
			name: "Postgres",
			run: func(ctx context.Context) (string, error) {
				db, err := postgres.New(ctx, cfg.DB, log)
				if err != nil {
					return "", err
				}
				defer db.Close()
				return cfg.DB.Host + ":" + cfg.DB.Port, db.DBHealth(ctx)
			},
		},
		{
			name: "Redis",
			run: func(ctx context.Context) (string, error) {
				r, err := redis.New(ctx, cfg.Redis)
				if err != nil {
					return "", err
				}
				defer r.Close()
				return cfg.Redis.Addr, nil
			},
		},
		{
			name: "RabbitMQ",
			run: func(ctx context.Context) (string, error) {
				q, err := rabbitmq.NewEventQueue(ctx, cfg.MQ.URL, cfg.MQ.Exchange, 1, log)
				if err != nil {
					return "", err
				}
				defer q.Close()
				return "exchange " + cfg.MQ.Exchange, nil
			},
		},
		{
			name: "Prometheus",
			run: func(ctx context.Context) (string, error) {
				usage, err := prometheus.NewMonitoringService(cfg.Monitoring.PrometheusURL, cfg.Monitoring.Timeout, log).GetAllPodMetrics(ctx)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("%d pods reporting", len(usage)), nil
			},
		},
		{
			name: "API",
			run: func(ctx context.Context) (string, error) {
				data, err := newAPIClient(opts).send(ctx, http.MethodGet, "/health", nil, nil)
				if err != nil {
					return "", err
				}
				return strings.TrimSpace(string(data)), nil
			},
		},
	}

	if cfg.Storage.Driver != config.DriverPostgres {
		checks[0].skip = "storage.driver is " + cfg.Storage.Driver
	}
	if !cfg.Redis.Enabled {
		checks[1].skip = "redis.enabled is false"
	}
	if !cfg.MQ.Enabled {
		checks[2].skip = "mq.enabled is false"
	}
	if cfg.Monitoring.PrometheusURL == "" {
		checks[3].skip = "monitoring.prometheusUrl is empty"
	}
	return checks
}

// runChecks prints one line per check and reports whether all of them passed
func runChecks(ctx context.Context, w io.Writer, checks []doctorCheck) bool {
	ok := true
	for i, c := range checks {
		prefix := fmt.Sprintf("[%d/%d] %s...", i+1, len(checks), c.name)
		if c.skip != "" {
			fmt.Fprintf(w, "%s ⏭️  skipped (%s)\n", prefix, c.skip)
			continue
		}
		detail, err := c.run(ctx)
		if err != nil {
			ok = false
			fmt.Fprintf(w, "%s ❌ %v\n", prefix, err)
			continue
		}
		fmt.Fprintf(w, "%s ✅ %s\n", prefix, detail)
	}
	return ok
}
