package service

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/crabzie/workspace-fleet/internal/core/domain"
	"github.com/crabzie/workspace-fleet/internal/core/port"
	"go.uber.org/zap"
)

// UsageSyncService refreshes the resource usage snapshot of claimed pods
type UsageSyncService struct {
	pods    *PoolManager
	monitor port.MonitoringService
	log     *zap.Logger
}

func NewUsageSyncService(pods *PoolManager, monitor port.MonitoringService, log *zap.Logger) *UsageSyncService {
	if log == nil {
		log = zap.NewNop()
	}
	return &UsageSyncService{
		pods:    pods,
		monitor: monitor,
		log:     log,
	}
}

// Start runs the sync loop until ctx is done
func (s *UsageSyncService) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errors.New("usage sync interval must be positive")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	count := 0
	for {
		select {
		case <-ctx.Done():
			s.log.Info("Stopping usage sync loop")
			return nil
		case <-ticker.C:
			count++
			updated := s.SyncOnce(ctx)
			if count%10 == 0 {
				s.log.Info("Usage sync heartbeat",
					zap.Int("updated_pods", updated),
					zap.Duration("interval", interval))
			}
		}
	}
}

// SyncOnce updates every claimed pod it can get metrics for and returns how many were updated
func (s *UsageSyncService) SyncOnce(ctx context.Context) int {
	claimed := s.pods.ClaimedPods()
	if len(claimed) == 0 {
		return 0
	}

	// One batch query per cycle, per-pod queries only for what it missed
	batch, err := s.monitor.GetAllPodMetrics(ctx)
	if err != nil {
		s.log.Warn("Failed to fetch batch metrics, falling back to per-pod queries", zap.Error(err))
	}

	updated := 0
	for _, pod := range claimed {
		usage, ok := batch[pod.ID]
		if !ok {
			usage, err = s.monitor.GetPodMetrics(ctx, pod.ID)
			if err != nil {
				s.log.Debug("No metrics for pod, skipping", zap.String("pod_id", pod.ID), zap.Error(err))
				continue
			}
		}

		if _, err := s.pods.UpdateResourceUsage(pod.ID, pod.ClaimedBy, clampUsage(usage)); err != nil {
			// Released or reclaimed while we were querying
			s.log.Debug("Pod changed during usage sync", zap.String("pod_id", pod.ID), zap.Error(err))
			continue
		}
		updated++
	}
	return updated
}

func clampUsage(u domain.ResourceUsage) domain.ResourceUsage {
	clamp := func(v float64) float64 {
		switch {
		case math.IsNaN(v), v < 0:
			return 0
		case v > 100:
			return 100
		}
		return v
	}
	return domain.ResourceUsage{
		CPUPercent:    clamp(u.CPUPercent),
		MemoryPercent: clamp(u.MemoryPercent),
		DiskPercent:   clamp(u.DiskPercent),
	}
}
