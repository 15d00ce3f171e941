package service

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/crabzie/workspace-fleet/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestPoolManager(t *testing.T, cfg PoolConfig) *PoolManager {
	t.Helper()
	return NewPoolManager(cfg, zap.NewNop())
}

func assertCountsReconcile(t *testing.T, m *PoolManager, pool string) domain.PoolStatus {
	t.Helper()
	status, err := m.GetPoolStatus(pool)
	require.NoError(t, err)
	assert.Equal(t, status.Total, status.Available+status.Claimed, "available + claimed must equal total")
	assert.Len(t, status.Pods, status.Total)
	return status
}

func TestPoolManager_DefaultPoolSeeded(t *testing.T) {
	m := newTestPoolManager(t, PoolConfig{})

	status := assertCountsReconcile(t, m, DefaultPoolName)
	assert.Equal(t, DefaultBaselinePods, status.Total)
	assert.Equal(t, DefaultBaselinePods, status.Available)
	for _, pod := range status.Pods {
		assert.Equal(t, domain.PodStateAvailable, pod.State)
		assert.Equal(t, domain.UsageStatusFree, pod.UsageStatus)
		assert.NotEmpty(t, pod.Password)
		assert.Contains(t, pod.PortMappings, "3000")
		assert.Contains(t, pod.PortMappings, "3355")
		assert.Equal(t, "https://"+pod.FQDN, pod.URL)
	}
}

func TestPoolManager_GetOrCreatePoolIsIdempotent(t *testing.T) {
	m := newTestPoolManager(t, PoolConfig{})

	first := m.GetOrCreatePool("swarm-a", "key-a")
	second := m.GetOrCreatePool("swarm-a", "other-key")

	assert.Equal(t, first, second)
	assert.Equal(t, "key-a", second.APIKey)

	status := assertCountsReconcile(t, m, "swarm-a")
	assert.Equal(t, DefaultBaselinePods, status.Total)
}

func TestPoolManager_ClaimUnknownPool(t *testing.T) {
	m := newTestPoolManager(t, PoolConfig{})

	_, err := m.ClaimPod("missing", "ws-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrPoolNotFound))
	assert.Equal(t, "Pool not found", err.Error())
}

func TestPoolManager_ClaimMarksPod(t *testing.T) {
	m := newTestPoolManager(t, PoolConfig{})

	pod, err := m.ClaimPod(DefaultPoolName, "ws-1")
	require.NoError(t, err)

	assert.Equal(t, domain.PodStateClaimed, pod.State)
	assert.Equal(t, domain.UsageStatusUsed, pod.UsageStatus)
	assert.Equal(t, "ws-1", pod.ClaimedBy)
	require.NotNil(t, pod.ClaimedAt)

	status := assertCountsReconcile(t, m, DefaultPoolName)
	assert.Equal(t, 1, status.Claimed)
}

func TestPoolManager_AutoScalesWhenExhausted(t *testing.T) {
	m := newTestPoolManager(t, PoolConfig{BaselinePods: 3})

	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		pod, err := m.ClaimPod(DefaultPoolName, fmt.Sprintf("ws-%d", i))
		require.NoError(t, err)
		assert.False(t, seen[pod.ID], "pod handed out twice")
		seen[pod.ID] = true
	}

	status := assertCountsReconcile(t, m, DefaultPoolName)
	assert.GreaterOrEqual(t, status.Total, 5)
	assert.Equal(t, 5, status.Claimed)
}

func TestPoolManager_MaxPodsBackpressure(t *testing.T) {
	m := newTestPoolManager(t, PoolConfig{BaselinePods: 2, MaxPods: 3})

	for i := 0; i < 3; i++ {
		_, err := m.ClaimPod(DefaultPoolName, fmt.Sprintf("ws-%d", i))
		require.NoError(t, err)
	}

	_, err := m.ClaimPod(DefaultPoolName, "ws-overflow")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrPoolExhausted))

	status := assertCountsReconcile(t, m, DefaultPoolName)
	assert.Equal(t, 3, status.Total)
	assert.Equal(t, 3, status.Claimed)
}

func TestPoolManager_ReleaseThenReclaimReusesPod(t *testing.T) {
	m := newTestPoolManager(t, PoolConfig{})

	pod, err := m.ClaimPod(DefaultPoolName, "ws-1")
	require.NoError(t, err)
	_, err = m.UpdatePodRepositories(pod.ID, []string{"https://github.com/org/repo.git"})
	require.NoError(t, err)

	released, err := m.ReleasePod(pod.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.UsageStatusFree, released.UsageStatus)
	assert.Empty(t, released.ClaimedBy)
	assert.Nil(t, released.ClaimedAt)
	assert.Empty(t, released.Repositories)
	assert.Empty(t, released.Branches)

	again, err := m.ClaimPod(DefaultPoolName, "ws-2")
	require.NoError(t, err)
	assert.Equal(t, pod.ID, again.ID, "most recently released pod is reused")
	assert.Equal(t, "ws-2", again.ClaimedBy)
	assert.Empty(t, again.Repositories)
	assert.Empty(t, again.Branches)
	assert.Equal(t, pod.Password, again.Password)

	assertCountsReconcile(t, m, DefaultPoolName)
}

func TestPoolManager_ReleaseIsIdempotent(t *testing.T) {
	m := newTestPoolManager(t, PoolConfig{})

	pod, err := m.ClaimPod(DefaultPoolName, "ws-1")
	require.NoError(t, err)

	_, err = m.ReleasePod(pod.ID)
	require.NoError(t, err)
	_, err = m.ReleasePod(pod.ID)
	require.NoError(t, err)

	// A double release must not let the same pod be handed out twice
	a, err := m.ClaimPod(DefaultPoolName, "ws-a")
	require.NoError(t, err)
	b, err := m.ClaimPod(DefaultPoolName, "ws-b")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)

	assertCountsReconcile(t, m, DefaultPoolName)
}

func TestPoolManager_UnknownPod(t *testing.T) {
	m := newTestPoolManager(t, PoolConfig{})

	_, err := m.ReleasePod("nope")
	assert.True(t, errors.Is(err, domain.ErrPodNotFound))

	_, err = m.UpdatePodRepositories("nope", []string{"x"})
	assert.True(t, errors.Is(err, domain.ErrPodNotFound))

	_, ok := m.GetPod("nope")
	assert.False(t, ok)
}

func TestPoolManager_UpdatePodRepositories(t *testing.T) {
	m := newTestPoolManager(t, PoolConfig{})
	pod, err := m.ClaimPod(DefaultPoolName, "ws-1")
	require.NoError(t, err)

	updated, err := m.UpdatePodRepositories(pod.ID, []string{"https://github.com/stakwork/hive", "https://github.com/stakwork/other"})
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/stakwork/hive", updated.PrimaryRepo)
	assert.Equal(t, "hive", updated.RepoName)

	cleared, err := m.UpdatePodRepositories(pod.ID, []string{})
	require.NoError(t, err)
	assert.Equal(t, "", cleared.PrimaryRepo)
	assert.Equal(t, "", cleared.RepoName)
	assert.Empty(t, cleared.Repositories)

	got, ok := m.GetPod(pod.ID)
	require.True(t, ok)
	assert.Equal(t, "", got.RepoName)
}

func TestPoolManager_ReturnedPodsAreCopies(t *testing.T) {
	m := newTestPoolManager(t, PoolConfig{})
	pod, err := m.ClaimPod(DefaultPoolName, "ws-1")
	require.NoError(t, err)

	pod.ClaimedBy = "tampered"
	pod.PortMappings["3000"] = "tampered"

	got, ok := m.GetPod(pod.ID)
	require.True(t, ok)
	assert.Equal(t, "ws-1", got.ClaimedBy)
	assert.NotEqual(t, "tampered", got.PortMappings["3000"])
}

func TestPoolManager_FindClaimedPod(t *testing.T) {
	m := newTestPoolManager(t, PoolConfig{})
	m.GetOrCreatePool("other", "k")

	pod, err := m.ClaimPod("other", "ws-42")
	require.NoError(t, err)

	found, ok := m.FindClaimedPod("ws-42")
	require.True(t, ok)
	assert.Equal(t, pod.ID, found.ID)

	_, ok = m.FindClaimedPod("ws-unknown")
	assert.False(t, ok)

	_, err = m.ReleasePod(pod.ID)
	require.NoError(t, err)
	_, ok = m.FindClaimedPod("ws-42")
	assert.False(t, ok)
}

func TestPoolManager_Reset(t *testing.T) {
	m := newTestPoolManager(t, PoolConfig{})
	m.GetOrCreatePool("extra", "k")
	pod, err := m.ClaimPod(DefaultPoolName, "ws-1")
	require.NoError(t, err)

	m.Reset()

	_, err = m.GetPoolStatus("extra")
	assert.True(t, errors.Is(err, domain.ErrPoolNotFound))
	_, ok := m.GetPod(pod.ID)
	assert.False(t, ok)

	status := assertCountsReconcile(t, m, DefaultPoolName)
	assert.Equal(t, DefaultBaselinePods, status.Available)
	assert.Zero(t, status.Claimed)
}

func TestPoolManager_OpenPool(t *testing.T) {
	m := newTestPoolManager(t, PoolConfig{})

	pool, err := m.OpenPool("swarm", "secret")
	require.NoError(t, err)
	assert.Equal(t, "swarm", pool.Name)

	_, err = m.OpenPool("swarm", "secret")
	require.NoError(t, err)

	_, err = m.OpenPool("swarm", "wrong")
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))

	_, err = m.OpenPool("swarm", "")
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
}

func TestPoolManager_OpenPoolLimit(t *testing.T) {
	// The default pool counts towards the cap
	m := newTestPoolManager(t, PoolConfig{MaxPools: 2})

	_, err := m.OpenPool("first", "k1")
	require.NoError(t, err)

	_, err = m.OpenPool("second", "k2")
	assert.ErrorIs(t, err, domain.ErrPoolLimitReached)
	_, err = m.GetPoolStatus("second")
	assert.ErrorIs(t, err, domain.ErrPoolNotFound, "a refused pool is not created")

	_, err = m.OpenPool("first", "k1")
	assert.NoError(t, err, "existing pools stay reachable at the cap")

	m.GetOrCreatePool("admin-made", "k3")
	assert.Len(t, m.Pools(), 3, "the cap only applies to lazy creation")
}

func TestPoolManager_UpdateResourceUsage(t *testing.T) {
	m := newTestPoolManager(t, PoolConfig{})
	pod, err := m.ClaimPod(DefaultPoolName, "W1")
	require.NoError(t, err)
	usage := domain.ResourceUsage{CPUPercent: 50, MemoryPercent: 25, DiskPercent: 10}

	updated, err := m.UpdateResourceUsage(pod.ID, "W1", usage)
	require.NoError(t, err)
	assert.Equal(t, usage, updated.ResourceUsage)

	_, err = m.UpdateResourceUsage(pod.ID, "W2", domain.ResourceUsage{CPUPercent: 99})
	assert.ErrorIs(t, err, domain.ErrConflict)

	released, err := m.ReleasePod(pod.ID)
	require.NoError(t, err)
	assert.Zero(t, released.ResourceUsage, "release drops the previous claimant's usage")

	_, err = m.UpdateResourceUsage(pod.ID, "W1", usage)
	assert.ErrorIs(t, err, domain.ErrConflict, "free pods are not updated")

	_, err = m.UpdateResourceUsage("nope", "W1", usage)
	assert.ErrorIs(t, err, domain.ErrPodNotFound)
}

func TestPoolManager_SetMinimumVMs(t *testing.T) {
	m := newTestPoolManager(t, PoolConfig{BaselinePods: 2, MaxPods: 6})

	pool, err := m.SetMinimumVMs(DefaultPoolName, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, pool.MinimumVMs)
	status := assertCountsReconcile(t, m, DefaultPoolName)
	assert.Equal(t, 5, status.Total)

	// Capped at MaxPods
	_, err = m.SetMinimumVMs(DefaultPoolName, 10)
	require.NoError(t, err)
	status = assertCountsReconcile(t, m, DefaultPoolName)
	assert.Equal(t, 6, status.Total)

	// Lowering the floor never removes pods
	_, err = m.SetMinimumVMs(DefaultPoolName, 1)
	require.NoError(t, err)
	status = assertCountsReconcile(t, m, DefaultPoolName)
	assert.Equal(t, 6, status.Total)

	_, err = m.SetMinimumVMs(DefaultPoolName, -1)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = m.SetMinimumVMs("missing", 1)
	assert.True(t, errors.Is(err, domain.ErrPoolNotFound))
}

func TestPoolManager_ConcurrentClaimRelease(t *testing.T) {
	m := newTestPoolManager(t, PoolConfig{BaselinePods: 3})

	const workers = 32
	const rounds = 50

	var wg sync.WaitGroup
	claimed := make(chan domain.Pod, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			var last domain.Pod
			for r := 0; r < rounds; r++ {
				pod, err := m.ClaimPod(DefaultPoolName, fmt.Sprintf("ws-%d", w))
				if err != nil {
					t.Errorf("claim: %v", err)
					return
				}
				if r < rounds-1 {
					if _, err := m.ReleasePod(pod.ID); err != nil {
						t.Errorf("release: %v", err)
						return
					}
				}
				last = pod
			}
			claimed <- last
		}(w)
	}
	wg.Wait()
	close(claimed)

	holders := map[string]string{}
	for pod := range claimed {
		prev, dup := holders[pod.ID]
		assert.False(t, dup, "pod %s claimed by %s and %s", pod.ID, prev, pod.ClaimedBy)
		holders[pod.ID] = pod.ClaimedBy
	}

	status := assertCountsReconcile(t, m, DefaultPoolName)
	assert.Equal(t, workers, status.Claimed)
	assert.Len(t, m.ClaimedPods(), workers)
}
