package service

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/crabzie/workspace-fleet/internal/core/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Defaults used when PoolConfig leaves a field empty
const (
	DefaultPoolName     = "default-pool"
	DefaultBaselinePods = 3
	DefaultPodDomain    = "workspaces.local"
)

// PoolConfig controls pool seeding and growth
type PoolConfig struct {
	DefaultPool   string
	DefaultAPIKey string
	BaselinePods  int    // Pods created with a new pool
	MaxPods       int    // Per-pool ceiling, 0 means grow without limit
	MaxPools      int    // Cap on pools created through OpenPool, 0 means no cap
	Domain        string // Base domain for pod FQDNs
}

// podPool holds the pods of a single pool, guarded by mu.
type podPool struct {
	mu    sync.Mutex
	info  domain.Pool
	pods  map[string]*domain.Pod
	order []string // Creation order, used for stable listings
	free  []string // Released pods, most recent last
}

// PoolManager owns the registry of pools and mediates claim/release.
//
// Lock order: the manager lock is never held while waiting on a published
// pool's lock.
// A pool lock may be held while taking the manager lock to index new pods.
type PoolManager struct {
	mu       sync.RWMutex
	pools    map[string]*podPool
	podIndex map[string]string // Pod ID -> pool name

	cfg PoolConfig
	now func() time.Time
	log *zap.Logger
}

// NewPoolManager creates a manager with the default pool already seeded
func NewPoolManager(cfg PoolConfig, log *zap.Logger) *PoolManager {
	if cfg.DefaultPool == "" {
		cfg.DefaultPool = DefaultPoolName
	}
	if cfg.BaselinePods <= 0 {
		cfg.BaselinePods = DefaultBaselinePods
	}
	if cfg.Domain == "" {
		cfg.Domain = DefaultPodDomain
	}
	if log == nil {
		log = zap.NewNop()
	}

	m := &PoolManager{
		cfg: cfg,
		now: time.Now,
		log: log,
	}
	m.Reset()
	return m
}

// Reset drops every pool and re-creates the default pool
func (m *PoolManager) Reset() {
	m.mu.Lock()
	m.pools = make(map[string]*podPool)
	m.podIndex = make(map[string]string)
	m.mu.Unlock()

	m.GetOrCreatePool(m.cfg.DefaultPool, m.cfg.DefaultAPIKey)
	m.log.Info("Pool registry reset", zap.String("default_pool", m.cfg.DefaultPool))
}

// GetOrCreatePool returns the named pool, creating and seeding it on first reference
func (m *PoolManager) GetOrCreatePool(name, apiKey string) domain.Pool {
	// No limit, so this cannot fail
	p, _, _ := m.getOrCreate(name, apiKey, 0)
	return p.snapshotInfo()
}

// OpenPool authenticates apiKey against an existing pool or lazily creates it.
// Lazy creation stops once MaxPools pools exist.
func (m *PoolManager) OpenPool(name, apiKey string) (domain.Pool, error) {
	if name == "" || apiKey == "" {
		return domain.Pool{}, domain.ErrUnauthorized
	}
	p, created, err := m.getOrCreate(name, apiKey, m.cfg.MaxPools)
	if err != nil {
		m.log.Warn("Refusing to create pool, limit reached", zap.String("pool", name), zap.Int("max_pools", m.cfg.MaxPools))
		return domain.Pool{}, err
	}
	if created {
		m.log.Warn("Pool created on first API reference", zap.String("pool", name))
	}
	pool := p.snapshotInfo()
	if subtle.ConstantTimeCompare([]byte(pool.APIKey), []byte(apiKey)) != 1 {
		return domain.Pool{}, domain.ErrUnauthorized
	}
	return pool, nil
}

// getOrCreate returns the named pool and whether this call created it.
// With limit > 0 a new pool is refused once limit pools exist.
func (m *PoolManager) getOrCreate(name, apiKey string, limit int) (*podPool, bool, error) {
	m.mu.RLock()
	p, ok := m.pools[name]
	m.mu.RUnlock()
	if ok {
		return p, false, nil
	}

	m.mu.Lock()
	if p, ok = m.pools[name]; !ok {
		if limit > 0 && len(m.pools) >= limit {
			m.mu.Unlock()
			return nil, false, fmt.Errorf("%w: %d pools exist", domain.ErrPoolLimitReached, len(m.pools))
		}
		p = &podPool{
			info: domain.Pool{Name: name, APIKey: apiKey},
			pods: make(map[string]*domain.Pod),
		}
		// Unpublished, so this cannot block. Held until seeding is done so
		// no claim observes an empty pool.
		p.mu.Lock()
		m.pools[name] = p
	}
	m.mu.Unlock()

	if ok {
		return p, false, nil
	}
	for i := 0; i < m.cfg.BaselinePods; i++ {
		pod := m.newPod(name)
		p.add(pod)
		p.free = append(p.free, pod.ID)
	}
	p.mu.Unlock()
	m.log.Info("Pool created", zap.String("pool", name), zap.Int("pods", m.cfg.BaselinePods))
	return p, true, nil
}

// ClaimPod hands an available pod of poolName to claimantID.
// The most recently released pod is reused first; when none is free a new
// pod is synthesized unless MaxPods has been reached.
func (m *PoolManager) ClaimPod(poolName, claimantID string) (domain.Pod, error) {
	p, err := m.pool(poolName)
	if err != nil {
		return domain.Pod{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var pod *domain.Pod
	for len(p.free) > 0 && pod == nil {
		id := p.free[len(p.free)-1]
		p.free = p.free[:len(p.free)-1]
		if candidate, ok := p.pods[id]; ok && !candidate.IsClaimed() {
			pod = candidate
		}
	}

	if pod == nil {
		if m.cfg.MaxPods > 0 && len(p.pods) >= m.cfg.MaxPods {
			m.log.Warn("Pool exhausted", zap.String("pool", poolName), zap.Int("max_pods", m.cfg.MaxPods))
			return domain.Pod{}, fmt.Errorf("%w: %s has %d pods claimed", domain.ErrPoolExhausted, poolName, len(p.pods))
		}
		pod = m.newPod(poolName)
		p.add(pod)
		m.log.Info("Pool auto-scaled", zap.String("pool", poolName), zap.Int("total", len(p.pods)))
	}

	pod.Claim(claimantID, m.now())
	m.log.Debug("Pod claimed", zap.String("pool", poolName), zap.String("pod_id", pod.ID), zap.String("claimant", claimantID))
	return pod.Clone(), nil
}

// ReleasePod returns a pod to its pool with every per-claim field reset
func (m *PoolManager) ReleasePod(podID string) (domain.Pod, error) {
	p, err := m.poolOf(podID)
	if err != nil {
		return domain.Pod{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	pod, ok := p.pods[podID]
	if !ok {
		return domain.Pod{}, domain.ErrPodNotFound
	}
	if pod.IsClaimed() {
		pod.Release()
		p.free = append(p.free, pod.ID)
		m.log.Debug("Pod released", zap.String("pool", pod.PoolName), zap.String("pod_id", pod.ID))
	}
	return pod.Clone(), nil
}

// UpdatePodRepositories replaces the repository list of a pod
func (m *PoolManager) UpdatePodRepositories(podID string, repos []string) (domain.Pod, error) {
	return m.mutatePod(podID, func(pod *domain.Pod) error {
		pod.SetRepositories(repos)
		return nil
	})
}

// UpdateResourceUsage records the latest utilisation snapshot of a pod while
// claimantID still holds it. A pod released or reclaimed since the sample was
// taken is left alone and ErrConflict is returned.
func (m *PoolManager) UpdateResourceUsage(podID, claimantID string, usage domain.ResourceUsage) (domain.Pod, error) {
	return m.mutatePod(podID, func(pod *domain.Pod) error {
		if !pod.IsClaimed() || pod.ClaimedBy != claimantID {
			return fmt.Errorf("pod %s changed hands: %w", podID, domain.ErrConflict)
		}
		pod.ResourceUsage = usage
		return nil
	})
}

// GetPoolStatus returns a consistent snapshot of a pool
func (m *PoolManager) GetPoolStatus(poolName string) (domain.PoolStatus, error) {
	p, err := m.pool(poolName)
	if err != nil {
		return domain.PoolStatus{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	status := domain.PoolStatus{
		Name: poolName,
		Pods: make([]domain.Pod, 0, len(p.order)),
	}
	for _, id := range p.order {
		pod := p.pods[id]
		if pod.IsClaimed() {
			status.Claimed++
		} else {
			status.Available++
		}
		status.Pods = append(status.Pods, pod.Clone())
	}
	status.Total = len(status.Pods)
	return status, nil
}

// GetPod looks a pod up by id
func (m *PoolManager) GetPod(podID string) (domain.Pod, bool) {
	p, err := m.poolOf(podID)
	if err != nil {
		return domain.Pod{}, false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	pod, ok := p.pods[podID]
	if !ok {
		return domain.Pod{}, false
	}
	return pod.Clone(), true
}

// FindClaimedPod returns the pod currently held by claimantID
func (m *PoolManager) FindClaimedPod(claimantID string) (domain.Pod, bool) {
	if claimantID == "" {
		return domain.Pod{}, false
	}
	for _, p := range m.poolList() {
		p.mu.Lock()
		for _, id := range p.order {
			if pod := p.pods[id]; pod.IsClaimed() && pod.ClaimedBy == claimantID {
				out := pod.Clone()
				p.mu.Unlock()
				return out, true
			}
		}
		p.mu.Unlock()
	}
	return domain.Pod{}, false
}

// ClaimedPods returns every claimed pod across all pools
func (m *PoolManager) ClaimedPods() []domain.Pod {
	var out []domain.Pod
	for _, p := range m.poolList() {
		p.mu.Lock()
		for _, id := range p.order {
			if pod := p.pods[id]; pod.IsClaimed() {
				out = append(out, pod.Clone())
			}
		}
		p.mu.Unlock()
	}
	return out
}

// Pools lists every known pool sorted by name
func (m *PoolManager) Pools() []domain.Pool {
	pools := m.poolList()
	out := make([]domain.Pool, 0, len(pools))
	for _, p := range pools {
		out = append(out, p.snapshotInfo())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SetMinimumVMs records the desired floor of a pool and grows it to match.
// Growth stops at MaxPods when a ceiling is configured.
func (m *PoolManager) SetMinimumVMs(poolName string, minimumVMs int) (domain.Pool, error) {
	if minimumVMs < 0 {
		return domain.Pool{}, fmt.Errorf("%w: minimum_vms must be >= 0", domain.ErrValidation)
	}
	p, err := m.pool(poolName)
	if err != nil {
		return domain.Pool{}, err
	}

	p.mu.Lock()
	p.info.MinimumVMs = minimumVMs
	target := minimumVMs
	if m.cfg.MaxPods > 0 && target > m.cfg.MaxPods {
		target = m.cfg.MaxPods
	}
	grown := 0
	for len(p.pods) < target {
		pod := m.newPod(poolName)
		p.add(pod)
		p.free = append(p.free, pod.ID)
		grown++
	}
	info := p.info
	p.mu.Unlock()

	if grown > 0 {
		m.log.Info("Pool grown to minimum", zap.String("pool", poolName), zap.Int("added", grown), zap.Int("minimum_vms", minimumVMs))
	}
	return info, nil
}

func (m *PoolManager) mutatePod(podID string, fn func(pod *domain.Pod) error) (domain.Pod, error) {
	p, err := m.poolOf(podID)
	if err != nil {
		return domain.Pod{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	pod, ok := p.pods[podID]
	if !ok {
		return domain.Pod{}, domain.ErrPodNotFound
	}
	if err := fn(pod); err != nil {
		return domain.Pod{}, err
	}
	return pod.Clone(), nil
}

func (m *PoolManager) pool(name string) (*podPool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pools[name]
	if !ok {
		return nil, domain.ErrPoolNotFound
	}
	return p, nil
}

func (m *PoolManager) poolOf(podID string) (*podPool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	name, ok := m.podIndex[podID]
	if !ok {
		return nil, domain.ErrPodNotFound
	}
	p, ok := m.pools[name]
	if !ok {
		return nil, domain.ErrPodNotFound
	}
	return p, nil
}

func (m *PoolManager) poolList() []*podPool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*podPool, 0, len(m.pools))
	for _, p := range m.pools {
		out = append(out, p)
	}
	return out
}

// newPod synthesizes a pod and indexes it. Caller holds the pool lock.
func (m *PoolManager) newPod(poolName string) *domain.Pod {
	id := uuid.NewString()
	subdomain := "pod-" + id[:8]
	fqdn := subdomain + "." + m.cfg.Domain

	pod := &domain.Pod{
		ID:          id,
		PoolName:    poolName,
		Subdomain:   subdomain,
		State:       domain.PodStateAvailable,
		UsageStatus: domain.UsageStatusFree,
		FQDN:        fqdn,
		URL:         "https://" + fqdn,
		PortMappings: map[string]string{
			"3000": fmt.Sprintf("https://%s-3000.%s", subdomain, m.cfg.Domain),
			"3355": fmt.Sprintf("https://%s-3355.%s", subdomain, m.cfg.Domain),
		},
		Password:     newPassword(),
		Repositories: []string{},
		Branches:     []string{},
		CreatedAt:    m.now(),
	}

	m.mu.Lock()
	m.podIndex[id] = poolName
	m.mu.Unlock()
	return pod
}

func (p *podPool) add(pod *domain.Pod) {
	p.pods[pod.ID] = pod
	p.order = append(p.order, pod.ID)
}

func (p *podPool) snapshotInfo() domain.Pool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.info
}

func newPassword() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand does not fail on supported platforms
		panic(err)
	}
	return hex.EncodeToString(b)
}
