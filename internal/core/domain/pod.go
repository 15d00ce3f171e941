package domain

import (
	"path"
	"strings"
	"time"
)

type PodState string

const (
	PodStateAvailable PodState = "available"
	PodStateClaimed   PodState = "claimed"
)

type UsageStatus string

const (
	UsageStatusFree UsageStatus = "free"
	UsageStatusUsed UsageStatus = "used"
)

// ResourceUsage is the last observed utilisation of a pod, in percent.
type ResourceUsage struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	DiskPercent   float64 `json:"disk_percent"`
}

// Pod represents an ephemeral developer sandbox that workspaces claim and release
type Pod struct {
	ID            string            `json:"id"`
	PoolName      string            `json:"pool_name"`
	Subdomain     string            `json:"subdomain"`
	State         PodState          `json:"state"`
	UsageStatus   UsageStatus       `json:"usage_status"`
	ClaimedBy     string            `json:"claimed_by,omitempty"` // Workspace ID
	ClaimedAt     *time.Time        `json:"claimed_at,omitempty"`
	Repositories  []string          `json:"repositories"`
	Branches      []string          `json:"branches"`
	PrimaryRepo   string            `json:"primary_repo"`
	RepoName      string            `json:"repo_name"`
	FQDN          string            `json:"fqdn"`
	URL           string            `json:"url"`
	PortMappings  map[string]string `json:"port_mappings"`
	Password      string            `json:"password"`
	ResourceUsage ResourceUsage     `json:"resource_usage"`
	CreatedAt     time.Time         `json:"created_at"`
}

// IsClaimed reports whether a workspace currently holds the pod
func (p *Pod) IsClaimed() bool {
	return p.State == PodStateClaimed
}

// Claim marks the pod as in use by claimantID
func (p *Pod) Claim(claimantID string, at time.Time) {
	p.State = PodStateClaimed
	p.UsageStatus = UsageStatusUsed
	p.ClaimedBy = claimantID
	p.ClaimedAt = &at
}

// Release returns the pod to the free state and drops every per-claim field.
// Network identity and credentials survive so the pod can be reused as is.
func (p *Pod) Release() {
	p.State = PodStateAvailable
	p.UsageStatus = UsageStatusFree
	p.ClaimedBy = ""
	p.ClaimedAt = nil
	p.Repositories = []string{}
	p.Branches = []string{}
	p.PrimaryRepo = ""
	p.RepoName = ""
	p.ResourceUsage = ResourceUsage{}
}

// SetRepositories stores repos and derives the primary repository fields from the first entry
func (p *Pod) SetRepositories(repos []string) {
	p.Repositories = append([]string{}, repos...)
	if len(repos) == 0 {
		p.PrimaryRepo = ""
		p.RepoName = ""
		return
	}
	p.PrimaryRepo = repos[0]
	p.RepoName = RepoNameFromURL(repos[0])
}

// Clone returns a deep copy safe to hand out of a lock
func (p *Pod) Clone() Pod {
	out := *p
	out.Repositories = append([]string{}, p.Repositories...)
	out.Branches = append([]string{}, p.Branches...)
	if p.ClaimedAt != nil {
		at := *p.ClaimedAt
		out.ClaimedAt = &at
	}
	out.PortMappings = make(map[string]string, len(p.PortMappings))
	for k, v := range p.PortMappings {
		out.PortMappings[k] = v
	}
	return out
}

// RepoNameFromURL returns the short repository name, e.g. "hive" for
// "https://github.com/stakwork/hive.git".
func RepoNameFromURL(repo string) string {
	repo = strings.TrimSpace(repo)
	repo = strings.TrimRight(repo, "/")
	if repo == "" {
		return ""
	}
	if i := strings.LastIndex(repo, ":"); i >= 0 && !strings.Contains(repo, "://") {
		// scp-like git@github.com:org/repo.git
		repo = repo[i+1:]
	}
	return strings.TrimSuffix(path.Base(repo), ".git")
}
