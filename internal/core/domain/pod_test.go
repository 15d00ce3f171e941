package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRepoNameFromURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://github.com/stakwork/hive.git", "hive"},
		{"https://github.com/stakwork/hive", "hive"},
		{"https://github.com/stakwork/hive/", "hive"},
		{"git@github.com:stakwork/sphinx-tribes.git", "sphinx-tribes"},
		{"hive", "hive"},
		{"", ""},
		{"   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, RepoNameFromURL(tt.in))
		})
	}
}

func TestPod_SetRepositories(t *testing.T) {
	pod := &Pod{}

	pod.SetRepositories([]string{"https://github.com/org/first.git", "https://github.com/org/second"})
	assert.Equal(t, "https://github.com/org/first.git", pod.PrimaryRepo)
	assert.Equal(t, "first", pod.RepoName)
	assert.Len(t, pod.Repositories, 2)

	pod.SetRepositories([]string{})
	assert.Equal(t, "", pod.PrimaryRepo)
	assert.Equal(t, "", pod.RepoName)
	assert.Empty(t, pod.Repositories)
}

func TestPod_ReleaseClearsClaim(t *testing.T) {
	pod := &Pod{ID: "p1", Password: "secret", FQDN: "p1.example"}
	pod.Claim("ws-1", time.Now())
	pod.SetRepositories([]string{"https://github.com/org/repo"})
	pod.Branches = []string{"main"}
	pod.ResourceUsage = ResourceUsage{CPUPercent: 70, MemoryPercent: 40, DiskPercent: 5}

	pod.Release()

	assert.Equal(t, PodStateAvailable, pod.State)
	assert.Equal(t, UsageStatusFree, pod.UsageStatus)
	assert.Empty(t, pod.ClaimedBy)
	assert.Nil(t, pod.ClaimedAt)
	assert.Empty(t, pod.Repositories)
	assert.Empty(t, pod.Branches)
	assert.Empty(t, pod.PrimaryRepo)
	assert.Empty(t, pod.RepoName)
	assert.Zero(t, pod.ResourceUsage)
	assert.Equal(t, "p1", pod.ID)
	assert.Equal(t, "secret", pod.Password)
	assert.Equal(t, "p1.example", pod.FQDN)
}

func TestPod_CloneIsDeep(t *testing.T) {
	pod := &Pod{
		Repositories: []string{"a"},
		PortMappings: map[string]string{"3000": "x"},
	}
	pod.Claim("ws", time.Now())

	c := pod.Clone()
	c.Repositories[0] = "b"
	c.PortMappings["3000"] = "y"
	*c.ClaimedAt = time.Time{}

	assert.Equal(t, "a", pod.Repositories[0])
	assert.Equal(t, "x", pod.PortMappings["3000"])
	assert.False(t, pod.ClaimedAt.IsZero())
}

func TestNotFoundErrorsMatchSentinel(t *testing.T) {
	for _, err := range []error{ErrPoolNotFound, ErrPodNotFound, ErrTaskNotFound, ErrRunNotFound, ErrWorkspaceNotFound} {
		assert.True(t, errors.Is(err, ErrNotFound), err.Error())
		assert.True(t, errors.Is(fmt.Errorf("wrapped: %w", err), ErrNotFound))
	}
	assert.False(t, errors.Is(ErrPoolNotFound, ErrPodNotFound))
	assert.Equal(t, "Pool not found", ErrPoolNotFound.Error())
}

func TestRole_AtLeast(t *testing.T) {
	assert.True(t, RoleSuperAdmin.AtLeast(RoleAdmin))
	assert.True(t, RoleAdmin.AtLeast(RoleAdmin))
	assert.False(t, RoleDeveloper.AtLeast(RoleAdmin))
	assert.False(t, Role("").AtLeast(RoleViewer))
	assert.Equal(t, RoleSuperAdmin, ParseRole("super_admin"))
	assert.Equal(t, Role(""), ParseRole("root"))
}
