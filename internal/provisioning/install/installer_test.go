package install

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/stackfleet/internal/fleet"
	"github.com/imamik/stackfleet/internal/provisioning"
	sftest "github.com/imamik/stackfleet/internal/testing"
	"github.com/imamik/stackfleet/internal/util/ptr"
)

// call records what one installer invocation saw on disk.
type call struct {
	dir       string
	env       []string
	name      string
	args      []string
	hosts     string
	payload   []string
	startedAt time.Time
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []call
	fail  func(env []string) error
}

func (f *fakeRunner) Run(_ context.Context, dir string, env []string, name string, args ...string) error {
	c := call{dir: dir, env: env, name: name, args: args, startedAt: time.Now()}
	if data, err := os.ReadFile(args[0]); err == nil {
		c.hosts = string(data)
	}
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		c.payload = append(c.payload, e.Name())
	}

	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()

	if f.fail != nil {
		return f.fail(env)
	}
	return nil
}

func (f *fakeRunner) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

func envValue(env []string, key string) string {
	for _, kv := range env {
		if v, ok := strings.CutPrefix(kv, key+"="); ok {
			return v
		}
	}
	return ""
}

func dirPayload(t *testing.T) *Payload {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "install.sh"), []byte("#!/bin/sh\n"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "roles"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "roles", "main.yml"), []byte("x"), 0o644))
	return &Payload{Path: dir, Entrypoint: "install.sh", dir: true}
}

func groups(n, size int) []fleet.CloudGroup {
	fx := sftest.NewFleetFixture("nancy")
	hosts := fx.Hosts(n*size, 3)
	out := make([]fleet.CloudGroup, n)
	for i := range n {
		out[i] = fx.Group(i+1, hosts[i*size:(i+1)*size]...)
	}
	return out
}

func TestInstallAll_OneResultPerGroup(t *testing.T) {
	t.Parallel()
	staging := t.TempDir()
	runner := &fakeRunner{}
	installer := NewInstaller(runner, dirPayload(t), staging, 0)

	results := installer.InstallAll(sftest.TestContext(t), groups(3, 2))

	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, i+1, r.Group.Ordinal)
		assert.True(t, r.OK())
		assert.True(t, strings.HasPrefix(r.ScratchID, fmt.Sprintf("g%d-", i+1)), r.ScratchID)
	}
	assert.Len(t, runner.Calls(), 3)
}

func TestInstallAll_ScratchIDsAreUnique(t *testing.T) {
	t.Parallel()
	installer := NewInstaller(&fakeRunner{}, dirPayload(t), t.TempDir(), 0)

	results := installer.InstallAll(sftest.TestContext(t), groups(20, 1))

	seen := make(map[string]bool)
	for _, r := range results {
		require.NotEmpty(t, r.ScratchID)
		assert.False(t, seen[r.ScratchID], "duplicate scratch id %s", r.ScratchID)
		seen[r.ScratchID] = true
	}
}

func TestInstall_StagesHostsAndPayload(t *testing.T) {
	t.Parallel()
	staging := t.TempDir()
	runner := &fakeRunner{}
	group := groups(1, 2)[0]

	scratch, err := NewInstaller(runner, dirPayload(t), staging, 0).Install(sftest.TestContext(t), group)
	require.NoError(t, err)

	calls := runner.Calls()
	require.Len(t, calls, 1)
	c := calls[0]

	workspace := filepath.Join(staging, scratch)
	assert.Equal(t, filepath.Join(workspace, "payload"), c.dir)
	assert.Equal(t, filepath.Join(workspace, "payload", "install.sh"), c.name)
	assert.Equal(t, []string{filepath.Join(workspace, "hosts")}, c.args)
	assert.Equal(t, strings.Join(group.Addresses(), "\n")+"\n", c.hosts)
	assert.ElementsMatch(t, []string{"install.sh", "roles"}, c.payload)

	assert.Equal(t, "1", envValue(c.env, EnvGroup))
	assert.Equal(t, scratch, envValue(c.env, EnvScratchID))
	assert.Equal(t, filepath.Join(workspace, "hosts"), envValue(c.env, EnvHostsFile))
}

func TestInstall_RemovesWorkspaceOnEveryPath(t *testing.T) {
	t.Parallel()
	staging := t.TempDir()
	boom := errors.New("installer crashed")
	runner := &fakeRunner{fail: func(env []string) error {
		if envValue(env, EnvGroup) == "2" {
			return boom
		}
		return nil
	}}
	payload := dirPayload(t)

	results := NewInstaller(runner, payload, staging, 0).InstallAll(sftest.TestContext(t), groups(3, 1))

	assert.True(t, results[0].OK())
	require.ErrorIs(t, results[1].Err, boom)
	assert.True(t, results[2].OK())

	entries, err := os.ReadDir(staging)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch workspaces must be removed")

	_, err = os.Stat(filepath.Join(payload.Path, "install.sh"))
	assert.NoError(t, err, "payload source must stay in place")
}

func TestInstall_ScratchFailure(t *testing.T) {
	t.Parallel()
	runner := &fakeRunner{}
	installer := NewInstaller(runner, dirPayload(t), t.TempDir(), 0)
	installer.newScratch = func(int) (string, error) { return "", errors.New("entropy exhausted") }

	_, err := installer.Install(sftest.TestContext(t), groups(1, 1)[0])

	require.Error(t, err)
	assert.Empty(t, runner.Calls())
}

func TestInstall_SingleFilePayload(t *testing.T) {
	t.Parallel()
	src := filepath.Join(t.TempDir(), "setup.sh")
	require.NoError(t, os.WriteFile(src, []byte("#!/bin/sh\n"), 0o644))
	runner := &fakeRunner{}

	scratch, err := NewInstaller(runner, &Payload{Path: src, Entrypoint: "setup.sh"}, t.TempDir(), 0).
		Install(sftest.TestContext(t), groups(1, 1)[0])
	require.NoError(t, err)

	c := runner.Calls()[0]
	assert.Equal(t, []string{"setup.sh"}, c.payload)
	assert.True(t, strings.HasSuffix(c.name, filepath.Join(scratch, "payload", "setup.sh")))
}

func TestInstallAll_StaggersLaunches(t *testing.T) {
	t.Parallel()
	delay := 30 * time.Millisecond
	runner := &fakeRunner{}

	NewInstaller(runner, dirPayload(t), t.TempDir(), delay).InstallAll(sftest.TestContext(t), groups(3, 1))

	calls := runner.Calls()
	require.Len(t, calls, 3)
	slices.SortFunc(calls, func(a, b call) int { return a.startedAt.Compare(b.startedAt) })
	assert.GreaterOrEqual(t, calls[1].startedAt.Sub(calls[0].startedAt), delay)
	assert.GreaterOrEqual(t, calls[2].startedAt.Sub(calls[1].startedAt), delay)
}

func TestInstallAll_CancelledDuringStagger(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(sftest.TestContext(t))
	runner := &fakeRunner{fail: func([]string) error { cancel(); return nil }}

	results := NewInstaller(runner, dirPayload(t), t.TempDir(), time.Minute).InstallAll(ctx, groups(3, 1))

	assert.True(t, results[0].OK())
	assert.ErrorIs(t, results[1].Err, context.Canceled)
	assert.ErrorIs(t, results[2].Err, context.Canceled)
	assert.Len(t, runner.Calls(), 1)
}

func TestInstallAll_EmitsGroupEvents(t *testing.T) {
	t.Parallel()
	observer := &provisioning.RecordingObserver{}

	NewInstaller(&fakeRunner{}, dirPayload(t), t.TempDir(), 0, WithObserver(observer)).
		InstallAll(sftest.TestContext(t), groups(2, 1))

	events := observer.Events()
	require.Len(t, events, 2)
	var ordinals []int
	for _, e := range events {
		assert.Equal(t, provisioning.EventGroupInstalled, e.Type)
		assert.NotEmpty(t, e.Fields["scratch"])
		ordinals = append(ordinals, e.Group)
	}
	assert.ElementsMatch(t, []int{1, 2}, ordinals)
}

func TestProvisioner_StoresResults(t *testing.T) {
	t.Parallel()
	payload := dirPayload(t)
	cfg := sftest.NewConfigBuilder().WithPayload(payload.Path, t.TempDir()).Build()
	cfg.Installer.Entrypoint = "install.sh"
	cfg.Installer.LaunchDelay = ptr.To(time.Duration(0))
	cfg.Installer.RequiredTools = []string{"sh"}

	runner := &fakeRunner{fail: func(env []string) error {
		if envValue(env, EnvGroup) == "1" {
			return errors.New("boom")
		}
		return nil
	}}
	ctx := provisioning.NewContext(sftest.TestContext(t), cfg, provisioning.Dependencies{Runner: runner})
	ctx.State.Groups = groups(2, 1)

	require.NoError(t, NewProvisioner().Provision(ctx))
	require.Len(t, ctx.State.Installs, 2)
	assert.False(t, ctx.State.Installs[0].OK())
	assert.True(t, ctx.State.Installs[1].OK())
}

func TestProvisioner_MissingTool(t *testing.T) {
	t.Parallel()
	cfg := sftest.NewConfigBuilder().WithPayload(dirPayload(t).Path, t.TempDir()).Build()
	cfg.Installer.RequiredTools = []string{"nonexistent-tool-xyz123"}

	ctx := provisioning.NewContext(sftest.TestContext(t), cfg, provisioning.Dependencies{Runner: &fakeRunner{}})
	err := NewProvisioner().Provision(ctx)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "nonexistent-tool-xyz123")
}
