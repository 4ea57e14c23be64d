package supervisor

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stackvisor/internal/config"
	"stackvisor/internal/health"
	"stackvisor/internal/models"
	"stackvisor/internal/registry"
	"stackvisor/internal/service"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func healthyServer(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"healthy"}`)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func neverHealthyServer(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"starting"}`)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func spec(role models.Role, command string, args ...string) config.ProcessSpec {
	return config.ProcessSpec{
		Role:        role,
		Command:     command,
		Args:        args,
		StopSignal:  "SIGTERM",
		StopTimeout: 2,
		StartSecs:   1,
	}
}

func newTestSupervisor(t *testing.T, devMode bool, apiURL string, stack *config.StackConfig) (*Supervisor, *service.ProcessManager, *registry.Registry) {
	t.Helper()

	cfg := &config.Config{
		DevMode: devMode,
		APIURL:  apiURL,
		RunDir:  t.TempDir(),
		LogDir:  t.TempDir(),
		Health: config.Backoff{
			MaxAttempts: 3,
			Interval:    20 * time.Millisecond,
		},
		StopRetries:  40,
		StopInterval: 50 * time.Millisecond,
	}

	bus := EventBus.New()
	reg := registry.New(cfg.RunDir)
	pm := service.NewProcessManager(stack, reg, bus, cfg.LogDir, zap.NewNop())
	t.Cleanup(pm.StopAll)
	checker := health.NewChecker(cfg.Health, zap.NewNop())

	return New(cfg, pm, reg, checker, bus, zap.NewNop()), pm, reg
}

// spawnForeign starts a process the supervisor did not launch, as if a
// previous coordinator run had left it behind, and records it.
func spawnForeign(t *testing.T, reg *registry.Registry, role models.Role) int {
	t.Helper()
	cmd := exec.Command("sleep", "60")
	require.NoError(t, cmd.Start())
	go cmd.Wait()
	t.Cleanup(func() { _ = cmd.Process.Kill() })

	require.NoError(t, reg.Save(registry.Record{Role: role, PID: cmd.Process.Pid}))
	return cmd.Process.Pid
}

func TestUpHappyPath(t *testing.T) {
	ts := healthyServer(t)
	stack := &config.StackConfig{Processes: []config.ProcessSpec{
		spec(models.RoleAPI, "sleep", "60"),
		spec(models.RoleUI, "sleep", "60"),
	}}

	sup, pm, reg := newTestSupervisor(t, false, ts.URL, stack)

	require.NoError(t, sup.Up(context.Background()))

	api, _ := pm.Process(models.RoleAPI)
	ui, _ := pm.Process(models.RoleUI)
	assert.Equal(t, service.StatusRunning, api.Status)
	assert.Equal(t, service.StatusRunning, ui.Status)

	_, ok := reg.Load(models.RoleAPI)
	assert.True(t, ok)
	_, ok = reg.Load(models.RoleUI)
	assert.True(t, ok)
}

func TestUpHealthTimeoutStopsAPI(t *testing.T) {
	ts := neverHealthyServer(t)
	stack := &config.StackConfig{Processes: []config.ProcessSpec{
		spec(models.RoleAPI, "sleep", "60"),
		spec(models.RoleUI, "sleep", "60"),
	}}

	sup, pm, reg := newTestSupervisor(t, false, ts.URL, stack)

	err := sup.Up(context.Background())
	require.ErrorIs(t, err, health.ErrNotHealthy)

	waitFor(t, 10*time.Second, func() bool {
		api, _ := pm.Process(models.RoleAPI)
		return api.Status == service.StatusStopped
	})

	waitFor(t, 5*time.Second, func() bool {
		_, ok := reg.Load(models.RoleAPI)
		return !ok
	})

	ui, _ := pm.Process(models.RoleUI)
	assert.Equal(t, service.StatusStopped, ui.Status, "ui must never be spawned on health timeout")
	_, ok := reg.Load(models.RoleUI)
	assert.False(t, ok)
}

func TestUpAPISpawnFailurePreventsUI(t *testing.T) {
	ts := healthyServer(t)
	stack := &config.StackConfig{Processes: []config.ProcessSpec{
		spec(models.RoleAPI, "/no/such/binary"),
		spec(models.RoleUI, "sleep", "60"),
	}}

	sup, pm, reg := newTestSupervisor(t, false, ts.URL, stack)

	require.Error(t, sup.Up(context.Background()))

	ui, _ := pm.Process(models.RoleUI)
	assert.Equal(t, service.StatusStopped, ui.Status)
	_, ok := reg.Load(models.RoleUI)
	assert.False(t, ok)
}

func TestUpUISpawnFailureLeavesAPIRunning(t *testing.T) {
	ts := healthyServer(t)
	stack := &config.StackConfig{Processes: []config.ProcessSpec{
		spec(models.RoleAPI, "sleep", "60"),
		spec(models.RoleUI, "/no/such/binary"),
	}}

	sup, pm, _ := newTestSupervisor(t, false, ts.URL, stack)

	require.Error(t, sup.Up(context.Background()))

	// The launcher has always left the API up when only the UI failed.
	api, _ := pm.Process(models.RoleAPI)
	assert.Equal(t, service.StatusRunning, api.Status)
}

func TestUpDevModeTearsDownRecordedProcesses(t *testing.T) {
	ts := healthyServer(t)
	stack := &config.StackConfig{Processes: []config.ProcessSpec{
		spec(models.RoleAPI, "sleep", "60"),
		spec(models.RoleUI, "sleep", "60"),
	}}

	sup, _, reg := newTestSupervisor(t, true, ts.URL, stack)
	foreignPid := spawnForeign(t, reg, models.RoleAPI)

	require.NoError(t, sup.Up(context.Background()))

	waitFor(t, 10*time.Second, func() bool { return !registry.Alive(foreignPid) })
}

func TestUpWithoutDevModeSkipsTeardown(t *testing.T) {
	ts := healthyServer(t)
	stack := &config.StackConfig{Processes: []config.ProcessSpec{
		spec(models.RoleAPI, "sleep", "60"),
		spec(models.RoleUI, "sleep", "60"),
	}}

	sup, _, reg := newTestSupervisor(t, false, ts.URL, stack)
	foreignPid := spawnForeign(t, reg, models.RoleAPI)

	require.NoError(t, sup.Up(context.Background()))

	assert.True(t, registry.Alive(foreignPid), "teardown must not run outside dev mode")
}

func TestStopRecordIsIdempotent(t *testing.T) {
	ts := healthyServer(t)
	stack := &config.StackConfig{Processes: []config.ProcessSpec{
		spec(models.RoleAPI, "sleep", "60"),
		spec(models.RoleUI, "sleep", "60"),
	}}

	sup, _, reg := newTestSupervisor(t, false, ts.URL, stack)
	pid := spawnForeign(t, reg, models.RoleAPI)
	rec, ok := reg.Load(models.RoleAPI)
	require.True(t, ok)

	require.NoError(t, sup.StopRecord(rec))
	assert.False(t, registry.Alive(pid))
	_, ok = reg.Load(models.RoleAPI)
	assert.False(t, ok, "record file must be gone")

	require.NoError(t, sup.StopRecord(rec), "second stop must not error")
	_, ok = reg.Load(models.RoleAPI)
	assert.False(t, ok)
}

func TestStopRecordDiscardsStaleRecord(t *testing.T) {
	ts := healthyServer(t)
	stack := &config.StackConfig{Processes: []config.ProcessSpec{
		spec(models.RoleAPI, "sleep", "60"),
		spec(models.RoleUI, "sleep", "60"),
	}}

	sup, _, reg := newTestSupervisor(t, false, ts.URL, stack)

	cmd := exec.Command("true")
	require.NoError(t, cmd.Run())
	require.NoError(t, reg.Save(registry.Record{Role: models.RoleAPI, PID: cmd.ProcessState.Pid()}))

	rec, ok := reg.Load(models.RoleAPI)
	require.True(t, ok)
	require.NoError(t, sup.StopRecord(rec))

	_, ok = reg.Load(models.RoleAPI)
	assert.False(t, ok)
}

func TestDownStopsRecordedStack(t *testing.T) {
	ts := healthyServer(t)
	stack := &config.StackConfig{Processes: []config.ProcessSpec{
		spec(models.RoleAPI, "sleep", "60"),
		spec(models.RoleUI, "sleep", "60"),
	}}

	sup, _, reg := newTestSupervisor(t, false, ts.URL, stack)
	apiPid := spawnForeign(t, reg, models.RoleAPI)
	uiPid := spawnForeign(t, reg, models.RoleUI)

	require.NoError(t, sup.Down())

	assert.False(t, registry.Alive(apiPid))
	assert.False(t, registry.Alive(uiPid))
	assert.Empty(t, reg.List())
}

func TestDownWithNothingRecorded(t *testing.T) {
	ts := healthyServer(t)
	stack := &config.StackConfig{Processes: []config.ProcessSpec{
		spec(models.RoleAPI, "sleep", "60"),
		spec(models.RoleUI, "sleep", "60"),
	}}

	sup, _, _ := newTestSupervisor(t, false, ts.URL, stack)
	assert.NoError(t, sup.Down())
}
