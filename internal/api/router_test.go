package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stackvisor/internal/config"
	"stackvisor/internal/models"
	"stackvisor/internal/registry"
	"stackvisor/internal/service"
	"stackvisor/web"
)

func newTestRouter(t *testing.T) (*Router, *service.ProcessManager) {
	t.Helper()

	cfg := &config.Config{
		APIURL: "http://localhost:8000",
		RunDir: t.TempDir(),
		LogDir: t.TempDir(),
		Health: config.Backoff{MaxAttempts: 1, Interval: time.Millisecond},
	}

	stack := &config.StackConfig{Processes: []config.ProcessSpec{
		{Role: models.RoleAPI, Command: "sleep", Args: []string{"60"}, StopSignal: "SIGTERM", StopTimeout: 2, StartSecs: 1},
		{Role: models.RoleUI, Command: "sleep", Args: []string{"60"}, StopSignal: "SIGTERM", StopTimeout: 2, StartSecs: 1},
	}}

	bus := EventBus.New()
	reg := registry.New(cfg.RunDir)
	pm := service.NewProcessManager(stack, reg, bus, cfg.LogDir, zap.NewNop())
	t.Cleanup(pm.StopAll)

	router, err := NewRouter(cfg, pm, bus, web.GetTemplatesFS(), web.GetStaticFS(), zap.NewNop())
	require.NoError(t, err)
	return router, pm
}

func do(t *testing.T, router *Router, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestHealthEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := do(t, router, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "healthy")

	rr = do(t, router, http.MethodGet, "/ready")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "ready")
}

func TestStatusPageRenders(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := do(t, router, http.MethodGet, "/")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "stackvisor")
	assert.Contains(t, rr.Body.String(), "api")
}

func TestListProcesses(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := do(t, router, http.MethodGet, "/api/processes")
	require.Equal(t, http.StatusOK, rr.Code)

	var procs []models.Process
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &procs))
	require.Len(t, procs, 2)
	assert.Equal(t, models.RoleAPI, procs[0].Role)
	assert.Equal(t, models.RoleUI, procs[1].Role)
}

func TestStartStopLifecycle(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := do(t, router, http.MethodPost, "/api/processes/api/start")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, router, http.MethodPost, "/api/processes/api/start")
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, router, http.MethodPost, "/api/processes/api/stop")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestUnknownRoleIs404(t *testing.T) {
	router, _ := newTestRouter(t)

	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodPost, "/api/processes/worker/start").Code)
	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/api/processes/worker").Code)
}

func TestStopWhenNotRunningIs409(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := do(t, router, http.MethodPost, "/api/processes/ui/stop")
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestLogsEndpoint(t *testing.T) {
	router, pm := newTestRouter(t)
	pm.Logs().Add(models.LogEntry{Message: "hello", Role: models.RoleAPI, Level: "info"})

	rr := do(t, router, http.MethodGet, "/api/logs")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "hello")

	rr = do(t, router, http.MethodGet, "/api/logs/api?limit=10")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "hello")

	rr = do(t, router, http.MethodGet, "/api/logs/ui")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), "hello")
}
