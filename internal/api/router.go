package api

import (
	"io/fs"
	"net/http"

	"github.com/asaskevich/EventBus"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"stackvisor/internal/config"
	"stackvisor/internal/handlers"
	"stackvisor/internal/middleware"
	"stackvisor/internal/service"
)

type Router struct {
	*mux.Router
}

// NewRouter wires the supervisor's control surface: health probes, the
// embedded status page, the process API, and log streaming.
func NewRouter(cfg *config.Config, pm *service.ProcessManager, bus EventBus.Bus, templatesFS, staticFS fs.FS, logger *zap.Logger) (*Router, error) {
	r := mux.NewRouter()

	tmplHandler, err := handlers.NewTemplateHandler(templatesFS, pm, cfg.APIURL, cfg.DevMode, logger)
	if err != nil {
		return nil, err
	}

	procHandler := handlers.NewProcessHandler(pm, logger)
	wsHandler := handlers.NewLogStreamHandler(bus, logger)

	r.HandleFunc("/health", handlers.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/ready", handlers.ReadyCheck).Methods(http.MethodGet)

	r.HandleFunc("/", tmplHandler.StatusPage).Methods(http.MethodGet)

	staticHandler := http.FileServer(http.FS(staticFS))
	r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", staticHandler))

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/processes", procHandler.GetProcesses).Methods(http.MethodGet)
	api.HandleFunc("/processes/{role}", procHandler.GetProcess).Methods(http.MethodGet)
	api.HandleFunc("/processes/{role}/start", procHandler.StartProcess).Methods(http.MethodPost)
	api.HandleFunc("/processes/{role}/stop", procHandler.StopProcess).Methods(http.MethodPost)
	api.HandleFunc("/processes/{role}/restart", procHandler.RestartProcess).Methods(http.MethodPost)
	api.HandleFunc("/logs", procHandler.GetLogs).Methods(http.MethodGet)
	api.HandleFunc("/logs/ws", wsHandler.Stream).Methods(http.MethodGet)
	api.HandleFunc("/logs/{role}", procHandler.GetProcessLogs).Methods(http.MethodGet)

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logging(logger))

	return &Router{Router: r}, nil
}
