package handlers

import (
	"html/template"
	"io/fs"
	"net/http"

	"go.uber.org/zap"

	"stackvisor/internal/models"
	"stackvisor/internal/service"
)

type PageData struct {
	Title     string
	APIURL    string
	DevMode   bool
	Running   int
	Total     int
	Processes []models.Process
	Logs      []models.LogEntry
}

type TemplateHandler struct {
	templates *template.Template
	pm        *service.ProcessManager
	apiURL    string
	devMode   bool
	logger    *zap.Logger
}

func NewTemplateHandler(templatesFS fs.FS, pm *service.ProcessManager, apiURL string, devMode bool, logger *zap.Logger) (*TemplateHandler, error) {
	tmpl, err := template.ParseFS(templatesFS, "*.html")
	if err != nil {
		return nil, err
	}

	return &TemplateHandler{
		templates: tmpl,
		pm:        pm,
		apiURL:    apiURL,
		devMode:   devMode,
		logger:    logger,
	}, nil
}

// StatusPage renders the embedded dashboard.
func (th *TemplateHandler) StatusPage(w http.ResponseWriter, r *http.Request) {
	processes := th.pm.Processes()

	running := 0
	for _, p := range processes {
		if p.Status == service.StatusRunning {
			running++
		}
	}

	data := PageData{
		Title:     "stackvisor",
		APIURL:    th.apiURL,
		DevMode:   th.devMode,
		Running:   running,
		Total:     len(processes),
		Processes: processes,
		Logs:      th.pm.Logs().Last(25),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := th.templates.ExecuteTemplate(w, "status.html", data); err != nil {
		th.logger.Error("rendering status page", zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
