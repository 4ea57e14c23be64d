package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"stackvisor/internal/models"
)

// ProcessSpec describes how one stack member is launched and stopped.
type ProcessSpec struct {
	Role        models.Role       `yaml:"role"`
	Command     string            `yaml:"command"`
	Args        []string          `yaml:"args,omitempty"`
	Directory   string            `yaml:"directory,omitempty"`
	Environment map[string]string `yaml:"environment,omitempty"`
	AutoRestart bool              `yaml:"autorestart"`
	StartSecs   int               `yaml:"startsecs,omitempty"`
	StopSignal  string            `yaml:"stopsignal,omitempty"`
	StopTimeout int               `yaml:"stoptimeout,omitempty"`
	Log         string            `yaml:"log,omitempty"`
	WatchPaths  []string          `yaml:"watch,omitempty"`
}

// StackConfig is the optional stackvisor.yaml overriding the built-in
// API/UI process definitions.
type StackConfig struct {
	Processes []ProcessSpec `yaml:"processes"`
}

// ByRole returns the spec for the given role.
func (s *StackConfig) ByRole(role models.Role) (ProcessSpec, bool) {
	for _, p := range s.Processes {
		if p.Role == role {
			return p, true
		}
	}
	return ProcessSpec{}, false
}

// LoadStackConfig parses a YAML stack file and fills per-process defaults.
func LoadStackConfig(path string) (*StackConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg StackConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	for i := range cfg.Processes {
		if !cfg.Processes[i].Role.Valid() {
			return nil, fmt.Errorf("unknown process role %q", cfg.Processes[i].Role)
		}
		applyDefaults(&cfg.Processes[i])
	}

	return &cfg, nil
}

func applyDefaults(p *ProcessSpec) {
	if p.StopSignal == "" {
		p.StopSignal = "SIGTERM"
	}
	if p.StopTimeout == 0 {
		p.StopTimeout = 10
	}
	if p.StartSecs == 0 {
		p.StartSecs = 1
	}
}

// DefaultStack is what the original launcher started: a uvicorn backend and a
// Streamlit dashboard. Dev mode adds uvicorn's auto-reload flag; the fsnotify
// watcher covers restarts the reloader misses (config files, templates).
func (c *Config) DefaultStack() *StackConfig {
	apiArgs := []string{"backend.app:app", "--host", "0.0.0.0", "--port", "8000"}
	if c.DevMode {
		apiArgs = append(apiArgs, "--reload")
	}

	api := ProcessSpec{
		Role:    models.RoleAPI,
		Command: "uvicorn",
		Args:    apiArgs,
		Environment: map[string]string{
			"API_URL": c.APIURL,
		},
		WatchPaths: []string{"backend"},
	}

	ui := ProcessSpec{
		Role:    models.RoleUI,
		Command: "streamlit",
		Args:    []string{"run", "frontend/app.py"},
		Environment: map[string]string{
			"API_URL":                   c.APIURL,
			"STREAMLIT_SERVER_ADDRESS":  c.UIAddress,
			"STREAMLIT_SERVER_PORT":     strconv.Itoa(c.UIPort),
			"STREAMLIT_SERVER_HEADLESS": "true",
		},
	}

	applyDefaults(&api)
	applyDefaults(&ui)

	return &StackConfig{Processes: []ProcessSpec{api, ui}}
}
