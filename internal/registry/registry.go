// Package registry is the coordinator's on-disk process table: one record
// file per supervised role, written at spawn time and removed once the
// process is confirmed stopped.
package registry

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"stackvisor/internal/models"
)

// Record is what the coordinator persists for a spawned process.
type Record struct {
	Role      models.Role `yaml:"role"`
	PID       int         `yaml:"pid"`
	LaunchID  string      `yaml:"launch_id,omitempty"`
	LogPath   string      `yaml:"log_path,omitempty"`
	StartedAt time.Time   `yaml:"started_at,omitempty"`
}

// Registry stores records under a fixed run directory.
type Registry struct {
	dir string
}

func New(dir string) *Registry {
	return &Registry{dir: dir}
}

// Dir returns the run directory backing the registry.
func (r *Registry) Dir() string { return r.dir }

func (r *Registry) path(role models.Role) string {
	return filepath.Join(r.dir, string(role)+".pid")
}

// Save writes the record for its role, replacing any previous one.
func (r *Registry) Save(rec Record) error {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(rec)
	if err != nil {
		return err
	}
	return os.WriteFile(r.path(rec.Role), data, 0o644)
}

// Load returns the record for a role. A missing or unparsable record file is
// not an error; ok is false. Record files written by the old shell launcher
// hold a bare PID and are accepted as well.
func (r *Registry) Load(role models.Role) (Record, bool) {
	data, err := os.ReadFile(r.path(role))
	if err != nil {
		return Record{}, false
	}

	if pid, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil {
		return Record{Role: role, PID: pid}, true
	}

	var rec Record
	if err := yaml.Unmarshal(data, &rec); err != nil || rec.PID <= 0 {
		return Record{}, false
	}
	rec.Role = role
	return rec, true
}

// Delete removes the record file for a role. Deleting a record that does not
// exist is not an error.
func (r *Registry) Delete(role models.Role) error {
	err := os.Remove(r.path(role))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// List returns every readable record in the run directory, UI before API so
// teardown naturally stops the dependent process first.
func (r *Registry) List() []Record {
	var out []Record
	for _, role := range []models.Role{models.RoleUI, models.RoleAPI} {
		if rec, ok := r.Load(role); ok {
			out = append(out, rec)
		}
	}
	return out
}

// Reconcile drops records whose process is no longer alive and returns the
// surviving ones. Called once on startup so the table reflects reality rather
// than whatever files a crashed run left behind.
func (r *Registry) Reconcile() []Record {
	var live []Record
	for _, rec := range r.List() {
		if !Alive(rec.PID) {
			_ = r.Delete(rec.Role)
			continue
		}
		live = append(live, rec)
	}
	return live
}

// Alive reports whether a process with the given PID exists. Signal 0 probes
// existence without delivering anything; EPERM still means the PID is taken.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}
