package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"stackvisor/internal/config"
	"stackvisor/internal/models"
	"stackvisor/internal/registry"
)

var (
	ErrProcessNotFound       = errors.New("process not found")
	ErrProcessAlreadyRunning = errors.New("process already running")
	ErrProcessNotRunning     = errors.New("process not running")
)

const (
	StatusStopped = "stopped"
	StatusRunning = "running"
)

// ProcessState is the manager's bookkeeping for one stack member.
type ProcessState struct {
	Spec      config.ProcessSpec
	Cmd       *exec.Cmd
	Status    string
	Pid       int
	LaunchID  string
	StartTime time.Time
	ExitCode  int
	LogPath   string

	cancel        context.CancelFunc
	exited        chan struct{}
	stopRequested bool
}

// ProcessManager spawns and supervises the stack's processes. Each spawn is
// recorded in the on-disk registry so a later coordinator run can tear the
// stack down; lifecycle transitions are published on the event bus.
type ProcessManager struct {
	mu        sync.RWMutex
	processes map[models.Role]*ProcessState
	logs      *LogBuffer
	reg       *registry.Registry
	bus       EventBus.Bus
	logger    *zap.Logger
	logDir    string
}

func NewProcessManager(stack *config.StackConfig, reg *registry.Registry, bus EventBus.Bus, logDir string, logger *zap.Logger) *ProcessManager {
	pm := &ProcessManager{
		processes: make(map[models.Role]*ProcessState),
		logs:      NewLogBuffer(1000),
		reg:       reg,
		bus:       bus,
		logger:    logger,
		logDir:    logDir,
	}

	for _, spec := range stack.Processes {
		pm.processes[spec.Role] = &ProcessState{
			Spec:   spec,
			Status: StatusStopped,
		}
	}

	return pm
}

// Logs exposes the in-memory log tail.
func (pm *ProcessManager) Logs() *LogBuffer { return pm.logs }

func (pm *ProcessManager) record(level, message string, role models.Role, launchID string) {
	entry := models.LogEntry{
		Timestamp: time.Now().Format(time.RFC3339),
		Level:     level,
		Message:   message,
		Role:      role,
		LaunchID:  launchID,
	}
	pm.logs.Add(entry)
	pm.bus.Publish(models.TopicLogEntry, entry)
}

// Start spawns the process for a role detached from the controlling
// terminal, with stdout/stderr redirected to its log file, and persists its
// registry record. Redirection goes straight to the file so the child keeps
// its output sink even if the coordinator exits first.
func (pm *ProcessManager) Start(role models.Role) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	state, ok := pm.processes[role]
	if !ok {
		return ErrProcessNotFound
	}
	if state.Status == StatusRunning {
		return ErrProcessAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())

	cmd := exec.CommandContext(ctx, state.Spec.Command, state.Spec.Args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if state.Spec.Directory != "" {
		cmd.Dir = state.Spec.Directory
	}
	if len(state.Spec.Environment) > 0 {
		cmd.Env = os.Environ()
		for k, v := range state.Spec.Environment {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
		}
	}

	logPath := state.Spec.Log
	if logPath == "" {
		logPath = filepath.Join(pm.logDir, string(role)+".log")
	}
	logFile, err := openLogFile(logPath)
	if err != nil {
		cancel()
		pm.record("error", fmt.Sprintf("cannot open log file for %s: %v", role, err), role, "")
		return err
	}
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	// Tail from where this launch starts appending.
	tailFrom, _ := logFile.Seek(0, io.SeekEnd)

	if err := cmd.Start(); err != nil {
		cancel()
		logFile.Close()
		pm.record("error", fmt.Sprintf("failed to start %s: %v", role, err), role, "")
		return err
	}

	// The child holds its own descriptor now.
	logFile.Close()

	state.Cmd = cmd
	state.cancel = cancel
	state.Status = StatusRunning
	state.Pid = cmd.Process.Pid
	state.LaunchID = uuid.NewString()
	state.StartTime = time.Now()
	state.ExitCode = 0
	state.LogPath = logPath
	state.exited = make(chan struct{})
	state.stopRequested = false

	if err := pm.reg.Save(registry.Record{
		Role:      role,
		PID:       state.Pid,
		LaunchID:  state.LaunchID,
		LogPath:   logPath,
		StartedAt: state.StartTime,
	}); err != nil {
		pm.logger.Warn("could not persist process record", zap.String("role", string(role)), zap.Error(err))
	}

	pm.record("info", fmt.Sprintf("%s started with pid %d", role, state.Pid), role, state.LaunchID)
	pm.bus.Publish(models.TopicProcessStarted, models.Event{
		Role:     role,
		Pid:      state.Pid,
		LaunchID: state.LaunchID,
		At:       state.StartTime,
	})

	go pm.tail(logPath, tailFrom, role, state.LaunchID, state.exited)
	go pm.monitor(role, state)

	return nil
}

// tail follows the process's log file and mirrors new lines into the
// in-memory buffer. It drains whatever is left after the process exits and
// then stops.
func (pm *ProcessManager) tail(path string, offset int64, role models.Role, launchID string, exited <-chan struct{}) {
	f, err := os.Open(path)
	if err != nil {
		pm.logger.Warn("cannot tail log file", zap.String("path", path), zap.Error(err))
		return
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return
	}

	reader := bufio.NewReader(f)
	var partial []byte
	done := false

	for {
		chunk, err := reader.ReadBytes('\n')
		partial = append(partial, chunk...)

		if err == nil {
			line := strings.TrimRight(string(partial), "\n")
			partial = partial[:0]
			pm.record("info", line, role, launchID)
			continue
		}

		if done {
			if len(partial) > 0 {
				pm.record("info", string(partial), role, launchID)
			}
			return
		}

		select {
		case <-exited:
			// One more pass to pick up the final lines.
			done = true
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func (pm *ProcessManager) monitor(role models.Role, state *ProcessState) {
	err := state.Cmd.Wait()

	pm.mu.Lock()

	if state.Cmd.ProcessState != nil {
		state.ExitCode = state.Cmd.ProcessState.ExitCode()
	}
	exitCode := state.ExitCode
	launchID := state.LaunchID
	pid := state.Pid

	state.Status = StatusStopped
	state.Pid = 0
	if state.exited != nil {
		close(state.exited)
		state.exited = nil
	}
	if state.cancel != nil {
		state.cancel()
		state.cancel = nil
	}

	restart := state.Spec.AutoRestart && !state.stopRequested
	startSecs := state.Spec.StartSecs

	pm.mu.Unlock()

	_ = pm.reg.Delete(role)

	if err != nil {
		pm.record("warning", fmt.Sprintf("%s exited with error: %v", role, err), role, launchID)
	} else {
		pm.record("info", fmt.Sprintf("%s exited normally", role), role, launchID)
	}

	pm.bus.Publish(models.TopicProcessExited, models.Event{
		Role:     role,
		Pid:      pid,
		LaunchID: launchID,
		ExitCode: exitCode,
		At:       time.Now(),
	})

	if restart {
		pm.record("info", fmt.Sprintf("auto-restarting %s in %ds", role, startSecs), role, launchID)
		time.Sleep(time.Duration(startSecs) * time.Second)
		if err := pm.Start(role); err != nil && !errors.Is(err, ErrProcessAlreadyRunning) {
			pm.record("error", fmt.Sprintf("auto-restart of %s failed: %v", role, err), role, launchID)
		}
	}
}

// Stop terminates a running process: configured stop signal first, then a
// bounded wait, then SIGKILL. The registry record is removed by the monitor
// goroutine once the process is confirmed gone.
func (pm *ProcessManager) Stop(role models.Role) error {
	pm.mu.Lock()

	state, ok := pm.processes[role]
	if !ok {
		pm.mu.Unlock()
		return ErrProcessNotFound
	}
	if state.Status != StatusRunning || state.Cmd == nil || state.Cmd.Process == nil {
		pm.mu.Unlock()
		return ErrProcessNotRunning
	}

	state.stopRequested = true
	cmd := state.Cmd
	pid := state.Pid
	launchID := state.LaunchID
	sig := stopSignal(state.Spec.StopSignal)
	timeout := time.Duration(state.Spec.StopTimeout) * time.Second

	pm.mu.Unlock()

	pm.record("info", fmt.Sprintf("sending %s to %s (pid %d)", state.Spec.StopSignal, role, pid), role, launchID)

	if err := cmd.Process.Signal(sig); err != nil {
		pm.record("error", fmt.Sprintf("failed to signal %s: %v", role, err), role, launchID)
		return err
	}

	done := make(chan struct{})
	go func() {
		for registry.Alive(pid) {
			time.Sleep(100 * time.Millisecond)
		}
		close(done)
	}()

	select {
	case <-done:
		pm.record("info", fmt.Sprintf("%s stopped", role), role, launchID)
	case <-time.After(timeout):
		pm.record("warning", fmt.Sprintf("%s did not stop in time, killing", role), role, launchID)
		_ = cmd.Process.Kill()
	}

	return nil
}

// Restart stops the process if running and starts it again.
func (pm *ProcessManager) Restart(role models.Role) error {
	if err := pm.Stop(role); err != nil && !errors.Is(err, ErrProcessNotRunning) {
		return err
	}

	// Give the monitor goroutine a moment to observe the exit.
	for i := 0; i < 50; i++ {
		pm.mu.RLock()
		stopped := pm.processes[role] != nil && pm.processes[role].Status == StatusStopped
		pm.mu.RUnlock()
		if stopped {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	err := pm.Start(role)
	if errors.Is(err, ErrProcessAlreadyRunning) {
		return nil
	}
	return err
}

// StopAll stops the UI before the API so the dashboard never outlives its
// backend.
func (pm *ProcessManager) StopAll() {
	for _, role := range []models.Role{models.RoleUI, models.RoleAPI} {
		if err := pm.Stop(role); err != nil && !errors.Is(err, ErrProcessNotRunning) && !errors.Is(err, ErrProcessNotFound) {
			pm.logger.Error("failed to stop process", zap.String("role", string(role)), zap.Error(err))
		}
	}
}

// Processes returns a status snapshot of every managed role.
func (pm *ProcessManager) Processes() []models.Process {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	result := make([]models.Process, 0, len(pm.processes))
	for _, role := range []models.Role{models.RoleAPI, models.RoleUI} {
		state, ok := pm.processes[role]
		if !ok {
			continue
		}
		result = append(result, pm.snapshot(role, state))
	}
	return result
}

// Process returns the status snapshot for one role.
func (pm *ProcessManager) Process(role models.Role) (models.Process, bool) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	state, ok := pm.processes[role]
	if !ok {
		return models.Process{}, false
	}
	return pm.snapshot(role, state), true
}

func (pm *ProcessManager) snapshot(role models.Role, state *ProcessState) models.Process {
	uptime := "n/a"
	memory := "n/a"
	cpu := "n/a"

	if state.Status == StatusRunning {
		if !state.StartTime.IsZero() {
			uptime = formatDuration(time.Since(state.StartTime))
		}
		if state.Pid > 0 {
			memory, cpu = resourceSample(state.Pid)
		}
	}

	return models.Process{
		Role:     role,
		Status:   state.Status,
		Pid:      state.Pid,
		LaunchID: state.LaunchID,
		Uptime:   uptime,
		Memory:   memory,
		CPU:      cpu,
		LogPath:  state.LogPath,
	}
}

func stopSignal(name string) syscall.Signal {
	switch name {
	case "SIGKILL":
		return syscall.SIGKILL
	case "SIGINT":
		return syscall.SIGINT
	default:
		return syscall.SIGTERM
	}
}

func openLogFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}
