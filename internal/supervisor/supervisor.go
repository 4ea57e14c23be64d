// Package supervisor sequences the analytics stack: tear down leftovers,
// spawn the API, wait for it to report healthy, then spawn the UI.
package supervisor

import (
	"context"
	"fmt"
	"syscall"
	"time"

	"github.com/asaskevich/EventBus"
	"go.uber.org/zap"

	"stackvisor/internal/config"
	"stackvisor/internal/health"
	"stackvisor/internal/models"
	"stackvisor/internal/registry"
	"stackvisor/internal/service"
)

type Supervisor struct {
	cfg     *config.Config
	pm      *service.ProcessManager
	reg     *registry.Registry
	checker *health.Checker
	bus     EventBus.Bus
	logger  *zap.Logger
}

func New(cfg *config.Config, pm *service.ProcessManager, reg *registry.Registry, checker *health.Checker, bus EventBus.Bus, logger *zap.Logger) *Supervisor {
	return &Supervisor{
		cfg:     cfg,
		pm:      pm,
		reg:     reg,
		checker: checker,
		bus:     bus,
		logger:  logger,
	}
}

// Up runs the launch sequence. In dev mode it first tears down whatever a
// previous run left recorded. The API must report healthy before the UI is
// spawned; a health timeout stops the API and fails the whole startup.
// A UI spawn failure leaves the API running.
func (s *Supervisor) Up(ctx context.Context) error {
	if s.cfg.DevMode {
		s.logger.Info("dev mode: tearing down previously recorded processes")
		s.Teardown()
	}

	s.logger.Info("starting api process")
	if err := s.pm.Start(models.RoleAPI); err != nil {
		return fmt.Errorf("start api: %w", err)
	}

	s.logger.Info("waiting for api health",
		zap.String("url", s.cfg.APIURL),
		zap.Int("max_attempts", s.cfg.Health.MaxAttempts))

	if err := s.checker.Wait(ctx, s.cfg.APIURL); err != nil {
		s.logger.Error("api never became healthy, stopping it", zap.Error(err))
		s.bus.Publish(models.TopicProcessUnhealthy, models.Event{
			Role: models.RoleAPI,
			At:   time.Now(),
		})
		if stopErr := s.pm.Stop(models.RoleAPI); stopErr != nil {
			s.logger.Warn("cleanup of api failed", zap.Error(stopErr))
		}
		return fmt.Errorf("api health check: %w", err)
	}

	s.logger.Info("starting ui process")
	if err := s.pm.Start(models.RoleUI); err != nil {
		return fmt.Errorf("start ui: %w", err)
	}

	s.logger.Info("stack is up")
	return nil
}

// Teardown stops every process recorded on disk by a previous run. Stale
// records are discarded silently.
func (s *Supervisor) Teardown() {
	for _, rec := range s.reg.List() {
		if err := s.StopRecord(rec); err != nil {
			s.logger.Warn("teardown failed",
				zap.String("role", string(rec.Role)),
				zap.Int("pid", rec.PID),
				zap.Error(err))
		}
	}
}

// StopRecord stops the process a record points at. Idempotent: a dead or
// already-removed record only clears the file. A live process gets SIGTERM,
// a bounded liveness poll, and SIGKILL if the budget runs out.
func (s *Supervisor) StopRecord(rec registry.Record) error {
	if !registry.Alive(rec.PID) {
		return s.reg.Delete(rec.Role)
	}

	s.logger.Info("stopping recorded process",
		zap.String("role", string(rec.Role)),
		zap.Int("pid", rec.PID))

	if err := syscall.Kill(rec.PID, syscall.SIGTERM); err != nil {
		if !registry.Alive(rec.PID) {
			return s.reg.Delete(rec.Role)
		}
		return fmt.Errorf("signal %s (pid %d): %w", rec.Role, rec.PID, err)
	}

	for i := 0; i < s.cfg.StopRetries; i++ {
		if !registry.Alive(rec.PID) {
			return s.reg.Delete(rec.Role)
		}
		time.Sleep(s.cfg.StopInterval)
	}

	s.logger.Warn("process ignored SIGTERM, killing",
		zap.String("role", string(rec.Role)),
		zap.Int("pid", rec.PID))

	if err := syscall.Kill(rec.PID, syscall.SIGKILL); err != nil && registry.Alive(rec.PID) {
		return fmt.Errorf("kill %s (pid %d): %w", rec.Role, rec.PID, err)
	}

	return s.reg.Delete(rec.Role)
}

// Down stops the recorded stack, UI before API.
func (s *Supervisor) Down() error {
	recs := s.reg.Reconcile()
	if len(recs) == 0 {
		s.logger.Info("nothing recorded as running")
		return nil
	}

	var firstErr error
	for _, rec := range recs {
		if err := s.StopRecord(rec); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// WatchAndReload restarts the API whenever the watched source paths change.
// Blocks until the context is cancelled.
func (s *Supervisor) WatchAndReload(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	w, err := service.NewReloadWatcher(paths, 500*time.Millisecond, func() {
		s.logger.Info("source changed, restarting api")
		if err := s.pm.Restart(models.RoleAPI); err != nil {
			s.logger.Error("api reload failed", zap.Error(err))
		}
	}, s.logger)
	if err != nil {
		return err
	}
	defer w.Close()

	return w.Run(ctx)
}
