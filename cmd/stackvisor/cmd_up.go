package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"stackvisor/internal/api"
	"stackvisor/internal/health"
	"stackvisor/internal/models"
	"stackvisor/internal/registry"
	"stackvisor/internal/service"
	"stackvisor/internal/supervisor"
	"stackvisor/web"
)

var detach bool

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Launch the stack: API first, health check, then UI",
	Args:  cobra.NoArgs,
	RunE:  runUp,
}

func init() {
	upCmd.Flags().BoolVar(&detach, "detach", false, "Exit after a successful launch instead of staying resident")
}

func runUp(cmd *cobra.Command, args []string) error {
	cfg, stack, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	bus := EventBus.New()
	reg := registry.New(cfg.RunDir)

	if live := reg.Reconcile(); len(live) > 0 {
		for _, rec := range live {
			logger.Info("found recorded process still running",
				zap.String("role", string(rec.Role)), zap.Int("pid", rec.PID))
		}
	}

	pm := service.NewProcessManager(stack, reg, bus, cfg.LogDir, logger)
	checker := health.NewChecker(cfg.Health, logger)
	sup := supervisor.New(cfg, pm, reg, checker, bus, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sup.Up(ctx); err != nil {
		return err
	}

	if detach {
		logger.Info("stack launched, detaching")
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)

	var srv *http.Server
	if cfg.ControlAddress != "" {
		router, err := api.NewRouter(cfg, pm, bus, web.GetTemplatesFS(), web.GetStaticFS(), logger)
		if err != nil {
			return err
		}

		srv = &http.Server{
			Addr:         cfg.ControlAddress,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		g.Go(func() error {
			logger.Info("control server listening", zap.String("address", cfg.ControlAddress))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	if cfg.DevMode {
		apiSpec, _ := stack.ByRole(models.RoleAPI)
		g.Go(func() error {
			if err := sup.WatchAndReload(gctx, apiSpec.WatchPaths); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		pm.StopAll()
		if srv != nil {
			sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("stackvisor exited")
	return nil
}
