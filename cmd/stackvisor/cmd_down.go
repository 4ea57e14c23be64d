package main

import (
	"github.com/asaskevich/EventBus"
	"github.com/spf13/cobra"

	"stackvisor/internal/health"
	"stackvisor/internal/registry"
	"stackvisor/internal/service"
	"stackvisor/internal/supervisor"
)

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Stop the recorded stack, UI before API",
	Args:  cobra.NoArgs,
	RunE:  runDown,
}

func runDown(cmd *cobra.Command, args []string) error {
	cfg, stack, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	bus := EventBus.New()
	reg := registry.New(cfg.RunDir)
	pm := service.NewProcessManager(stack, reg, bus, cfg.LogDir, logger)
	checker := health.NewChecker(cfg.Health, logger)
	sup := supervisor.New(cfg, pm, reg, checker, bus, logger)

	return sup.Down()
}
