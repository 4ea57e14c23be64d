package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"stackvisor/internal/models"
	"stackvisor/internal/registry"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the recorded state of the stack",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, _, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	reg := registry.New(cfg.RunDir)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ROLE\tSTATE\tPID\tLOG")

	for _, role := range []models.Role{models.RoleAPI, models.RoleUI} {
		rec, ok := reg.Load(role)
		switch {
		case !ok:
			fmt.Fprintf(w, "%s\tnot recorded\t-\t-\n", role)
		case registry.Alive(rec.PID):
			fmt.Fprintf(w, "%s\trunning\t%d\t%s\n", role, rec.PID, rec.LogPath)
		default:
			fmt.Fprintf(w, "%s\tdead (stale record)\t%d\t%s\n", role, rec.PID, rec.LogPath)
		}
	}

	return w.Flush()
}
