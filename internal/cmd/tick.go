package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harrison/kobold/internal/config"
)

// NewTickCommand builds the tick subcommand: a single manual Supervisor
// tick against one project, useful for debugging a stuck project outside
// the daemon loop.
func NewTickCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "tick <project-dir>",
		Short:        "Run a single Supervisor tick against one project and exit",
		Args:         cobra.ExactArgs(1),
		RunE:         runTick,
		SilenceUsage: true,
	}

	cmd.Flags().String("config", "", "path to the orchestrator config file")

	return cmd
}

func runTick(cobraCmd *cobra.Command, args []string) error {
	configPath, _ := cobraCmd.Flags().GetString("config")
	dir := args[0]

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log := buildLogger(cfg)
	telem := buildTelemetry(cfg)
	health, err := buildHealthStore()
	if err != nil {
		return fmt.Errorf("open provider health store: %w", err)
	}
	defer health.Close()

	projectID := projectIDFromDir(dir)
	sup, err := buildSupervisor(projectID, dir, cfg, log, telem, health)
	if err != nil {
		return fmt.Errorf("build supervisor: %w", err)
	}

	if err := sup.Tick(context.Background()); err != nil {
		return fmt.Errorf("tick %s: %w", projectID, err)
	}
	return sup.FlushAndClose()
}
