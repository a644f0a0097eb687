package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	cron "github.com/netresearch/go-cron"
	"github.com/spf13/cobra"

	"github.com/harrison/kobold/internal/config"
	"github.com/harrison/kobold/internal/registry"
)

// NewRunCommand builds the run subcommand: it discovers every project
// directory given on the command line, registers a Supervisor for each,
// and ticks them on a schedule until interrupted.
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <project-dir>...",
		Short: "Run the orchestrator daemon against one or more projects",
		Long: `Run discovers every "*-tasks.md" area file under each given project
directory, builds a Supervisor per project, and ticks every Supervisor on
a schedule (default every 5 seconds) until interrupted with SIGINT or
SIGTERM, at which point it finishes in-flight ticks and flushes every
project's pending task-store saves before exiting.`,
		Args:         cobra.MinimumNArgs(1),
		RunE:         runRun,
		SilenceUsage: true,
	}

	cmd.Flags().String("config", "", "path to the orchestrator config file")
	cmd.Flags().String("cron", "", "cron expression for the tick schedule (default: every 5s from config)")

	return cmd
}

func runRun(cobraCmd *cobra.Command, args []string) error {
	configPath, _ := cobraCmd.Flags().GetString("config")
	cronExpr, _ := cobraCmd.Flags().GetString("cron")

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

	reg := registry.New()
	reg.Log = log

	for _, dir := range args {
		projectID := projectIDFromDir(dir)
		sup, err := buildSupervisor(projectID, dir, cfg, log, telem, health)
		if err != nil {
			return fmt.Errorf("register project %s: %w", dir, err)
		}
		reg.Register(projectID, sup, stores(sup)...)
		log.Infof("registered project %s (%s)", projectID, dir)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			log.Infof("received interrupt, shutting down gracefully")
			cancel()
		case <-ctx.Done():
		}
	}()

	c := cron.New()
	spec := cronSpec(cronExpr, cfg)
	if _, err := c.AddFunc(spec, func() { reg.TickAll(ctx) }); err != nil {
		return fmt.Errorf("schedule tick %q: %w", spec, err)
	}
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()

	if err := reg.FlushAll(); err != nil {
		return fmt.Errorf("flush projects on shutdown: %w", err)
	}
	return nil
}

// cronSpec turns the orchestrator-wide tick interval into a "@every"
// expression unless the operator supplied one explicitly.
func cronSpec(explicit string, cfg *config.Config) string {
	if explicit != "" {
		return explicit
	}
	return "@every " + cfg.TickInterval.String()
}
