package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags.
var Version = "dev"

// NewRootCommand builds the kobold root command.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "kobold",
		Short: "Multi-agent orchestrator task execution kernel",
		Long: `kobold drives a set of per-project task-list files to completion by
summoning model-backed Workers for ready tasks, tracking their progress
against the project's dependency graph, and committing finished work.

Each project directory holds one or more "*-tasks.md" area files; kobold
discovers them, builds a Supervisor per project, and ticks every
registered Supervisor on a schedule.`,
		Version:      Version,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(NewRunCommand())
	rootCmd.AddCommand(NewTickCommand())
	rootCmd.AddCommand(NewValidateCommand())

	return rootCmd
}
