package cmd

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/harrison/kobold/internal/taskstore"
)

// NewValidateCommand builds the validate subcommand: it loads every
// "*-tasks.md" area file under each given project directory and reports
// parse errors, duplicate/missing dependency ids, and dependency cycles
// without running anything (spec §4.1, §6; SPEC_FULL §4 dependency-graph
// validation at load time).
func NewValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <project-dir>...",
		Short: "Validate task-list files without executing anything",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			return runValidate(args, cobraCmd.OutOrStdout())
		},
		SilenceUsage: true,
	}

	return cmd
}

func runValidate(dirs []string, out io.Writer) error {
	fail := false
	for _, dir := range dirs {
		matches, err := filepath.Glob(filepath.Join(dir, "*-tasks.md"))
		if err != nil {
			return fmt.Errorf("glob %s: %w", dir, err)
		}
		if len(matches) == 0 {
			fmt.Fprintf(out, "%s: no *-tasks.md files found\n", dir)
			continue
		}
		for _, path := range matches {
			store := taskstore.New(path)
			if err := store.Load(); err != nil {
				fmt.Fprintf(out, "%s: %v\n", path, err)
				fail = true
				continue
			}
			fmt.Fprintf(out, "%s: ok (%d tasks)\n", path, len(store.All()))
		}
	}
	if fail {
		return errors.New("one or more task-list files failed validation")
	}
	return nil
}
