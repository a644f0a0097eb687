// Command kobold runs the multi-agent orchestrator task execution kernel.
package main

import (
	"fmt"
	"os"

	"github.com/harrison/kobold/internal/cmd"
)

func main() {
	rootCmd := cmd.NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
