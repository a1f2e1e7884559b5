// Command dwcaval runs the uniqueness and referential-integrity
// evaluators of this repository against one or more CSV streams,
// writing findings as CSV. It exists to demonstrate the wiring end to
// end, not as a complete archive-validation tool — archive layout
// parsing (meta.xml) and full CLI option handling remain out of scope.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:     "dwcaval",
	Short:   "Validate uniqueness and referential integrity across CSV streams",
	Version: "0.1.0",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newRunCmd())
}

func printInfo(format string, args ...interface{}) {
	fmt.Fprintf(os.Stdout, format, args...)
}
