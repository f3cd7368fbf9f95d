// Transmute CLI - manages class path databases and runs types under the
// transformation agent.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"

	_ "github.com/tliron/commonlog/simple"
)

var version = "dev"

func newRootCmd() *cobra.Command {
	var verbose int

	root := &cobra.Command{
		Use:           "transmute",
		Short:         "Rewrite types as they are loaded",
		Long:          `Transmute stores class files in a class path database and runs them on a host whose load hooks are driven by a configurable transformation agent.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			commonlog.Configure(verbose, nil)
		},
	}
	root.PersistentFlags().CountVarP(&verbose, "verbose", "v", "log verbosity (repeat for more)")

	root.AddCommand(newClassPathCmd(), newDisasmCmd(), newRunCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
