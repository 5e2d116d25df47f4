// Command docrank builds and queries snapshots offline, without the
// indexer and searcher services.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version is injected at build time
	Version = "dev"
)

func main() {
	runMain(os.Args, os.Exit)
}

func runMain(args []string, exit func(int)) {
	if err := Execute(Version, args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		exit(1)
	}
}

// Execute is the entry point for the CLI, extracted for testing. Results go
// to out; logs go to stderr.
func Execute(version string, args []string, out io.Writer) error {
	rootCmd := &cobra.Command{
		Use:           "docrank",
		Short:         "TF-IDF document indexing and ranking",
		Long:          "docrank builds TF-IDF snapshots from crawled HTML and ranks documents against free-text queries.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetVersionTemplate(`{{.Version}}
`)
	rootCmd.SetOut(out)
	registerGlobalFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		newBuildCmd(),
		newQueryCmd(),
		newBatchCmd(),
		newStatsCmd(),
		newExplainCmd(),
	)
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}
