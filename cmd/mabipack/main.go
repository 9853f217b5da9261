// Command mabipack packs, extracts, and lists Mabinogi .pack archives.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

// Version is set via -ldflags at release time.
var Version = "dev"

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "mabipack",
	Short: "Mabinogi pack utilities",
	Long: `mabipack reads and writes the .pack archive format used by the
Mabinogi client. Use "pack" to build an archive from a folder, "extract"
to unpack one, and "list" to print its directory table.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug output")
	rootCmd.AddCommand(packCmd, extractCmd, listCmd)
}

// newLogger builds the CLI logger; the library receives it as an slog
// handler.
func newLogger() (*log.Logger, *slog.Logger) {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: false,
	})
	if verbose {
		logger.SetLevel(log.DebugLevel)
	}
	return logger, slog.New(logger)
}

func main() {
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(Version),
	); err != nil {
		os.Exit(1)
	}
}
