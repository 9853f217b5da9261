package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/regomne/mabipack"
)

var (
	extractInput    string
	extractOutput   string
	extractFilters  []string
	extractStrict   bool
	extractWorkers  int
	extractKeepTime bool
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract a pack",
	RunE:  runExtract,
}

func init() {
	extractCmd.Flags().StringVarP(&extractInput, "input", "i", "", "pack file to extract")
	extractCmd.Flags().StringVarP(&extractOutput, "output", "o", "", "output folder")
	extractCmd.Flags().StringArrayVarP(&extractFilters, "filter", "f", nil,
		"regexp filter; repeat for OR semantics")
	extractCmd.Flags().BoolVar(&extractStrict, "strict", false,
		"abort on the first entry that fails verification")
	extractCmd.Flags().IntVar(&extractWorkers, "workers", 0, "extraction workers (0 = one per CPU)")
	extractCmd.Flags().BoolVar(&extractKeepTime, "keep-times", false,
		"restore recorded modification times")
	_ = extractCmd.MarkFlagRequired("input")
	_ = extractCmd.MarkFlagRequired("output")
}

func runExtract(cmd *cobra.Command, _ []string) error {
	logger, slogger := newLogger()

	filter, err := mabipack.NewFilter(extractFilters)
	if err != nil {
		return err
	}

	a, err := mabipack.Open(extractInput, mabipack.WithLogger(slogger))
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.Extract(cmd.Context(), extractOutput,
		mabipack.WithFilter(filter),
		mabipack.WithStrict(extractStrict),
		mabipack.WithWorkers(extractWorkers),
		mabipack.WithPreserveTimes(extractKeepTime),
	)
	if err != nil {
		return err
	}

	for _, fe := range report.Failed {
		logger.Error("entry not extracted", "path", fe.Path, "err", fe.Err)
	}
	logger.Info("extraction finished",
		"extracted", report.Extracted,
		"skipped", report.Skipped,
		"failed", len(report.Failed))
	if len(report.Failed) > 0 {
		return fmt.Errorf("%d entries failed verification", len(report.Failed))
	}
	return nil
}
