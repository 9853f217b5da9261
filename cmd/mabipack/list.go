package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/regomne/mabipack"
)

var (
	listInput       string
	listOutput      string
	listWithVersion bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the file list of a pack",
	RunE:  runList,
}

func init() {
	listCmd.Flags().StringVarP(&listInput, "input", "i", "", "pack file to list")
	listCmd.Flags().StringVarP(&listOutput, "output", "o", "",
		"list file name (stdout if not set)")
	listCmd.Flags().BoolVar(&listWithVersion, "with-version", false,
		"print the version key of every entry")
	_ = listCmd.MarkFlagRequired("input")
}

func runList(_ *cobra.Command, _ []string) error {
	_, slogger := newLogger()

	a, err := mabipack.Open(listInput, mabipack.WithLogger(slogger))
	if err != nil {
		return err
	}
	defer a.Close()

	var out io.Writer = os.Stdout
	if listOutput != "" {
		f, err := os.Create(listOutput)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	w := bufio.NewWriter(out)
	for _, e := range a.Entries() {
		if listWithVersion {
			fmt.Fprintf(w, "%d %10d %s\n", e.Version, e.UncompressedSize, e.Path)
		} else {
			fmt.Fprintf(w, "%10d %s\n", e.UncompressedSize, e.Path)
		}
	}
	return w.Flush()
}
