package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/regomne/mabipack"
)

var (
	packInput   string
	packOutput  string
	packVersion uint32
	packFormat  string
	packRaw     bool
	packWorkers int
)

var packCmd = &cobra.Command{
	Use:   "pack",
	Short: "Create a pack from a folder",
	RunE:  runPack,
}

func init() {
	packCmd.Flags().StringVarP(&packInput, "input", "i", "", "folder to pack")
	packCmd.Flags().StringVarP(&packOutput, "output", "o", "", "output .pack file name")
	packCmd.Flags().Uint32VarP(&packVersion, "key-version", "k", 0, "content version key (also the cipher seed)")
	packCmd.Flags().StringVar(&packFormat, "format", "classic", "on-disk revision: classic or v2")
	packCmd.Flags().BoolVar(&packRaw, "raw", false, "store all entries uncompressed")
	packCmd.Flags().IntVar(&packWorkers, "workers", 0, "staging workers (0 = one per CPU)")
	_ = packCmd.MarkFlagRequired("input")
	_ = packCmd.MarkFlagRequired("output")
	_ = packCmd.MarkFlagRequired("key-version")
}

func revisionKey(name string) (uint32, error) {
	switch name {
	case "classic":
		return mabipack.RevisionClassic, nil
	case "v2":
		return mabipack.RevisionV2, nil
	default:
		return 0, fmt.Errorf("unknown format %q (want classic or v2)", name)
	}
}

// collectSources walks dir and returns one Source per regular file, in
// lexical walk order so repeated packs of the same tree are identical.
func collectSources(dir string) ([]mabipack.Source, error) {
	var sources []mabipack.Source
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		src, err := mabipack.FileSource(filepath.ToSlash(rel), p)
		if err != nil {
			return err
		}
		sources = append(sources, src)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sources, nil
}

func runPack(cmd *cobra.Command, _ []string) error {
	logger, slogger := newLogger()

	revision, err := revisionKey(packFormat)
	if err != nil {
		return err
	}
	sources, err := collectSources(packInput)
	if err != nil {
		return fmt.Errorf("traversing %s: %w", packInput, err)
	}

	w, err := mabipack.NewWriter(mabipack.WriteOptions{
		Revision: revision,
		Version:  packVersion,
		Raw:      packRaw,
		Workers:  packWorkers,
		Logger:   slogger,
	})
	if err != nil {
		return err
	}

	out, err := os.Create(packOutput)
	if err != nil {
		return err
	}
	start := time.Now()
	if err := w.Create(cmd.Context(), sources, out); err != nil {
		out.Close()
		os.Remove(packOutput)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	logger.Info("pack created",
		"file", packOutput,
		"entries", len(sources),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}
