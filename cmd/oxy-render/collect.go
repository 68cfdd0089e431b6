package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
)

// Collect writes the names of the .glb files in a directory to a list file.
func Collect(ctx *cli.Context) error {
	setupLogging(ctx, "", "")

	if ctx.NArg() != 1 {
		return errors.New("missing input directory")
	}

	out := ctx.String("out")
	names, err := collectModels(ctx.Args().First(), out, os.Stdout)
	if err != nil {
		return err
	}

	logger.Noticef("wrote %d models to %s", len(names), out)
	return nil
}

// collectModels lists the .glb files directly inside dir, writes their names newline separated to out
// and prints a name and size table to w.
//
// Parameters:
//   - dir: the directory to scan
//   - out: the list file to write
//   - w: where the summary table goes
//
// Returns:
//   - []string: the collected names in directory order
//   - error: error if the directory cannot be read or the list cannot be written
func collectModels(dir, out string, w io.Writer) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	table := tablewriter.NewWriter(w)
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader([]string{"Model", "Size"})

	var names []string
	var total int64
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".glb" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			logger.Warningf("skipping %s: %v", entry.Name(), err)
			continue
		}

		names = append(names, entry.Name())
		total += info.Size()
		table.Append([]string{entry.Name(), fmtSize(info.Size())})
	}

	if err := os.WriteFile(out, []byte(strings.Join(names, "\n")), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", out, err)
	}

	table.SetFooter([]string{fmt.Sprintf("%d models", len(names)), fmtSize(total)})
	table.Render()
	return names, nil
}

// fmtSize renders a byte count with a binary unit.
func fmtSize(n int64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.1f GiB", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
