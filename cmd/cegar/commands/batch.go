package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/l3aro/go-cegar/internal/config"
	"github.com/l3aro/go-cegar/internal/log"
	"github.com/l3aro/go-cegar/internal/scanner"
	"github.com/l3aro/go-cegar/pkg/cegar"
	"github.com/l3aro/go-cegar/pkg/cfa"
)

// batchEntry is the outcome of checking one program file of a directory.
type batchEntry struct {
	File        string        `json:"file"`
	Program     string        `json:"program,omitempty"`
	Verdict     cegar.Verdict `json:"verdict"`
	Reason      string        `json:"reason,omitempty"`
	Rounds      int           `json:"rounds"`
	Refinements int           `json:"refinements"`
	Elapsed     time.Duration `json:"elapsed"`
	Error       string        `json:"error,omitempty"`
}

// checkDirectory checks every program file under dir, at most cfg.Workers
// at a time. A file that fails to load or analyze is reported in its entry
// and does not stop the others.
func checkDirectory(ctx context.Context, dir string, cfg *config.Config, logger log.Logger, jsonOutput bool) error {
	files, err := scanner.Scan(dir)
	if err != nil {
		return fmt.Errorf("scanning %s: %w", dir, err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no program files found under %s", dir)
	}
	logger.Info("checking directory", "dir", dir, "files", len(files), "workers", cfg.Workers)

	entries := make([]batchEntry, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.Workers, 1))
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			entries[i] = checkFile(gctx, f, cfg, logger)
			return nil
		})
	}
	_ = g.Wait()

	if jsonOutput {
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
		fmt.Println(string(data))
	} else {
		printBatch(dir, entries)
	}
	for _, e := range entries {
		if e.Error != "" {
			return fmt.Errorf("%s: %s", e.File, e.Error)
		}
	}
	return nil
}

func checkFile(ctx context.Context, f scanner.ProgramFile, cfg *config.Config, logger log.Logger) batchEntry {
	entry := batchEntry{File: f.Path, Verdict: cegar.Unknown}
	program, err := cfa.Load(f.FullPath)
	if err != nil {
		entry.Error = err.Error()
		return entry
	}
	entry.Program = program.Name()

	d := newDomain(program, cfg)
	driver, err := cegar.New(program, d.analysis, d.checker, d.itp, driverOptions(cfg, logger.With("file", f.Path))...)
	if err != nil {
		entry.Error = err.Error()
		return entry
	}
	res, err := driver.Run(ctx)
	if err != nil {
		entry.Error = err.Error()
	}
	if res != nil {
		entry.Verdict, entry.Reason = res.Verdict, res.Reason
		entry.Rounds, entry.Refinements = res.Stats.Rounds, res.Stats.Refinements
		entry.Elapsed = res.Stats.TotalTime
	}
	return entry
}

func printBatch(dir string, entries []batchEntry) {
	fmt.Printf("=== %s ===\n", dir)
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("FILE", "PROGRAM", "VERDICT", "ROUNDS", "REFINEMENTS", "ELAPSED", "REASON")
	counts := map[cegar.Verdict]int{}
	for _, e := range entries {
		reason := e.Reason
		if e.Error != "" {
			reason = "error: " + e.Error
		}
		counts[e.Verdict]++
		t.Row(e.File, e.Program, formatVerdict(e.Verdict), humanize.Comma(int64(e.Rounds)),
			humanize.Comma(int64(e.Refinements)), e.Elapsed.Round(time.Millisecond).String(), reason)
	}
	fmt.Println(t.String())
	fmt.Printf("\n%d files: %d safe, %d unsafe, %d unknown\n",
		len(entries), counts[cegar.Safe], counts[cegar.Unsafe], counts[cegar.Unknown])
}
