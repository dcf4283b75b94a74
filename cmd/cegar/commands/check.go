package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/l3aro/go-cegar/internal/log"
	"github.com/l3aro/go-cegar/pkg/cegar"
	"github.com/l3aro/go-cegar/pkg/cfa"
	"github.com/l3aro/go-cegar/pkg/stats"
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check <program.yaml|dir>",
	Short: "Check whether an error location is reachable",
	Long: `Runs the explore, check and refine loop on a program graph and reports
safe, unsafe (with a counterexample and a model) or unknown (with a reason).

Given a directory, checks every program file below it (honoring
.cegarignore files) on a pool of --workers and prints a summary table.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := applyAnalysisFlags(cmd, cfg); err != nil {
			return err
		}
		if cmd.Flags().Changed("all-targets") {
			all, _ := cmd.Flags().GetBool("all-targets")
			cfg.StopAtFirstTarget = !all
		}
		jsonOutput, _ := cmd.Flags().GetBool("json")
		targets, _ := cmd.Flags().GetIntSlice("targets")

		if info, err := os.Stat(args[0]); err == nil && info.IsDir() {
			if cmd.Flags().Changed("workers") {
				cfg.Workers, _ = cmd.Flags().GetInt("workers")
			}
			ctx, stop := signalContext()
			defer stop()
			return checkDirectory(ctx, args[0], cfg, newLogger(cfg), jsonOutput)
		}

		program, err := loadProgram(args[0])
		if err != nil {
			return err
		}
		logger := newLogger(cfg)
		d := newDomain(program, cfg)

		opts := driverOptions(cfg, logger)
		if len(targets) > 0 {
			locs := make([]cfa.Location, len(targets))
			for i, t := range targets {
				locs[i] = cfa.Location(t)
			}
			opts = append(opts, cegar.WithTargets(locs...))
		}
		driver, err := cegar.New(program, d.analysis, d.checker, d.itp, opts...)
		if err != nil {
			return err
		}

		ctx, stop := signalContext()
		defer stop()

		var spinner *log.ProgressSpinner
		if log.IsTTY() && !jsonOutput && !cfg.Verbose {
			spinner = log.NewProgressSpinner(fmt.Sprintf("Checking %s", program.Name()))
			spinner.Start()
		}
		res, runErr := driver.Run(ctx)
		if spinner != nil {
			spinner.Stop()
		}

		if jsonOutput {
			if err := printCheckJSON(program, res); err != nil {
				return err
			}
		} else {
			printCheckResult(program, res)
		}
		return runErr
	},
}

type checkOutput struct {
	Program   string        `json:"program"`
	Result    *cegar.Result `json:"result"`
	Precision string        `json:"precision,omitempty"`
}

func printCheckJSON(program *cfa.Program, res *cegar.Result) error {
	out := checkOutput{Program: program.Name(), Result: res}
	if res.Precision != nil {
		out.Precision = fmt.Sprint(res.Precision)
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func printCheckResult(program *cfa.Program, res *cegar.Result) {
	fmt.Printf("=== %s ===\n", program.Name())
	fmt.Printf("Verdict: %s\n", formatVerdict(res.Verdict))
	if res.Reason != "" {
		fmt.Printf("Reason: %s\n", res.Reason)
	}
	if res.Unsound {
		fmt.Println("Warning: exploration dropped successors; a safe answer was withheld")
	}

	if w := res.Witness; w != nil {
		if w.Confirmed {
			fmt.Printf("\nCounterexample (%d steps):\n", w.Path.Len())
		} else {
			fmt.Printf("\nPossible counterexample, feasibility undecided (%d steps):\n", w.Path.Len())
		}
		for _, e := range w.Path.Edges {
			fmt.Printf("  %s\n", e)
		}
		if len(w.Model) > 0 {
			fmt.Printf("Model: %s\n", w.Model)
		}
	}

	if res.Precision != nil {
		fmt.Printf("\nPrecision: %s\n", res.Precision)
	}
	printStats(res.Stats)
}

func formatVerdict(v cegar.Verdict) string {
	switch v {
	case cegar.Safe:
		return "✓ safe"
	case cegar.Unsafe:
		return "✗ unsafe"
	default:
		return "? unknown"
	}
}

// printStats prints the statistics record in human-readable format.
func printStats(s *stats.Stats) {
	if s == nil {
		return
	}
	count := func(n int) string { return humanize.Comma(int64(n)) }
	fmt.Println("\nStatistics:")
	fmt.Printf("  Rounds:              %s\n", count(s.Rounds))
	fmt.Printf("  Refinements:         %s\n", count(s.Refinements))
	fmt.Printf("  Nodes created:       %s (removed %s, covered %s)\n", count(s.NodesCreated), count(s.NodesRemoved), count(s.NodesCovered))
	fmt.Printf("  Transfer calls:      %s\n", count(s.TransferCalls))
	if s.CacheHits+s.CacheMisses > 0 {
		fmt.Printf("  Transfer memo:       %s hits, %s misses (%s%%)\n", count(s.CacheHits), count(s.CacheMisses),
			humanize.CommafWithDigits(100*s.CacheHitRate(), 1))
	}
	fmt.Printf("  Feasibility checks:  %s (%s undecided)\n", count(s.FeasibilityChecks), count(s.SolverFailures))
	fmt.Printf("  Interpolations:      %s\n", count(s.InterpolationCalls))
	if s.RootRelocations > 0 || s.RepeatedRefinement > 0 {
		fmt.Printf("  Relocations:         %s (repeated %s)\n", count(s.RootRelocations), count(s.RepeatedRefinement))
	}
	if s.Unsupported > 0 {
		fmt.Printf("  Unsupported edges:   %s\n", count(s.Unsupported))
	}
	if s.Timeouts > 0 || s.Retries > 0 {
		fmt.Printf("  Timeouts:            %s (retried %s)\n", count(s.Timeouts), count(s.Retries))
	}
	ms := func(d time.Duration) time.Duration { return d.Round(time.Microsecond) }
	fmt.Printf("  Time:                %s (explore %s, check %s, refine %s)\n",
		ms(s.TotalTime), ms(s.ExploreTime), ms(s.CheckTime), ms(s.RefineTime))
}

func init() {
	addAnalysisFlags(checkCmd)
	checkCmd.Flags().IntSlice("targets", nil, "Restrict the targets to these error locations")
	checkCmd.Flags().Int("workers", 1, "Number of program files checked in parallel (directory mode)")
	checkCmd.Flags().Bool("all-targets", false, "Collect all targets before checking instead of stopping at the first")
	RootCmd.AddCommand(checkCmd)
}
