package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/l3aro/go-cegar/internal/log"
	"github.com/l3aro/go-cegar/pkg/cegar"
	"github.com/l3aro/go-cegar/pkg/goals"
)

// goalsCmd represents the goals command
var goalsCmd = &cobra.Command{
	Use:   "goals <program.yaml>",
	Short: "Check each error location as a bounded sub-analysis",
	Long: `Splits the program into one unit per error location and analyzes the
units on a pool of workers, each within a time budget. Units share a
transfer memo and, with --reuse, the precision learned by earlier units.
Timed-out units are skipped or retried once with a larger budget.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		f := cmd.Flags()
		if f.Changed("workers") {
			cfg.Workers, _ = f.GetInt("workers")
		}
		if f.Changed("timeout") {
			cfg.GoalTimeout, _ = f.GetDuration("timeout")
		}
		if f.Changed("strategy") {
			cfg.TimeoutStrategy, _ = f.GetString("strategy")
		}
		if f.Changed("factor") {
			cfg.TimeoutFactor, _ = f.GetFloat64("factor")
		}
		if f.Changed("store") {
			cfg.ResultStore, _ = f.GetString("store")
		}
		if err := applyAnalysisFlags(cmd, cfg); err != nil {
			return err
		}
		reuse, _ := f.GetBool("reuse")
		jsonOutput, _ := f.GetBool("json")

		program, err := loadProgram(args[0])
		if err != nil {
			return err
		}
		units := goals.Units(program)
		if len(units) == 0 {
			return fmt.Errorf("program %s has no error locations", program.Name())
		}

		logger := newLogger(cfg)
		store, err := goals.OpenResultStore(cfg.ResultStore)
		if err != nil {
			return err
		}
		d := newDomain(program, cfg)
		analyzer, err := goals.NewAnalyzer(program, d.analysis, d.checker, d.itp,
			goals.WithMemo(goals.NewMemoTransfer(d.analysis.Transfer, cfg.TransferCacheSize)),
			goals.WithPrecisionReuse(reuse),
			goals.WithResultStore(store),
			goals.WithDriverOptions(driverOptions(cfg, logger)...),
			goals.WithAnalyzerLogger(logger),
		)
		if err != nil {
			return err
		}
		coord := &goals.Coordinator{
			Workers:  cfg.Workers,
			Budget:   cfg.GoalTimeout,
			Strategy: cfg.Strategy(),
			Factor:   cfg.TimeoutFactor,
			Logger:   logger,
		}

		ctx, stop := signalContext()
		defer stop()

		var spinner *log.ProgressSpinner
		if log.IsTTY() && !jsonOutput && !cfg.Verbose {
			spinner = log.NewProgressSpinner(fmt.Sprintf("Checking %d goals of %s", len(units), program.Name()))
			spinner.Start()
		}
		report, err := coord.Run(ctx, units, analyzer.Analyze)
		if spinner != nil {
			spinner.Stop()
		}
		if err != nil {
			return err
		}
		analyzer.Annotate(report)

		if err := store.Save(); err != nil {
			logger.Warn("failed to save result store", "path", cfg.ResultStore, "error", err)
		}

		if jsonOutput {
			data, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling JSON: %w", err)
			}
			fmt.Println(string(data))
			return nil
		}
		printReport(program.Name(), report)
		if p := analyzer.Precision(); p != nil {
			fmt.Printf("\nLearned precision: %s\n", p)
		}
		return nil
	},
}

func printReport(name string, r *goals.Report) {
	fmt.Printf("=== Goals of %s ===\n", name)
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("UNIT", "STATUS", "VERDICT", "ATTEMPTS", "ELAPSED", "REASON")
	for _, o := range r.Outcomes {
		verdict := ""
		if o.Status == goals.StatusDone {
			verdict = formatVerdict(o.Verdict)
		}
		t.Row(o.Unit, string(o.Status), verdict, humanize.Comma(int64(o.Attempts)),
			o.Elapsed.Round(time.Millisecond).String(), o.Reason)
	}
	fmt.Println(t.String())

	v := r.Verdicts()
	fmt.Printf("\n%d safe, %d unsafe, %d unknown, %d timed out, %d failed, %d cancelled\n",
		v[cegar.Safe], v[cegar.Unsafe], v[cegar.Unknown],
		r.Count(goals.StatusTimedOut), r.Count(goals.StatusFailed), r.Count(goals.StatusCancelled))
	if r.Interrupted {
		fmt.Println("Interrupted: remaining units were cancelled")
	}
	printStats(r.Stats)
}

func init() {
	addAnalysisFlags(goalsCmd)
	goalsCmd.Flags().Int("workers", 1, "Number of units analyzed in parallel")
	goalsCmd.Flags().Duration("timeout", 0, "Time budget per unit (0 = unbounded)")
	goalsCmd.Flags().String("strategy", "", "What to do with timed-out units: skip or retry")
	goalsCmd.Flags().Float64("factor", 2, "Budget multiplier for a retried unit")
	goalsCmd.Flags().String("store", "", "Result store file reused across invocations")
	goalsCmd.Flags().Bool("reuse", true, "Seed each unit with the precision learned by earlier units")
	RootCmd.AddCommand(goalsCmd)
}
