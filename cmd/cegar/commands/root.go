// Package commands provides the CLI commands for the cegar tool.
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-cegar/internal/config"
	"github.com/l3aro/go-cegar/internal/log"
	"github.com/l3aro/go-cegar/pkg/cegar"
	"github.com/l3aro/go-cegar/pkg/cfa"
	"github.com/l3aro/go-cegar/pkg/cpa"
	"github.com/l3aro/go-cegar/pkg/eqdom"
	"github.com/l3aro/go-cegar/pkg/refine"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "cegar",
	Short: "go-cegar - Counterexample-guided abstraction refinement",
	Long: `go-cegar checks whether the error locations of a program graph are
reachable, refining its abstraction from spurious counterexamples.

Commands:
  check       Check a program graph
  goals       Check each error location as a bounded sub-analysis
  graph       Summarize a program graph
  init        Create a configuration file interactively
  doctor      Run health checks on configuration and solver

Use "cegar [command] --help" for more information about a command.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return RootCmd.Execute()
}

func init() {
	RootCmd.PersistentFlags().String("config", "", "Config file path (default: layered ~/.cegar and ./.cegar)")
	RootCmd.PersistentFlags().BoolP("verbose", "V", false, "Verbose logging")
}

// loadConfig reads the --config file or the layered configuration and
// applies the persistent flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.Verbose = true
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) log.Logger {
	return log.New(log.LoggerConfig{Level: cfg.Level(), JSONOutput: cfg.LogJSON, Output: os.Stderr})
}

// signalContext is cancelled on SIGINT or SIGTERM, so a run ends with an
// Unknown verdict and partial statistics instead of being killed.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// loadProgram reads a program graph file.
func loadProgram(path string) (*cfa.Program, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory, expected a file: %s", path)
	}
	return cfa.Load(path)
}

// addAnalysisFlags registers the exploration and refinement overrides.
func addAnalysisFlags(cmd *cobra.Command) {
	cmd.Flags().String("traversal", "", "Waitlist order: bfs, dfs or random")
	cmd.Flags().Int64("seed", 0, "Seed of the random traversal")
	cmd.Flags().String("merge", "", "Merge operator: sep or join")
	cmd.Flags().String("restart", "", "Refinement restart policy: root, pivot or common")
	cmd.Flags().Bool("relocate-root", false, "Move the refinement root above covering nodes")
	cmd.Flags().Int("max-rounds", -1, "Limit the number of exploration rounds (0 = unlimited)")
	cmd.Flags().BoolP("json", "j", false, "Output as JSON")
}

// applyAnalysisFlags overlays the flags that were set onto cfg.
func applyAnalysisFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	if f.Changed("traversal") {
		cfg.Traversal, _ = f.GetString("traversal")
	}
	if f.Changed("seed") {
		cfg.RandomSeed, _ = f.GetInt64("seed")
	}
	if f.Changed("merge") {
		cfg.Merge, _ = f.GetString("merge")
	}
	if f.Changed("restart") {
		cfg.Restart, _ = f.GetString("restart")
	}
	if f.Changed("relocate-root") {
		cfg.RelocateRoot, _ = f.GetBool("relocate-root")
	}
	if f.Changed("max-rounds") {
		cfg.MaxRounds, _ = f.GetInt("max-rounds")
	}
	return cfg.Validate()
}

// domain is the abstract domain the CLI analyzes programs with.
type domain struct {
	analysis cpa.Analysis
	checker  refine.Checker
	itp      refine.Interpolator
}

func newDomain(program *cfa.Program, cfg *config.Config) domain {
	return domain{
		analysis: eqdom.Analysis(program, cfg.Merge, eqdom.Precision{}),
		checker:  eqdom.NewChecker(),
		itp:      eqdom.NewInterpolator(),
	}
}

// driverOptions maps the configuration onto driver options.
func driverOptions(cfg *config.Config, logger log.Logger) []cegar.Option {
	return []cegar.Option{
		cegar.WithOrder(cfg.Order(), cfg.RandomSeed),
		cegar.WithStopAtFirstTarget(cfg.StopAtFirstTarget),
		cegar.WithMaxRounds(cfg.MaxRounds),
		cegar.WithRefinement(cfg.Policy(), cfg.RelocateRoot),
		cegar.WithLogger(logger),
	}
}
