package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/l3aro/go-cegar/internal/config"
	"github.com/l3aro/go-cegar/internal/healthcheck"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize cegar configuration interactively",
	Long: `Guides you through setting up cegar configuration step by step.
Creates a config file with exploration, refinement and goal scheduling settings.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInit()
	},
}

func runInit() error {
	cfg := config.DefaultConfig()

	// === SECTION 1: Exploration ===
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Traversal - Order in which waiting nodes are explored").
				Options(
					huh.NewOption("Breadth-first", "bfs"),
					huh.NewOption("Depth-first", "dfs"),
					huh.NewOption("Random", "random"),
				).
				Value(&cfg.Traversal),
			huh.NewSelect[string]().
				Title("Merge operator").
				Description("Keep states apart or join states at the same location").
				Options(
					huh.NewOption("Separate (sep)", "sep"),
					huh.NewOption("Join", "join"),
				).
				Value(&cfg.Merge),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	// === SECTION 2: Refinement ===
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Refinement restart").
				Description("Where exploration resumes after a spurious counterexample").
				Options(
					huh.NewOption("Root of the graph", "root"),
					huh.NewOption("First node with a new precision (pivot)", "pivot"),
					huh.NewOption("Common ancestor of all pivots", "common"),
				).
				Value(&cfg.Restart),
			huh.NewConfirm().
				Title("Relocate the refinement root above covering nodes?").
				Affirmative("Yes").
				Negative("No").
				Value(&cfg.RelocateRoot),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	// === SECTION 3: Goals ===
	timeout := cfg.GoalTimeout.String()
	workers := strconv.Itoa(cfg.Workers)
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Time budget per goal").
				Placeholder("30s").
				Validate(func(s string) error {
					_, err := time.ParseDuration(s)
					return err
				}).
				Value(&timeout),
			huh.NewSelect[string]().
				Title("Timed-out goals").
				Options(
					huh.NewOption("Skip", "skip"),
					huh.NewOption("Retry once with a larger budget", "retry"),
				).
				Value(&cfg.TimeoutStrategy),
			huh.NewInput().
				Title("Parallel workers").
				Placeholder("1").
				Validate(func(s string) error {
					n, err := strconv.Atoi(s)
					if err == nil && n < 1 {
						return fmt.Errorf("workers must be at least 1")
					}
					return err
				}).
				Value(&workers),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}
	cfg.GoalTimeout, _ = time.ParseDuration(timeout)
	cfg.Workers, _ = strconv.Atoi(workers)

	// === SECTION 4: Config Location ===
	var saveLocationChoice string
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Save Configuration").
				Description("Where to save the configuration file?").
				Options(
					huh.NewOption("Global (~/.cegar/config.yaml)", "global"),
					huh.NewOption("Project (./.cegar/config.yaml)", "project"),
				).
				Value(&saveLocationChoice),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	configPath := config.ProjectPath()
	if saveLocationChoice == "global" {
		configPath = config.GlobalPath()
	}

	if _, err := os.Stat(configPath); err == nil {
		var overwrite bool
		form = huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title("Config file exists").
					Description(fmt.Sprintf("Overwrite existing config at %s?", configPath)).
					Affirmative("Overwrite").
					Negative("Cancel").
					Value(&overwrite),
			),
		)
		if err := form.Run(); err != nil {
			return fmt.Errorf("interactive prompt failed: %w", err)
		}
		if !overwrite {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	fmt.Println("\n=== Configuration Preview ===")
	fmt.Printf("Config path: %s\n", configPath)
	fmt.Printf("Traversal: %s\n", cfg.Traversal)
	fmt.Printf("Merge: %s\n", cfg.Merge)
	fmt.Printf("Restart: %s (relocate root: %t)\n", cfg.Restart, cfg.RelocateRoot)
	fmt.Printf("Goal timeout: %s (%s)\n", cfg.GoalTimeout, cfg.TimeoutStrategy)
	fmt.Printf("Workers: %d\n", cfg.Workers)
	fmt.Println("================================")

	if err := cfg.Save(configPath); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Printf("Configuration saved to: %s\n", configPath)

	// === SECTION 5: Health Check ===
	fmt.Println("\n=== Running Health Check ===")

	loadedCfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("loading saved config: %w", err)
	}
	result, err := healthcheck.Check(context.Background(), loadedCfg, configPath, configPath)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	fmt.Printf("\nConfig Scope: %s\n", result.SavedScope)
	if result.SavedScope == "global" {
		fmt.Printf("Config Path: %s\n", configPath)
	} else {
		absPath, _ := filepath.Abs(configPath)
		fmt.Printf("Config Path: %s\n", absPath)
	}
	for _, c := range result.Components() {
		fmt.Printf("\n%s Status: %s\n", c.Name, c.Status)
		if c.Error != "" {
			fmt.Printf("  Error: %s\n", c.Error)
		}
	}

	fmt.Println("\n=== Initialization Complete ===")
	return nil
}

func init() {
	RootCmd.AddCommand(initCmd)
}
