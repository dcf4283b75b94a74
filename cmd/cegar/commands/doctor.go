package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-cegar/internal/config"
	"github.com/l3aro/go-cegar/internal/healthcheck"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run health checks on configuration and solver",
	Long: `Checks the configuration, verifies that the SAT backend decides a
probe path, and that the result store (if configured) is usable.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		explicit, _ := cmd.Flags().GetString("config")
		cfg, configPath, err := loadConfigWithPath(explicit)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		result, err := healthcheck.Check(context.Background(), cfg, configPath, configPath)
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}

		displayDoctorResult(result)

		if !result.Healthy() {
			return fmt.Errorf("health check failed: one or more components are not usable")
		}
		return nil
	},
}

// loadConfigWithPath returns the config file with the highest priority and
// its path. Without any file the defaults are checked and the path is empty.
func loadConfigWithPath(explicit string) (*config.Config, string, error) {
	var effectivePath string
	switch {
	case explicit != "":
		effectivePath = explicit
	case fileExists(config.ProjectPath()):
		effectivePath = config.ProjectPath()
	case fileExists(config.GlobalPath()):
		effectivePath = config.GlobalPath()
	default:
		return config.DefaultConfig(), "", nil
	}

	cfg, err := config.LoadFromFile(effectivePath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config from %s: %w", effectivePath, err)
	}
	return cfg, effectivePath, nil
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func displayDoctorResult(result *healthcheck.HealthCheckResult) {
	if result.EffectivePath == "" {
		fmt.Printf("Using config: built-in defaults\n")
		fmt.Printf("  Checked paths:\n    - %s (project)\n    - %s (global)\n", config.ProjectPath(), config.GlobalPath())
		fmt.Printf("  Run 'cegar init' to create a configuration file\n\n")
	} else {
		fmt.Printf("Using config: %s (%s)\n\n", result.EffectivePath, result.EffectiveScope)
	}

	for _, c := range result.Components() {
		fmt.Printf("%s:\n", c.Name)
		if c.Detail != "" {
			fmt.Printf("  %s\n", c.Detail)
		}
		printComponentStatus(c.Status, c.Error)
	}
}

func printComponentStatus(status string, errMsg string) {
	icon := formatStatusIcon(status)
	fmt.Printf("  Status: %s %s\n", icon, status)
	if errMsg != "" && status == healthcheck.StatusError {
		fmt.Printf("  Error: %s\n", errMsg)
	}
}

func formatStatusIcon(status string) string {
	switch status {
	case healthcheck.StatusReady:
		return "✓"
	case healthcheck.StatusSkipped:
		return "-"
	case healthcheck.StatusError:
		return "✗"
	default:
		return "?"
	}
}

func init() {
	RootCmd.AddCommand(doctorCmd)
}
