package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/l3aro/go-cegar/pkg/cfa"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph <program.yaml>",
	Short: "Summarize a program graph",
	Long: `Loads and validates a program graph and prints its locations, edges,
error locations and cyclomatic complexity.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		program, err := loadProgram(args[0])
		if err != nil {
			return err
		}
		info := program.Info()

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			data, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling JSON: %w", err)
			}
			fmt.Println(string(data))
			return nil
		}
		printGraphInfo(info)
		return nil
	},
}

// printGraphInfo prints program graph information in human-readable format.
func printGraphInfo(info *cfa.Info) {
	fmt.Printf("=== Program: %s ===\n", info.Name)
	fmt.Printf("Cyclomatic Complexity: %d\n", info.CyclomaticComplexity)
	fmt.Printf("Entry: %s\n", info.Entry)
	fmt.Printf("Error Locations: %v\n", info.ErrorLocations)
	fmt.Printf("Locations: %d\n", info.Locations)

	kinds := maps.Keys(info.EdgesByKind)
	slices.Sort(kinds)
	fmt.Printf("\nEdges (%d):\n", len(info.Edges))
	for _, k := range kinds {
		fmt.Printf("  %-12s %d\n", k, info.EdgesByKind[k])
	}
	fmt.Println()
	for _, e := range info.Edges {
		fmt.Printf("  %s\n", e)
	}
}

func init() {
	graphCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	RootCmd.AddCommand(graphCmd)
}
