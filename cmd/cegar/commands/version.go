package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	appVersion   = "dev"
	appBuildTime = ""
)

// SetVersion records the build metadata injected through ldflags.
func SetVersion(version, buildTime string) {
	appVersion, appBuildTime = version, buildTime
	RootCmd.Version = versionString()
	RootCmd.SetVersionTemplate("cegar {{.Version}}\n")
}

func versionString() string {
	if appBuildTime == "" {
		return appVersion
	}
	return fmt.Sprintf("%s (built %s)", appVersion, appBuildTime)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("cegar %s\n", versionString())
	},
}

func init() {
	RootCmd.AddCommand(versionCmd)
}
