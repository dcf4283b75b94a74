// Package main implements the go-cegar CLI (cegar).
// It checks program graphs for reachable error locations by counterexample
// guided abstraction refinement.
package main

import (
	"os"

	"github.com/l3aro/go-cegar/cmd/cegar/commands"
)

var (
	version   = "dev"
	buildTime = ""
)

func main() {
	commands.SetVersion(version, buildTime)

	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
