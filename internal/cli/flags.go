// Package cli wires the campers subcommands onto urfave/cli/v2. One file
// per command, grounded on quarry's cli/cmd package layout (*cli.Command
// constructor functions, shared flag vars) rather than a hand-rolled
// flag.NewFlagSet dispatch, since the flag surface here (repeatable
// --port/--ignore, exclusive --plain/--json-output) is exactly what
// urfave/cli/v2 models directly.
package cli

import "github.com/urfave/cli/v2"

// regionFlag is shared by every subcommand that targets a specific cloud
// region.
var regionFlag = &cli.StringFlag{
	Name:  "region",
	Usage: "Cloud region to target (overrides campers.yaml)",
}

// providerFlag selects the compute backend for lifecycle subcommands that
// do not otherwise resolve a full RunConfig.
var providerFlag = &cli.StringFlag{
	Name:  "provider",
	Usage: "Compute backend: aws or docker",
	Value: "aws",
}

func outputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{Name: "json-output", Usage: "Emit the result as a JSON envelope"},
		&cli.BoolFlag{Name: "plain", Usage: "Suppress the interactive TUI / colored output"},
		&cli.BoolFlag{Name: "verbose", Usage: "Enable debug-level logging"},
	}
}
