package cli

import (
	"github.com/urfave/cli/v2"
)

// NewApp assembles the top-level campers CLI, wiring every subcommand
// named in spec.md §6.
func NewApp(version string) *cli.App {
	return &cli.App{
		Name:    "campers",
		Usage:   "Provision, configure, and tear down short-lived dev instances",
		Version: version,
		Commands: []*cli.Command{
			RunCommand(),
			ListCommand(),
			StopCommand(),
			StartCommand(),
			DestroyCommand(),
			InfoCommand(),
			SetupCommand(),
			DoctorCommand(),
			InitCommand(),
		},
	}
}
