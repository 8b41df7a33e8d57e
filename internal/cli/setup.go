package cli

import (
	"os"

	"github.com/urfave/cli/v2"

	"github.com/campers-dev/campers/internal/cli/render/jsonrender"
	"github.com/campers-dev/campers/internal/cli/render/plain"
)

// SetupCommand validates that the chosen provider/region combination is
// reachable and usable, without launching an instance — a dry run of the
// preflight half of PROVISION (spec.md §4.H1), separate from doctor's
// binary/credential presence checks.
func SetupCommand() *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Validate the compute provider and region are ready to launch into",
		Flags:  append([]cli.Flag{regionFlag, providerFlag}, outputFlags()...),
		Action: setupAction,
	}
}

func setupAction(c *cli.Context) error {
	provider, err := buildProvider(c.Context, c.String("provider"), c.String("region"))
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	region := c.String("region")
	validateErr := provider.ValidateRegion(c.Context, region)

	if c.Bool("json-output") {
		return jsonrender.Write(os.Stdout, "setup", map[string]any{
			"provider": c.String("provider"),
			"region":   region,
		}, validateErr)
	}

	if validateErr != nil {
		plain.KV(os.Stdout, [][2]string{{"setup", "failed: " + validateErr.Error()}})
		return cli.Exit(validateErr.Error(), 1)
	}
	plain.KV(os.Stdout, [][2]string{
		{"Provider", c.String("provider")},
		{"Region", region},
		{"Status", "ready"},
	})
	return nil
}
