package cli

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/campers-dev/campers/internal/cli/render/jsonrender"
	"github.com/campers-dev/campers/internal/cli/render/plain"
)

// ListCommand enumerates instances tagged ManagedBy=campers. Grounded on
// paas_target_cmd.go's listing table (one row per target, aligned
// columns).
func ListCommand() *cli.Command {
	return &cli.Command{
		Name:   "list",
		Usage:  "List instances managed by campers",
		Flags:  append([]cli.Flag{regionFlag, providerFlag}, outputFlags()...),
		Action: listAction,
	}
}

func listAction(c *cli.Context) error {
	ctx := c.Context
	provider, err := buildProvider(ctx, c.String("provider"), c.String("region"))
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	instances, err := provider.ListManaged(ctx, c.String("region"))
	if err != nil {
		if code, handled := diagnose(os.Stderr, err); handled {
			return cli.Exit("", code)
		}
		return cli.Exit(err.Error(), 1)
	}

	if c.Bool("json-output") {
		return jsonrender.Write(os.Stdout, "list", instances, nil)
	}

	rows := make([][]string, 0, len(instances))
	for _, d := range instances {
		rows = append(rows, []string{d.InstanceID, string(d.State), d.Region, d.PublicIP, fmt.Sprintf("%v", d.Reused)})
	}
	plain.Table(os.Stdout, []string{"INSTANCE", "STATE", "REGION", "ADDRESS", "REUSED"}, rows)
	return nil
}
