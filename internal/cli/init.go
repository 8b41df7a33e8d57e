package cli

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

// scaffoldTemplate is the starter campers.yaml written by `campers init`,
// grounded on printPaasScaffold (paas_cmd.go): a commented template
// covering every top-level section rather than a minimal stub.
const scaffoldTemplate = `# campers.yaml — see "campers doctor" to check your environment is ready.

vars:
  # name: value   # referenced elsewhere in this file as ${name}

defaults:
  provider: aws
  region: us-east-1
  instance_type: t3.medium
  disk_size: 30
  ssh_username: ubuntu
  on_exit: stop
  sync_paths:
    - local: .
      remote: ~/workspace
  ignore:
    - node_modules
    - .git
  ports: []
  command: ""

camps: {}
  # staging:
  #   region: us-west-2
  #   instance_type: t3.large

playbooks: {}
  # provision: playbooks/provision.yml
`

// InitCommand scaffolds a starter campers.yaml in the current directory.
func InitCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Write a starter campers.yaml in the current directory",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "force", Usage: "Overwrite an existing campers.yaml"},
		},
		Action: initAction,
	}
}

func initAction(c *cli.Context) error {
	path := envOr("CAMPERS_CONFIG", "campers.yaml")
	if _, err := os.Stat(path); err == nil && !c.Bool("force") {
		return cli.Exit(fmt.Sprintf("%s already exists; pass --force to overwrite", path), 2)
	}
	if err := os.WriteFile(path, []byte(scaffoldTemplate), 0o644); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	fmt.Fprintf(os.Stdout, "wrote %s\n", path)
	return nil
}
