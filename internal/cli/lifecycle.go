package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/campers-dev/campers/internal/cli/render/jsonrender"
	"github.com/campers-dev/campers/internal/cli/render/plain"
	"github.com/campers-dev/campers/internal/compute"
)

// resolveTarget finds the instance matching nameOrID, erroring if nothing
// matches. When several match, it returns the first in the provider's
// order (non-terminated and newest first).
func resolveTarget(ctx context.Context, provider compute.Provider, nameOrID, regionFilter string) (compute.Descriptor, error) {
	matches, err := provider.FindInstancesByNameOrID(ctx, nameOrID, regionFilter)
	if err != nil {
		return compute.Descriptor{}, err
	}
	if len(matches) == 0 {
		return compute.Descriptor{}, fmt.Errorf("no instance matches %q", nameOrID)
	}
	return matches[0], nil
}

// StopCommand halts a running instance without releasing its resources.
func StopCommand() *cli.Command {
	return &cli.Command{
		Name:      "stop",
		Usage:     "Stop a managed instance",
		ArgsUsage: "<name-or-id>",
		Flags:     append([]cli.Flag{regionFlag, providerFlag}, outputFlags()...),
		Action: func(c *cli.Context) error {
			return lifecycleAction(c, "stop", func(ctx context.Context, p compute.Provider, id string) error {
				return p.Stop(ctx, id)
			})
		},
	}
}

// StartCommand resumes a stopped instance.
func StartCommand() *cli.Command {
	return &cli.Command{
		Name:      "start",
		Usage:     "Start a stopped managed instance",
		ArgsUsage: "<name-or-id>",
		Flags:     append([]cli.Flag{regionFlag, providerFlag}, outputFlags()...),
		Action: func(c *cli.Context) error {
			return lifecycleAction(c, "start", func(ctx context.Context, p compute.Provider, id string) error {
				_, err := p.Start(ctx, id)
				return err
			})
		},
	}
}

// DestroyCommand permanently terminates an instance.
func DestroyCommand() *cli.Command {
	return &cli.Command{
		Name:      "destroy",
		Usage:     "Terminate a managed instance",
		ArgsUsage: "<name-or-id>",
		Flags:     append([]cli.Flag{regionFlag, providerFlag}, outputFlags()...),
		Action: func(c *cli.Context) error {
			return lifecycleAction(c, "destroy", func(ctx context.Context, p compute.Provider, id string) error {
				return p.Terminate(ctx, id)
			})
		},
	}
}

func lifecycleAction(c *cli.Context, command string, op func(context.Context, compute.Provider, string) error) error {
	if c.NArg() != 1 {
		return cli.Exit(fmt.Sprintf("usage: campers %s <name-or-id>", command), 2)
	}
	ctx := c.Context
	provider, err := buildProvider(ctx, c.String("provider"), c.String("region"))
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	target, err := resolveTarget(ctx, provider, c.Args().First(), c.String("region"))
	if err != nil {
		if code, handled := diagnose(os.Stderr, err); handled {
			return cli.Exit("", code)
		}
		return cli.Exit(err.Error(), 1)
	}
	if err := op(ctx, provider, target.InstanceID); err != nil {
		if code, handled := diagnose(os.Stderr, err); handled {
			return cli.Exit("", code)
		}
		return cli.Exit(err.Error(), 1)
	}
	if c.Bool("json-output") {
		return jsonrender.Write(os.Stdout, command, map[string]string{"instance_id": target.InstanceID}, nil)
	}
	fmt.Fprintf(os.Stdout, "%s: %s\n", command, target.InstanceID)
	return nil
}

// InfoCommand dumps one instance's descriptor.
func InfoCommand() *cli.Command {
	return &cli.Command{
		Name:      "info",
		Usage:     "Show one managed instance's descriptor",
		ArgsUsage: "<name-or-id>",
		Flags:     append([]cli.Flag{regionFlag, providerFlag}, outputFlags()...),
		Action:    infoAction,
	}
}

func infoAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: campers info <name-or-id>", 2)
	}
	ctx := c.Context
	provider, err := buildProvider(ctx, c.String("provider"), c.String("region"))
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	target, err := resolveTarget(ctx, provider, c.Args().First(), c.String("region"))
	if err != nil {
		if code, handled := diagnose(os.Stderr, err); handled {
			return cli.Exit("", code)
		}
		return cli.Exit(err.Error(), 1)
	}

	if c.Bool("json-output") {
		return jsonrender.Write(os.Stdout, "info", target, nil)
	}
	plain.KV(os.Stdout, [][2]string{
		{"Instance ID", target.InstanceID},
		{"State", string(target.State)},
		{"Region", target.Region},
		{"Type", target.InstanceType},
		{"Public IP", target.PublicIP},
		{"Private IP", target.PrivateIP},
		{"SSH Port", fmt.Sprintf("%d", target.SSHPort)},
		{"Launch Time", target.LaunchTime.Format("2006-01-02 15:04:05")},
	})
	return nil
}
