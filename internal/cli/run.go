package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/campers-dev/campers/internal/cli/render/jsonrender"
	"github.com/campers-dev/campers/internal/cli/render/plain"
	"github.com/campers-dev/campers/internal/cli/render/tui"
	"github.com/campers-dev/campers/internal/compute"
	"github.com/campers-dev/campers/internal/events"
	"github.com/campers-dev/campers/internal/identity"
	"github.com/campers-dev/campers/internal/orchestrator"
	"github.com/campers-dev/campers/internal/playbook"
	"github.com/campers-dev/campers/internal/runconfig"
	"github.com/campers-dev/campers/internal/signals"
	"github.com/campers-dev/campers/internal/sshtransport"
	"github.com/campers-dev/campers/internal/syncctl"
)

// RunCommand resolves a RunConfig and drives one provision-through-teardown
// run (spec.md §4.H1). ArgsUsage's optional [profile] names a camp from
// campers.yaml.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Provision (or reuse) an instance and run the configured command",
		ArgsUsage: "[profile]",
		Flags: append([]cli.Flag{
			regionFlag,
			&cli.StringFlag{Name: "command", Usage: "Primary command to run over SSH"},
			&cli.StringFlag{Name: "instance-type", Usage: "Cloud instance type/size"},
			&cli.IntFlag{Name: "disk-size", Usage: "Root volume size in GB"},
			&cli.IntSliceFlag{Name: "port", Usage: "Local<->remote port to forward (repeatable)"},
			&cli.StringSliceFlag{Name: "ignore", Usage: "Sync ignore pattern (repeatable)"},
			&cli.BoolFlag{Name: "include-vcs", Usage: "Include VCS metadata directories in sync"},
		}, outputFlags()...),
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	configPath := envOr("CAMPERS_CONFIG", "campers.yaml")
	fileContents, err := os.ReadFile(configPath)
	if err != nil && !os.IsNotExist(err) {
		return cli.Exit(fmt.Sprintf("read %s: %v", configPath, err), 2)
	}

	overrides := runOverridesFromFlags(c)
	cfg, err := runconfig.Resolve(fileContents, c.Args().First(), overrides)
	if err != nil {
		if os.Getenv("CAMPERS_DEBUG") != "1" {
			if code, handled := diagnose(os.Stderr, err); handled {
				return cli.Exit("", code)
			}
		}
		return cli.Exit(err.Error(), 2)
	}

	camperDir := envOr("CAMPERS_DIR", defaultCampersDir())
	if err := os.MkdirAll(camperDir, 0o700); err != nil {
		return cli.Exit(err.Error(), 2)
	}

	workdir, err := os.Getwd()
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	instanceName := identity.DeriveName(c.Context, workdir)

	computeProvider, _, err := buildProvisioningProvider(c.Context, string(cfg.Provider), cfg.Region, filepath.Join(camperDir, "keys"))
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	runID := uuid.NewString()
	bus := events.New(runID)

	deps := orchestrator.Deps{
		Compute:             computeProvider,
		Sync:                syncctl.New(envOr("CAMPERS_MUTAGEN_BINARY", "mutagen")),
		Playbooks:           playbook.New(envOr("CAMPERS_ANSIBLE_BINARY", "ansible-playbook")),
		Bus:                 bus,
		NewTransport:        orchestrator.NewSSHTransportFactory(filepath.Join(camperDir, "known_hosts"), sshtransport.Logf(bus.Logf)),
		NewTunnelController: orchestrator.NewTunnelControllerFactory(),
		KeyDir:              filepath.Join(camperDir, "keys"),
		DisableSync:         envBool("CAMPERS_DISABLE_MUTAGEN"),
		SkipSSHConnection:   envBool("CAMPERS_SKIP_SSH_CONNECTION"),
		HarnessManaged:      envBool("CAMPERS_HARNESS_MANAGED"),
	}

	orch := orchestrator.New(deps)
	signals.Default().SetTarget(orch)
	defer signals.Default().ClearTarget()

	jsonOut := c.Bool("json-output")
	plainOut := c.Bool("plain")

	done := make(chan struct{})
	var result *orchestrator.Result
	var runErr error
	go func() {
		defer close(done)
		result, runErr = orch.Run(c.Context, cfg, instanceName)
	}()

	switch {
	case jsonOut:
		streamEventsJSON(bus, done)
	case plainOut:
		streamEventsPlain(bus, done)
	default:
		_ = tui.Run(bus, done)
		<-done
	}

	if runErr != nil {
		if jsonOut {
			_ = jsonrender.Write(os.Stdout, "run", nil, runErr)
		} else if os.Getenv("CAMPERS_DEBUG") != "1" {
			if code, handled := diagnose(os.Stderr, runErr); handled {
				return cli.Exit("", code)
			}
		}
		return cli.Exit(runErr.Error(), 1)
	}

	if jsonOut {
		return jsonrender.Write(os.Stdout, "run", result, nil)
	}
	if plainOut {
		plain.KV(os.Stdout, [][2]string{
			{"Instance ID", result.Descriptor.InstanceID},
			{"Public IP", result.Descriptor.PublicIP},
			{"Exit Code", strconv.Itoa(result.ExitCode)},
		})
	}
	if result.ExitCode != 0 {
		return cli.Exit("", result.ExitCode)
	}
	return nil
}

// streamEventsPlain drains the bus to stdout as plain log lines until done
// closes, the non-interactive counterpart to the TUI renderer.
func streamEventsPlain(bus *events.Bus, done <-chan struct{}) {
	ticker := time.NewTicker(150 * time.Millisecond)
	defer ticker.Stop()
	for {
		for _, evt := range bus.Drain(20) {
			printPlainEvent(evt)
		}
		select {
		case <-done:
			for _, evt := range bus.Drain(20) {
				printPlainEvent(evt)
			}
			return
		case <-ticker.C:
		}
	}
}

func printPlainEvent(evt events.RunEvent) {
	switch evt.Type {
	case events.TypeStatusUpdate:
		fmt.Fprintf(os.Stdout, "status: %s\n", evt.Status)
	case events.TypeLog:
		fmt.Fprintln(os.Stdout, evt.Text)
	case events.TypeCleanupEvent:
		fmt.Fprintf(os.Stdout, "cleanup: %s %s\n", evt.Step, evt.Status)
	case events.TypeInstanceDetails:
		if d, ok := evt.Instance.(compute.Descriptor); ok {
			fmt.Fprintf(os.Stdout, "instance: %s (%s)\n", d.InstanceID, d.PublicIP)
		}
	}
}

// streamEventsJSON drains the bus to stdout as one JSON object per event
// until done closes.
func streamEventsJSON(bus *events.Bus, done <-chan struct{}) {
	ticker := time.NewTicker(150 * time.Millisecond)
	defer ticker.Stop()
	for {
		for _, evt := range bus.Drain(20) {
			_ = jsonrender.Write(os.Stdout, "run_event", evt, nil)
		}
		select {
		case <-done:
			for _, evt := range bus.Drain(20) {
				_ = jsonrender.Write(os.Stdout, "run_event", evt, nil)
			}
			return
		case <-ticker.C:
		}
	}
}

func runOverridesFromFlags(c *cli.Context) runconfig.Overrides {
	var o runconfig.Overrides
	if c.IsSet("region") {
		v := c.String("region")
		o.Region = &v
	}
	if c.IsSet("instance-type") {
		v := c.String("instance-type")
		o.InstanceType = &v
	}
	if c.IsSet("disk-size") {
		v := c.Int("disk-size")
		o.DiskSizeGB = &v
	}
	if c.IsSet("command") {
		v := c.String("command")
		o.Command = &v
	}
	if c.IsSet("port") {
		v := c.IntSlice("port")
		o.Ports = &v
	}
	if c.IsSet("ignore") {
		v := c.StringSlice("ignore")
		o.Ignore = &v
	}
	if c.IsSet("include-vcs") {
		v := c.Bool("include-vcs")
		o.IncludeVCS = &v
	}
	return o
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func envBool(name string) bool {
	return os.Getenv(name) == "1"
}

func defaultCampersDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".campers"
	}
	return filepath.Join(home, ".campers")
}
