// Package orchestrator implements the Run Orchestrator (spec.md §4.H1) and
// the Cleanup Coordinator (spec.md §4.H2): the state machine that drives a
// single campers run from config resolution through provisioning, SSH
// connection, sync, playbooks, scripts, tunnels and the primary command,
// and the reverse-order teardown that always follows it. Grounded on the
// sequential per-target reconcile shape in
// _teacher_ref/paas_deploy_reconcile.go (ordered phases, a result struct
// aggregating per-phase outcome) and the bounded single-operation phases in
// paas_target_bootstrap.go.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/crypto/ssh"

	"github.com/campers-dev/campers/internal/compute"
	"github.com/campers-dev/campers/internal/events"
	"github.com/campers-dev/campers/internal/playbook"
	"github.com/campers-dev/campers/internal/registry"
	"github.com/campers-dev/campers/internal/runconfig"
	"github.com/campers-dev/campers/internal/sshtransport"
	"github.com/campers-dev/campers/internal/syncctl"
	"github.com/campers-dev/campers/internal/tunnel"
)

// RuntimeError wraps a non-config failure encountered mid-run (setup
// script, startup script, playbook, tunnel, or SSH connect failure) that
// sends the run to CLEANUP instead of DONE.
type RuntimeError struct {
	Phase string
	Err   error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Phase, e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// RunningInstanceError is returned by PROVISION when a matching instance is
// already running; spec.md §9 resolves this Open Question as an error, not
// an implicit reuse.
type RunningInstanceError struct {
	InstanceID string
}

func (e *RunningInstanceError) Error() string {
	return fmt.Sprintf("instance %s is already running; stop or destroy it explicitly first", e.InstanceID)
}

// TransientStateError is returned by PROVISION when a matching instance is
// pending or stopping.
type TransientStateError struct {
	InstanceID string
	State      compute.State
}

func (e *TransientStateError) Error() string {
	return fmt.Sprintf("instance %s is %s; retry later", e.InstanceID, e.State)
}

// RegionMismatchError is returned by PROVISION when a matching instance
// exists in a different region than the resolved config.
type RegionMismatchError struct {
	InstanceID     string
	InstanceRegion string
	ConfigRegion   string
}

func (e *RegionMismatchError) Error() string {
	return fmt.Sprintf("instance %s is in region %s, but config requests %s", e.InstanceID, e.InstanceRegion, e.ConfigRegion)
}

// transport is the subset of *sshtransport.Transport the orchestrator
// depends on, so tests can substitute a fake.
type transport interface {
	Connect(ctx context.Context, opts sshtransport.ConnectOptions) error
	Execute(ctx context.Context, command string, onLine func(string)) (int, error)
	ExecuteRaw(ctx context.Context, command string, onLine func(string)) (int, error)
	AbortActiveCommand()
	Close() error
	Client() *ssh.Client
}

var _ transport = (*sshtransport.Transport)(nil)

// tunnelController is the subset of *tunnel.Controller the orchestrator
// depends on.
type tunnelController interface {
	CreateTunnels(ctx context.Context, ports []int) error
	StopAll()
}

var _ tunnelController = (*tunnel.Controller)(nil)

// Deps wires every collaborator the Orchestrator drives. NewTransport and
// NewTunnelController are factories so tests can inject fakes without a
// real network.
type Deps struct {
	Compute             compute.Provider
	Sync                *syncctl.Controller
	Playbooks           *playbook.Runner
	Bus                 *events.Bus
	NewTransport        func() transport
	NewTunnelController func(client *ssh.Client) tunnelController
	KeyDir              string // directory freshly generated private keys are written under
	DisableSync         bool   // CAMPERS_DISABLE_MUTAGEN
	SkipSSHConnection   bool   // CAMPERS_SKIP_SSH_CONNECTION
	HarnessManaged      bool   // CAMPERS_HARNESS_MANAGED
}

// Orchestrator drives one run's state machine and owns the Resource
// Registry and cleanup-in-progress flag for that run.
type Orchestrator struct {
	deps     Deps
	registry *registry.Registry

	cleanupMu         sync.Mutex
	cleanupInProgress atomic.Bool

	cfg        *runconfig.RunConfig
	descriptor compute.Descriptor
	transport  transport
	tunnels    tunnelController
	envVars    map[string]string
}

// Result is Run's terminal outcome.
type Result struct {
	Descriptor compute.Descriptor
	ExitCode   int
}

// New returns an Orchestrator for a single run, using its own fresh
// Resource Registry.
func New(deps Deps) *Orchestrator {
	if deps.Bus == nil {
		deps.Bus = events.New("")
	}
	return &Orchestrator{deps: deps, registry: registry.New()}
}

// Cleanup implements signals.Coordinator, invoked by the process-wide
// Signal Arbiter.
func (o *Orchestrator) Cleanup(signum int) {
	o.runCleanup(signum)
}

func (o *Orchestrator) cleanupRequested() bool {
	return o.cleanupInProgress.Load()
}

// Run executes the full state machine: RESOLVE is assumed already done by
// the caller (cfg is a validated, frozen RunConfig); Run begins at
// PROVISION and proceeds through CONNECT, SYNC, PLAYBOOKS, SETUP, TUNNELS,
// STARTUP, COMMAND, DONE, dispatching to CLEANUP on any fatal failure or
// cooperative cancellation.
func (o *Orchestrator) Run(ctx context.Context, cfg *runconfig.RunConfig, instanceName string) (*Result, error) {
	o.cfg = cfg
	o.deps.Bus.Publish(events.RunEvent{Type: events.TypeMergedConfig, Config: cfg})

	desc, err := o.provision(ctx, cfg, instanceName)
	if err != nil {
		return nil, err
	}
	o.descriptor = desc
	o.deps.Bus.Publish(events.RunEvent{Type: events.TypeInstanceDetails, Instance: desc})

	if cfg.Command == "" && cfg.SetupScript == "" && cfg.StartupScript == "" {
		return &Result{Descriptor: o.descriptor}, nil
	}

	if o.cleanupRequested() {
		return o.cleanupAndReturn(ctx, nil)
	}
	if err := o.connect(ctx, cfg, desc); err != nil {
		return o.cleanupAndReturn(ctx, err)
	}

	if o.cleanupRequested() {
		return o.cleanupAndReturn(ctx, nil)
	}
	if err := o.sync(ctx, cfg, desc); err != nil {
		return o.cleanupAndReturn(ctx, err)
	}

	if o.cleanupRequested() {
		return o.cleanupAndReturn(ctx, nil)
	}
	if err := o.playbooks(ctx, cfg, desc); err != nil {
		return o.cleanupAndReturn(ctx, err)
	}

	if o.cleanupRequested() {
		return o.cleanupAndReturn(ctx, nil)
	}
	if err := o.setup(ctx, cfg); err != nil {
		return o.cleanupAndReturn(ctx, err)
	}

	if o.cleanupRequested() {
		return o.cleanupAndReturn(ctx, nil)
	}
	if err := o.tunnelsPhase(ctx, cfg); err != nil {
		return o.cleanupAndReturn(ctx, err)
	}

	if o.cleanupRequested() {
		return o.cleanupAndReturn(ctx, nil)
	}
	if err := o.startup(ctx, cfg); err != nil {
		return o.cleanupAndReturn(ctx, err)
	}

	if o.cleanupRequested() {
		return o.cleanupAndReturn(ctx, nil)
	}
	exitCode, cmdErr := o.command(ctx, cfg)
	if cmdErr != nil {
		return o.cleanupAndReturn(ctx, cmdErr)
	}

	o.runCleanupForDone(ctx)
	return &Result{Descriptor: o.descriptor, ExitCode: exitCode}, nil
}

func (o *Orchestrator) cleanupAndReturn(ctx context.Context, cause error) (*Result, error) {
	o.runCleanup(0)
	if cause != nil {
		return nil, cause
	}
	return nil, fmt.Errorf("run cancelled during cleanup")
}

// provision implements PROVISION (spec.md §4.H1).
func (o *Orchestrator) provision(ctx context.Context, cfg *runconfig.RunConfig, instanceName string) (compute.Descriptor, error) {
	o.registry.Register(registry.KindComputeProvider, "compute", o.deps.Compute, func(any) error { return nil })

	matches, err := o.deps.Compute.FindInstancesByNameOrID(ctx, instanceName, cfg.Region)
	if err != nil {
		return compute.Descriptor{}, err
	}

	var desc compute.Descriptor
	if len(matches) > 0 {
		match := matches[0]
		if match.Region != "" && match.Region != cfg.Region {
			return compute.Descriptor{}, &RegionMismatchError{InstanceID: match.InstanceID, InstanceRegion: match.Region, ConfigRegion: cfg.Region}
		}
		switch match.State {
		case compute.StateStopped:
			desc, err = o.deps.Compute.Start(ctx, match.InstanceID)
			if err != nil {
				return compute.Descriptor{}, err
			}
			desc.Reused = true
		case compute.StateRunning:
			return compute.Descriptor{}, &RunningInstanceError{InstanceID: match.InstanceID}
		case compute.StatePending, compute.StateStopping:
			return compute.Descriptor{}, &TransientStateError{InstanceID: match.InstanceID, State: match.State}
		default: // terminated
			desc, err = o.deps.Compute.Launch(ctx, cfg, instanceName)
			if err != nil {
				return compute.Descriptor{}, err
			}
		}
	} else {
		desc, err = o.deps.Compute.Launch(ctx, cfg, instanceName)
		if err != nil {
			return compute.Descriptor{}, err
		}
	}

	o.registry.Register(registry.KindInstance, desc.InstanceID, desc, func(any) error { return nil })
	return desc, nil
}

// connect implements CONNECT.
func (o *Orchestrator) connect(ctx context.Context, cfg *runconfig.RunConfig, desc compute.Descriptor) error {
	o.deps.Bus.Status(events.StatusLaunching)
	if o.deps.SkipSSHConnection {
		return nil
	}

	tr := o.deps.NewTransport()
	port := desc.SSHPort
	if port == 0 {
		port = 22
	}
	err := tr.Connect(ctx, sshtransport.ConnectOptions{
		Host:     desc.PublicIP,
		Port:     port,
		Username: cfg.SSHUsername,
		KeyPath:  desc.KeyFile,
		Password: sshPasswordOverride(cfg.CampName),
	})
	if err != nil {
		return &RuntimeError{Phase: "connect", Err: err}
	}
	o.transport = tr
	o.registry.Register(registry.KindSSH, "ssh", tr, func(any) error { return nil })

	envVars, err := sshtransport.FilterEnvironmentVariables(cfg.EnvFilter, sshtransport.Logf(o.deps.Bus.Logf))
	if err != nil {
		return &RuntimeError{Phase: "connect", Err: err}
	}
	o.deps.Bus.Logf("forwarding %d environment variables", len(envVars))
	o.envVars = envVars
	return nil
}

// sshPasswordOverride reads CAMPERS_SSH_PASSWORD_<CAMP>, letting a camp opt
// into password auth (e.g. a docker dev image with no injected key) without
// touching campers.yaml. Absent the env var, key-based auth is used.
func sshPasswordOverride(campName string) string {
	key := "CAMPERS_SSH_PASSWORD_" + strings.ToUpper(strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, campName))
	return os.Getenv(key)
}

// sync implements SYNC.
func (o *Orchestrator) sync(ctx context.Context, cfg *runconfig.RunConfig, desc compute.Descriptor) error {
	if len(cfg.SyncPaths) == 0 || o.deps.DisableSync || o.deps.SkipSSHConnection {
		return nil
	}
	o.deps.Bus.Status(events.StatusRunning)

	if err := o.deps.Sync.Preflight(); err != nil {
		return &RuntimeError{Phase: "sync", Err: err}
	}
	sessionName := "campers-" + desc.UniqueID
	o.deps.Sync.CleanupOrphaned(ctx, sessionName)

	sp := cfg.SyncPaths[0]
	port := desc.SSHPort
	if port == 0 {
		port = 22
	}
	err := o.deps.Sync.CreateSession(ctx, syncctl.CreateSessionParams{
		Name:           sessionName,
		Local:          sp.Local,
		Remote:         sp.Remote,
		Host:           desc.PublicIP,
		KeyPath:        desc.KeyFile,
		User:           cfg.SSHUsername,
		IgnorePatterns: cfg.Ignore,
		IncludeVCS:     cfg.IncludeVCS,
		SSHPort:        port,
	})
	if err != nil {
		return &RuntimeError{Phase: "sync", Err: err}
	}
	o.registry.Register(registry.KindSyncSession, sessionName, sessionName, func(any) error { return nil })

	o.deps.Bus.Publish(events.RunEvent{Type: events.TypeMutagenStatus, Mutagen: events.MutagenPayload{State: "syncing"}})
	if err := o.deps.Sync.WaitSteady(ctx, sessionName, syncctl.DefaultSteadyDeadline); err != nil {
		return &RuntimeError{Phase: "sync", Err: err}
	}
	o.deps.Bus.Publish(events.RunEvent{Type: events.TypeMutagenStatus, Mutagen: events.MutagenPayload{State: "watching"}})
	return nil
}

// playbooks implements PLAYBOOKS.
func (o *Orchestrator) playbooks(ctx context.Context, cfg *runconfig.RunConfig, desc compute.Descriptor) error {
	names := cfg.PlaybookNames()
	if len(names) == 0 || o.deps.SkipSSHConnection {
		return nil
	}
	port := desc.SSHPort
	if port == 0 {
		port = 22
	}
	err := o.deps.Playbooks.Execute(ctx, playbook.ExecuteParams{
		Names:        names,
		PlaybooksMap: cfg.Playbooks,
		InstanceIP:   desc.PublicIP,
		KeyFile:      desc.KeyFile,
		User:         cfg.SSHUsername,
		SSHPort:      port,
		OnLine: func(name, line string) {
			o.deps.Bus.Logf("[%s] %s", name, line)
		},
	})
	if err != nil {
		return &RuntimeError{Phase: "playbooks", Err: err}
	}
	return nil
}

// setup implements SETUP.
func (o *Orchestrator) setup(ctx context.Context, cfg *runconfig.RunConfig) error {
	script := strings.TrimSpace(cfg.SetupScript)
	if script == "" || o.deps.SkipSSHConnection {
		return nil
	}
	withEnv, err := sshtransport.BuildCommandWithEnv(script, o.envVars)
	if err != nil {
		return &RuntimeError{Phase: "setup", Err: err}
	}
	code, err := o.transport.Execute(ctx, withEnv, func(line string) { o.deps.Bus.Logf("%s", line) })
	if err != nil {
		return &RuntimeError{Phase: "setup", Err: err}
	}
	if code != 0 {
		return &RuntimeError{Phase: "setup", Err: fmt.Errorf("setup_script exited %d", code)}
	}
	return nil
}

// tunnelsPhase implements TUNNELS.
func (o *Orchestrator) tunnelsPhase(ctx context.Context, cfg *runconfig.RunConfig) error {
	if len(cfg.Ports) == 0 || o.deps.SkipSSHConnection {
		return nil
	}
	var client *ssh.Client
	if o.transport != nil {
		client = o.transport.Client()
	}
	tc := o.deps.NewTunnelController(client)
	if err := tc.CreateTunnels(ctx, cfg.Ports); err != nil {
		return &RuntimeError{Phase: "tunnels", Err: err}
	}
	o.tunnels = tc
	o.registry.Register(registry.KindTunnels, "tunnels", tc, func(any) error { return nil })
	return nil
}

// startup implements STARTUP.
func (o *Orchestrator) startup(ctx context.Context, cfg *runconfig.RunConfig) error {
	if cfg.StartupScript == "" || o.deps.SkipSSHConnection {
		return nil
	}
	dir := remoteWorkingDir(cfg)
	command := fmt.Sprintf("mkdir -p %s && cd %s && bash -c %s", dir, dir, quoteShellFragment(cfg.StartupScript))
	withEnv, err := sshtransport.BuildCommandWithEnv(command, o.envVars)
	if err != nil {
		return &RuntimeError{Phase: "startup", Err: err}
	}
	code, err := o.transport.ExecuteRaw(ctx, withEnv, func(line string) { o.deps.Bus.Logf("%s", line) })
	if err != nil {
		return &RuntimeError{Phase: "startup", Err: err}
	}
	if code != 0 {
		return &RuntimeError{Phase: "startup", Err: fmt.Errorf("startup_script exited %d", code)}
	}
	return nil
}

// command implements COMMAND: nonzero exit is not fatal.
func (o *Orchestrator) command(ctx context.Context, cfg *runconfig.RunConfig) (int, error) {
	if cfg.Command == "" || o.deps.SkipSSHConnection {
		return 0, nil
	}
	o.deps.Bus.Status(events.StatusRunning)

	command := cfg.Command
	if len(cfg.SyncPaths) > 0 {
		dir := remoteWorkingDir(cfg)
		command = fmt.Sprintf("cd %s && %s", dir, cfg.Command)
		withEnv, err := sshtransport.BuildCommandWithEnv(command, o.envVars)
		if err != nil {
			return 0, &RuntimeError{Phase: "command", Err: err}
		}
		return o.transport.ExecuteRaw(ctx, withEnv, func(line string) { o.deps.Bus.Logf("%s", line) })
	}
	withEnv, err := sshtransport.BuildCommandWithEnv(command, o.envVars)
	if err != nil {
		return 0, &RuntimeError{Phase: "command", Err: err}
	}
	return o.transport.Execute(ctx, withEnv, func(line string) { o.deps.Bus.Logf("%s", line) })
}

// remoteWorkingDir resolves sync_paths[0].remote, shell-quoted but
// preserving a literal leading "~".
func remoteWorkingDir(cfg *runconfig.RunConfig) string {
	if len(cfg.SyncPaths) == 0 {
		return "~"
	}
	dir := cfg.SyncPaths[0].Remote
	if strings.HasPrefix(dir, "~") {
		rest := strings.TrimPrefix(dir, "~")
		if rest == "" {
			return "~"
		}
		return "~" + quoteShellFragment(rest)
	}
	return quoteShellFragment(dir)
}

func quoteShellFragment(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func (o *Orchestrator) runCleanupForDone(ctx context.Context) {
	o.runCleanup(0)
}

// RequestCleanup sets the cooperative cancellation flag the Orchestrator
// tests between phase transitions (spec.md §5).
func (o *Orchestrator) RequestCleanup() {
	o.cleanupInProgress.Store(true)
}
