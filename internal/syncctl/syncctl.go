// Package syncctl implements the Sync Controller component (spec.md
// §4.L5): it drives a long-lived external sync daemon (mutagen) through
// preflight, session creation, steady-state polling, and termination.
// Subprocess invocation is grounded on the exec idiom in
// _teacher_ref/docker_cli.go; unlike that idiom, output is not streamed:
// each daemon call captures stdout and stderr into buffers and returns them
// once the process exits.
package syncctl

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/campers-dev/campers/internal/runconfig"
)

const (
	// DefaultPollInterval is the fixed interval wait_steady polls status
	// at, per spec.md §4.L5.
	DefaultPollInterval = time.Second
	// DefaultSteadyDeadline is the default initial-sync deadline.
	DefaultSteadyDeadline = 300 * time.Second

	steadyToken = "watching"
)

var baseVCSIgnore = []string{".git", ".gitignore"}

// SyncUnavailableError signals the daemon binary is not on PATH.
type SyncUnavailableError struct {
	Binary string
}

func (e *SyncUnavailableError) Error() string {
	return fmt.Sprintf("sync daemon binary %q not found on PATH", e.Binary)
}

// SyncCreateFailedError wraps a non-zero exit from session creation.
type SyncCreateFailedError struct {
	Stderr string
}

func (e *SyncCreateFailedError) Error() string {
	return fmt.Sprintf("sync session create failed: %s", e.Stderr)
}

// SyncTimeoutError signals wait_steady exceeded its deadline.
type SyncTimeoutError struct {
	SessionName string
	Deadline    time.Duration
}

func (e *SyncTimeoutError) Error() string {
	return fmt.Sprintf("sync session %q did not reach steady state within %s", e.SessionName, e.Deadline)
}

// Controller drives the external sync daemon binary (default "mutagen").
type Controller struct {
	Binary       string
	PollInterval time.Duration
	Log          func(format string, args ...any)

	// runCommand is overridable in tests.
	runCommand func(ctx context.Context, args ...string) (stdout, stderr string, err error)
}

// New returns a Controller invoking binary (default "mutagen").
func New(binary string) *Controller {
	if binary == "" {
		binary = "mutagen"
	}
	c := &Controller{
		Binary:       binary,
		PollInterval: DefaultPollInterval,
		Log:          func(string, ...any) {},
	}
	c.runCommand = c.execCommand
	return c
}

func (c *Controller) execCommand(ctx context.Context, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, c.Binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// Preflight verifies the daemon binary is present on PATH.
func (c *Controller) Preflight() error {
	if _, err := exec.LookPath(c.Binary); err != nil {
		return &SyncUnavailableError{Binary: c.Binary}
	}
	return nil
}

// CleanupOrphaned terminates any pre-existing session with this name,
// ignoring errors (the session may simply not exist).
func (c *Controller) CleanupOrphaned(ctx context.Context, sessionName string) {
	_, _, _ = c.runCommand(ctx, "sync", "terminate", sessionName)
}

// CreateSessionParams groups create_session's arguments (spec.md §4.L5).
type CreateSessionParams struct {
	Name            string
	Local           string
	Remote          string
	Host            string
	KeyPath         string
	User            string
	IgnorePatterns  []string
	IncludeVCS      bool
	SSHPort         int
}

// CreateSession invokes the daemon's create subcommand, passing an SSH
// command wrapper so the daemon's transport matches the orchestrator's
// key/port.
func (c *Controller) CreateSession(ctx context.Context, p CreateSessionParams) error {
	ignore := p.IgnorePatterns
	if !p.IncludeVCS {
		ignore = append(append([]string{}, baseVCSIgnore...), ignore...)
	}

	args := []string{
		"sync", "create",
		"--name", p.Name,
		"--default-ignore", strings.Join(ignore, ","),
		"--ssh-command", sshWrapperArgs(p.KeyPath, p.SSHPort),
		p.Local,
		fmt.Sprintf("%s@%s:%s", p.User, p.Host, p.Remote),
	}

	_, stderr, err := c.runCommand(ctx, args...)
	if err != nil {
		return &SyncCreateFailedError{Stderr: strings.TrimSpace(stderr)}
	}
	return nil
}

// sshWrapperArgs documents the flags a real SSH command wrapper would need
// (key path, port) so CreateSession's daemon invocation connects using the
// same credentials as the rest of the orchestrator.
func sshWrapperArgs(keyPath string, port int) string {
	return fmt.Sprintf("-i %s -p %d", keyPath, port)
}

// Status returns the daemon's freeform status line for sessionName.
func (c *Controller) Status(ctx context.Context, sessionName string) (string, error) {
	stdout, stderr, err := c.runCommand(ctx, "sync", "list", sessionName, "--template", "{{.Status}}")
	if err != nil {
		return "", fmt.Errorf("sync status: %s", strings.TrimSpace(stderr))
	}
	return strings.TrimSpace(stdout), nil
}

// WaitSteady polls Status at PollInterval until it contains the
// case-insensitive token "watching", or deadline elapses.
func (c *Controller) WaitSteady(ctx context.Context, sessionName string, deadline time.Duration) error {
	if deadline <= 0 {
		deadline = DefaultSteadyDeadline
	}
	interval := c.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	deadlineAt := time.Now().Add(deadline)
	for {
		status, err := c.Status(ctx, sessionName)
		if err == nil && isSteady(status) {
			return nil
		}
		if time.Now().After(deadlineAt) {
			return &SyncTimeoutError{SessionName: sessionName, Deadline: deadline}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

func isSteady(status string) bool {
	return strings.Contains(strings.ToLower(status), steadyToken)
}

// Terminate is idempotent and swallows daemon errors.
func (c *Controller) Terminate(ctx context.Context, sessionName string) {
	_, _, _ = c.runCommand(ctx, "sync", "terminate", sessionName)
}

// SyncPathsToParams builds one CreateSessionParams per configured sync
// path, carrying the shared connection details.
func SyncPathsToParams(cfg *runconfig.RunConfig, sessionPrefix, host, keyPath, user string, sshPort int) []CreateSessionParams {
	out := make([]CreateSessionParams, 0, len(cfg.SyncPaths))
	for i, sp := range cfg.SyncPaths {
		out = append(out, CreateSessionParams{
			Name:           fmt.Sprintf("%s-%d", sessionPrefix, i),
			Local:          sp.Local,
			Remote:         sp.Remote,
			Host:           host,
			KeyPath:        keyPath,
			User:           user,
			IgnorePatterns: cfg.Ignore,
			IncludeVCS:     cfg.IncludeVCS,
			SSHPort:        sshPort,
		})
	}
	return out
}
