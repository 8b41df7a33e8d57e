// Package playbook implements the Playbook Runner component (spec.md
// §4.L7): it materializes a per-run inventory and playbook file on disk,
// invokes the external ansible-playbook binary against them, and streams
// its combined output line by line. Subprocess invocation and output
// streaming follow the exec idiom in
// _teacher_ref/paas_ssh_transport_cmd.go (StdoutPipe/StderrPipe fan-out
// started before Wait), adapted here to run a local subprocess rather
// than a remote SSH command.
package playbook

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
)

const defaultBinary = "ansible-playbook"

// PlaybookFailedError reports a non-zero exit from one named playbook.
// Runner halts on the first failure; remaining playbooks are skipped.
type PlaybookFailedError struct {
	Name string
	Code int
}

func (e *PlaybookFailedError) Error() string {
	return fmt.Sprintf("playbook %q exited with code %d", e.Name, e.Code)
}

// Runner invokes an external playbook engine (default ansible-playbook)
// against materialized inventory/playbook files.
type Runner struct {
	Binary string
	Log    func(format string, args ...any)

	// runCommand is overridable in tests.
	runCommand func(ctx context.Context, binary string, args []string, onLine func(string)) (exitCode int, err error)
}

// New returns a Runner invoking binary (default "ansible-playbook").
func New(binary string) *Runner {
	if binary == "" {
		binary = defaultBinary
	}
	r := &Runner{Binary: binary, Log: func(string, ...any) {}}
	r.runCommand = r.execCommand
	return r
}

// ExecuteParams groups execute's arguments (spec.md §4.L7).
type ExecuteParams struct {
	Names         []string
	PlaybooksMap  map[string]string
	InstanceIP    string
	KeyFile       string
	User          string
	SSHPort       int
	OnLine        func(name, line string)
}

// Execute runs each named playbook in order, materializing a fresh
// inventory and playbook file per run in a temp dir that is always removed
// afterward, streaming combined output through p.OnLine. The first
// non-zero exit halts execution and returns *PlaybookFailedError; any
// playbooks after it are skipped.
func (r *Runner) Execute(ctx context.Context, p ExecuteParams) error {
	for _, name := range p.Names {
		source, ok := p.PlaybooksMap[name]
		if !ok {
			return fmt.Errorf("playbook %q has no source mapping", name)
		}
		if err := r.runOne(ctx, name, source, p); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) runOne(ctx context.Context, name, source string, p ExecuteParams) error {
	dir, err := os.MkdirTemp("", "campers-playbook-")
	if err != nil {
		return fmt.Errorf("create temp dir for playbook %q: %w", name, err)
	}
	defer os.RemoveAll(dir)

	inventoryPath := filepath.Join(dir, "inventory.ini")
	if err := writeInventory(inventoryPath, p.InstanceIP, p.User, p.KeyFile, p.SSHPort); err != nil {
		return fmt.Errorf("write inventory for playbook %q: %w", name, err)
	}

	playbookPath := filepath.Join(dir, "playbook.yml")
	if err := os.WriteFile(playbookPath, []byte(source), 0o600); err != nil {
		return fmt.Errorf("write playbook %q: %w", name, err)
	}

	args := []string{"-i", inventoryPath, playbookPath, "-v"}
	onLine := func(line string) {
		if p.OnLine != nil {
			p.OnLine(name, line)
		}
	}

	code, err := r.runCommand(ctx, r.Binary, args, onLine)
	if err != nil {
		return fmt.Errorf("run playbook %q: %w", name, err)
	}
	if code != 0 {
		return &PlaybookFailedError{Name: name, Code: code}
	}
	return nil
}

func writeInventory(path, instanceIP, user, keyFile string, sshPort int) error {
	content := fmt.Sprintf(
		"%s ansible_user=%s ansible_ssh_private_key_file=%s ansible_port=%d ansible_ssh_common_args='-o StrictHostKeyChecking=accept-new'\n",
		instanceIP, user, keyFile, sshPort,
	)
	return os.WriteFile(path, []byte(content), 0o600)
}

func (r *Runner) execCommand(ctx context.Context, binary string, args []string, onLine func(string)) (int, error) {
	cmd := exec.CommandContext(ctx, binary, args...)

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		_ = pw.Close()
		return 0, err
	}

	streamDone := make(chan struct{})
	go func() {
		defer close(streamDone)
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			onLine(scanner.Text())
		}
	}()

	waitErr := cmd.Wait()
	_ = pw.Close()
	<-streamDone

	if waitErr == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if ok := isExitError(waitErr, &exitErr); ok {
		return exitErr.ExitCode(), nil
	}
	return 0, waitErr
}

func isExitError(err error, target **exec.ExitError) bool {
	if ee, ok := err.(*exec.ExitError); ok {
		*target = ee
		return true
	}
	return false
}
