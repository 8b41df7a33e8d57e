package sshtransport

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/crypto/ssh"
	"golang.org/x/term"
)

// ErrNotConnected is returned by any operation requiring an active client
// when Connect has not yet succeeded.
var ErrNotConnected = errors.New("ssh transport: not connected")

// ErrEmptyCommand signals that execute/execute_raw rejected a blank or
// whitespace-only command.
var ErrEmptyCommand = errors.New("ssh transport: command is empty")

// ErrCommandTooLarge signals a command exceeding the 10000-byte limit from
// spec.md §4.L4.
var ErrCommandTooLarge = errors.New("ssh transport: command exceeds 10000 bytes")

// Execute wraps command as `cd ~ && bash -c <quoted command>`, allocates a
// PTY, streams combined stdout/stderr line-by-line via onLine, and blocks
// until the remote process exits.
func (t *Transport) Execute(ctx context.Context, command string, onLine func(line string)) (int, error) {
	wrapped, err := validateAndWrapCommand(command)
	if err != nil {
		return 0, err
	}
	return t.run(ctx, wrapped, onLine, true)
}

// ExecuteRaw runs command verbatim, without the cd/bash wrapper; the caller
// owns working directory and shell.
func (t *Transport) ExecuteRaw(ctx context.Context, command string, onLine func(line string)) (int, error) {
	if err := validateCommandSize(command); err != nil {
		return 0, err
	}
	return t.run(ctx, command, onLine, false)
}

func validateAndWrapCommand(command string) (string, error) {
	if strings.TrimSpace(command) == "" {
		return "", ErrEmptyCommand
	}
	if err := validateCommandSize(command); err != nil {
		return "", err
	}
	return "cd ~ && bash -c " + quoteShell(command), nil
}

func validateCommandSize(command string) error {
	if strings.TrimSpace(command) == "" {
		return ErrEmptyCommand
	}
	if len(command) > maxCommandBytes {
		return ErrCommandTooLarge
	}
	return nil
}

func (t *Transport) run(ctx context.Context, command string, onLine func(line string), pty bool) (int, error) {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()
	if client == nil {
		return 0, ErrNotConnected
	}

	session, err := client.NewSession()
	if err != nil {
		return 0, err
	}
	t.mu.Lock()
	t.activeSession = session
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		if t.activeSession == session {
			t.activeSession = nil
		}
		t.mu.Unlock()
		session.Close()
	}()

	if pty {
		if err := session.RequestPty("xterm", 40, 120, ssh.TerminalModes{}); err != nil {
			return 0, err
		}
	}

	pr, pw := io.Pipe()
	session.Stdout = pw
	session.Stderr = pw

	if err := session.Start(command); err != nil {
		return 0, err
	}

	streamDone := make(chan struct{})
	go func() {
		defer close(streamDone)
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			if onLine != nil {
				onLine(scanner.Text())
			}
		}
	}()

	waitDone := make(chan error, 1)
	go func() {
		waitDone <- session.Wait()
	}()

	select {
	case <-ctx.Done():
		_ = session.Close()
		<-waitDone
		_ = pw.Close()
		<-streamDone
		return 0, ctx.Err()
	case err := <-waitDone:
		_ = pw.Close()
		<-streamDone
		return exitCodeFromWaitErr(err)
	}
}

func exitCodeFromWaitErr(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitStatus(), nil
	}
	return 0, err
}

// AbortActiveCommand closes the active channel if present; safe to call
// concurrently with an in-flight Execute/ExecuteRaw, and used by cleanup to
// unblock a streaming read.
func (t *Transport) AbortActiveCommand() {
	t.mu.Lock()
	session := t.activeSession
	t.mu.Unlock()
	if session != nil {
		_ = session.Close()
	}
}

// Close is idempotent and aborts any active command first.
func (t *Transport) Close() error {
	t.AbortActiveCommand()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.client == nil {
		t.closed = true
		return nil
	}
	t.closed = true
	return t.client.Close()
}

// ExecuteInteractive allocates a PTY sized to the local terminal, proxies
// local stdin and remote stdout bidirectionally, and installs a
// window-change handler that resizes the remote PTY. Terminal raw mode and
// the resize handler are restored/removed on exit.
func (t *Transport) ExecuteInteractive(ctx context.Context, command string) (int, error) {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()
	if client == nil {
		return 0, ErrNotConnected
	}

	session, err := client.NewSession()
	if err != nil {
		return 0, err
	}
	t.mu.Lock()
	t.activeSession = session
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		if t.activeSession == session {
			t.activeSession = nil
		}
		t.mu.Unlock()
		session.Close()
	}()

	fd := int(os.Stdin.Fd())
	width, height := 120, 40
	isTerminal := term.IsTerminal(fd)
	if isTerminal {
		if w, h, err := term.GetSize(fd); err == nil {
			width, height = w, h
		}
	}
	if err := session.RequestPty("xterm", height, width, ssh.TerminalModes{}); err != nil {
		return 0, err
	}

	session.Stdout = os.Stdout
	session.Stderr = os.Stderr
	stdin, err := session.StdinPipe()
	if err != nil {
		return 0, err
	}

	var restore func()
	if isTerminal {
		state, err := term.MakeRaw(fd)
		if err == nil {
			restore = func() { _ = term.Restore(fd, state) }
			defer restore()
		}
	}

	resizeDone := make(chan struct{})
	if isTerminal {
		go watchWindowResize(session, fd, resizeDone)
		defer close(resizeDone)
	}

	copyDone := make(chan struct{})
	go func() {
		defer close(copyDone)
		_, _ = io.Copy(stdin, os.Stdin)
		_ = stdin.Close()
	}()

	if command != "" {
		err = session.Start(command)
	} else {
		err = session.Shell()
	}
	if err != nil {
		return 0, err
	}

	waitErr := session.Wait()
	return exitCodeFromWaitErr(waitErr)
}

func watchWindowResize(session *ssh.Session, fd int, done <-chan struct{}) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGWINCH)
	defer signal.Stop(sigCh)
	for {
		select {
		case <-done:
			return
		case <-sigCh:
			if w, h, err := term.GetSize(fd); err == nil {
				_ = session.WindowChange(h, w)
			}
		}
	}
}

