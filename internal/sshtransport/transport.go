// Package sshtransport implements the SSH Transport component (spec.md
// §4.L4): it holds exactly one authenticated SSH session, streams command
// output, and supports interactive PTY use with window resize. Grounded on
// the from-scratch SSH client in _teacher_ref/paas_ssh_transport_cmd.go
// (dialPaasSSHClient, buildPaasSSHClientConfig, resolvePaasSSHAuthMethods,
// known_hosts TOFU-on-first-use via
// buildPaasHostKeyCallback/appendPaasKnownHost), generalized from its
// fixed 5s dial timeout to a bounded-attempt exponential-then-flat backoff
// and from one-shot command execution to a long-lived, abortable session.
package sshtransport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// BackoffDelays is the default connect retry schedule from spec.md §4.L4.
var BackoffDelays = []time.Duration{
	1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
	16 * time.Second, 30 * time.Second, 30 * time.Second, 30 * time.Second,
	30 * time.Second, 30 * time.Second,
}

const (
	defaultDialTimeout = 30 * time.Second
	maxCommandBytes     = 10000
)

// ConnectionError wraps the final dial failure after the backoff schedule
// is exhausted.
type ConnectionError struct {
	Host string
	Port int
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("ssh connect to %s:%d failed after retries: %v", e.Host, e.Port, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// secretNameTokens are substring markers that make filter_environment_
// variables log a warning (spec.md §4.L4), without redacting the value.
var secretNameTokens = []string{"SECRET", "PASSWORD", "TOKEN", "KEY"}

// Logf is called for transport-level log lines; defaults to a no-op, the
// orchestrator rebinds it to publish onto the Event Bus.
type Logf func(format string, args ...any)

// Transport holds exactly one authenticated SSH session.
type Transport struct {
	KnownHostsPath string
	Log            Logf

	mu            sync.Mutex
	client        *ssh.Client
	activeSession *ssh.Session
	closed        bool
}

// New returns an idle Transport. Call Connect before issuing commands.
func New() *Transport {
	return &Transport{Log: func(string, ...any) {}}
}

// ConnectOptions parameterizes Connect. A nil Delays uses BackoffDelays and
// a zero DialTimeout uses 30s; no environment variable changes either.
type ConnectOptions struct {
	Host        string
	Port        int
	Username    string
	KeyPath     string
	Password    string
	Delays      []time.Duration
	DialTimeout time.Duration
}

// Connect dials host:port with the given backoff schedule, establishing
// exactly one authenticated session. Fails with ConnectionError once every
// delay in the schedule has been exhausted.
func (t *Transport) Connect(ctx context.Context, opts ConnectOptions) error {
	delays := opts.Delays
	if delays == nil {
		delays = BackoffDelays
	}
	dialTimeout := opts.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = defaultDialTimeout
	}

	var lastErr error
	attempts := len(delays) + 1
	for attempt := 0; attempt < attempts; attempt++ {
		client, err := t.dial(ctx, opts, dialTimeout)
		if err == nil {
			t.mu.Lock()
			t.client = client
			t.closed = false
			t.mu.Unlock()
			return nil
		}
		lastErr = err
		t.Log("ssh connect attempt %d/%d to %s:%d failed: %v", attempt+1, attempts, opts.Host, opts.Port, err)
		if attempt >= len(delays) {
			break
		}
		select {
		case <-ctx.Done():
			return &ConnectionError{Host: opts.Host, Port: opts.Port, Err: ctx.Err()}
		case <-time.After(delays[attempt]):
		}
	}
	return &ConnectionError{Host: opts.Host, Port: opts.Port, Err: lastErr}
}

func (t *Transport) dial(ctx context.Context, opts ConnectOptions, dialTimeout time.Duration) (*ssh.Client, error) {
	cfg, err := t.buildClientConfig(opts, dialTimeout)
	if err != nil {
		return nil, err
	}
	addr := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	clientConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return ssh.NewClient(clientConn, chans, reqs), nil
}

func (t *Transport) buildClientConfig(opts ConnectOptions, dialTimeout time.Duration) (*ssh.ClientConfig, error) {
	methods, err := t.authMethods(opts)
	if err != nil {
		return nil, err
	}
	hostKeyCallback, err := t.hostKeyCallback()
	if err != nil {
		return nil, err
	}
	return &ssh.ClientConfig{
		User:            opts.Username,
		Auth:            methods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         dialTimeout,
	}, nil
}

func (t *Transport) authMethods(opts ConnectOptions) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if opts.KeyPath != "" {
		raw, err := os.ReadFile(opts.KeyPath)
		if err == nil {
			if signer, err := ssh.ParsePrivateKey(raw); err == nil {
				methods = append(methods, ssh.PublicKeys(signer))
			}
		}
	}
	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		methods = append(methods, ssh.PublicKeysCallback(agentSigners))
	}
	if opts.Password != "" {
		methods = append(methods, ssh.Password(opts.Password))
	}
	if len(methods) == 0 {
		return nil, errors.New("no ssh auth methods available")
	}
	return methods, nil
}

func agentSigners() ([]ssh.Signer, error) {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil, errors.New("SSH_AUTH_SOCK is not set")
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return agent.NewClient(conn).Signers()
}

func (t *Transport) hostKeyCallback() (ssh.HostKeyCallback, error) {
	path := t.KnownHostsPath
	if path == "" {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		if err := os.WriteFile(path, []byte{}, 0o600); err != nil {
			return nil, err
		}
	}
	validator, err := knownhosts.New(path)
	if err != nil {
		return nil, err
	}
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := validator(hostname, remote, key)
		if err == nil {
			return nil
		}
		var keyErr *knownhosts.KeyError
		if errors.As(err, &keyErr) && len(keyErr.Want) == 0 {
			return appendKnownHost(path, hostname, key)
		}
		return err
	}, nil
}

var knownHostsWriteMu sync.Mutex

func appendKnownHost(path, hostname string, key ssh.PublicKey) error {
	normalized := knownhosts.Normalize(hostname)
	line := knownhosts.Line([]string{normalized}, key)

	knownHostsWriteMu.Lock()
	defer knownHostsWriteMu.Unlock()

	existing, err := os.ReadFile(path)
	if err == nil {
		for _, row := range strings.Split(string(existing), "\n") {
			if strings.TrimSpace(row) == strings.TrimSpace(line) {
				return nil
			}
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(line + "\n")
	return err
}

// BuildCommandWithEnv prepends "export K=<shell-quoted V> && " for each key
// in sorted order, then the command, per spec.md §4.L4. Rejects the result
// if it would exceed 10000 bytes.
func BuildCommandWithEnv(command string, env map[string]string) (string, error) {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(fmt.Sprintf("export %s=%s && ", k, quoteShell(env[k])))
	}
	b.WriteString(command)
	result := b.String()
	if len(result) > maxCommandBytes {
		return "", fmt.Errorf("command with env exceeds %d bytes", maxCommandBytes)
	}
	return result, nil
}

func quoteShell(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// FilterEnvironmentVariables returns a snapshot of the process environment
// whose names match any of regexNames, logging (not redacting) a warning
// for variables whose names suggest secret material.
func FilterEnvironmentVariables(regexNames []string, log Logf) (map[string]string, error) {
	patterns, err := compilePatterns(regexNames)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = func(string, ...any) {}
	}

	out := make(map[string]string)
	for _, kv := range os.Environ() {
		idx := strings.IndexByte(kv, '=')
		if idx < 0 {
			continue
		}
		name, val := kv[:idx], kv[idx+1:]
		if !anyMatch(patterns, name) {
			continue
		}
		if looksSecret(name) {
			log("warning: environment variable %q looks like secret material and is being forwarded unredacted", name)
		}
		out[name] = val
	}
	return out, nil
}

func looksSecret(name string) bool {
	upper := strings.ToUpper(name)
	for _, token := range secretNameTokens {
		if strings.Contains(upper, token) {
			return true
		}
	}
	return false
}

// IsClosed reports whether Close has been called.
func (t *Transport) IsClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Client returns the underlying *ssh.Client, or nil if not connected. The
// Tunnel Controller dials additional direct-tcpip channels over this same
// client rather than opening a second SSH connection.
func (t *Transport) Client() *ssh.Client {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client
}

func compilePatterns(regexNames []string) ([]*regexp.Regexp, error) {
	patterns := make([]*regexp.Regexp, 0, len(regexNames))
	for _, pattern := range regexNames {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid env_filter pattern %q: %w", pattern, err)
		}
		patterns = append(patterns, re)
	}
	return patterns, nil
}

func anyMatch(patterns []*regexp.Regexp, name string) bool {
	for _, re := range patterns {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}
