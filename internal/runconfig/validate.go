package runconfig

import (
	"fmt"
	"regexp"
	"strings"
)

var sshUsernamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_-]{0,31}$`)

// Validate enforces every invariant listed in spec.md §3. It performs no
// I/O.
func Validate(c *RunConfig) error {
	if strings.TrimSpace(c.Region) == "" {
		return newValidationError(KindMissing, "region", "")
	}
	if strings.TrimSpace(c.InstanceType) == "" {
		return newValidationError(KindMissing, "instance_type", "")
	}
	if c.DiskSizeGB < 1 {
		return newValidationError(KindOutOfRange, "disk_size", "must be >= 1")
	}
	if c.Provider == "" {
		c.Provider = ProviderAWS
	}
	if c.OnExit == "" {
		c.OnExit = OnExitStop
	}
	if c.OnExit != OnExitStop && c.OnExit != OnExitTerminate {
		return newValidationError(KindWrongType, "on_exit", fmt.Sprintf("unknown value %q", c.OnExit))
	}

	if !sshUsernamePattern.MatchString(c.SSHUsername) {
		return newValidationError(KindInvalidUsername, "ssh_username", c.SSHUsername)
	}

	if strings.TrimSpace(c.StartupScript) != "" && len(c.SyncPaths) == 0 {
		return newValidationError(KindMissing, "sync_paths", "startup_script requires at least one sync_paths entry")
	}

	if c.AnsiblePlaybook != "" && len(c.AnsiblePlaybooks) > 0 {
		return newValidationError(KindConflictingKeys, "ansible_playbook/ansible_playbooks", "set only one")
	}

	for _, name := range c.PlaybookNames() {
		if _, ok := c.Playbooks[name]; !ok {
			return newValidationError(KindBadPlaybookRef, "ansible_playbook(s)", fmt.Sprintf("reference %q not found in playbooks", name))
		}
	}

	seenPorts := make(map[int]bool, len(c.Ports))
	for _, p := range c.Ports {
		if p < 1 || p > 65535 {
			return newValidationError(KindOutOfRange, "ports", fmt.Sprintf("%d out of range [1,65535]", p))
		}
		if seenPorts[p] {
			return newValidationError(KindOutOfRange, "ports", fmt.Sprintf("duplicate port %d", p))
		}
		seenPorts[p] = true
	}

	for _, pattern := range c.EnvFilter {
		if _, err := regexp.Compile(pattern); err != nil {
			return newValidationError(KindInvalidRegex, "env_filter", fmt.Sprintf("%q: %v", pattern, err))
		}
	}

	return nil
}
