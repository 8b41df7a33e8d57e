// Package runconfig implements the Config Resolver (spec.md §4.L1): it
// merges built-in defaults, file-defined defaults, a named profile, and CLI
// overrides into one validated, frozen RunConfig.
package runconfig

// OnExit is the on-exit policy: whether a run stops or terminates its
// instance.
type OnExit string

const (
	OnExitStop      OnExit = "stop"
	OnExitTerminate OnExit = "terminate"
)

// Provider identifies the cloud backend the Compute Adapter targets.
type Provider string

const (
	ProviderAWS    Provider = "aws"
	ProviderDocker Provider = "docker"
)

// SyncPath is one local<->remote mirror entry (spec.md §3).
type SyncPath struct {
	Local  string `yaml:"local"`
	Remote string `yaml:"remote"`
}

// RunConfig is the frozen, validated configuration for a single run.
// Fields mirror spec.md §3 exactly.
type RunConfig struct {
	Region           string            `yaml:"region"`
	InstanceType     string            `yaml:"instance_type"`
	DiskSizeGB       int               `yaml:"disk_size"`
	Provider         Provider          `yaml:"provider"`
	CampName         string            `yaml:"camp_name"`
	Command          string            `yaml:"command"`
	SetupScript      string            `yaml:"setup_script"`
	StartupScript    string            `yaml:"startup_script"`
	SyncPaths        []SyncPath        `yaml:"sync_paths"`
	Ports            []int             `yaml:"ports"`
	IncludeVCS       bool              `yaml:"include_vcs"`
	Ignore           []string          `yaml:"ignore"`
	EnvFilter        []string          `yaml:"env_filter"`
	SSHUsername      string            `yaml:"ssh_username"`
	SSHAllowedCIDR   string            `yaml:"ssh_allowed_cidr"`
	OnExit           OnExit            `yaml:"on_exit"`
	AnsiblePlaybook  string            `yaml:"ansible_playbook"`
	AnsiblePlaybooks []string          `yaml:"ansible_playbooks"`
	Playbooks        map[string]string `yaml:"playbooks"`

	// frozen is set by Freeze, which Resolve calls once Validate succeeds.
	// Nothing in this package enforces it beyond reporting it via Frozen.
	frozen bool
}

// Freeze marks the config immutable. Called after successful validation.
func (c *RunConfig) Freeze() { c.frozen = true }

// Frozen reports whether Freeze has been called.
func (c *RunConfig) Frozen() bool { return c.frozen }

// PlaybookNames returns the resolved ordered list of playbook references
// to run: AnsiblePlaybooks if set, else a single-element slice from
// AnsiblePlaybook, else nil.
func (c *RunConfig) PlaybookNames() []string {
	if len(c.AnsiblePlaybooks) > 0 {
		return c.AnsiblePlaybooks
	}
	if c.AnsiblePlaybook != "" {
		return []string{c.AnsiblePlaybook}
	}
	return nil
}

// defaultRunConfig returns the built-in defaults layer (spec.md §4.L1).
func defaultRunConfig() RunConfig {
	return RunConfig{
		Provider:    ProviderAWS,
		CampName:    "ad-hoc",
		SSHUsername: "ubuntu",
		OnExit:      OnExitStop,
	}
}
