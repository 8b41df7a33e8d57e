package runconfig

import "gopkg.in/yaml.v3"

// fileSchema is the on-disk shape of campers.yaml, per spec.md §6:
// sections vars, defaults, camps, playbooks.
type fileSchema struct {
	Vars      map[string]string    `yaml:"vars"`
	Defaults  rawLayer             `yaml:"defaults"`
	Camps     map[string]rawLayer  `yaml:"camps"`
	Playbooks map[string]string    `yaml:"playbooks"`
}

// rawLayer mirrors RunConfig but with pointer/nil-able fields so the merge
// step can distinguish "unset" from "zero value" for scalars, per spec.md
// §4.L1 ("per-key last-writer-wins").
type rawLayer struct {
	Region           *string   `yaml:"region"`
	InstanceType     *string   `yaml:"instance_type"`
	DiskSizeGB       *int      `yaml:"disk_size"`
	Provider         *string   `yaml:"provider"`
	CampName         *string   `yaml:"camp_name"`
	Command          *string   `yaml:"command"`
	SetupScript      *string   `yaml:"setup_script"`
	StartupScript    *string   `yaml:"startup_script"`
	SyncPaths        *[]SyncPath `yaml:"sync_paths"`
	Ports            *[]int    `yaml:"ports"`
	IncludeVCS       *bool     `yaml:"include_vcs"`
	Ignore           *[]string `yaml:"ignore"`
	EnvFilter        *[]string `yaml:"env_filter"`
	SSHUsername      *string   `yaml:"ssh_username"`
	SSHAllowedCIDR   *string   `yaml:"ssh_allowed_cidr"`
	OnExit           *string   `yaml:"on_exit"`
	AnsiblePlaybook  *string   `yaml:"ansible_playbook"`
	AnsiblePlaybooks *[]string `yaml:"ansible_playbooks"`
	Playbooks        map[string]string `yaml:"playbooks"`
}

// parseFile decodes raw YAML bytes after interpolating ${name} tokens
// against the document's own vars block plus the process environment.
func parseFile(raw []byte) (fileSchema, error) {
	// First pass: decode only to recover the vars block, so ${name} tokens
	// elsewhere in the document can resolve against it.
	var varsOnly struct {
		Vars map[string]string `yaml:"vars"`
	}
	if err := yaml.Unmarshal(raw, &varsOnly); err != nil {
		return fileSchema{}, err
	}
	expanded := interpolateDocument(string(raw), varsOnly.Vars)

	var schema fileSchema
	if err := yaml.Unmarshal([]byte(expanded), &schema); err != nil {
		return fileSchema{}, err
	}
	return schema, nil
}

// applyLayer overlays non-nil fields from layer onto base, replacing
// (never appending) list-valued fields, and deep-merging Playbooks.
func applyLayer(base RunConfig, layer rawLayer) RunConfig {
	if layer.Region != nil {
		base.Region = *layer.Region
	}
	if layer.InstanceType != nil {
		base.InstanceType = *layer.InstanceType
	}
	if layer.DiskSizeGB != nil {
		base.DiskSizeGB = *layer.DiskSizeGB
	}
	if layer.Provider != nil {
		base.Provider = Provider(*layer.Provider)
	}
	if layer.CampName != nil {
		base.CampName = *layer.CampName
	}
	if layer.Command != nil {
		base.Command = *layer.Command
	}
	if layer.SetupScript != nil {
		base.SetupScript = *layer.SetupScript
	}
	if layer.StartupScript != nil {
		base.StartupScript = *layer.StartupScript
	}
	if layer.SyncPaths != nil {
		base.SyncPaths = *layer.SyncPaths
	}
	if layer.Ports != nil {
		base.Ports = *layer.Ports
	}
	if layer.IncludeVCS != nil {
		base.IncludeVCS = *layer.IncludeVCS
	}
	if layer.Ignore != nil {
		base.Ignore = *layer.Ignore
	}
	if layer.EnvFilter != nil {
		base.EnvFilter = *layer.EnvFilter
	}
	if layer.SSHUsername != nil {
		base.SSHUsername = *layer.SSHUsername
	}
	if layer.SSHAllowedCIDR != nil {
		base.SSHAllowedCIDR = *layer.SSHAllowedCIDR
	}
	if layer.OnExit != nil {
		base.OnExit = OnExit(*layer.OnExit)
	}
	if layer.AnsiblePlaybook != nil {
		base.AnsiblePlaybook = *layer.AnsiblePlaybook
	}
	if layer.AnsiblePlaybooks != nil {
		base.AnsiblePlaybooks = *layer.AnsiblePlaybooks
	}
	if len(layer.Playbooks) > 0 {
		merged := make(map[string]string, len(base.Playbooks)+len(layer.Playbooks))
		for k, v := range base.Playbooks {
			merged[k] = v
		}
		for k, v := range layer.Playbooks {
			merged[k] = v
		}
		base.Playbooks = merged
	}
	return base
}

// Overrides is the CLI-overrides layer (spec.md §4.L1), expressed the same
// way as rawLayer so Resolve can apply it with the same last-writer-wins
// merge rule.
type Overrides = rawLayer
