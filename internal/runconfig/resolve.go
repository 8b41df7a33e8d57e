package runconfig

import "fmt"

// Resolve merges the built-in defaults, the file's defaults layer, the
// named profile (camp) if any, and CLI overrides into one RunConfig, then
// validates and freezes it. Matches spec.md §4.L1's
// "resolve(file_contents, profile_name?, cli_overrides)" contract.
func Resolve(fileContents []byte, profileName string, overrides Overrides) (*RunConfig, error) {
	cfg := defaultRunConfig()

	if len(fileContents) > 0 {
		schema, err := parseFile(fileContents)
		if err != nil {
			return nil, newValidationError(KindWrongType, "file", err.Error())
		}
		cfg = applyLayer(cfg, schema.Defaults)
		if len(schema.Playbooks) > 0 {
			merged := make(map[string]string, len(cfg.Playbooks)+len(schema.Playbooks))
			for k, v := range cfg.Playbooks {
				merged[k] = v
			}
			for k, v := range schema.Playbooks {
				merged[k] = v
			}
			cfg.Playbooks = merged
		}

		if profileName != "" {
			camp, ok := schema.Camps[profileName]
			if !ok {
				return nil, newValidationError(KindUnknownProfile, "profile", fmt.Sprintf("unknown profile %q", profileName))
			}
			cfg = applyLayer(cfg, camp)
		}
	} else if profileName != "" {
		return nil, newValidationError(KindUnknownProfile, "profile", fmt.Sprintf("unknown profile %q", profileName))
	}

	cfg = applyLayer(cfg, overrides)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	cfg.Freeze()
	return &cfg, nil
}
