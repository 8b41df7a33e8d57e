package runconfig

import (
	"os"
	"regexp"
)

// varPattern matches ${name} tokens for interpolation, per spec.md §6
// ("Variable interpolation uses ${name} within strings, resolved before
// validation"). Grounded on quarry's cli/config/envexpand.go, extended to
// resolve against a file-local vars map before falling back to the
// process environment.
var varPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// interpolate replaces ${name} occurrences in input using vars first, then
// the OS environment, then the empty string for anything unresolved.
func interpolate(input string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := varPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		name := groups[1]
		if val, ok := vars[name]; ok {
			return val
		}
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return ""
	})
}

// interpolateDocument substitutes ${name} tokens across the whole raw
// document text, so interpolation happens before YAML is decoded into
// typed fields.
func interpolateDocument(doc string, vars map[string]string) string {
	return interpolate(doc, vars)
}
