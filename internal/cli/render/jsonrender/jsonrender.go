// Package jsonrender renders command results as a single JSON envelope to
// stdout. Grounded on the paasScaffoldEnvelope/printPaasScaffold shape
// (paas_cmd.go): an "ok" flag, a "command" name, and a payload field.
package jsonrender

import (
	"encoding/json"
	"io"
)

// Envelope is the top-level JSON object written for every --json-output
// invocation.
type Envelope struct {
	OK      bool `json:"ok"`
	Command string `json:"command"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Write encodes an envelope to w, indented for readability, matching the
// json.NewEncoder(os.Stdout) + SetIndent("", "  ") idiom this is grounded on.
func Write(w io.Writer, command string, data any, err error) error {
	env := Envelope{OK: err == nil, Command: command, Data: data}
	if err != nil {
		env.Error = err.Error()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(env)
}
