package runconfig

import "fmt"

// ValidationKind enumerates the ValidationError kinds from spec.md §4.L1.
type ValidationKind string

const (
	KindMissing           ValidationKind = "missing"
	KindWrongType         ValidationKind = "wrong_type"
	KindOutOfRange        ValidationKind = "out_of_range"
	KindInvalidRegex      ValidationKind = "invalid_regex"
	KindInvalidUsername   ValidationKind = "invalid_username"
	KindConflictingKeys   ValidationKind = "conflicting_keys"
	KindUnknownProfile    ValidationKind = "unknown_profile"
	KindBadPlaybookRef    ValidationKind = "bad_playbook_ref"
)

// ValidationError names the offending field and the kind of violation, per
// spec.md §4.L1 ("fails with a typed error naming the offending field").
type ValidationError struct {
	Kind  ValidationKind
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("config: %s (%s): %s", e.Field, e.Kind, e.Msg)
	}
	return fmt.Sprintf("config: %s (%s)", e.Field, e.Kind)
}

func newValidationError(kind ValidationKind, field, msg string) *ValidationError {
	return &ValidationError{Kind: kind, Field: field, Msg: msg}
}
