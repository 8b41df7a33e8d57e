package compute

import "fmt"

// ProviderAPIError wraps a remote provider error, per spec.md §4.L3's
// failure model. Code is the provider-specific error code when known
// (e.g. "UnauthorizedOperation"); Message is the provider's message text.
type ProviderAPIError struct {
	Code    string
	Message string
	Err     error
}

func (e *ProviderAPIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider API error (%s): %s", e.Code, e.Message)
	}
	return fmt.Sprintf("provider API error: %s", e.Message)
}

func (e *ProviderAPIError) Unwrap() error { return e.Err }

// RemediationHint returns user-facing guidance for well-known error codes
// named in spec.md §7, or "" for anything else.
func (e *ProviderAPIError) RemediationHint() string {
	switch e.Code {
	case "UnauthorizedOperation":
		return "the active credentials lack permission for this operation; check the attached IAM policy"
	case "InvalidParameterValue":
		return "one of the request parameters was rejected by the provider; check region, instance type, and AMI compatibility"
	case "InstanceLimitExceeded", "RequestLimitExceeded":
		return "the account has reached its instance limit for this region; request a quota increase or terminate unused instances"
	case "ExpiredToken", "RequestExpired", "ExpiredTokenException":
		return "the session token has expired; re-authenticate (aws sso login / aws configure) and retry"
	default:
		return ""
	}
}

// ProviderCredentialsError signals missing or invalid provider
// credentials.
type ProviderCredentialsError struct {
	Message string
	Err     error
}

func (e *ProviderCredentialsError) Error() string {
	return fmt.Sprintf("provider credentials error: %s", e.Message)
}

func (e *ProviderCredentialsError) Unwrap() error { return e.Err }

// ProviderTimeout signals a bounded wait (for running state, public IP
// assignment, etc.) that exceeded its retry budget.
type ProviderTimeout struct {
	Operation string
}

func (e *ProviderTimeout) Error() string {
	return fmt.Sprintf("provider timeout waiting for %s", e.Operation)
}

// InvalidRegionError signals that ValidateRegion rejected the configured
// region outright (as opposed to degrading to a no-op on an unauthorized
// catalog call).
type InvalidRegionError struct {
	Region string
}

func (e *InvalidRegionError) Error() string {
	return fmt.Sprintf("invalid region: %q", e.Region)
}
