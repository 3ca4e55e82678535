package domain

import "fmt"

// ConfigError means the feature is disabled or credential material is
// absent/malformed. Fatal for the whole call, never retried.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("push configuration error: %s", e.Reason)
}

// AuthError means credential material was present but rejected by the
// issuer or the transport. Fatal for the whole call: all devices in one
// dispatch share the same credentials.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("push authentication failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("push authentication failed: %s", e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ValidationError means the caller's input was malformed. Rejected before
// any registry lookup or transport call.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s", e.Reason)
}
