package session

import (
	"errors"
	"fmt"
)

var (
	ErrLoginInProgress    = errors.New("login already in progress")
	ErrLoginSuperseded    = errors.New("login superseded by logout")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrMissingCredential  = errors.New("login response has no credential")
	ErrMalformedResponse  = errors.New("malformed login response")
	ErrUnknownRole        = errors.New("unknown role")
)

// AuthenticationError is returned by Login. The session never becomes
// Authenticated when it is returned.
type AuthenticationError struct {
	Reason string
	Cause  error
}

func (e *AuthenticationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Reason, e.Cause)
	}
	return "authentication failed: " + e.Reason
}

func (e *AuthenticationError) Unwrap() error {
	return e.Cause
}

// TokenRejectedError is a 401 on an authenticated call. The session has
// already been torn down by the time a caller sees it.
type TokenRejectedError struct {
	Method string
	Path   string
}

func (e *TokenRejectedError) Error() string {
	return fmt.Sprintf("credential rejected on %s %s", e.Method, e.Path)
}

// AuthorizationError is a 403. The session is untouched; the caller decides
// how to present it.
type AuthorizationError struct {
	Method  string
	Path    string
	Message string
}

func (e *AuthorizationError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("not permitted: %s %s: %s", e.Method, e.Path, e.Message)
	}
	return fmt.Sprintf("not permitted: %s %s", e.Method, e.Path)
}

// NetworkError is a call that produced no response.
type NetworkError struct {
	Op    string
	Cause error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %s: %v", e.Op, e.Cause)
}

func (e *NetworkError) Unwrap() error {
	return e.Cause
}

// MalformedSessionError describes persisted state that cannot be restored.
// It is logged, never shown to the user.
type MalformedSessionError struct {
	Reason string
	Cause  error
}

func (e *MalformedSessionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("malformed persisted session: %s: %v", e.Reason, e.Cause)
	}
	return "malformed persisted session: " + e.Reason
}

func (e *MalformedSessionError) Unwrap() error {
	return e.Cause
}
