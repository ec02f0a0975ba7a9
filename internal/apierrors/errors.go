// Package apierrors defines the typed error taxonomy shared by every
// composer component, so that callers can branch on error kind with
// errors.As instead of string matching.
package apierrors

import (
	"errors"
	"fmt"
)

// NotFoundError represents a lookup against a named resource that does not
// exist in the registry, kit, or configuration document.
type NotFoundError struct {
	ResourceType string // e.g., "downstream server", "kit", "tool"
	ResourceName string
	Message      string
}

func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s %q not found", e.ResourceType, e.ResourceName)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var notFoundErr *NotFoundError
	return errors.As(err, &notFoundErr)
}

func newNotFoundError(resourceType, resourceName string) *NotFoundError {
	return &NotFoundError{ResourceType: resourceType, ResourceName: resourceName}
}

var (
	// NewDownstreamServerNotFoundError reports a registry lookup miss.
	NewDownstreamServerNotFoundError = func(name string) *NotFoundError {
		return newNotFoundError("downstream server", name)
	}

	// NewKitNotFoundError reports a kit lookup miss.
	NewKitNotFoundError = func(name string) *NotFoundError {
		return newNotFoundError("kit", name)
	}

	// NewGatewayNotFoundError reports a gateway lookup miss.
	NewGatewayNotFoundError = func(name string) *NotFoundError {
		return newNotFoundError("gateway", name)
	}

	// NewToolNotFoundError reports a control-name lookup miss.
	NewToolNotFoundError = func(name string) *NotFoundError {
		return newNotFoundError("tool", name)
	}
)

// ConflictError represents an attempt to create a resource that already
// exists under the same name.
type ConflictError struct {
	ResourceType string
	ResourceName string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.ResourceType, e.ResourceName)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var conflictErr *ConflictError
	return errors.As(err, &conflictErr)
}

var (
	// NewDownstreamServerConflictError reports a duplicate server registration.
	NewDownstreamServerConflictError = func(name string) *ConflictError {
		return &ConflictError{ResourceType: "downstream server", ResourceName: name}
	}

	// NewKitConflictError reports a duplicate kit creation.
	NewKitConflictError = func(name string) *ConflictError {
		return &ConflictError{ResourceType: "kit", ResourceName: name}
	}
)

// DependencyViolationError reports that a downstream server cannot be
// removed because one or more kits still depend on it.
type DependencyViolationError struct {
	ResourceName string
	DependentOn  []string // kit names that still reference ResourceName
}

func (e *DependencyViolationError) Error() string {
	return fmt.Sprintf("downstream server %q is still assigned to kits: %v", e.ResourceName, e.DependentOn)
}

// IsDependencyViolation reports whether err is a DependencyViolationError.
func IsDependencyViolation(err error) bool {
	var depErr *DependencyViolationError
	return errors.As(err, &depErr)
}

// ValidationError reports that caller-supplied input failed a structural or
// semantic check before any state was mutated.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var valErr *ValidationError
	return errors.As(err, &valErr)
}

// NewValidationError constructs a ValidationError for the named field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// PersistenceError wraps a failure to read or write the configuration
// document to disk.
type PersistenceError struct {
	Op   string // "load" or "save"
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s configuration at %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// CorruptConfigError reports that the configuration document exists but
// could not be parsed as valid JSON.
type CorruptConfigError struct {
	Path string
	Err  error
}

func (e *CorruptConfigError) Error() string {
	return fmt.Sprintf("configuration document at %s is corrupt: %v", e.Path, e.Err)
}

func (e *CorruptConfigError) Unwrap() error { return e.Err }

// TransportError wraps a failure to dial, initialize, or otherwise
// communicate with a downstream MCP server over its transport.
type TransportError struct {
	ServerName string
	Transport  string // "stdio", "sse", "streamable-http"
	Err        error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s transport to downstream server %q failed: %v", e.Transport, e.ServerName, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NotReadyError reports a call made against a downstream session or
// gateway that has not completed initialization, or has already shut down.
type NotReadyError struct {
	ResourceType string
	ResourceName string
	State        string
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("%s %q is not ready (state=%s)", e.ResourceType, e.ResourceName, e.State)
}

// IsNotReady reports whether err is a NotReadyError.
func IsNotReady(err error) bool {
	var notReadyErr *NotReadyError
	return errors.As(err, &notReadyErr)
}

// ProtocolError reports a malformed or unexpected MCP protocol response
// from a downstream server (e.g., a tool call result that cannot be
// decoded).
type ProtocolError struct {
	ServerName string
	Message    string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error from downstream server %q: %s", e.ServerName, e.Message)
}
