// Package faults defines the error taxonomy shared by every core subsystem.
// Each sentinel carries a stable wire code so the HTTP layer and event
// payloads can name failures without string matching on messages.
package faults

import "errors"

var (
	// ErrNotFound: unknown agent, edge, organization, or community.
	ErrNotFound = errors.New("not_found")

	// ErrInvalidArgument: value outside its declared range or enum.
	ErrInvalidArgument = errors.New("invalid_argument")

	// ErrInvalidConfig: startup rejected; the only fatal condition.
	ErrInvalidConfig = errors.New("invalid_config")

	// ErrConflict: self-edge, duplicate registration, or a repeated join.
	ErrConflict = errors.New("conflict")

	// ErrCapacity: ring buffer or cascade depth limit reached. Informational.
	ErrCapacity = errors.New("capacity")

	// ErrShutdown: command submitted after stop.
	ErrShutdown = errors.New("shutdown")
)

// Codes for the HTTP layer.
const (
	CodeNotFound        = "E_NOT_FOUND"
	CodeInvalidArgument = "E_INVALID_ARGUMENT"
	CodeInvalidConfig   = "E_INVALID_CONFIG"
	CodeConflict        = "E_CONFLICT"
	CodeCapacity        = "E_CAPACITY"
	CodeShutdown        = "E_SHUTDOWN"
	CodeInternal        = "E_INTERNAL"
)

var codes = map[error]string{
	ErrNotFound:        CodeNotFound,
	ErrInvalidArgument: CodeInvalidArgument,
	ErrInvalidConfig:   CodeInvalidConfig,
	ErrConflict:        CodeConflict,
	ErrCapacity:        CodeCapacity,
	ErrShutdown:        CodeShutdown,
}

// Code maps an error chain to its wire code. Unknown errors map to E_INTERNAL.
func Code(err error) string {
	for sentinel, code := range codes {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return CodeInternal
}
