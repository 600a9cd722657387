package chanpool

import (
	"github.com/chanpool-io/chanpool/internal/affinity"
)

// Command describes what a method does with its affinity key.
type Command = affinity.Command

// Commands, re-exported for use in MethodPolicy literals.
const (
	CommandNone   = affinity.CommandNone
	CommandBound  = affinity.CommandBound
	CommandBind   = affinity.CommandBind
	CommandUnbind = affinity.CommandUnbind
)

// KeyPath is a compiled dotted field path into a proto message.
type KeyPath = affinity.Path

// CompileKeyPath validates and compiles a dotted field path such as
// "session.name".
func CompileKeyPath(raw string) (KeyPath, error) {
	return affinity.CompilePath(raw)
}

// MustCompileKeyPath is CompileKeyPath for statically known paths; it
// panics on a bad path.
func MustCompileKeyPath(raw string) KeyPath {
	return affinity.MustCompilePath(raw)
}

// ParseCommand converts a config string ("none", "bound", "bind",
// "unbind") to a Command.
func ParseCommand(s string) (Command, error) {
	return affinity.ParseCommand(s)
}

// MethodPolicy declares how one RPC method participates in affinity.
// KeyPath is only meaningful when Command is not CommandNone. Policies
// are immutable once handed to New.
type MethodPolicy struct {
	// Method is the full method path, "/package.Service/Method". The
	// leading slash may be omitted.
	Method string

	// Command selects the affinity behavior for the method.
	Command Command

	// KeyPath locates the affinity key: in the request message for bound
	// and unbind, in the first response message for bind.
	KeyPath KeyPath
}
