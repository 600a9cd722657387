// Package affinity implements the per-method affinity primitives: the
// policy command set and the compiled key path used to pull an affinity
// key out of a request or response message.
package affinity

import (
	"errors"
	"fmt"
	"strings"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// Common errors.
var (
	ErrEmptyPath      = errors.New("affinity: empty key path")
	ErrNotProto       = errors.New("affinity: message is not a proto message")
	ErrUnknownCommand = errors.New("affinity: unknown command")
)

// Command describes what a method does with its affinity key.
type Command int

const (
	// CommandNone means the method does not participate in affinity.
	CommandNone Command = iota
	// CommandBound selects the channel already bound to the key found
	// in the request.
	CommandBound
	// CommandBind creates a binding from the key found in the first
	// response message to the channel that served the call.
	CommandBind
	// CommandUnbind removes the binding for the key found in the request.
	CommandUnbind
)

func (c Command) String() string {
	switch c {
	case CommandNone:
		return "none"
	case CommandBound:
		return "bound"
	case CommandBind:
		return "bind"
	case CommandUnbind:
		return "unbind"
	default:
		return "unknown"
	}
}

// ParseCommand converts a config string to a Command. Matching is
// case-insensitive; the empty string parses as CommandNone.
func ParseCommand(s string) (Command, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CommandNone, nil
	case "bound":
		return CommandBound, nil
	case "bind":
		return CommandBind, nil
	case "unbind":
		return CommandUnbind, nil
	default:
		return CommandNone, fmt.Errorf("%w: %q", ErrUnknownCommand, s)
	}
}

// Path is a compiled dotted field path into a proto message, e.g.
// "session.name". Paths are compiled once at configuration time so a bad
// path fails validation instead of failing on every call.
type Path struct {
	raw      string
	segments []protoreflect.Name
}

// CompilePath validates and compiles a dotted field path. The path must
// be non-empty and every segment must be a valid proto field name.
func CompilePath(raw string) (Path, error) {
	if raw == "" {
		return Path{}, ErrEmptyPath
	}
	parts := strings.Split(raw, ".")
	segments := make([]protoreflect.Name, 0, len(parts))
	for _, part := range parts {
		name := protoreflect.Name(part)
		if !name.IsValid() {
			return Path{}, fmt.Errorf("affinity: invalid segment %q in path %q", part, raw)
		}
		segments = append(segments, name)
	}
	return Path{raw: raw, segments: segments}, nil
}

// MustCompilePath is CompilePath for statically known paths; it panics on
// a bad path.
func MustCompilePath(raw string) Path {
	p, err := CompilePath(raw)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the original dotted path.
func (p Path) String() string { return p.raw }

// IsZero reports whether the path was never compiled.
func (p Path) IsZero() bool { return len(p.segments) == 0 }

// Resolve walks the path through msg and returns the string value at the
// leaf. It never mutates the message. Resolution fails if the path is
// empty, the message (or any intermediate message) is absent, a segment
// names a field the message does not have, or the leaf is not a singular
// string field.
func (p Path) Resolve(msg any) (string, error) {
	if len(p.segments) == 0 {
		return "", ErrEmptyPath
	}
	pm, ok := msg.(proto.Message)
	if !ok || pm == nil {
		return "", ErrNotProto
	}
	m := pm.ProtoReflect()
	if !m.IsValid() {
		return "", fmt.Errorf("affinity: nil message for path %q", p.raw)
	}
	for i, seg := range p.segments {
		fd := m.Descriptor().Fields().ByName(seg)
		if fd == nil {
			return "", fmt.Errorf("affinity: message %s has no field %q (path %q)",
				m.Descriptor().FullName(), seg, p.raw)
		}
		if fd.IsList() || fd.IsMap() {
			return "", fmt.Errorf("affinity: field %q in path %q is not singular", seg, p.raw)
		}
		if i == len(p.segments)-1 {
			if fd.Kind() != protoreflect.StringKind {
				return "", fmt.Errorf("affinity: field %q in path %q is not a string", seg, p.raw)
			}
			return m.Get(fd).String(), nil
		}
		if fd.Kind() != protoreflect.MessageKind {
			return "", fmt.Errorf("affinity: field %q in path %q is not a message", seg, p.raw)
		}
		if !m.Has(fd) {
			return "", fmt.Errorf("affinity: field %q unset in path %q", seg, p.raw)
		}
		m = m.Get(fd).Message()
	}
	return "", ErrEmptyPath
}
