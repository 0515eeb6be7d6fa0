package types

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an Error. Callers switch on the kind to pick a client
// response; the boundary layer maps kinds to HTTP status codes.
type Kind string

// Error kinds.
const (
	KindUnknownType          Kind = "UnknownType"
	KindTypeConflict         Kind = "TypeConflict"
	KindInvalidDefinition    Kind = "InvalidDefinition"
	KindMissingProperty      Kind = "MissingProperty"
	KindUnknownProperty      Kind = "UnknownProperty"
	KindTypeMismatch         Kind = "TypeMismatch"
	KindEndpointTypeMismatch Kind = "EndpointTypeMismatch"
	KindEntityNotFound       Kind = "EntityNotFound"
	KindRelationNotFound     Kind = "RelationNotFound"
	KindInvalidQuerySpec     Kind = "InvalidQuerySpec"
	KindCommitFailed         Kind = "TransactionCommitFailed"
	KindStorageUnavailable   Kind = "StorageUnavailable"
)

// Error is the structured error reported by the core. Type names the entity
// or relation type involved, Field the offending property or request field,
// and ID the offending entity or relation id. Err carries the lower-level
// cause, if any.
type Error struct {
	Kind  Kind
	Type  string
	Field string
	ID    string
	Msg   string
	Err   error
}

// Sentinel errors, one per kind. errors.Is(err, ErrMissingProperty) reports
// true for any *Error whose Kind is KindMissingProperty.
var (
	ErrUnknownType          = &Error{Kind: KindUnknownType}
	ErrTypeConflict         = &Error{Kind: KindTypeConflict}
	ErrInvalidDefinition    = &Error{Kind: KindInvalidDefinition}
	ErrMissingProperty      = &Error{Kind: KindMissingProperty}
	ErrUnknownProperty      = &Error{Kind: KindUnknownProperty}
	ErrTypeMismatch         = &Error{Kind: KindTypeMismatch}
	ErrEndpointTypeMismatch = &Error{Kind: KindEndpointTypeMismatch}
	ErrEntityNotFound       = &Error{Kind: KindEntityNotFound}
	ErrRelationNotFound     = &Error{Kind: KindRelationNotFound}
	ErrInvalidQuerySpec     = &Error{Kind: KindInvalidQuerySpec}
	ErrCommitFailed         = &Error{Kind: KindCommitFailed}
	ErrStorageUnavailable   = &Error{Kind: KindStorageUnavailable}
)

// Scope and backend lifecycle errors.
var (
	ErrScopeClosed = errors.New("transaction scope is closed")
	ErrDetached    = errors.New("storage is detached")
	ErrAttached    = errors.New("storage is already attached")
)

func (e *Error) Error() string {
	var b strings.Builder
	switch e.Kind {
	case KindUnknownType:
		fmt.Fprintf(&b, "unknown type %q", e.Type)
	case KindTypeConflict:
		fmt.Fprintf(&b, "type %q is already registered with a different definition", e.Type)
	case KindMissingProperty:
		fmt.Fprintf(&b, "type %q: missing required property %q", e.Type, e.Field)
	case KindUnknownProperty:
		fmt.Fprintf(&b, "type %q: unknown property %q", e.Type, e.Field)
	case KindTypeMismatch:
		fmt.Fprintf(&b, "type %q: property %q has the wrong type", e.Type, e.Field)
	case KindEndpointTypeMismatch:
		fmt.Fprintf(&b, "relation type %q: %s %q is not an allowed endpoint", e.Type, e.Field, e.ID)
	case KindEntityNotFound:
		fmt.Fprintf(&b, "entity %q not found", e.ID)
	case KindRelationNotFound:
		fmt.Fprintf(&b, "relation %q not found", e.ID)
	case KindInvalidQuerySpec:
		b.WriteString("invalid query spec")
	case KindInvalidDefinition:
		fmt.Fprintf(&b, "invalid definition for type %q", e.Type)
	case KindCommitFailed:
		b.WriteString("transaction commit failed")
	case KindStorageUnavailable:
		b.WriteString("storage unavailable")
	default:
		b.WriteString(string(e.Kind))
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the package sentinels work with
// errors.Is regardless of the details carried by e.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or "" when err
// carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Retryable reports whether err means the system failed to persist valid
// input. Validation, lookup and conflict errors are never retryable.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindCommitFailed, KindStorageUnavailable:
		return true
	}
	return false
}

// Storagef wraps a raw backend fault as StorageUnavailable. Errors that
// already carry a kind pass through unchanged.
func Storagef(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != "" {
		return err
	}
	return &Error{Kind: KindStorageUnavailable, Msg: fmt.Sprintf(format, args...), Err: err}
}

// InvalidQuery builds an InvalidQuerySpec error naming the offending field.
func InvalidQuery(field, format string, args ...any) error {
	return &Error{Kind: KindInvalidQuerySpec, Field: field, Msg: fmt.Sprintf(format, args...)}
}

// EntityNotFound builds an EntityNotFound error for id.
func EntityNotFound(id string) error {
	return &Error{Kind: KindEntityNotFound, ID: id}
}

// RelationNotFound builds a RelationNotFound error for id.
func RelationNotFound(id string) error {
	return &Error{Kind: KindRelationNotFound, ID: id}
}

// UnknownType builds an UnknownType error for name.
func UnknownType(name string) error {
	return &Error{Kind: KindUnknownType, Type: name}
}
