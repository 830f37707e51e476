// Package jmaperr defines the typed error kinds surfaced to callers across
// the storage, set, request, and raft error families (spec.md §7). Every
// layer crossing wraps the underlying cause with fmt.Errorf's %w and
// attaches account/collection/document context via WithFields, following
// the teacher's fmt.Errorf("...: %w", err) wrapping idiom seen throughout
// pkg/storage and pkg/manager rather than adopting a third-party error
// package — nothing in the retrieval pack uses one.
package jmaperr

import (
	"errors"
	"fmt"
)

// Kind enumerates the error families from spec.md §7.
type Kind string

const (
	// Storage
	KindDataCorruption Kind = "dataCorruption"
	KindInternalError  Kind = "internalError"
	KindNotFound       Kind = "notFound"
	KindInvalidArgs    Kind = "invalidArguments"

	// Set
	KindForbidden          Kind = "forbidden"
	KindSetNotFound        Kind = "notFound"
	KindWillDestroy        Kind = "willDestroy"
	KindInvalidProperties  Kind = "invalidProperties"
	KindInvalidPatch       Kind = "invalidPatch"
	KindBlobNotFound       Kind = "blobNotFound"
	KindOverQuota          Kind = "overQuota"

	// Request
	KindStateMismatch        Kind = "stateMismatch"
	KindRequestTooLarge      Kind = "requestTooLarge"
	KindUnknownMethod        Kind = "unknownMethod"
	KindInvalidResultRef     Kind = "invalidResultReference"

	// Raft
	KindUnregisteredPeer Kind = "unregisteredPeer"
	KindTermStale        Kind = "termStale"
	KindLogGap           Kind = "logGap"
)

// Error is a typed, context-carrying error. Context accumulates as the
// error crosses layers; Kind never changes after creation.
type Error struct {
	Kind     Kind
	Message  string
	Property string // set for KindInvalidProperties
	cause    error
	fields   map[string]any
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a fresh typed error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap attaches kind to an existing cause, preserving it for errors.Unwrap.
func Wrap(kind Kind, cause error) *Error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{Kind: kind, Message: msg, cause: cause}
}

// InvalidProperty builds a KindInvalidProperties error naming the offending
// property, matching the SetError{type, properties, description} shape.
func InvalidProperty(property, description string) *Error {
	return &Error{Kind: KindInvalidProperties, Property: property, Message: description}
}

// WithFields returns a copy of e with additional structured context
// attached (account, collection, document_id, term, index, ...). Fields
// accumulate across layers; later calls do not overwrite earlier keys with
// the same name unless explicitly replaced.
func (e *Error) WithFields(kv ...any) *Error {
	out := &Error{Kind: e.Kind, Message: e.Message, Property: e.Property, cause: e.cause}
	out.fields = make(map[string]any, len(e.fields)+len(kv)/2)
	for k, v := range e.fields {
		out.fields[k] = v
	}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		out.fields[key] = kv[i+1]
	}
	return out
}

// Fields returns the structured context attached to e.
func (e *Error) Fields() map[string]any { return e.fields }

// As reports whether err is (or wraps) a *Error and returns it.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it is a *Error, else KindInternalError.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternalError
}
