// Package failure classifies collaborator errors for the QA pipeline.
package failure

import (
	"errors"
	"fmt"
)

// Kind classifies where a collaborator failure came from.
type Kind string

const (
	// KindTransport covers clone and generic network failures.
	KindTransport Kind = "transport"
	// KindBuild covers container image builds.
	KindBuild Kind = "build"
	// KindRun covers container runs and setup commands.
	KindRun Kind = "run"
	// KindProvider covers LLM calls and error-flagged replies.
	KindProvider Kind = "provider"
	// KindFetch covers HTTP page fetches.
	KindFetch Kind = "fetch"
	// KindParse covers malformed specification documents.
	KindParse Kind = "parse"
)

// Error is a classified collaborator failure.
type Error struct {
	Kind Kind   // Failure class
	Op   string // Operation that failed (e.g. "docker build", "fetch /login/")
	Err  error  // Underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err.Error())
}

// Unwrap allows errors.Is and errors.As to see the cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err with a kind and operation. A nil err yields nil.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the outermost classified error in the chain,
// or an empty Kind if none is classified.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
