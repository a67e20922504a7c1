// Package fault classifies soclog errors into the small set of kinds the
// collection pipeline branches on.
package fault

import "errors"

// Kind identifies the class of a failure.
type Kind string

const (
	// KindIO covers missing, unreadable, or unwritable files.
	KindIO Kind = "io"
	// KindSigning covers a missing, misconfigured, or failing signing tool.
	KindSigning Kind = "signing"
	// KindValidation covers malformed configuration or manifest content.
	KindValidation Kind = "validation"
	// KindRemote covers WinRM connection, authentication, and command failures.
	KindRemote Kind = "remote"
)

type kindError struct {
	kind  Kind
	op    string
	cause error
}

func (e *kindError) Error() string {
	if e.cause == nil {
		return e.op
	}
	if e.op == "" {
		return e.cause.Error()
	}
	return e.op + ": " + e.cause.Error()
}

func (e *kindError) Unwrap() error {
	return e.cause
}

// Wrap attaches kind and an operation label to cause. A nil cause yields nil.
func Wrap(cause error, kind Kind, op string) error {
	if cause == nil {
		return nil
	}
	return &kindError{kind: kind, op: op, cause: cause}
}

// New returns an error of the given kind carrying only a message.
func New(kind Kind, msg string) error {
	return &kindError{kind: kind, cause: errors.New(msg)}
}

// KindOf returns the outermost kind attached to err, or "" if none.
func KindOf(err error) Kind {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return ""
}

// Is reports whether err carries kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	for err != nil {
		var ke *kindError
		if !errors.As(err, &ke) {
			return false
		}
		if ke.kind == kind {
			return true
		}
		err = ke.cause
	}
	return false
}
