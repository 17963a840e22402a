package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies engine failures so callers can tell bad input from a neutral result.
type ErrorKind int

const (
	KindInvalidInput ErrorKind = iota + 1
	KindInsufficientData
	KindNoConsensus
	KindInternal
	KindConfig
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindInsufficientData:
		return "insufficient_data"
	case KindNoConsensus:
		return "no_consensus"
	case KindInternal:
		return "internal"
	case KindConfig:
		return "config"
	default:
		return "unknown"
	}
}

// EngineError is returned by every public engine entry point.
type EngineError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *EngineError) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.String()
	}
}

func (e *EngineError) Unwrap() error { return e.Err }

// Is matches any EngineError of the same kind, so errors.Is(err, ErrNoConsensus) works on wrapped values.
func (e *EngineError) Is(target error) bool {
	var t *EngineError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrInvalidInput     = &EngineError{Kind: KindInvalidInput}
	ErrInsufficientData = &EngineError{Kind: KindInsufficientData}
	ErrNoConsensus      = &EngineError{Kind: KindNoConsensus}
	ErrInternal         = &EngineError{Kind: KindInternal}
	ErrConfig           = &EngineError{Kind: KindConfig}
)

// ErrOutcomeRecorded is wrapped when an outcome arrives twice for the same composite.
var ErrOutcomeRecorded = errors.New("outcome already recorded")

// NewError builds an EngineError of the given kind.
func NewError(kind ErrorKind, op string, err error) *EngineError {
	return &EngineError{Kind: kind, Op: op, Err: err}
}

// Errorf builds an EngineError with a formatted cause.
func Errorf(kind ErrorKind, op, format string, args ...interface{}) *EngineError {
	return &EngineError{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of err, or 0 when err is not an EngineError.
func KindOf(err error) ErrorKind {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// Recovered converts a recovered panic value into an internal error.
func Recovered(op string, r interface{}) *EngineError {
	if err, ok := r.(error); ok {
		return &EngineError{Kind: KindInternal, Op: op, Err: fmt.Errorf("panic: %w", err)}
	}
	return &EngineError{Kind: KindInternal, Op: op, Err: fmt.Errorf("panic: %v", r)}
}
