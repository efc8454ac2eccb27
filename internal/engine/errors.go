package engine

import (
	"errors"
	"fmt"
)

// ErrConflict indicates an attempt to re-register a source identifier with a
// different target identifier than the one already recorded.
var ErrConflict = errors.New("translation conflict")

// ConfigurationError is fatal and aborts the whole run before any row is processed
type ConfigurationError struct {
	Collection string
	Detail     string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration for collection %s: %s", e.Collection, e.Detail)
}

// TransactionFailure is fatal to its collection and aborts the run fail-fast
type TransactionFailure struct {
	Collection string
	Phase      string
	Err        error
}

func (e *TransactionFailure) Error() string {
	return fmt.Sprintf("transaction failed for collection %s during %s: %v", e.Collection, e.Phase, e.Err)
}

func (e *TransactionFailure) Unwrap() error {
	return e.Err
}

// Warning codes, surfaced in the per-collection result summary
const (
	WarnResolution   = "resolution"
	WarnArrayElided  = "array_elided"
	WarnRedefine     = "redefine"
	WarnSchemaDrift  = "schema_drift"
	WarnLinkConflict = "link_conflict"
	WarnMissingID    = "missing_source_id"
)

// Warning records a non-fatal condition encountered while processing one record
// or field. Warnings never abort a collection's transaction.
type Warning struct {
	Code       string
	Collection string
	Field      string
	SourceID   string
	Detail     string
}

func (w Warning) String() string {
	s := fmt.Sprintf("[%s] collection=%s", w.Code, w.Collection)
	if w.Field != "" {
		s += fmt.Sprintf(" field=%s", w.Field)
	}
	if w.SourceID != "" {
		s += fmt.Sprintf(" source_id=%s", w.SourceID)
	}
	if w.Detail != "" {
		s += ": " + w.Detail
	}
	return s
}
