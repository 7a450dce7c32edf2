package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrValidation marks malformed input. Fatal for the record, not the run.
	ErrValidation = errors.New("validation error")
	// ErrOverlap marks two fixed blocks of the same source that conflict.
	ErrOverlap = errors.New("overlapping fixed blocks")
	// ErrInvariant marks a schedule that violates its own non-overlap
	// invariant. It always indicates an allocator defect.
	ErrInvariant = errors.New("scheduler invariant violation")
)

// ValidationError describes a malformed record.
type ValidationError struct {
	Record string
	Field  string
	Msg    string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Record != "" && e.Field != "":
		return fmt.Sprintf("%s: %s: %s: %s", ErrValidation, e.Record, e.Field, e.Msg)
	case e.Field != "":
		return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Field, e.Msg)
	default:
		return fmt.Sprintf("%s: %s", ErrValidation, e.Msg)
	}
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// OverlapError reports two fixed blocks of the same source that overlap.
type OverlapError struct {
	A, B Timeblock
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("%s: %s block %q [%s, %s) overlaps %q [%s, %s)",
		ErrOverlap, e.A.Source,
		e.A.ID, e.A.Start.Format(time.RFC3339), e.A.End.Format(time.RFC3339),
		e.B.ID, e.B.Start.Format(time.RFC3339), e.B.End.Format(time.RFC3339))
}

func (e *OverlapError) Unwrap() error { return ErrOverlap }

// InvariantViolation reports a post-allocation consistency failure.
type InvariantViolation struct {
	Msg string
	A   Timeblock
	B   *Timeblock
}

func (e *InvariantViolation) Error() string {
	if e.B == nil {
		return fmt.Sprintf("%s: %s: %q", ErrInvariant, e.Msg, e.A.ID)
	}
	return fmt.Sprintf("%s: %s: %q and %q", ErrInvariant, e.Msg, e.A.ID, e.B.ID)
}

func (e *InvariantViolation) Unwrap() error { return ErrInvariant }
