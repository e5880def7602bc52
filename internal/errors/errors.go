// Package errors provides error handling for the detection pipeline.
//
// It re-exports github.com/cockroachdb/errors so callers get stack traces,
// wrapping and hints from a single import, and defines the sentinel errors
// that make up the pipeline's error taxonomy.
//
//	if err := cfg.Validate(); err != nil {
//	    return errors.Wrap(err, "load config")
//	}
//	if errors.Is(err, errors.ErrCalibration) {
//	    // drum not found
//	}
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New         = crdb.New
	Newf        = crdb.Newf
	Wrap        = crdb.Wrap
	Wrapf       = crdb.Wrapf
	WithStack   = crdb.WithStack
	WithMessage = crdb.WithMessage
	Mark        = crdb.Mark
)

// User-facing messages and details
var (
	WithHint     = crdb.WithHint
	WithHintf    = crdb.WithHintf
	WithDetailf  = crdb.WithDetailf
	FlattenHints = crdb.FlattenHints
)

// Error inspection
var (
	Is     = crdb.Is
	IsAny  = crdb.IsAny
	As     = crdb.As
	Unwrap = crdb.Unwrap
)

// Sentinel errors. Wrap or Mark them to add context while keeping
// errors.Is matching intact.
var (
	// ErrCalibration indicates the drum could not be found on the reference frame.
	ErrCalibration = New("calibration failure")

	// ErrConfig indicates an invalid pipeline configuration.
	ErrConfig = New("invalid configuration")

	// ErrFrameDecode indicates the frame reader failed on a specific index.
	ErrFrameDecode = New("frame decode failed")

	// ErrInternal indicates an unexpected failure inside a per-frame stage.
	ErrInternal = New("internal pipeline error")

	// ErrAlreadyRun indicates Run was called twice on one orchestrator.
	ErrAlreadyRun = New("orchestrator already run")
)

// Calibrationf returns a new error marked as ErrCalibration.
func Calibrationf(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrCalibration)
}

// Configf returns a new error marked as ErrConfig.
func Configf(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrConfig)
}
