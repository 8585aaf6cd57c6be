// Public domain.

// Package errors provides error handling for chronostar.
//
// It re-exports github.com/cockroachdb/errors and adds the sentinel
// errors naming each failure class of a fit.  Errors of a class are created
// by marking an ordinary error with its sentinel,
//
//	return errors.Mark(errors.Newf("star %s: covariance not positive-definite", id), errors.ErrData)
//
// and recognized anywhere up the call chain with errors.Is.
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	WithHint     = crdb.WithHint
	WithHintf    = crdb.WithHintf
	Mark         = crdb.Mark
)

// Error inspection
var (
	Is        = crdb.Is
	IsAny     = crdb.IsAny
	As        = crdb.As
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
	Join      = crdb.Join
)

// Failure classes.
var (
	// ErrData marks malformed input: missing columns, unparsable values,
	// covariances that are not symmetric positive-definite.  Fatal at load
	// time, before any fitting begins.
	ErrData = crdb.New("data error")

	// ErrPropagation marks an orbit propagation outside the validity domain
	// of the propagator.  Recovered by the component prior as -Inf.
	ErrPropagation = crdb.New("propagation error")

	// ErrNonConvergence marks a sampler or EM run that stopped on its step
	// or iteration budget.  It is a signal carried on results, not a
	// failure of the run.
	ErrNonConvergence = crdb.New("non-convergence")

	// ErrNumericalInstability marks a combined star plus component
	// covariance that is not positive-definite.  The membership engine
	// treats the pair as zero overlap.
	ErrNumericalInstability = crdb.New("numerical instability")

	// ErrConfig marks an invalid configuration: unknown keys, values out of
	// range, inconsistent options.
	ErrConfig = crdb.New("config error")
)

// Dataf returns a new error marked as ErrData.
func Dataf(format string, args ...interface{}) error {
	return crdb.Mark(crdb.Newf(format, args...), ErrData)
}

// Configf returns a new error marked as ErrConfig.
func Configf(format string, args ...interface{}) error {
	return crdb.Mark(crdb.Newf(format, args...), ErrConfig)
}
