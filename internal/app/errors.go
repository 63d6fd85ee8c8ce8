package service

import (
	stderrors "errors"

	"github.com/googly1030/intern-platform/internal/adapters/repository"
	"github.com/googly1030/intern-platform/pkg/errors"
)

var (
	// ErrBackpressure is returned when the queue refused a job.
	ErrBackpressure = errors.New(errors.Backpressure).WithMessage("queue at capacity")
	// ErrNotReady is returned for a report that does not exist yet.
	ErrNotReady = errors.New(errors.NotReady).WithMessage("report not ready")
)

const backpressureReason = "queue at capacity"

// storeError maps repository failures onto request codes.
func storeError(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, repository.ErrNotFound):
		return errors.Wrapf(err, errors.NotFound, "%s not found", what)
	case stderrors.Is(err, repository.ErrInvalidLimit):
		return errors.Wrapf(err, errors.InvalidParams, "%v", err)
	default:
		return errors.Wrapf(err, errors.InternalServerError, "%s: %v", what, err)
	}
}

// refreshError passes coded errors through and reports anything else, such
// as a failed batch recount, as internal.
func refreshError(err error) error {
	var coded *errors.Error
	if err == nil || stderrors.As(err, &coded) {
		return err
	}
	return errors.Wrapf(err, errors.InternalServerError, "refresh batch: %v", err)
}
