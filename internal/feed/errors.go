package feed

import (
	"github.com/pkg/errors"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrExists          = errors.New("exists")
	ErrSuspendedByUser = errors.New("suspended by user")
	ErrUnsupported     = errors.New("unsupported")

	// ErrUnavailable marks transient failures: the source or the sink
	// cannot be reached right now, and the refresh should be retried
	// with the same cursor.
	ErrUnavailable = errors.New("unavailable")

	// ErrSinkRejected marks a permanent per-item failure: the sink
	// refused this particular update, and the cursor should advance
	// past it.
	ErrSinkRejected = errors.New("sink rejected")
)

const Deadborn = "deadborn"

// Unavailable tags err as transient.
func Unavailable(err error) error {
	return tagged{tag: ErrUnavailable, err: err}
}

// SinkRejected tags err as a per-item sink rejection.
func SinkRejected(err error) error {
	return tagged{tag: ErrSinkRejected, err: err}
}

func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

type tagged struct {
	tag error
	err error
}

func (e tagged) Error() string {
	return e.tag.Error() + ": " + e.err.Error()
}

func (e tagged) Is(target error) bool {
	return target == e.tag
}

func (e tagged) Unwrap() error {
	return e.err
}
