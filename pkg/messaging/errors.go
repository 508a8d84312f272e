package messaging

import "errors"

type dropError struct{ err error }

func (e *dropError) Error() string { return "drop: " + e.err.Error() }
func (e *dropError) Unwrap() error { return e.err }

type permanentError struct{ err error }

func (e *permanentError) Error() string { return "permanent: " + e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Drop marks a failure that no amount of redelivery can fix and that is not
// worth keeping, such as an undecodable payload. The delivery is logged and
// acknowledged.
func Drop(err error) error {
	if err == nil {
		return nil
	}
	return &dropError{err: err}
}

// Permanent marks a failure that retrying will not fix. The delivery skips
// the remaining attempts and goes straight to the dead-letter queue.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsDrop(err error) bool {
	var target *dropError
	return errors.As(err, &target)
}

func IsPermanent(err error) bool {
	var target *permanentError
	return errors.As(err, &target)
}
