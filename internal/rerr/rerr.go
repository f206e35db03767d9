// Package rerr defines the structured error kinds returned by the
// sender and receiver state machines (§7), wrapped with
// github.com/pkg/errors so callers can recover the original cause with
// errors.Cause, the way PatrickLi2021-IP-TCP's stack takes the same
// dependency for annotated protocol errors.
package rerr

import "github.com/pkg/errors"

// Sentinel causes. Exit codes (§6.2) are derived from these via
// errors.Cause, never from string matching.
var (
	ErrHandshakeFailed = errors.New("handshake failed")
	ErrTransferFailed  = errors.New("transfer failed")
	ErrFinFailed       = errors.New("fin unacknowledged")
)

// Wrap annotates cause with a contextual message, preserving cause for
// errors.Cause/errors.Is.
func Wrap(cause error, message string) error {
	return errors.Wrap(cause, message)
}

// Wrapf is the formatted form of Wrap.
func Wrapf(cause error, format string, args ...interface{}) error {
	return errors.Wrapf(cause, format, args...)
}

// Cause unwraps err down to its root cause.
func Cause(err error) error {
	return errors.Cause(err)
}
