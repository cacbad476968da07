package apperr

import (
	"errors"
	"fmt"
)

// Sentinel errors used to classify reconciliation failures. Callers test for
// them with errors.Is; the wrapped message carries the human readable reason
// that ends up in the failure report.
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrUpstream   = errors.New("upstream error")
	ErrConflict   = errors.New("conflict")
)

type classified struct {
	kind error
	msg  string
	err  error
}

func (c *classified) Error() string {
	if c.err != nil {
		return fmt.Sprintf("%s: %v", c.msg, c.err)
	}
	return c.msg
}

func (c *classified) Unwrap() []error {
	if c.err != nil {
		return []error{c.kind, c.err}
	}
	return []error{c.kind}
}

// Validation reports malformed input (an inbound event or a spreadsheet row).
func Validation(format string, args ...any) error {
	return &classified{kind: ErrValidation, msg: fmt.Sprintf(format, args...)}
}

// NotFound reports a referenced entity that does not exist upstream.
func NotFound(format string, args ...any) error {
	return &classified{kind: ErrNotFound, msg: fmt.Sprintf(format, args...)}
}

// Conflict reports an ambiguous lookup.
func Conflict(format string, args ...any) error {
	return &classified{kind: ErrConflict, msg: fmt.Sprintf(format, args...)}
}

// Upstream annotates a failed collaborator call. The cause stays reachable
// through errors.Is / errors.As.
func Upstream(err error, format string, args ...any) error {
	return &classified{kind: ErrUpstream, msg: fmt.Sprintf(format, args...), err: err}
}

// Kind returns a short label for the error class, used for metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrUpstream):
		return "upstream"
	default:
		return "unknown"
	}
}
