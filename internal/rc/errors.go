package rc

import (
	"errors"
	"net/http"
)

// ErrNotStarted is returned when no daemon endpoint is known yet.
var ErrNotStarted = errors.New("rclone daemon not started")

// CommandError is any failed RC call, transport or daemon-reported.
type CommandError struct {
	// Command is the endpoint that was called, e.g. "config/create".
	Command string
	Message string
	// Status is the HTTP status, 0 for transport failures.
	Status int
	Err    error
}

func (e *CommandError) Error() string { return e.Message }

func (e *CommandError) Unwrap() error { return e.Err }

// NotFound reports whether the daemon answered 404, e.g. for an unknown
// command or a missing remote.
func (e *CommandError) NotFound() bool { return e.Status == http.StatusNotFound }

// AsCommandError returns err as a *CommandError when it is one.
func AsCommandError(err error) (*CommandError, bool) {
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
