// Package rclone supervises the rclone remote-control daemon process.
package rclone

import (
	"errors"
	"fmt"
)

// ErrInvalidPassword is wrapped by a StartupError when the rclone config
// store is encrypted and the supplied password is wrong or missing.
var ErrInvalidPassword = errors.New("invalid rclone config password")

// Reason says why a start attempt failed.
type Reason string

const (
	ReasonBinaryMissing  Reason = "binary_missing"
	ReasonVersionTooOld  Reason = "version_too_old"
	ReasonVersionUnknown Reason = "version_unknown"
	ReasonSpawn          Reason = "spawn"
	ReasonBoot           Reason = "boot"
	ReasonFatal          Reason = "fatal"
	ReasonExited         Reason = "exited"
	ReasonTimeout        Reason = "timeout"
)

// StartupError aborts a start attempt before any RC call is made.
type StartupError struct {
	Reason Reason
	Err    error
}

func (e *StartupError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("rclone startup failed (%s)", e.Reason)
	}
	return fmt.Sprintf("rclone startup failed (%s): %v", e.Reason, e.Err)
}

func (e *StartupError) Unwrap() error { return e.Err }

// Retryable reports whether retrying the same start could succeed, e.g.
// after the port is freed. Missing binaries and old versions need user action.
func (e *StartupError) Retryable() bool {
	switch e.Reason {
	case ReasonBoot, ReasonExited, ReasonTimeout, ReasonSpawn:
		return !errors.Is(e.Err, ErrInvalidPassword)
	}
	return false
}

// IsInvalidPassword reports whether err came from an undecryptable config.
func IsInvalidPassword(err error) bool {
	return errors.Is(err, ErrInvalidPassword)
}
