//go:build !windows

package config

import (
	"errors"

	"golang.org/x/sys/unix"
)

// Signal 0 checks for existence; EPERM means alive but owned by someone else.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
