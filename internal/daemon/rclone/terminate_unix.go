//go:build !windows

package rclone

import (
	"os"

	"golang.org/x/sys/unix"
)

// gracefulSignal asks the daemon to shut down cleanly.
var gracefulSignal os.Signal = unix.SIGTERM
