//go:build windows

package rclone

import "os"

// gracefulSignal: Process.Signal only supports os.Kill on Windows, so the
// graceful step is the same as the forced one.
var gracefulSignal os.Signal = os.Kill
