// Package tray implements the system tray icon and bookmark menu.
package tray

import (
	"context"

	"github.com/rclonetray/rclonetray/internal/daemon/bookmark"
	"github.com/rclonetray/rclonetray/internal/daemon/server"
)

// DaemonState is what the tray reads and drives.
type DaemonState interface {
	Port() int
	Connected() bool
	Snapshot(ctx context.Context) ([]bookmark.State, error)
	RunAction(ctx context.Context, req *server.ActionRequest) error
	RestartRclone()
	RequestShutdown()
}
