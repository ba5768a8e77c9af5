package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc/status"

	"github.com/rclonetray/rclonetray/internal/config"
	"github.com/rclonetray/rclonetray/internal/daemon/server"
)

// errDaemonNotRunning is returned when no tray host is recorded.
var errDaemonNotRunning = errors.New("daemon not running (start it with `rclonetray daemon start`)")

// callTimeout bounds quick control calls. Transfers (push, pull) are not bounded.
const callTimeout = 10 * time.Second

// connectDaemon establishes a gRPC connection to the running tray host.
func connectDaemon() (*server.Client, error) {
	running, info, err := config.IsDaemonRunning()
	if err != nil {
		return nil, fmt.Errorf("failed to load daemon info: %w", err)
	}
	if !running || info == nil {
		return nil, errDaemonNotRunning
	}
	return server.Dial(info.Addr())
}

// withDaemon connects, runs fn and turns gRPC errors into plain messages.
func withDaemon(ctx context.Context, fn func(context.Context, *server.Client) error) error {
	client, err := connectDaemon()
	if err != nil {
		return err
	}
	defer client.Close()

	if err := fn(ctx, client); err != nil {
		return daemonError(err)
	}
	return nil
}

// daemonError drops the gRPC code so the tray host's message is printed as is.
func daemonError(err error) error {
	if st, ok := status.FromError(err); ok {
		return errors.New(st.Message())
	}
	return err
}
