// Package server implements the local gRPC control API of the tray host.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/rclonetray/rclonetray/internal/daemon/bookmark"
	"github.com/rclonetray/rclonetray/internal/logging"
)

// DefaultHost keeps the control API on loopback.
const DefaultHost = "127.0.0.1"

// Options configure a Server.
type Options struct {
	Host string
	// Port 0 picks a free port.
	Port      int
	Bookmarks Bookmarks
	// Rclone reports the supervised daemon. Optional.
	Rclone func() RcloneStatus
	// OnActionError is told about failed RunAction calls. Optional.
	OnActionError func(bookmark, action string, err error)
	// Shutdown is called after a Shutdown request has been answered.
	// Defaults to RequestShutdown.
	Shutdown func()
	// ReleaseURL and HTTPClient drive CheckRcloneRelease.
	ReleaseURL string
	HTTPClient *http.Client
	Log        *logrus.Entry
}

// Server is the tray host's gRPC server.
type Server struct {
	opts       Options
	log        *logrus.Entry
	grpcServer *grpc.Server
	listener   net.Listener
	host       string
	port       int
	startedAt  time.Time
	updates    updateState
}

// New creates a server listening on opts.Host:opts.Port.
func New(opts Options) (*Server, error) {
	if opts.Bookmarks == nil {
		return nil, fmt.Errorf("server: bookmarks are required")
	}
	if opts.Host == "" {
		opts.Host = DefaultHost
	}
	log := opts.Log
	if log == nil {
		log = logging.NewLogger("server")
	}

	addr := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))
	listener, err := (&net.ListenConfig{}).Listen(context.TODO(), "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}

	// Get actual port if dynamically allocated
	actualPort := listener.Addr().(*net.TCPAddr).Port

	srv := &Server{
		opts:      opts,
		log:       log,
		listener:  listener,
		host:      opts.Host,
		port:      actualPort,
		startedAt: time.Now(),
	}
	srv.grpcServer = grpc.NewServer(grpc.ChainUnaryInterceptor(srv.logCalls))
	RegisterControlServer(srv.grpcServer, &controlService{server: srv})
	return srv, nil
}

// Host returns the address the server is bound to.
func (s *Server) Host() string {
	return s.host
}

// Port returns the port the server is listening on.
func (s *Server) Port() int {
	return s.port
}

// Serve starts serving requests. This blocks until Stop is called.
func (s *Server) Serve() error {
	s.log.Infof("control API listening on %s", s.listener.Addr())
	return s.grpcServer.Serve(s.listener)
}

// Stop gracefully stops the server and releases the port.
func (s *Server) Stop() {
	s.grpcServer.GracefulStop()
	_ = s.listener.Close()
}

func (s *Server) logCalls(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	entry := s.log.WithFields(logrus.Fields{
		"method": info.FullMethod,
		"took":   time.Since(start).Round(time.Millisecond),
	})
	if err != nil {
		entry.WithError(err).Debug("call failed")
	} else {
		entry.Debug("call")
	}
	return resp, err
}

// TrayState adapts a Server to the tray's DaemonState.
type TrayState struct {
	srv *Server
}

// NewTrayState creates a TrayState for the given server.
func NewTrayState(srv *Server) *TrayState {
	return &TrayState{srv: srv}
}

// Port returns the port the control API is listening on.
func (t *TrayState) Port() int {
	return t.srv.Port()
}

// Connected reports whether the rclone daemon is up.
func (t *TrayState) Connected() bool {
	if t.srv.opts.Rclone == nil {
		return false
	}
	return t.srv.opts.Rclone().Connected
}

// Snapshot lists the bookmarks with their job state.
func (t *TrayState) Snapshot(ctx context.Context) ([]bookmark.State, error) {
	return t.srv.opts.Bookmarks.Snapshot(ctx)
}

// RunAction runs a menu action. Failures are also passed to OnActionError.
func (t *TrayState) RunAction(ctx context.Context, req *ActionRequest) error {
	_, err := t.srv.dispatch(ctx, req)
	return err
}

// RequestShutdown asks the host to exit.
func (t *TrayState) RequestShutdown() {
	if t.srv.opts.Shutdown != nil {
		t.srv.opts.Shutdown()
		return
	}
	RequestShutdown()
}
