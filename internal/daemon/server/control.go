package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/rclonetray/rclonetray/internal/buildinfo"
	"github.com/rclonetray/rclonetray/internal/daemon/bookmark"
	"github.com/rclonetray/rclonetray/internal/jobs"
	"github.com/rclonetray/rclonetray/internal/mountpoint"
	"github.com/rclonetray/rclonetray/internal/rc"
)

// Bookmarks is the part of bookmark.Manager the control API drives.
type Bookmarks interface {
	Snapshot(ctx context.Context) ([]bookmark.State, error)
	Mount(ctx context.Context, name string) (string, error)
	Unmount(ctx context.Context, name string) error
	Push(ctx context.Context, name string) error
	Pull(ctx context.Context, name string) error
	EnableAutopush(name string) error
	DisableAutopush(name string)
	Serve(ctx context.Context, name, protocol string) (rc.Serve, error)
	StopServe(ctx context.Context, name, protocol string) error

	Providers(ctx context.Context) ([]rc.Provider, error)
	BookmarkConfig(ctx context.Context, name string) (rc.Bookmark, error)
	CreateBookmark(ctx context.Context, name, provider string, params map[string]any) error
	UpdateBookmark(ctx context.Context, name string, params map[string]any) error
	DeleteBookmark(ctx context.Context, name string) error
}

type controlService struct {
	server *Server
}

func (s *controlService) GetStatus(_ context.Context, _ *emptypb.Empty) (*DaemonStatus, error) {
	srv := s.server
	st := &DaemonStatus{
		Host:      srv.host,
		Port:      int32(srv.port),
		Pid:       int32(os.Getpid()),
		Version:   buildinfo.Version,
		StartedAt: timestamppb.New(srv.startedAt),
	}
	if srv.opts.Rclone != nil {
		rs := srv.opts.Rclone()
		srv.updates.apply(&rs)
		st.Rclone = &rs
	}
	return st, nil
}

func (s *controlService) ListBookmarks(ctx context.Context, _ *emptypb.Empty) (*BookmarkList, error) {
	states, err := s.server.opts.Bookmarks.Snapshot(ctx)
	if err != nil && len(states) == 0 {
		return nil, toStatus(err)
	}
	list := &BookmarkList{Bookmarks: make([]*Bookmark, 0, len(states)), Stale: err != nil}
	for _, st := range states {
		list.Bookmarks = append(list.Bookmarks, stateToBookmark(st))
	}
	return list, nil
}

func (s *controlService) RunAction(ctx context.Context, req *ActionRequest) (*ActionResult, error) {
	res, err := s.server.dispatch(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}
	return res, nil
}

var (
	errBookmarkRequired = errors.New("bookmark is required")
	// errUnknownAction is returned for actions outside Actions.
	errUnknownAction = errors.New("unknown action")
)

// dispatch runs req against the bookmarks. It serves both RunAction and
// the tray menu.
func (s *Server) dispatch(ctx context.Context, req *ActionRequest) (*ActionResult, error) {
	if req.Bookmark == "" {
		return nil, errBookmarkRequired
	}
	b := s.opts.Bookmarks
	res := &ActionResult{Bookmark: req.Bookmark, Action: req.Action}
	log := s.log.WithFields(logrus.Fields{"bookmark": req.Bookmark, "action": req.Action})

	var err error
	switch req.Action {
	case ActionMount:
		res.MountPoint, err = b.Mount(ctx, req.Bookmark)
	case ActionUnmount:
		err = b.Unmount(ctx, req.Bookmark)
	case ActionPush:
		err = b.Push(ctx, req.Bookmark)
	case ActionPull:
		err = b.Pull(ctx, req.Bookmark)
	case ActionAutopushOn:
		err = b.EnableAutopush(req.Bookmark)
	case ActionAutopushOff:
		b.DisableAutopush(req.Bookmark)
	case ActionServe:
		var serve rc.Serve
		serve, err = b.Serve(ctx, req.Bookmark, req.Protocol)
		res.Addr = serve.Addr
	case ActionServeStop:
		err = b.StopServe(ctx, req.Bookmark, req.Protocol)
	default:
		return nil, fmt.Errorf("%w %q", errUnknownAction, req.Action)
	}
	if err != nil {
		log.WithError(err).Warn("action failed")
		if s.opts.OnActionError != nil {
			s.opts.OnActionError(req.Bookmark, req.Action, err)
		}
		return nil, err
	}
	log.Info("action done")
	return res, nil
}

func (s *controlService) Shutdown(_ context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	shutdown := s.server.opts.Shutdown
	if shutdown == nil {
		shutdown = RequestShutdown
	}
	// Reply before the host starts tearing the server down.
	go func() {
		time.Sleep(100 * time.Millisecond)
		shutdown()
	}()
	return &emptypb.Empty{}, nil
}

// RequestShutdown sends SIGINT to the current process to trigger a graceful shutdown.
func RequestShutdown() {
	p, err := os.FindProcess(os.Getpid())
	if err != nil {
		return
	}
	_ = p.Signal(os.Interrupt)
}

func stateToBookmark(st bookmark.State) *Bookmark {
	b := &Bookmark{
		Name:       st.Name,
		Type:       st.Type,
		LocalPath:  st.LocalPath,
		MountPoint: st.MountPoint,
		Mounted:    st.Mounted,
		Pushing:    st.Pushing,
		Pulling:    st.Pulling,
		Autopush:   st.Autopush,
	}
	for _, sv := range st.Serves {
		b.Serves = append(b.Serves, &Serve{Protocol: sv.Protocol, Addr: sv.Addr})
	}
	return b
}

// toStatus maps domain errors onto gRPC codes. The message is kept as is so
// the CLI can print it.
func toStatus(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	var conflict *jobs.ConflictError
	code := codes.Internal
	switch {
	case errors.As(err, &conflict):
		code = codes.FailedPrecondition
	case errors.Is(err, rc.ErrNotStarted):
		code = codes.Unavailable
	case errors.Is(err, errBookmarkRequired),
		errors.Is(err, errUnknownAction),
		errors.Is(err, bookmark.ErrNoLocalPath),
		errors.Is(err, bookmark.ErrUnsupportedProvider),
		errors.Is(err, jobs.ErrInvalidKind),
		errors.Is(err, mountpoint.ErrInvalidBookmark):
		code = codes.InvalidArgument
	case errors.Is(err, bookmark.ErrUnknownBookmark):
		code = codes.NotFound
	case errors.Is(err, bookmark.ErrBookmarkExists):
		code = codes.AlreadyExists
	case errors.Is(err, mountpoint.ErrNoFreeLetter),
		errors.Is(err, mountpoint.ErrNoFreeMountpoint):
		code = codes.ResourceExhausted
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	default:
		if ce, ok := rc.AsCommandError(err); ok && ce.NotFound() {
			code = codes.NotFound
		}
	}
	return status.Error(code, err.Error())
}

// ErrorMessage returns the message of an error returned by the control API
// without the gRPC code prefix.
func ErrorMessage(err error) string {
	if st, ok := status.FromError(err); ok {
		return st.Message()
	}
	return fmt.Sprint(err)
}
