package rclone

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rclonetray/rclonetray/internal/daemon/lineframe"
	"github.com/rclonetray/rclonetray/internal/daemon/logwatch"
	"github.com/rclonetray/rclonetray/internal/logging"
)

// DefaultStopGrace is how long Stop waits after the graceful signal.
const DefaultStopGrace = 5 * time.Second

// ConnectionState is the shared view of the running daemon. It is the zero
// value until the daemon announces its RC endpoint and again after it exits.
type ConnectionState struct {
	ServerAddress string
	Connected     bool
	User          string
	Password      string
	PID           int
}

// ExitInfo is passed to Options.OnExit once per run.
type ExitInfo struct {
	Err error
	// Requested is true when the exit followed Stop or Kill.
	Requested bool
	// WasConnected is true when the daemon had announced its endpoint.
	WasConnected bool
}

// Options configure one daemon run.
type Options struct {
	Binary string
	Args   []string
	// Env is appended to the current environment.
	Env []string
	// User and Password are the RC credentials passed in Args; they are
	// published in ConnectionState once connected.
	User     string
	Password string

	StopGrace time.Duration

	// Event hooks run on a single goroutine, in order.
	OnConnected       func(ConnectionState)
	OnInvalidPassword func()
	OnExit            func(ExitInfo)

	Log *logrus.Entry
}

// Supervisor owns one rclone daemon process.
type Supervisor struct {
	opts     Options
	log      *logrus.Entry
	cmd      *exec.Cmd
	watchdog *logwatch.Watchdog
	stdout   *lineframe.Framer
	stderr   *lineframe.Framer

	events chan func()
	done   chan struct{}

	readyOnce sync.Once
	ready     chan struct{}
	readyErr  error

	mu        sync.Mutex
	state     ConnectionState
	requested bool
	exitErr   error
}

// Start spawns the daemon without a terminal and returns immediately.
// Output on both streams is framed into lines and fed to the log watchdog.
func Start(opts Options) (*Supervisor, error) {
	if opts.StopGrace <= 0 {
		opts.StopGrace = DefaultStopGrace
	}
	log := opts.Log
	if log == nil {
		log = logging.NewLogger("rclone")
	}

	s := &Supervisor{
		opts:   opts,
		log:    log,
		events: make(chan func(), 16),
		done:   make(chan struct{}),
		ready:  make(chan struct{}),
	}
	s.watchdog = logwatch.New(logwatch.Hooks{
		OnConnected:       s.handleConnected,
		OnFailure:         s.handleFailure,
		OnInvalidPassword: s.handleInvalidPassword,
		Kill:              s.kill,
	}, log)
	s.stdout = lineframe.New(s.watchdog.Feed)
	s.stderr = lineframe.New(s.watchdog.Feed)

	cmd := exec.Command(opts.Binary, opts.Args...)
	cmd.Env = append(os.Environ(), opts.Env...)
	cmd.Stdout = s.stdout
	cmd.Stderr = s.stderr
	// Bound Wait if a grandchild keeps the output pipes open after a kill.
	cmd.WaitDelay = time.Second
	s.cmd = cmd

	if err := cmd.Start(); err != nil {
		return nil, &StartupError{Reason: ReasonSpawn, Err: err}
	}
	log.WithField("pid", cmd.Process.Pid).Debug("rclone daemon started")

	go s.dispatch()
	go s.monitor()
	return s, nil
}

// WaitReady blocks until the daemon announces its RC endpoint and returns
// the address. It fails with a *StartupError when the watchdog detects a
// boot failure or the process exits first. Cancelling ctx stops the wait
// but leaves the daemon running.
func (s *Supervisor) WaitReady(ctx context.Context) (string, error) {
	select {
	case <-s.ready:
		if s.readyErr != nil {
			return "", s.readyErr
		}
		return s.State().ServerAddress, nil
	case <-ctx.Done():
		return "", &StartupError{Reason: ReasonTimeout, Err: ctx.Err()}
	}
}

// State returns a snapshot of the connection state.
func (s *Supervisor) State() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Endpoint implements the RC client's connection source.
func (s *Supervisor) Endpoint() (addr, user, password string, ok bool) {
	st := s.State()
	return st.ServerAddress, st.User, st.Password, st.Connected
}

// PID returns the daemon process id.
func (s *Supervisor) PID() int {
	return s.cmd.Process.Pid
}

// Done is closed after the process has exited and OnExit has returned.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// ExitErr returns the process exit error once Done is closed.
func (s *Supervisor) ExitErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitErr
}

// Stop sends sig (the platform's graceful signal when nil), waits up to
// the stop grace period and then kills the process. It returns once the
// process has exited and is not cancellable.
func (s *Supervisor) Stop(sig os.Signal) {
	if sig == nil {
		sig = gracefulSignal
	}
	s.markRequested()

	select {
	case <-s.done:
		return
	default:
	}

	if err := s.cmd.Process.Signal(sig); err != nil {
		s.log.WithError(err).Debug("signal failed, killing")
		_ = s.cmd.Process.Kill()
	}

	select {
	case <-s.done:
		return
	case <-time.After(s.opts.StopGrace):
	}

	s.log.WithField("grace", s.opts.StopGrace).Warn("rclone did not exit in time, killing")
	_ = s.cmd.Process.Kill()
	<-s.done
}

// Quit asks the daemon to exit on its own via quit, e.g. the core/quit
// RC command, and falls back to Stop when quit fails or the process is
// still running after wait.
func (s *Supervisor) Quit(quit func() error, wait time.Duration) {
	s.markRequested()

	select {
	case <-s.done:
		return
	default:
	}

	if err := quit(); err != nil {
		s.log.WithError(err).Debug("quit request failed, signalling")
		s.Stop(nil)
		return
	}
	select {
	case <-s.done:
	case <-time.After(wait):
		s.log.WithField("wait", wait).Debug("rclone still running after quit, signalling")
		s.Stop(nil)
	}
}

// Kill terminates the process immediately and waits for it to exit.
func (s *Supervisor) Kill() {
	s.markRequested()
	_ = s.cmd.Process.Kill()
	<-s.done
}

func (s *Supervisor) markRequested() {
	s.mu.Lock()
	s.requested = true
	s.mu.Unlock()
}

// kill is the watchdog's hook; it runs under the watchdog lock.
func (s *Supervisor) kill() {
	_ = s.cmd.Process.Kill()
}

func (s *Supervisor) handleConnected(addr string) {
	s.mu.Lock()
	s.state = ConnectionState{
		ServerAddress: addr,
		Connected:     true,
		User:          s.opts.User,
		Password:      s.opts.Password,
		PID:           s.cmd.Process.Pid,
	}
	st := s.state
	s.mu.Unlock()

	s.resolveReady(nil)
	if s.opts.OnConnected != nil {
		s.events <- func() { s.opts.OnConnected(st) }
	}
}

func (s *Supervisor) handleFailure(f logwatch.Failure) {
	var err error
	switch f.Kind {
	case logwatch.FailureInvalidPassword:
		err = &StartupError{Reason: ReasonBoot, Err: fmt.Errorf("%w: %s", ErrInvalidPassword, f.Message)}
	case logwatch.FailureFatal:
		err = &StartupError{Reason: ReasonFatal, Err: f}
	default:
		err = &StartupError{Reason: ReasonBoot, Err: f}
	}
	s.resolveReady(err)
}

func (s *Supervisor) handleInvalidPassword() {
	if s.opts.OnInvalidPassword != nil {
		s.events <- s.opts.OnInvalidPassword
	}
}

func (s *Supervisor) resolveReady(err error) {
	s.readyOnce.Do(func() {
		s.readyErr = err
		close(s.ready)
	})
}

func (s *Supervisor) dispatch() {
	for fn := range s.events {
		fn()
	}
	close(s.done)
}

func (s *Supervisor) monitor() {
	err := s.cmd.Wait()
	// exec has stopped writing; flush any unterminated final line.
	_ = s.stdout.Close()
	_ = s.stderr.Close()
	prev := s.watchdog.Disconnect()

	s.mu.Lock()
	info := ExitInfo{
		Err:          err,
		Requested:    s.requested,
		WasConnected: s.state.Connected,
	}
	s.exitErr = err
	s.state = ConnectionState{}
	s.mu.Unlock()

	s.resolveReady(&StartupError{Reason: ReasonExited, Err: exitError(err)})

	entry := s.log.WithField("requested", info.Requested)
	if err != nil {
		entry = entry.WithError(err)
	}
	if prev == logwatch.StateConnected && !info.Requested {
		entry.Warn("rclone daemon exited unexpectedly")
	} else {
		entry.Info("rclone daemon exited")
	}

	if s.opts.OnExit != nil {
		s.events <- func() { s.opts.OnExit(info) }
	}
	close(s.events)
}

func exitError(err error) error {
	if err == nil {
		return fmt.Errorf("daemon exited before announcing its endpoint")
	}
	return err
}
