package logwatch

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/rclonetray/rclonetray/internal/logging"
)

// State is the watchdog's view of one daemon run.
type State int

const (
	StateStarting State = iota
	StateConnected
	StateFailed
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// FailureKind classifies a terminal startup failure.
type FailureKind int

const (
	FailureRC FailureKind = iota
	FailureInvalidPassword
	FailureFatal
)

func (k FailureKind) String() string {
	switch k {
	case FailureRC:
		return "rc"
	case FailureInvalidPassword:
		return "invalid_password"
	case FailureFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Failure is a terminal startup failure detected in the log stream.
type Failure struct {
	Kind    FailureKind
	Message string
}

// Command is the operation the failure is attributed to.
func (f Failure) Command() string { return "boot" }

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Command(), f.Message)
}

// Hooks are invoked synchronously from Feed, in line order, with the
// watchdog locked: they must not call back into the Watchdog. Nil hooks are skipped.
type Hooks struct {
	OnConnected       func(addr string)
	OnFailure         func(Failure)
	OnInvalidPassword func()
	// Kill terminates the daemon process. Called at most once per run.
	Kill func()
}

// Watchdog consumes daemon output lines for a single run. Lines from
// several streams may be fed concurrently; each Feed is applied atomically.
type Watchdog struct {
	mu      sync.Mutex
	state   State
	addr    string
	failure *Failure
	killed  bool
	hooks   Hooks
	log     *logrus.Entry
}

// New creates a watchdog in StateStarting.
func New(hooks Hooks, log *logrus.Entry) *Watchdog {
	if log == nil {
		log = logging.Discard()
	}
	return &Watchdog{hooks: hooks, log: log}
}

// State returns the current state.
func (w *Watchdog) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Addr returns the RC address announced by the daemon, if connected.
func (w *Watchdog) Addr() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.addr
}

// Failure returns the terminal failure, if any.
func (w *Watchdog) Failure() *Failure {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failure == nil {
		return nil
	}
	f := *w.failure
	return &f
}

// Feed parses and processes one raw output line.
func (w *Watchdog) Feed(raw string) {
	w.FeedLine(Parse(raw))
}

// FeedLine processes one parsed line.
func (w *Watchdog) FeedLine(line LogLine) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.logLine(line)

	if w.state != StateStarting {
		return
	}

	switch Classify(line) {
	case SignalReady:
		addr, _ := DetectReady(line.Message)
		w.state = StateConnected
		w.addr = addr
		w.log.WithField("addr", addr).Info("rclone remote control is ready")
		if w.hooks.OnConnected != nil {
			w.hooks.OnConnected(addr)
		}
	case SignalRCFailed:
		w.failLocked(Failure{Kind: FailureRC, Message: line.Message})
	case SignalInvalidPassword:
		w.failLocked(Failure{Kind: FailureInvalidPassword, Message: line.Message})
	case SignalFatal:
		w.failLocked(Failure{Kind: FailureFatal, Message: line.Message})
	}
}

// Disconnect marks the run as over and returns the state it was in.
func (w *Watchdog) Disconnect() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	prev := w.state
	if prev != StateFailed {
		w.state = StateDisconnected
	}
	return prev
}

// failLocked must be called while holding mu.
func (w *Watchdog) failLocked(f Failure) {
	w.state = StateFailed
	w.failure = &f
	w.log.WithField("kind", f.Kind).Errorf("rclone failed to boot: %s", f.Message)

	if w.hooks.OnFailure != nil {
		w.hooks.OnFailure(f)
	}
	if f.Kind == FailureInvalidPassword && w.hooks.OnInvalidPassword != nil {
		w.hooks.OnInvalidPassword()
	}
	if !w.killed {
		w.killed = true
		if w.hooks.Kill != nil {
			w.hooks.Kill()
		}
	}
}

func (w *Watchdog) logLine(line LogLine) {
	entry := w.log
	if line.Source != "" {
		entry = entry.WithField("source", line.Source)
	}
	switch line.Level {
	case LevelError:
		entry.Error(line.Message)
	case LevelNotice:
		entry.Warn(line.Message)
	case LevelInfo:
		entry.Info(line.Message)
	default:
		entry.Debug(line.Message)
	}
}
