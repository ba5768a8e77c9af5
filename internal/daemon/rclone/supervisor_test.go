//go:build !windows

package rclone

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rclonetray/rclonetray/internal/logging"
)

// fakeRclone answers `version` and `config file` and runs body for `rcd`.
func fakeRclone(t *testing.T, versionLine, rcdBody string) string {
	t.Helper()
	script := `#!/bin/sh
case "$1" in
version)
  echo "` + versionLine + `"
  echo "- os/version: test"
  ;;
config)
  echo "Configuration file is stored at:"
  echo "/tmp/fake/rclone.conf"
  ;;
rcd)
  addr=""
  for a in "$@"; do
    case "$a" in
    --rc-addr=*) addr="${a#--rc-addr=}" ;;
    esac
  done
` + rcdBody + `
  ;;
esac
`
	path := filepath.Join(t.TempDir(), "rclone")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

const serveForever = `
  echo "2024/01/02 15:04:05 NOTICE: Serving remote control on http://$addr/" >&2
  trap 'exit 0' TERM
  while true; do sleep 0.05; done
`

func startFake(t *testing.T, body string, opts Options) *Supervisor {
	t.Helper()
	bin := fakeRclone(t, "rclone v1.66.0", body)
	opts.Binary = bin
	if opts.Args == nil {
		opts.Args = DaemonArgs(DaemonOptions{Addr: "127.0.0.1:5572", User: "u", Password: "p"})
	}
	if opts.Log == nil {
		opts.Log = logging.Discard()
	}
	s, err := Start(opts)
	require.NoError(t, err)
	t.Cleanup(func() { s.Kill() })
	return s
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestPreflight(t *testing.T) {
	bin := fakeRclone(t, "rclone v1.66.0", "")
	res, err := Preflight(context.Background(), bin)
	require.NoError(t, err)
	assert.Equal(t, bin, res.Binary)
	assert.Equal(t, "1.66.0", res.Version.String())
	assert.Equal(t, "/tmp/fake/rclone.conf", res.ConfigFile)
}

func TestPreflightRejectsOldVersion(t *testing.T) {
	bin := fakeRclone(t, "rclone v1.50.2", "")
	_, err := Preflight(context.Background(), bin)
	var se *StartupError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, ReasonVersionTooOld, se.Reason)
	assert.False(t, se.Retryable())
}

func TestPreflightMissingBinary(t *testing.T) {
	_, err := Preflight(context.Background(), filepath.Join(t.TempDir(), "nope"))
	var se *StartupError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, ReasonBinaryMissing, se.Reason)
}

func TestParseConfigFileOutput(t *testing.T) {
	path, err := parseConfigFileOutput("Configuration file doesn't exist, but rclone will use this path:\n/home/u/.config/rclone/rclone.conf\n")
	require.NoError(t, err)
	assert.Equal(t, "/home/u/.config/rclone/rclone.conf", path)

	path, err = parseConfigFileOutput("Configuration file is stored at:\r\nC:\\Users\\u\\rclone.conf\r\n")
	require.NoError(t, err)
	assert.Equal(t, `C:\Users\u\rclone.conf`, path)

	_, err = parseConfigFileOutput("Configuration file is stored at:\n")
	assert.Error(t, err)
}

func TestDaemonArgs(t *testing.T) {
	args := DaemonArgs(DaemonOptions{
		Addr:       "127.0.0.1:1234",
		User:       "u",
		Password:   "p",
		JSONLog:    true,
		LogLevel:   "INFO",
		ConfigFile: "/c.conf",
		Extra:      []string{"--fast-list"},
	})
	assert.Equal(t, []string{
		"rcd", "--rc-addr=127.0.0.1:1234", "--rc-user=u", "--rc-pass=p",
		"--use-json-log", "--log-level=INFO", "--config=/c.conf", "--fast-list",
	}, args)

	assert.Contains(t, DaemonArgs(DaemonOptions{Addr: "x:1"}), "--rc-no-auth")
}

func TestWaitReadyPublishesConnectionState(t *testing.T) {
	connected := make(chan ConnectionState, 1)
	s := startFake(t, serveForever, Options{
		User:        "u",
		Password:    "p",
		OnConnected: func(st ConnectionState) { connected <- st },
	})

	addr, err := s.WaitReady(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:5572", addr)

	st := s.State()
	assert.True(t, st.Connected)
	assert.Equal(t, "p", st.Password)
	assert.Equal(t, s.PID(), st.PID)

	gotAddr, user, pass, ok := s.Endpoint()
	assert.True(t, ok)
	assert.Equal(t, []string{"127.0.0.1:5572", "u", "p"}, []string{gotAddr, user, pass})

	select {
	case st := <-connected:
		assert.Equal(t, "127.0.0.1:5572", st.ServerAddress)
	case <-time.After(2 * time.Second):
		t.Fatal("OnConnected not called")
	}
}

func TestStopGraceful(t *testing.T) {
	exits := make(chan ExitInfo, 1)
	s := startFake(t, serveForever, Options{OnExit: func(info ExitInfo) { exits <- info }})
	_, err := s.WaitReady(waitCtx(t))
	require.NoError(t, err)

	s.Stop(nil)

	info := <-exits
	assert.True(t, info.Requested)
	assert.True(t, info.WasConnected)
	assert.NoError(t, info.Err)
	assert.Equal(t, ConnectionState{}, s.State())
}

func TestStopEscalatesToKill(t *testing.T) {
	body := `
  echo "NOTICE: Serving remote control on http://$addr/" >&2
  trap '' TERM
  while true; do sleep 0.05; done
`
	s := startFake(t, body, Options{StopGrace: 200 * time.Millisecond})
	_, err := s.WaitReady(waitCtx(t))
	require.NoError(t, err)

	start := time.Now()
	s.Stop(nil)
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
	assert.Error(t, s.ExitErr())
}

func TestQuit(t *testing.T) {
	tests := []struct {
		name string
		quit func(s *Supervisor) error
	}{
		{"daemon exits on request", func(s *Supervisor) error {
			p, err := os.FindProcess(s.PID())
			if err != nil {
				return err
			}
			return p.Signal(syscall.SIGTERM)
		}},
		{"request fails", func(*Supervisor) error { return errors.New("connection refused") }},
		{"daemon ignores request", func(*Supervisor) error { return nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exits := make(chan ExitInfo, 1)
			s := startFake(t, serveForever, Options{OnExit: func(info ExitInfo) { exits <- info }})
			_, err := s.WaitReady(waitCtx(t))
			require.NoError(t, err)

			s.Quit(func() error { return tt.quit(s) }, 100*time.Millisecond)

			info := <-exits
			assert.True(t, info.Requested)
			assert.NoError(t, info.Err)
		})
	}
}

func TestBootFailureKillsProcess(t *testing.T) {
	body := `
  echo "2024/01/02 15:04:05 ERROR : Failed to start remote control: listen tcp $addr: bind: address already in use" >&2
  trap '' TERM
  while true; do sleep 0.05; done
`
	s := startFake(t, body, Options{})
	_, err := s.WaitReady(waitCtx(t))
	var se *StartupError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, ReasonBoot, se.Reason)
	assert.True(t, se.Retryable())

	select {
	case <-s.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("process was not killed")
	}
}

func TestInvalidPassword(t *testing.T) {
	var mu sync.Mutex
	called := false
	body := `
  echo "2024/01/02 15:04:05 ERROR : Couldn't decrypt configuration, most likely wrong password." >&2
  while true; do sleep 0.05; done
`
	s := startFake(t, body, Options{OnInvalidPassword: func() {
		mu.Lock()
		called = true
		mu.Unlock()
	}})
	_, err := s.WaitReady(waitCtx(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidPassword))
	assert.True(t, IsInvalidPassword(err))

	<-s.Done()
	mu.Lock()
	defer mu.Unlock()
	assert.True(t, called)
}

func TestFatalErrorDuringStartup(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"leveled", "2024/01/02 15:04:05 ERROR : Fatal error: unknown flag: --bogus"},
		{"log.Fatalf", "2024/01/02 15:04:05 Fatal error: unknown flag: --bogus"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := `
  echo "` + tt.line + `" >&2
  while true; do sleep 0.05; done
`
			s := startFake(t, body, Options{})
			_, err := s.WaitReady(waitCtx(t))
			var se *StartupError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, ReasonFatal, se.Reason)
			assert.False(t, se.Retryable())
		})
	}
}

func TestExitBeforeReady(t *testing.T) {
	exits := make(chan ExitInfo, 1)
	s := startFake(t, `  echo "partial line without newline" >&2; exit 3`, Options{
		OnExit: func(info ExitInfo) { exits <- info },
	})
	_, err := s.WaitReady(waitCtx(t))
	var se *StartupError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, ReasonExited, se.Reason)

	info := <-exits
	assert.False(t, info.Requested)
	assert.False(t, info.WasConnected)
	assert.Error(t, info.Err)
}

func TestUnexpectedExitAfterConnect(t *testing.T) {
	exits := make(chan ExitInfo, 1)
	body := `
  echo "NOTICE: Serving remote control on http://$addr/" >&2
  sleep 0.2
  exit 1
`
	s := startFake(t, body, Options{OnExit: func(info ExitInfo) { exits <- info }})
	_, err := s.WaitReady(waitCtx(t))
	require.NoError(t, err)

	select {
	case info := <-exits:
		assert.True(t, info.WasConnected)
		assert.False(t, info.Requested)
	case <-time.After(3 * time.Second):
		t.Fatal("OnExit not called")
	}
	assert.False(t, s.State().Connected)
}

func TestWaitReadyHonoursContext(t *testing.T) {
	s := startFake(t, `  while true; do sleep 0.05; done`, Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := s.WaitReady(ctx)
	var se *StartupError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, ReasonTimeout, se.Reason)
}

func TestLaunch(t *testing.T) {
	bin := fakeRclone(t, "rclone v1.68.1", `
  if [ -n "$RCLONE_CONFIG_PASS" ] && [ "$RCLONE_CONFIG_PASS" != "secret" ]; then
    echo "ERROR : Couldn't decrypt configuration, most likely wrong password." >&2
    while true; do sleep 0.05; done
  fi
`+serveForever)

	s, pre, err := Launch(context.Background(), LaunchConfig{
		Binary:         bin,
		ConfigPassword: "secret",
		ReadyTimeout:   5 * time.Second,
	}, Hooks{}, logging.Discard())
	require.NoError(t, err)
	defer s.Stop(nil)

	assert.Equal(t, "1.68.1", pre.Version.String())
	st := s.State()
	assert.True(t, st.Connected)
	assert.Equal(t, RCUser, st.User)
	assert.Len(t, st.Password, 32)

	_, _, err = Launch(context.Background(), LaunchConfig{
		Binary:         bin,
		ConfigPassword: "wrong",
		ReadyTimeout:   5 * time.Second,
	}, Hooks{}, logging.Discard())
	assert.True(t, IsInvalidPassword(err))
}
