package rclone

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
)

// DaemonOptions are the inputs to DaemonArgs.
type DaemonOptions struct {
	Addr       string
	User       string
	Password   string
	JSONLog    bool
	LogLevel   string
	ConfigFile string
	// Extra is appended verbatim.
	Extra []string
}

// DaemonArgs builds the `rcd` argument list.
func DaemonArgs(opts DaemonOptions) []string {
	args := []string{"rcd", "--rc-addr=" + opts.Addr}
	if opts.User != "" {
		args = append(args, "--rc-user="+opts.User, "--rc-pass="+opts.Password)
	} else {
		args = append(args, "--rc-no-auth")
	}
	if opts.JSONLog {
		args = append(args, "--use-json-log")
	}
	if opts.LogLevel != "" {
		args = append(args, "--log-level="+opts.LogLevel)
	}
	if opts.ConfigFile != "" {
		args = append(args, "--config="+opts.ConfigFile)
	}
	return append(args, opts.Extra...)
}

// FreeLoopbackAddr returns 127.0.0.1:<port> for a port that was free a moment ago.
func FreeLoopbackAddr() (string, error) {
	l, err := (&net.ListenConfig{}).Listen(context.TODO(), "tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("failed to find free port: %w", err)
	}
	defer l.Close()
	return l.Addr().String(), nil
}

// RandomCredential returns a random hex string of n bytes.
func RandomCredential(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
