package rclone

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rclonetray/rclonetray/internal/daemon/lineframe"
	"github.com/rclonetray/rclonetray/internal/version"
)

// DefaultBinary is looked up in PATH when no binary is configured.
const DefaultBinary = "rclone"

// MinimumVersion is the oldest rclone accepted by Preflight.
var MinimumVersion = version.MustParse("1.64.0")

// ServeMinimumVersion is the first rclone with the serve/start RC endpoint.
var ServeMinimumVersion = version.MustParse("1.70.0")

// PreflightResult describes a usable rclone installation.
type PreflightResult struct {
	Binary     string
	Version    version.Semver
	ConfigFile string
}

// ResolveBinary returns the absolute binary path, looking up DefaultBinary
// in PATH when path is empty.
func ResolveBinary(path string) (string, error) {
	if path == "" {
		found, err := exec.LookPath(DefaultBinary)
		if err != nil {
			return "", &StartupError{Reason: ReasonBinaryMissing, Err: err}
		}
		return found, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", &StartupError{Reason: ReasonBinaryMissing, Err: err}
	}
	if info.IsDir() {
		return "", &StartupError{Reason: ReasonBinaryMissing, Err: fmt.Errorf("%s is a directory", path)}
	}
	return path, nil
}

// Preflight resolves the binary, checks its version against MinimumVersion
// and asks it where its config file lives.
func Preflight(ctx context.Context, binary string) (*PreflightResult, error) {
	resolved, err := ResolveBinary(binary)
	if err != nil {
		return nil, err
	}

	v, err := BinaryVersion(ctx, resolved)
	if err != nil {
		return nil, err
	}
	if v.LessThan(MinimumVersion) {
		return nil, &StartupError{
			Reason: ReasonVersionTooOld,
			Err:    fmt.Errorf("rclone %s is older than required %s", v, MinimumVersion),
		}
	}

	configFile, err := ConfigFile(ctx, resolved)
	if err != nil {
		return nil, err
	}

	return &PreflightResult{Binary: resolved, Version: v, ConfigFile: configFile}, nil
}

// BinaryVersion runs `<binary> version` and parses the first line.
func BinaryVersion(ctx context.Context, binary string) (version.Semver, error) {
	out, err := exec.CommandContext(ctx, binary, "version").Output()
	if err != nil {
		return version.Semver{}, &StartupError{Reason: ReasonVersionUnknown, Err: commandError(err)}
	}
	v, err := version.FromVersionOutput(string(out))
	if err != nil {
		return version.Semver{}, &StartupError{Reason: ReasonVersionUnknown, Err: err}
	}
	return v, nil
}

// ConfigFile runs `<binary> config file` and returns the reported path,
// whether or not the file exists yet.
func ConfigFile(ctx context.Context, binary string) (string, error) {
	out, err := exec.CommandContext(ctx, binary, "config", "file").Output()
	if err != nil {
		return "", fmt.Errorf("rclone config file: %w", commandError(err))
	}
	return parseConfigFileOutput(string(out))
}

func parseConfigFileOutput(out string) (string, error) {
	lines := lineframe.Split(strings.TrimSpace(out))
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line != "" && !strings.HasSuffix(line, ":") {
			return line, nil
		}
	}
	return "", fmt.Errorf("unexpected config file output: %q", out)
}

func commandError(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
	}
	return err
}
