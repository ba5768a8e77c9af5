package rclone

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// RCUser is the basic-auth user name given to the daemon.
const RCUser = "rclonetray"

// DefaultReadyTimeout bounds WaitReady in Launch.
const DefaultReadyTimeout = 30 * time.Second

// LaunchConfig is the user-facing daemon configuration.
type LaunchConfig struct {
	Binary         string
	ConfigFile     string
	ConfigPassword string
	// RCAddr is host:port; a free loopback port is picked when empty.
	RCAddr       string
	JSONLog      bool
	LogLevel     string
	ExtraArgs    []string
	StopGrace    time.Duration
	ReadyTimeout time.Duration
}

// Hooks are forwarded to Options.
type Hooks struct {
	OnConnected       func(ConnectionState)
	OnInvalidPassword func()
	OnExit            func(ExitInfo)
}

// Launch runs Preflight, starts `rclone rcd` with fresh RC credentials and
// waits for it to become ready. On failure the process is gone.
func Launch(ctx context.Context, cfg LaunchConfig, hooks Hooks, log *logrus.Entry) (*Supervisor, *PreflightResult, error) {
	pre, err := Preflight(ctx, cfg.Binary)
	if err != nil {
		return nil, nil, err
	}

	addr := cfg.RCAddr
	if addr == "" {
		if addr, err = FreeLoopbackAddr(); err != nil {
			return nil, pre, &StartupError{Reason: ReasonSpawn, Err: err}
		}
	}
	password, err := RandomCredential(16)
	if err != nil {
		return nil, pre, &StartupError{Reason: ReasonSpawn, Err: err}
	}

	var env []string
	if cfg.ConfigPassword != "" {
		env = append(env, "RCLONE_CONFIG_PASS="+cfg.ConfigPassword)
	}

	s, err := Start(Options{
		Binary: pre.Binary,
		Args: DaemonArgs(DaemonOptions{
			Addr:       addr,
			User:       RCUser,
			Password:   password,
			JSONLog:    cfg.JSONLog,
			LogLevel:   cfg.LogLevel,
			ConfigFile: cfg.ConfigFile,
			Extra:      cfg.ExtraArgs,
		}),
		Env:               env,
		User:              RCUser,
		Password:          password,
		StopGrace:         cfg.StopGrace,
		OnConnected:       hooks.OnConnected,
		OnInvalidPassword: hooks.OnInvalidPassword,
		OnExit:            hooks.OnExit,
		Log:               log,
	})
	if err != nil {
		return nil, pre, err
	}

	timeout := cfg.ReadyTimeout
	if timeout <= 0 {
		timeout = DefaultReadyTimeout
	}
	readyCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if _, err := s.WaitReady(readyCtx); err != nil {
		s.Kill()
		return nil, pre, err
	}
	return s, pre, nil
}
