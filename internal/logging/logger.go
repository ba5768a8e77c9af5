// Package logging provides component loggers shared by the tray host and CLI.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LevelEnv overrides the configured log level.
const LevelEnv = "RCLONETRAY_LOG_LEVEL"

// Options configures the shared logger.
type Options struct {
	Level      string
	File       string // empty disables the file sink
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	// Stderr forces (true) the stderr sink. When false, stderr is used only
	// if it is not an interactive terminal or the level is debug.
	Stderr bool
}

var (
	base      = newBase()
	loggers   = make(map[string]*logrus.Entry)
	loggersMu sync.Mutex
	closer    io.Closer
)

func newBase() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&TextFormatter{})
	l.SetOutput(os.Stderr)
	return l
}

// Setup applies opts to every logger created by NewLogger, including ones
// handed out before Setup was called.
func Setup(opts Options) error {
	levelStr := "info"
	if env := os.Getenv(LevelEnv); env != "" {
		levelStr = env
	} else if opts.Level != "" {
		levelStr = opts.Level
	}
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)

	var writers []io.Writer
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return err
		}
		lj := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.MaxSizeMB, 10),
			MaxBackups: orDefault(opts.MaxBackups, 3),
			MaxAge:     orDefault(opts.MaxAgeDays, 14),
		}
		if closer != nil {
			_ = closer.Close()
		}
		closer = lj
		writers = append(writers, lj)
	}

	interactive := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	if opts.Stderr || !interactive || level >= logrus.DebugLevel || opts.File == "" {
		writers = append(writers, os.Stderr)
	}

	switch len(writers) {
	case 1:
		base.SetOutput(writers[0])
	default:
		base.SetOutput(io.MultiWriter(writers...))
	}
	return nil
}

// Close releases the file sink.
func Close() error {
	if closer == nil {
		return nil
	}
	err := closer.Close()
	closer = nil
	return err
}

// NewLogger returns the logger for a component, creating it on first use.
func NewLogger(component string) *logrus.Entry {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if logger, ok := loggers[component]; ok {
		return logger
	}
	entry := base.WithField("component", component)
	loggers[component] = entry
	return entry
}

// Discard returns a logger that drops everything. Used by tests and by
// components constructed without a logger.
func Discard() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
