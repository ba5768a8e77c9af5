package models

import "time"

// RcloneConfig says how the rclone daemon is launched.
type RcloneConfig struct {
	Binary     string   `yaml:"binary"` // empty = lookup "rclone" in PATH
	ConfigFile string   `yaml:"config_file"`
	RCAddr     string   `yaml:"rc_addr"` // empty = free loopback port
	JSONLog    bool     `yaml:"json_log"`
	LogLevel   string   `yaml:"log_level"`
	ExtraArgs  []string `yaml:"extra_args,omitempty"`
	// Options are applied with options/set once the daemon is up, keyed
	// by block (main, vfs, mount, ...).
	Options map[string]map[string]any `yaml:"options,omitempty"`
}

// SupervisorConfig holds daemon lifecycle timeouts.
type SupervisorConfig struct {
	StopGrace    time.Duration `yaml:"stop_grace"`
	ReadyTimeout time.Duration `yaml:"ready_timeout"`
}

// AutopushConfig holds change-watcher settings.
type AutopushConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

// MountConfig holds mountpoint allocation settings.
type MountConfig struct {
	Kind string `yaml:"kind"` // directory prefix: <home>/<kind>.<bookmark>.rclone
}

// BookmarkConfig is the tray's per-bookmark state. The remote itself
// lives in the rclone config store.
type BookmarkConfig struct {
	LocalPath  string `yaml:"local_path,omitempty"`
	RemotePath string `yaml:"remote_path,omitempty"`
	AutoMount  bool   `yaml:"auto_mount"`
	Autopush   bool   `yaml:"autopush"`
}

// LogConfig holds log level and rotation.
type LogConfig struct {
	Level      string `yaml:"level"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Settings represents global application settings.
// This corresponds to ~/.rclonetray/settings.yaml.
type Settings struct {
	Version    int                        `yaml:"version"`
	Rclone     RcloneConfig               `yaml:"rclone"`
	Supervisor SupervisorConfig           `yaml:"supervisor"`
	Autopush   AutopushConfig             `yaml:"autopush"`
	Mount      MountConfig                `yaml:"mount"`
	Bookmarks  map[string]*BookmarkConfig `yaml:"bookmarks"`
	Log        LogConfig                  `yaml:"log"`
}

// NewSettings creates settings with default values.
func NewSettings() *Settings {
	s := &Settings{Version: 1}
	s.ApplyDefaults()
	return s
}

// ApplyDefaults fills zero fields, e.g. after loading an older file.
func (s *Settings) ApplyDefaults() {
	if s.Version == 0 {
		s.Version = 1
	}
	if s.Supervisor.StopGrace <= 0 {
		s.Supervisor.StopGrace = 5 * time.Second
	}
	if s.Supervisor.ReadyTimeout <= 0 {
		s.Supervisor.ReadyTimeout = 30 * time.Second
	}
	if s.Autopush.Debounce <= 0 {
		s.Autopush.Debounce = 3 * time.Second
	}
	if s.Mount.Kind == "" {
		s.Mount.Kind = "volume"
	}
	if s.Bookmarks == nil {
		s.Bookmarks = map[string]*BookmarkConfig{}
	}
	if s.Log.Level == "" {
		s.Log.Level = "info"
	}
	if s.Log.MaxSizeMB <= 0 {
		s.Log.MaxSizeMB = 10
	}
	if s.Log.MaxBackups <= 0 {
		s.Log.MaxBackups = 3
	}
	if s.Log.MaxAgeDays <= 0 {
		s.Log.MaxAgeDays = 14
	}
}

// Bookmark returns the bookmark's config, zero if unset.
func (s *Settings) Bookmark(name string) BookmarkConfig {
	if b := s.Bookmarks[name]; b != nil {
		return *b
	}
	return BookmarkConfig{}
}
