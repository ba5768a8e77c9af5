package models

import (
	"net"
	"strconv"
	"time"
)

// DaemonInfo records the running tray host for the CLI.
// This corresponds to ~/.rclonetray/daemon.yaml.
type DaemonInfo struct {
	Version   int       `yaml:"version"`
	Host      string    `yaml:"host"`
	Port      int       `yaml:"port"`
	PID       int       `yaml:"pid"`
	StartedAt time.Time `yaml:"started_at"`
}

// NewDaemonInfo creates a new daemon info with current values.
func NewDaemonInfo(host string, port, pid int) *DaemonInfo {
	return &DaemonInfo{
		Version:   1,
		Host:      host,
		Port:      port,
		PID:       pid,
		StartedAt: time.Now().UTC(),
	}
}

// Addr is the control API address.
func (d *DaemonInfo) Addr() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}
