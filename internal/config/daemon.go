package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/rclonetray/rclonetray/internal/models"
)

// LoadDaemonInfo reads daemon.yaml. A missing file yields nil, nil.
func LoadDaemonInfo() (*models.DaemonInfo, error) {
	path, err := GlobalDaemonFile()
	if err != nil {
		return nil, err
	}

	var info models.DaemonInfo
	if err := LoadYAML(path, &info); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return &info, nil
}

// SaveDaemonInfo records the running tray host so the CLI can find it.
func SaveDaemonInfo(info *models.DaemonInfo) error {
	path, err := GlobalDaemonFile()
	if err != nil {
		return err
	}
	return SaveYAML(path, info)
}

// RemoveDaemonInfo deletes daemon.yaml. Removing a missing file is not an error.
func RemoveDaemonInfo() error {
	path, err := GlobalDaemonFile()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// IsDaemonRunning reports whether daemon.yaml names a live process. A file
// left behind by a dead host is removed, and its info is still returned.
func IsDaemonRunning() (bool, *models.DaemonInfo, error) {
	info, err := LoadDaemonInfo()
	if err != nil || info == nil {
		return false, nil, err
	}
	if pidAlive(info.PID) {
		return true, info, nil
	}
	_ = RemoveDaemonInfo()
	return false, info, nil
}
