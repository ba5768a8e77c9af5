package config

import (
	"github.com/rclonetray/rclonetray/internal/models"
)

// LoadSettings loads the global settings from ~/.rclonetray/settings.yaml.
// Missing files and missing fields get defaults.
func LoadSettings() (*models.Settings, error) {
	path, err := GlobalSettingsFile()
	if err != nil {
		return nil, err
	}
	s, err := LoadYAMLOrDefault(path, models.NewSettings)
	if err != nil {
		return nil, err
	}
	s.ApplyDefaults()
	return s, nil
}

// SaveSettings saves the global settings to ~/.rclonetray/settings.yaml.
func SaveSettings(settings *models.Settings) error {
	path, err := GlobalSettingsFile()
	if err != nil {
		return err
	}
	return SaveYAML(path, settings)
}

// UpdateSettings loads, mutates and saves the settings.
func UpdateSettings(fn func(*models.Settings) error) (*models.Settings, error) {
	s, err := LoadSettings()
	if err != nil {
		return nil, err
	}
	if err := fn(s); err != nil {
		return nil, err
	}
	if err := SaveSettings(s); err != nil {
		return nil, err
	}
	return s, nil
}
