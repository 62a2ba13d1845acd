package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const (
	// MaxBackups is the maximum number of config backups to keep.
	MaxBackups = 3

	// BackupSuffix is the file extension for backup files.
	BackupSuffix = ".bak"
)

// BackupUserConfig creates a timestamped backup of the user config file.
// Returns the backup file path, or empty string if no config exists.
func BackupUserConfig() (string, error) {
	configPath := GetUserConfigPath()
	if !UserConfigExists() {
		return "", nil
	}

	timestamp := time.Now().Format("20060102-150405")
	backupPath := fmt.Sprintf("%s%s.%s", configPath, BackupSuffix, timestamp)

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to read config for backup: %w", err)
	}

	if err := os.WriteFile(backupPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}

	// Cleanup is best-effort; the backup itself already succeeded.
	_ = cleanupOldBackups(configPath)

	return backupPath, nil
}

// ListUserConfigBackups returns backup files for the user config, newest
// first.
func ListUserConfigBackups() ([]string, error) {
	return listBackups(GetUserConfigPath())
}

func listBackups(configPath string) ([]string, error) {
	matches, err := filepath.Glob(configPath + BackupSuffix + ".*")
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	// Timestamped suffixes sort lexicographically; newest last.
	sort.Sort(sort.Reverse(sort.StringSlice(matches)))
	return matches, nil
}

// cleanupOldBackups removes backups beyond MaxBackups.
func cleanupOldBackups(configPath string) error {
	backups, err := listBackups(configPath)
	if err != nil {
		return err
	}

	for i, b := range backups {
		if i >= MaxBackups {
			if err := os.Remove(b); err != nil {
				return err
			}
		}
	}
	return nil
}
