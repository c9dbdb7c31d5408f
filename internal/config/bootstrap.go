package config

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
)

const userConfigName = "config.yml"

// EnsureUserConfig returns dataDir/config.yml. A missing or blank file is
// (re)written from the embedded default.
func EnsureUserConfig(dataDir string) (string, error) {
	userPath := filepath.Join(dataDir, userConfigName)

	b, err := os.ReadFile(userPath)
	switch {
	case err == nil && len(bytes.TrimSpace(b)) > 0:
		return userPath, nil
	case err != nil && !os.IsNotExist(err):
		return "", err
	}

	if err := replaceFile(userPath, defaultYAML); err != nil {
		return "", err
	}
	log.Printf("[config] wrote default config to %s", userPath)
	return userPath, nil
}
