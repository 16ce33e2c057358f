package config

import (
	"fmt"
	"os"
	"path"

	"github.com/mitchellh/go-homedir"
)

// getConfigHomeDir returns the full path to the directory that stores the config file.
// Uses global variable.
func getConfigHomeDir() (string, error) {
	if stagesyncHomeDir == "" {
		home, err := homedir.Dir()
		if err != nil {
			return "", fmt.Errorf("unable to find home directory: %w", err)
		}
		stagesyncHomeDir = path.Join(home, MainDir)
	}
	return stagesyncHomeDir, nil
}

// makeDir wll make the given directory if it does not already exist.
// If it exist then return nil.
// An error is returned if there is a problem creating the dir.
func makeDir(dir string) error {
	_, err := os.Stat(dir)
	if os.IsNotExist(err) { // if it doesn't exist...
		if err = os.MkdirAll(dir, 0o700); err != nil { // if the dir was NOT created...
			return fmt.Errorf("error creating directory %v", dir)
		}
	} else if err != nil {
		return err
	}
	return nil
}
