package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// HomeDirName is the memtier home directory name.
const HomeDirName = ".memtier"

// HomeDir returns the absolute memtier home directory, creating it if needed.
// Order of precedence is as follows:
//  1. Provided override
//  2. Local ./.memtier/ dir
//  3. Home ~/.memtier/ dir
func HomeDir(override string) (string, error) {
	var dir string

	switch {
	case override != "":
		dir = override

	case localDirExists():
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getting current directory: %w", err)
		}
		dir = filepath.Join(cwd, HomeDirName)

	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		dir = filepath.Join(home, HomeDirName)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating memtier directory %s: %w", dir, err)
	}
	return filepath.Abs(dir)
}

func localDirExists() bool {
	cwd, err := os.Getwd()
	if err != nil {
		return false
	}
	info, err := os.Stat(filepath.Join(cwd, HomeDirName))
	return err == nil && info.IsDir()
}
