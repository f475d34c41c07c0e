package fs

import (
	"os"
	"os/user"
	"path/filepath"
)

// GrexDir retrieves the grex data directory.
func GrexDir() (string, error) {
	var dir string
	// By default, store files in the current user's home directory
	u, err := user.Current()
	if err == nil {
		dir = u.HomeDir
	} else if home := os.Getenv("HOME"); home != "" {
		dir = home
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		dir = wd
	}
	dir = filepath.Join(dir, ".grex")

	return dir, nil
}

// DefaultStorePath returns the default path of the general purpose bolt
// store inside the grex directory.
func DefaultStorePath() (string, error) {
	dir, err := GrexDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "grex.bolt"), nil
}

// DefaultSqliteStorePath returns the default path of the sqlite database
// inside the grex directory.
func DefaultSqliteStorePath() (string, error) {
	dir, err := GrexDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "grex.sqlite"), nil
}

// DefaultSecureStorePath returns the default path of the bolt file backing
// the sealed credential store inside the grex directory.
func DefaultSecureStorePath() (string, error) {
	dir, err := GrexDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "secure.bolt"), nil
}
