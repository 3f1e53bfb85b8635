package utils

import (
	"errors"
	"os"
	"os/user"
	"path/filepath"
	"strings"
)

// Prefixes that stand for the invoking user's home directory.
var homeTokens = []string{"$HOME", "~"}

// HomeDir returns the invoking user's home directory. The HOME environment
// variable wins; the user database is consulted only when it is unset.
func HomeDir() (string, error) {
	if home := os.Getenv("HOME"); home != "" {
		return home, nil
	}

	u, err := user.Current()
	if err != nil {
		return "", err
	}
	if u.HomeDir == "" {
		return "", errors.New("user database has no home directory for current user")
	}
	return u.HomeDir, nil
}

// ExpandHome will resolve a leading "$HOME" or "~" to the correct location on disk.
// Paths without a home prefix are returned unchanged.
func ExpandHome(path string) (string, error) {
	for _, token := range homeTokens {
		rest, ok := strings.CutPrefix(path, token)
		if !ok {
			continue
		}
		// "~user" and "$HOMEDIR" are not ours to expand.
		if rest != "" && rest[0] != '/' && rest[0] != filepath.Separator {
			return path, nil
		}

		home, err := HomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, rest), nil
	}
	return path, nil
}
