package config

import (
	"os"
	"path/filepath"
)

// FindEnvFile resolves name to an existing file. Absolute paths are checked
// as they are; relative names are looked up in the working directory and
// then in each parent, so tests in nested packages find the repo's .env.
func FindEnvFile(name string) (string, error) {
	if name == "" {
		name = ".env"
	}
	if filepath.IsAbs(name) {
		if _, err := os.Stat(name); err != nil {
			return "", err
		}
		return name, nil
	}

	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		candidate := filepath.Join(dir, name)
		if fi, err := os.Stat(candidate); err == nil && !fi.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", os.ErrNotExist
		}
		dir = parent
	}
}

// maskValue hides all but the ends of a secret-bearing value for logging.
func maskValue(v string) string {
	switch {
	case v == "":
		return ""
	case len(v) <= 6:
		return "****"
	default:
		return v[:2] + "****" + v[len(v)-4:]
	}
}
