package transcribe

import (
	"fmt"
	"os"
	"path/filepath"
)

// ModelPath returns the on-disk path for a named ggml model.
func ModelPath(modelDir, name string) string {
	return filepath.Join(modelDir, "ggml-"+name+".bin")
}

// ResolveModel checks that the named model file exists and returns its path.
func ResolveModel(modelDir, name string) (string, error) {
	path := ModelPath(modelDir, name)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("model %q not found at %s (download it into %s)", name, path, modelDir)
		}
		return "", fmt.Errorf("model %q: %w", name, err)
	}
	return path, nil
}

// ResolveWithFallback selects the preferred model, degrading to the fallback
// when the preferred file is absent. usedFallback lets callers surface the
// substitution in logs and session metadata.
func ResolveWithFallback(modelDir, preferred, fallback string) (path string, usedFallback bool, err error) {
	path, err = ResolveModel(modelDir, preferred)
	if err == nil {
		return path, false, nil
	}
	if fallback == "" || fallback == preferred {
		return "", false, err
	}
	path, ferr := ResolveModel(modelDir, fallback)
	if ferr != nil {
		return "", false, fmt.Errorf("neither preferred nor fallback model available: %v; %v", err, ferr)
	}
	return path, true, nil
}
