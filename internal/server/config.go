package server

import (
	"fmt"
	"os"
	"path/filepath"
)

// findConfigFile walks up from the working directory so binaries and tests
// launched from nested packages still find repo-level config.
func findConfigFile(rel string) (string, error) {
	path := rel
	for range 8 {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		path = filepath.Join("..", path)
	}
	return "", fmt.Errorf("server: config file %s not found", rel)
}

// publicPath lists the routes served without tenant or authz context.
func publicPath(path string) bool {
	return path == "/health" || path == "/healthz" || pathHasPrefixSegment(path, "/assets")
}
