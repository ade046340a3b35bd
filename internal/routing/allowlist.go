package routing

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const allowlistVersion = 1

// Allowlist declares the routes each entrypoint may serve, keyed by
// entrypoint name. Paths may use {name} wildcard segments.
type Allowlist struct {
	Version     int                   `yaml:"version"`
	Entrypoints map[string]Entrypoint `yaml:"entrypoints"`
}

type Entrypoint struct {
	Routes []Route `yaml:"routes"`
}

type Route struct {
	Path       string   `yaml:"path"`
	Methods    []string `yaml:"methods"`
	RouteClass string   `yaml:"route_class"`
}

func LoadAllowlist(path string) (Allowlist, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Allowlist{}, fmt.Errorf("allowlist: %w", err)
	}
	return ParseAllowlistYAML(raw)
}

func ParseAllowlistYAML(raw []byte) (Allowlist, error) {
	var a Allowlist
	if err := yaml.Unmarshal(raw, &a); err != nil {
		return Allowlist{}, fmt.Errorf("allowlist: %w", err)
	}
	if a.Version != allowlistVersion {
		return Allowlist{}, fmt.Errorf("allowlist: version %d not supported", a.Version)
	}
	if len(a.Entrypoints) == 0 {
		return Allowlist{}, errors.New("allowlist: no entrypoints declared")
	}
	return a, nil
}
