package server

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const tenantsVersion = 1

type Tenant struct {
	ID     string `yaml:"id"`
	Domain string `yaml:"domain"`
	Name   string `yaml:"name"`
}

type tenantsDoc struct {
	Version int      `yaml:"version"`
	Tenants []Tenant `yaml:"tenants"`
}

func loadTenants() (map[string]Tenant, error) {
	path := os.Getenv("TENANTS_PATH")
	if path == "" {
		var err error
		if path, err = findConfigFile("config/tenants.yaml"); err != nil {
			return nil, err
		}
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tenants: %w", err)
	}
	return parseTenantsYAML(raw)
}

// parseTenantsYAML returns tenants keyed by their request domain.
func parseTenantsYAML(raw []byte) (map[string]Tenant, error) {
	var doc tenantsDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("tenants: %w", err)
	}
	if doc.Version != tenantsVersion {
		return nil, fmt.Errorf("tenants: version %d not supported", doc.Version)
	}
	if len(doc.Tenants) == 0 {
		return nil, errors.New("tenants: no tenants declared")
	}

	byDomain := make(map[string]Tenant, len(doc.Tenants))
	for _, t := range doc.Tenants {
		if t.ID == "" || t.Domain == "" {
			return nil, fmt.Errorf("tenants: entry %q missing id or domain", t.Name)
		}
		byDomain[t.Domain] = t
	}
	return byDomain, nil
}
