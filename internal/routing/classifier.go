package routing

import (
	"fmt"
	"strings"
)

type RouteClass string

const (
	RouteClassUI          RouteClass = "ui"
	RouteClassInternalAPI RouteClass = "internal_api"
	RouteClassPublicAPI   RouteClass = "public_api"
	RouteClassOps         RouteClass = "ops"
	RouteClassStatic      RouteClass = "static"
)

type patternRule struct {
	pattern PathPattern
	class   RouteClass
}

// Classifier assigns a RouteClass to request paths: allowlisted routes win,
// everything else falls through to shape-based defaults.
type Classifier struct {
	entrypoint string
	exact      map[string]RouteClass
	patterns   []patternRule
}

func NewClassifier(a Allowlist, entrypoint string) (*Classifier, error) {
	ep, ok := a.Entrypoints[entrypoint]
	if !ok {
		return nil, fmt.Errorf("allowlist: entrypoint %q not declared", entrypoint)
	}
	if len(ep.Routes) == 0 {
		return nil, fmt.Errorf("allowlist: entrypoint %q has no routes", entrypoint)
	}

	c := &Classifier{
		entrypoint: entrypoint,
		exact:      make(map[string]RouteClass, len(ep.Routes)),
	}
	for _, route := range ep.Routes {
		if route.Path == "" || route.RouteClass == "" {
			return nil, fmt.Errorf("allowlist: entrypoint %q has a route without path or class", entrypoint)
		}
		if p, ok := parsePathPattern(route.Path); ok {
			c.patterns = append(c.patterns, patternRule{pattern: p, class: RouteClass(route.RouteClass)})
			continue
		}
		c.exact[route.Path] = RouteClass(route.RouteClass)
	}
	return c, nil
}

func (c *Classifier) Classify(path string) RouteClass {
	if class, ok := c.exact[path]; ok {
		return class
	}
	for _, rule := range c.patterns {
		if rule.pattern.Match(path) {
			return rule.class
		}
	}
	return defaultClass(path)
}

func defaultClass(path string) RouteClass {
	switch {
	case path == "/health" || path == "/healthz":
		return RouteClassOps
	case underSegment(path, "/api/v1"):
		return RouteClassPublicAPI
	case moduleAPIPath(path):
		return RouteClassInternalAPI
	case underSegment(path, "/assets") || underSegment(path, "/static"):
		return RouteClassStatic
	}
	return RouteClassUI
}

// underSegment matches prefix on a segment boundary, so /rates/api covers
// /rates/api/x but not /rates/apix.
func underSegment(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// moduleAPIPath reports whether path has the /{module}/api shape used by
// module-internal JSON endpoints.
func moduleAPIPath(path string) bool {
	if !strings.HasPrefix(path, "/") {
		return false
	}
	module, rest, ok := strings.Cut(strings.TrimPrefix(path, "/"), "/")
	if !ok || module == "" {
		return false
	}
	return underSegment("/"+rest, "/api")
}
