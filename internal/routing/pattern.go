package routing

import "strings"

// PathPattern matches fixed-depth paths where a {name} segment accepts any
// single non-empty segment.
type PathPattern struct {
	segments []string
	wildcard []bool
}

func parsePathPattern(raw string) (PathPattern, bool) {
	if !strings.HasPrefix(raw, "/") || !strings.Contains(raw, "{") {
		return PathPattern{}, false
	}

	segs := splitPathSegments(raw)
	if len(segs) == 0 {
		return PathPattern{}, false
	}
	wild := make([]bool, len(segs))
	for i, seg := range segs {
		switch {
		case seg == "":
			return PathPattern{}, false
		case strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}"):
			if len(seg) <= 2 {
				return PathPattern{}, false
			}
			wild[i] = true
		case strings.ContainsAny(seg, "{}"):
			return PathPattern{}, false
		}
	}
	return PathPattern{segments: segs, wildcard: wild}, true
}

func (p PathPattern) Match(path string) bool {
	if len(p.segments) == 0 {
		return false
	}
	segs := splitPathSegments(path)
	if len(segs) != len(p.segments) {
		return false
	}
	for i, seg := range segs {
		if seg == "" {
			return false
		}
		if p.wildcard[i] {
			continue
		}
		if seg != p.segments[i] {
			return false
		}
	}
	return true
}

func splitPathSegments(path string) []string {
	trimmed := strings.TrimPrefix(strings.TrimSpace(path), "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
