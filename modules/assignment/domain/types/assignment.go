package types

import (
	"encoding/json"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

const (
	StatusActive   = "ACTIVE"
	StatusInactive = "INACTIVE"
)

// Subject names what an assignment applies to, e.g. Kind "rate" with
// Key "G1/D1" (grade/division) or Kind "role" with Key "manager".
type Subject struct {
	Kind string `json:"kind"`
	Key  string `json:"key"`
}

func (s Subject) String() string { return s.Kind + ":" + s.Key }

func (s Subject) IsZero() bool { return s.Kind == "" && s.Key == "" }

type Assignment struct {
	AssignmentID string          `json:"assignment_id"`
	Subject      Subject         `json:"subject"`
	Value        json.RawMessage `json:"value"`
	ValidFrom    string          `json:"valid_from"`
	ValidUntil   string          `json:"valid_until,omitempty"`
	Status       string          `json:"status"`
	CreatedAt    string          `json:"created_at"`
	UpdatedAt    string          `json:"updated_at"`
}

func ValidDate(s string) bool {
	if strings.TrimSpace(s) != s || s == "" {
		return false
	}
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// RangeContains reports whether d falls inside [from, until], both bounds
// inclusive. An empty until means open-ended. Dates are ISO strings, so
// lexicographic comparison is date order.
func RangeContains(from, until, d string) bool {
	if d < from {
		return false
	}
	return until == "" || d <= until
}

// RangesOverlap reports whether [aFrom, aUntil] intersects [bFrom, bUntil],
// inclusive bounds, empty until = +infinity.
func RangesOverlap(aFrom, aUntil, bFrom, bUntil string) bool {
	if aUntil != "" && aUntil < bFrom {
		return false
	}
	if bUntil != "" && bUntil < aFrom {
		return false
	}
	return true
}
