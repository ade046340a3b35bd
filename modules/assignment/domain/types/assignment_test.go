package types

import "testing"

func TestValidDate(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"2024-01-01": true,
		"2024-02-29": true,
		"2023-02-29": false,
		"2024-13-01": false,
		"2024-1-1":   false,
		"":           false,
		"garbage":    false,
	}
	for in, want := range cases {
		if got := ValidDate(in); got != want {
			t.Fatalf("ValidDate(%q)=%v want=%v", in, got, want)
		}
	}
}

func TestRangeContains(t *testing.T) {
	t.Parallel()

	cases := []struct {
		from, until, d string
		want           bool
	}{
		{"2024-01-01", "2024-06-30", "2024-01-01", true},
		{"2024-01-01", "2024-06-30", "2024-06-30", true},
		{"2024-01-01", "2024-06-30", "2024-03-15", true},
		{"2024-01-01", "2024-06-30", "2023-12-31", false},
		{"2024-01-01", "2024-06-30", "2024-07-01", false},
		{"2024-07-01", "", "2024-07-01", true},
		{"2024-07-01", "", "2099-12-31", true},
		{"2024-07-01", "", "2024-06-30", false},
		{"2024-05-10", "2024-05-10", "2024-05-10", true},
		{"2024-05-10", "2024-05-10", "2024-05-11", false},
	}
	for _, c := range cases {
		if got := RangeContains(c.from, c.until, c.d); got != c.want {
			t.Fatalf("RangeContains(%q,%q,%q)=%v want=%v", c.from, c.until, c.d, got, c.want)
		}
	}
}

func TestRangesOverlap(t *testing.T) {
	t.Parallel()

	cases := []struct {
		aFrom, aUntil, bFrom, bUntil string
		want                         bool
	}{
		{"2024-01-01", "2024-06-30", "2024-07-01", "", false},
		{"2024-01-01", "2024-06-30", "2024-06-30", "", true},
		{"2024-01-01", "2024-06-30", "2024-03-01", "2024-03-31", true},
		{"2024-01-01", "", "2030-01-01", "", true},
		{"2024-01-01", "2024-01-31", "2024-02-01", "2024-02-29", false},
		{"2024-02-01", "2024-02-29", "2024-01-01", "2024-01-31", false},
		{"2024-05-10", "2024-05-10", "2024-05-10", "2024-05-10", true},
		{"2024-01-01", "", "2023-01-01", "2023-12-31", false},
	}
	for _, c := range cases {
		if got := RangesOverlap(c.aFrom, c.aUntil, c.bFrom, c.bUntil); got != c.want {
			t.Fatalf("RangesOverlap(%q,%q,%q,%q)=%v want=%v", c.aFrom, c.aUntil, c.bFrom, c.bUntil, got, c.want)
		}
		if got := RangesOverlap(c.bFrom, c.bUntil, c.aFrom, c.aUntil); got != c.want {
			t.Fatalf("RangesOverlap symmetry (%q,%q,%q,%q)=%v want=%v", c.bFrom, c.bUntil, c.aFrom, c.aUntil, got, c.want)
		}
	}
}

func TestSubject(t *testing.T) {
	t.Parallel()

	s := Subject{Kind: "rate", Key: "g1/d1"}
	if got := s.String(); got != "rate:g1/d1" {
		t.Fatalf("got=%q", got)
	}
	if s.IsZero() {
		t.Fatal("expected non-zero")
	}
	if !(Subject{}).IsZero() {
		t.Fatal("expected zero")
	}
	if !(Subject{Kind: "rate"}).IsZero() {
		t.Fatal("subject without key is zero")
	}
}
