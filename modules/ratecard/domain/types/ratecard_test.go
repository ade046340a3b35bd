package types

import (
	"encoding/json"
	"testing"
)

func TestParseRateCard(t *testing.T) {
	t.Parallel()

	rc, err := ParseRateCard(json.RawMessage(`{"hourly_rate":" 25.00 ","base_salary":"3500.00"}`))
	if err != nil {
		t.Fatal(err)
	}
	if rc.HourlyRate != "25.00" || rc.BaseSalary != "3500.00" {
		t.Fatalf("got=%+v", rc)
	}

	if _, err := ParseRateCard(json.RawMessage(`"not an object"`)); err == nil {
		t.Fatal("expected error")
	}
}

func TestHourlyRateFloat(t *testing.T) {
	t.Parallel()

	if v, ok := (RateCard{HourlyRate: "25.50"}).HourlyRateFloat(); !ok || v != 25.5 {
		t.Fatalf("got=%v ok=%v", v, ok)
	}
	if _, ok := (RateCard{HourlyRate: "abc"}).HourlyRateFloat(); ok {
		t.Fatal("expected parse failure")
	}
	if _, ok := (RateCard{}).HourlyRateFloat(); ok {
		t.Fatal("expected parse failure for empty rate")
	}
}

func TestRateSubjectKey(t *testing.T) {
	t.Parallel()

	if got := RateSubjectKey("g1", "d2"); got != "g1/d2" {
		t.Fatalf("got=%q", got)
	}
}
