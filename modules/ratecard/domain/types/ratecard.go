package types

import (
	"encoding/json"
	"strconv"
	"strings"
)

// SubjectKindRate is the assignment subject kind for grade/division rate
// cards; the subject key is "<grade>/<division>".
const SubjectKindRate = "rate"

// RateCard is the assignment value payload for an hourly rate. Amounts are
// decimal strings on the wire.
type RateCard struct {
	HourlyRate string `json:"hourly_rate"`
	BaseSalary string `json:"base_salary"`
}

func ParseRateCard(raw json.RawMessage) (RateCard, error) {
	var rc RateCard
	if err := json.Unmarshal(raw, &rc); err != nil {
		return RateCard{}, err
	}
	rc.HourlyRate = strings.TrimSpace(rc.HourlyRate)
	rc.BaseSalary = strings.TrimSpace(rc.BaseSalary)
	return rc, nil
}

func (rc RateCard) HourlyRateFloat() (float64, bool) {
	v, err := strconv.ParseFloat(rc.HourlyRate, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func RateSubjectKey(gradeID, divisionID string) string {
	return gradeID + "/" + divisionID
}

type RateStatistics struct {
	TotalCount    int    `json:"total_count"`
	ActiveCount   int    `json:"active_count"`
	InactiveCount int    `json:"inactive_count"`
	MinRate       string `json:"min_rate"`
	MaxRate       string `json:"max_rate"`
	AvgRate       string `json:"avg_rate"`
}
