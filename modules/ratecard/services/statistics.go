package services

import (
	"context"
	"fmt"

	"github.com/avigne/Rates-And-Roles/modules/assignment/domain/ports"
	assignmenttypes "github.com/avigne/Rates-And-Roles/modules/assignment/domain/types"
	"github.com/avigne/Rates-And-Roles/modules/ratecard/domain/types"
)

// RateCardService answers rate-card level questions (statistics, current
// rates across all grade/division pairs) on top of the generic resolver.
type RateCardService struct {
	store ports.AssignmentStore
}

func NewRateCardService(store ports.AssignmentStore) RateCardService {
	return RateCardService{store: store}
}

// Statistics aggregates over every rate assignment, active and inactive,
// closed ones included.
func (s RateCardService) Statistics(ctx context.Context, tenantID string) (types.RateStatistics, error) {
	all, err := s.store.ListAll(ctx, tenantID)
	if err != nil {
		return types.RateStatistics{}, err
	}

	var stats types.RateStatistics
	var sum, min, max float64
	var rated int
	for _, a := range all {
		if a.Subject.Kind != types.SubjectKindRate {
			continue
		}
		stats.TotalCount++
		if a.Status == assignmenttypes.StatusActive {
			stats.ActiveCount++
		} else {
			stats.InactiveCount++
		}
		rc, err := types.ParseRateCard(a.Value)
		if err != nil {
			continue
		}
		v, ok := rc.HourlyRateFloat()
		if !ok {
			continue
		}
		if rated == 0 || v < min {
			min = v
		}
		if rated == 0 || v > max {
			max = v
		}
		sum += v
		rated++
	}

	if rated > 0 {
		stats.MinRate = fmt.Sprintf("%.2f", min)
		stats.MaxRate = fmt.Sprintf("%.2f", max)
		stats.AvgRate = fmt.Sprintf("%.2f", sum/float64(rated))
	}
	return stats, nil
}

// CurrentRates lists the rate assignment current at referenceDate for each
// grade/division pair that has one.
func (s RateCardService) CurrentRates(ctx context.Context, tenantID string, referenceDate string) ([]assignmenttypes.Assignment, error) {
	current, err := s.store.ListCurrent(ctx, tenantID, referenceDate)
	if err != nil {
		return nil, err
	}
	var out []assignmenttypes.Assignment
	for _, a := range current {
		if a.Subject.Kind == types.SubjectKindRate {
			out = append(out, a)
		}
	}
	return out, nil
}
