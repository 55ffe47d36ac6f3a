// Package scoring turns auditor verdicts and automatic signals into section
// scores, and section scores into a weighted total and compliance tier.
package scoring

import (
	"github.com/garyjia/site-audit/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// Policy holds the floor and ceiling rules applied to each verdict
type Policy struct {
	CumpleFloor        float64 `mapstructure:"cumple_floor"`
	ObservationsFactor float64 `mapstructure:"observations_factor"`
	ObservationsFloor  float64 `mapstructure:"observations_floor"`
	NoCumpleCeiling    float64 `mapstructure:"no_cumple_ceiling"`
}

// DefaultPolicy returns floors 85/70, factor 0.8 and ceiling 50
func DefaultPolicy() Policy {
	return Policy{
		CumpleFloor:        85,
		ObservationsFactor: 0.8,
		ObservationsFloor:  70,
		NoCumpleCeiling:    50,
	}
}

// SectionScore combines the automatic input with the auditor's result.
// For cumple, cumple_con_observaciones and no_cumple a missing input counts as
// 0; for no_aplica and pendiente_visita the input passes through unchanged and
// may be nil. Results are clamped to [0,100].
func (p Policy) SectionScore(result entity.EvaluationResult, input *float64) *float64 {
	base := 0.0
	if input != nil {
		base = *input
	}

	var score float64
	switch result {
	case entity.ResultCumple:
		score = max(base, p.CumpleFloor)
	case entity.ResultCumpleConObservaciones:
		score = max(base*p.ObservationsFactor, p.ObservationsFloor)
	case entity.ResultNoCumple:
		score = min(base, p.NoCumpleCeiling)
	default:
		if input == nil {
			return nil
		}
		score = base
	}

	score = Clamp(score)
	return &score
}

// Clamp bounds v to [0,100]
func Clamp(v float64) float64 {
	return min(max(v, 0), 100)
}

// Weighted is one section's contribution to the total
type Weighted struct {
	Score  *float64
	Weight float64
}

// WeightedTotal returns Σ(score·weight)/Σ(weight) rounded to two decimals.
// Entries with a nil score or non-positive weight are skipped; an empty input
// yields 0.
func WeightedTotal(items []Weighted) float64 {
	num := decimal.Zero
	den := decimal.Zero
	for _, it := range items {
		if it.Score == nil || it.Weight <= 0 {
			continue
		}
		w := decimal.NewFromFloat(it.Weight)
		num = num.Add(decimal.NewFromFloat(*it.Score).Mul(w))
		den = den.Add(w)
	}
	if den.IsZero() {
		return 0
	}
	return num.Div(den).Round(2).InexactFloat64()
}

// Sum adds values exactly and rounds the result to two decimals
func Sum(values ...float64) float64 {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(decimal.NewFromFloat(v))
	}
	return total.Round(2).InexactFloat64()
}

// Round2 rounds half away from zero to two decimals
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// Tiers holds the inclusive lower bounds of each compliance tier
type Tiers struct {
	Excellent    float64 `mapstructure:"excellent"`
	Satisfactory float64 `mapstructure:"satisfactory"`
	Acceptable   float64 `mapstructure:"acceptable"`
	Deficient    float64 `mapstructure:"deficient"`
}

// DefaultTiers returns 90/80/70/50
func DefaultTiers() Tiers {
	return Tiers{Excellent: 90, Satisfactory: 80, Acceptable: 70, Deficient: 50}
}

// Classify maps a total score to its tier and conclusion
func (t Tiers) Classify(total float64) (entity.ComplianceTier, entity.Conclusion) {
	switch {
	case total >= t.Excellent:
		return entity.TierExcellent, entity.ConclusionFull
	case total >= t.Satisfactory:
		return entity.TierSatisfactory, entity.ConclusionObservations
	case total >= t.Acceptable:
		return entity.TierAcceptable, entity.ConclusionPartial
	case total >= t.Deficient:
		return entity.TierDeficient, entity.ConclusionNonCompliant
	default:
		return entity.TierCritical, entity.ConclusionNonCompliant
	}
}
