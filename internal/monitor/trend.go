package monitor

import "proctop/internal/models"

// TrendOf compares two readings of the same metric against a significance
// threshold. The boundary is inclusive: a delta exactly equal to the
// threshold already counts as movement.
func TrendOf(old, cur, threshold float64) models.Trend {
	switch {
	case cur-old >= threshold:
		return models.TrendRising
	case old-cur >= threshold:
		return models.TrendFalling
	default:
		return models.TrendStable
	}
}
