package analytics

import (
	"math"

	telemetry "fleet-telemetry/internal/telemetry/domain"
)

// VibrationBand is a qualitative vibration classification of one reading.
type VibrationBand string

const (
	VibrationGood     VibrationBand = "good"
	VibrationModerate VibrationBand = "moderate"
	VibrationCritical VibrationBand = "critical"
	VibrationUnknown  VibrationBand = "unknown"
)

// Vibration thresholds. Both are exclusive lower bounds of the worse band.
const (
	VibrationModerateAbove = 5.0
	VibrationCriticalAbove = 10.0
)

// Score anchors. The score is piecewise linear and discontinuous at both thresholds.
const (
	scorePerfect         = 100.0
	scoreModerateCeiling = 70.0
	scoreCriticalCeiling = 30.0
	scoreGoodSlope       = 6.0
	scoreModerateSlope   = 8.0
	scoreCriticalSlope   = 3.0
)

// ClassifyVibration bands a reading by its largest absolute axis. Absent axes
// count as zero; a reading with no axis at all is unknown.
func ClassifyVibration(m telemetry.Metrics) VibrationBand {
	if m.VibrationX == nil && m.VibrationY == nil && m.VibrationZ == nil {
		return VibrationUnknown
	}
	peak := math.Max(absOrZero(m.VibrationX), math.Max(absOrZero(m.VibrationY), absOrZero(m.VibrationZ)))
	switch {
	case peak > VibrationCriticalAbove:
		return VibrationCritical
	case peak > VibrationModerateAbove:
		return VibrationModerate
	default:
		return VibrationGood
	}
}

// VibrationScore turns window averages into a 0-100 health score. Absent
// averages count as zero, and when all three are absent the score is 100.
func VibrationScore(summary WindowSummary) float64 {
	if summary.AvgVibrationX == nil && summary.AvgVibrationY == nil && summary.AvgVibrationZ == nil {
		return scorePerfect
	}
	avg := (valueOrZero(summary.AvgVibrationX) + valueOrZero(summary.AvgVibrationY) + valueOrZero(summary.AvgVibrationZ)) / 3
	switch {
	case avg > VibrationCriticalAbove:
		return math.Max(0, scoreCriticalCeiling-(avg-VibrationCriticalAbove)*scoreCriticalSlope)
	case avg > VibrationModerateAbove:
		return scoreModerateCeiling - (avg-VibrationModerateAbove)*scoreModerateSlope
	default:
		return scorePerfect - avg*scoreGoodSlope
	}
}

func valueOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func absOrZero(v *float64) float64 {
	return math.Abs(valueOrZero(v))
}
