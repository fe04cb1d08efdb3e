package satisfaction

import "time"

// responseTimeScore is piecewise-linear: ≤2s=1.0, 8s=0.5, ≥30s=0.0 (spec §4.7).
func responseTimeScore(d time.Duration) float64 {
	s := d.Seconds()
	switch {
	case s <= 2:
		return 1.0
	case s <= 8:
		// linear from (2,1.0) to (8,0.5)
		return 1.0 - (s-2)/(8-2)*0.5
	case s <= 30:
		// linear from (8,0.5) to (30,0.0)
		return 0.5 - (s-8)/(30-8)*0.5
	default:
		return 0.0
	}
}

func taskCompletionScore(completed bool) float64 {
	if completed {
		return 1.0
	}
	return 0.0
}

// followUpDensityScore: 2-3 follow-up turns within 2 minutes is ideal
// (1.0); 0 or ≥6 is poor (0.3); linear interpolation between the named
// points (spec §4.7).
func followUpDensityScore(n int) float64 {
	switch {
	case n == 0:
		return 0.3
	case n >= 1 && n <= 3:
		// ramp 0->1:0.3->1.0(approx), 1:0.65,2:1.0,3:1.0
		if n == 1 {
			return 0.65
		}
		return 1.0
	case n >= 4 && n < 6:
		// ramp down from 1.0 at 3 to 0.3 at 6
		return 1.0 - float64(n-3)/3.0*0.7
	default: // n >= 6
		return 0.3
	}
}

// engagementDurationScore ramps linearly to 1.0 at 60s and beyond (spec §4.7).
func engagementDurationScore(d time.Duration) float64 {
	s := d.Seconds()
	if s >= 60 {
		return 1.0
	}
	if s <= 0 {
		return 0.0
	}
	return s / 60.0
}

// Composite computes the weighted-mean score for one implicit sample
// (spec §4.7: weights 0.3, 0.3, 0.2, 0.2).
func Composite(sample InteractionSample) CompositeScore {
	rt := responseTimeScore(sample.ResponseTime)
	tc := taskCompletionScore(sample.TaskCompleted)
	fu := followUpDensityScore(sample.FollowUpTurns)
	eg := engagementDurationScore(sample.EngagementTime)
	return CompositeScore{
		ResponseTimeScore:   rt,
		TaskCompletionScore: tc,
		FollowUpScore:       fu,
		EngagementScore:     eg,
		Composite:           rt*WeightResponseTime + tc*WeightTaskCompletion + fu*WeightFollowUpDensity + eg*WeightEngagement,
	}
}
