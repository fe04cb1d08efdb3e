package satisfaction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResponseTimeScore_Boundaries(t *testing.T) {
	assert.Equal(t, 1.0, responseTimeScore(0))
	assert.Equal(t, 1.0, responseTimeScore(2*time.Second))
	assert.InDelta(t, 0.5, responseTimeScore(8*time.Second), 0.0001)
	assert.Equal(t, 0.0, responseTimeScore(30*time.Second))
	assert.Equal(t, 0.0, responseTimeScore(time.Minute))
}

func TestResponseTimeScore_IsMonotonicNonIncreasing(t *testing.T) {
	prev := responseTimeScore(0)
	for s := 1; s <= 40; s++ {
		cur := responseTimeScore(time.Duration(s) * time.Second)
		assert.LessOrEqualf(t, cur, prev, "score should not increase at %ds", s)
		prev = cur
	}
}

func TestFollowUpDensityScore_IdealRangeScoresHighest(t *testing.T) {
	assert.Equal(t, 0.3, followUpDensityScore(0))
	assert.Equal(t, 1.0, followUpDensityScore(2))
	assert.Equal(t, 1.0, followUpDensityScore(3))
	assert.Equal(t, 0.3, followUpDensityScore(6))
	assert.Equal(t, 0.3, followUpDensityScore(10))
}

func TestEngagementDurationScore_RampsToOneAtSixtySeconds(t *testing.T) {
	assert.Equal(t, 0.0, engagementDurationScore(0))
	assert.InDelta(t, 0.5, engagementDurationScore(30*time.Second), 0.0001)
	assert.Equal(t, 1.0, engagementDurationScore(60*time.Second))
	assert.Equal(t, 1.0, engagementDurationScore(2*time.Minute))
}

func TestComposite_WeightsSumToOne(t *testing.T) {
	assert.InDelta(t, 1.0, WeightResponseTime+WeightTaskCompletion+WeightFollowUpDensity+WeightEngagement, 0.0001)
}

func TestComposite_PerfectSampleScoresOne(t *testing.T) {
	score := Composite(InteractionSample{
		ResponseTime:   time.Second,
		TaskCompleted:  true,
		FollowUpTurns:  2,
		EngagementTime: 90 * time.Second,
	})
	assert.InDelta(t, 1.0, score.Composite, 0.0001)
}

func TestNormalizeFeedback_RatingMapsToUnitInterval(t *testing.T) {
	assert.Equal(t, 0.0, NormalizeFeedback(FeedbackRating1to5, 1))
	assert.Equal(t, 1.0, NormalizeFeedback(FeedbackRating1to5, 5))
	assert.InDelta(t, 0.5, NormalizeFeedback(FeedbackRating1to5, 3), 0.0001)
}

func TestNormalizeFeedback_Thumbs(t *testing.T) {
	assert.Equal(t, 1.0, NormalizeFeedback(FeedbackThumbsUp, 0))
	assert.Equal(t, 0.0, NormalizeFeedback(FeedbackThumbsDown, 0))
}
