package threat

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/user/crisis-command/internal/types"
)

func startResult(dailyCount int) types.StartResult {
	daily := make([]types.DailyThreat, dailyCount)
	for i := range daily {
		daily[i] = types.DailyThreat{
			Day:                            i + 1,
			CriticalInfrastructureProblems: []string{fmt.Sprintf("Substation %d flooding", i+1)},
		}
	}
	return types.StartResult{
		SessionID: "test-session",
		MostPotentialThreat: types.ThreatReport{
			Name:        "River overflow",
			Description: "The Turia river is expected to overflow within 12 hours.",
			Score:       8,
		},
		DailyThreats: daily,
	}
}

func TestBuild(t *testing.T) {
	feed := Build(startResult(7))

	// One initial threat plus seven daily threats
	assert.Equal(t, 8, feed.Len())
	assert.Equal(t, 1, feed.VisibleCount())

	threats := feed.Snapshot()
	assert.True(t, threats[0].Visible)
	assert.Equal(t, "River overflow", threats[0].Title)
	assert.Equal(t, 8, threats[0].Score)
	for i := 1; i < len(threats); i++ {
		assert.False(t, threats[i].Visible)
		assert.Equal(t, i, threats[i].Index)
	}

	// No focused threat at start
	assert.Equal(t, -1, feed.Focused())
}

func TestRevealNext(t *testing.T) {
	feed := Build(startResult(2))

	// Test case 1: Reveals index 1, then index 2, strictly in order
	index, ok := feed.RevealNext()
	assert.True(t, ok)
	assert.Equal(t, 1, index)
	assert.Equal(t, 2, feed.VisibleCount())

	index, ok = feed.RevealNext()
	assert.True(t, ok)
	assert.Equal(t, 2, index)

	// Test case 2: Exhausted feed is a no-op
	_, ok = feed.RevealNext()
	assert.False(t, ok)
	assert.Equal(t, 3, feed.VisibleCount())

	// Visible set is exactly the first revealed indices
	for i, threat := range feed.Snapshot() {
		assert.True(t, threat.Visible, "threat %d should be visible", i)
	}
}

func TestRestore(t *testing.T) {
	original := Build(startResult(3))
	original.RevealNext()
	original.RevealNext()

	restored := Restore(original.Snapshot())

	// Disclosure state is recovered from the visibility flags
	assert.Equal(t, 4, restored.Len())
	assert.Equal(t, 3, restored.VisibleCount())
	assert.Equal(t, "Day 2 outlook", restored.CurrentTitle())
	assert.Equal(t, -1, restored.Focused())

	// Reveal continues from where the original stopped
	index, ok := restored.RevealNext()
	assert.True(t, ok)
	assert.Equal(t, 3, index)
	_, ok = restored.RevealNext()
	assert.False(t, ok)

	// Restoring threats with no visibility forces index 0 visible
	hidden := original.Snapshot()
	for i := range hidden {
		hidden[i].Visible = false
	}
	restored = Restore(hidden)
	assert.Equal(t, 1, restored.VisibleCount())
	assert.True(t, restored.Snapshot()[0].Visible)
}

func TestAppendFollowUp(t *testing.T) {
	feed := Build(startResult(1))

	index := feed.Append(types.ThreatReport{
		Name:        "Contaminated water supply",
		Description: "Treatment plant offline downstream of the breach.",
		Score:       6,
	})
	assert.Equal(t, 2, index)
	assert.Equal(t, 3, feed.Len())
	assert.False(t, feed.Snapshot()[2].Visible)

	// Follow-up is revealed in order after the pending daily threat
	revealed, ok := feed.RevealNext()
	assert.True(t, ok)
	assert.Equal(t, 1, revealed)
	revealed, ok = feed.RevealNext()
	assert.True(t, ok)
	assert.Equal(t, 2, revealed)
}

func TestAttachCoordinates(t *testing.T) {
	center := types.Coordinates{Lng: -0.3763, Lat: 39.4699}
	feed := Build(startResult(7))

	feed.AttachCoordinates(center, 25)

	threats := feed.Snapshot()
	for i, threat := range threats {
		assert.NotNil(t, threat.Coordinates, "threat %d has no coordinates", i)

		// Within 25km of the center (flat-earth approximation is fine here)
		dLat := (threat.Coordinates.Lat - center.Lat) * 110.574
		dLng := (threat.Coordinates.Lng - center.Lng) * 110.574 * math.Cos(center.Lat*math.Pi/180)
		distance := math.Sqrt(dLat*dLat + dLng*dLng)
		assert.LessOrEqual(t, distance, 25.5)
	}

	// Idempotent: a second attach never moves a threat
	feed.AttachCoordinates(center, 25)
	again := feed.Snapshot()
	for i := range threats {
		assert.Equal(t, *threats[i].Coordinates, *again[i].Coordinates)
	}
}

func TestFocus(t *testing.T) {
	feed := Build(startResult(3))

	// Test case 1: Visible threat can be focused
	assert.NoError(t, feed.Focus(0))
	assert.Equal(t, 0, feed.Focused())

	// Test case 2: Hidden threat cannot be focused
	assert.Error(t, feed.Focus(2))
	assert.Equal(t, 0, feed.Focused())

	// Test case 3: Out-of-range index is rejected
	assert.Error(t, feed.Focus(10))
	assert.Error(t, feed.Focus(-1))
}

func TestCurrentTitle(t *testing.T) {
	feed := Build(startResult(2))
	assert.Equal(t, "River overflow", feed.CurrentTitle())

	feed.RevealNext()
	assert.Equal(t, "Day 1 outlook", feed.CurrentTitle())
}
