package threat

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/user/crisis-command/internal/types"
)

// kmPerDegreeLat is the approximate surface distance of one degree of latitude
const kmPerDegreeLat = 110.574

// Feed is the ordered collection of disclosed and undisclosed threats
// for a session. Threats are revealed strictly in index order, one per
// resolved action.
type Feed struct {
	mu       sync.Mutex
	threats  []types.Threat
	revealed int
	focused  int
	rng      *rand.Rand
}

// Build maps the incident collaborator's initial response into a feed.
// The distinguished most-potential threat becomes index 0 and starts
// visible; each daily threat follows in day order, hidden.
func Build(start types.StartResult) *Feed {
	threats := make([]types.Threat, 0, len(start.DailyThreats)+1)

	threats = append(threats, types.Threat{
		Index:       0,
		Title:       start.MostPotentialThreat.Name,
		Description: start.MostPotentialThreat.Description,
		Score:       start.MostPotentialThreat.Score,
		Visible:     true,
		Coordinates: start.MostPotentialThreat.Coordinates,
	})

	for _, daily := range start.DailyThreats {
		threats = append(threats, types.Threat{
			Index:       len(threats),
			Title:       fmt.Sprintf("Day %d outlook", daily.Day),
			Description: describeDay(daily),
			Visible:     false,
		})
	}

	return &Feed{
		threats:  threats,
		revealed: 1,
		focused:  -1,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Restore rebuilds a feed from persisted threats. The disclosed count is
// recovered from the visibility flags; index 0 is forced visible so a
// restored feed honors the same disclosure rules as a fresh one.
func Restore(threats []types.Threat) *Feed {
	out := make([]types.Threat, len(threats))
	copy(out, threats)

	revealed := 0
	for i := range out {
		out[i].Index = i
		if out[i].Visible {
			revealed = i + 1
		}
	}
	if revealed == 0 && len(out) > 0 {
		out[0].Visible = true
		revealed = 1
	}

	return &Feed{
		threats:  out,
		revealed: revealed,
		focused:  -1,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func describeDay(daily types.DailyThreat) string {
	parts := make([]string, 0, 4)
	if len(daily.CriticalInfrastructureProblems) > 0 {
		parts = append(parts, strings.Join(daily.CriticalInfrastructureProblems, " "))
	}
	if len(daily.PublicHealthRisks) > 0 {
		parts = append(parts, strings.Join(daily.PublicHealthRisks, " "))
	}
	if len(daily.EconomicDisruptions) > 0 {
		parts = append(parts, strings.Join(daily.EconomicDisruptions, " "))
	}
	if len(daily.EnvironmentalConcerns) > 0 {
		parts = append(parts, strings.Join(daily.EnvironmentalConcerns, " "))
	}
	return strings.Join(parts, "\n")
}

// RevealNext makes the next undisclosed threat visible. It reveals the
// threat at the position equal to the current disclosed count, so
// disclosure is sequential and at most one threat per call. Returns the
// revealed index, or false when every threat is already visible.
func (f *Feed) RevealNext() (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.revealed >= len(f.threats) {
		return 0, false
	}
	index := f.revealed
	f.threats[index].Visible = true
	f.revealed++
	return index, true
}

// Append adds a follow-up threat to the end of the feed, undisclosed
func (f *Feed) Append(report types.ThreatReport) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	index := len(f.threats)
	f.threats = append(f.threats, types.Threat{
		Index:       index,
		Title:       report.Name,
		Description: report.Description,
		Score:       report.Score,
		Visible:     false,
		Coordinates: report.Coordinates,
	})
	return index
}

// AttachCoordinates assigns coordinates within radiusKm of the scenario
// center to every threat that has none yet. Assignment is one-time: a
// threat that already carries coordinates keeps them.
func (f *Feed) AttachCoordinates(center types.Coordinates, radiusKm float64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.threats {
		if f.threats[i].Coordinates != nil {
			continue
		}
		distance := radiusKm * math.Sqrt(f.rng.Float64())
		bearing := f.rng.Float64() * 2 * math.Pi

		dLat := distance * math.Cos(bearing) / kmPerDegreeLat
		kmPerDegreeLng := kmPerDegreeLat * math.Cos(center.Lat*math.Pi/180)
		if kmPerDegreeLng < 1 {
			kmPerDegreeLng = 1
		}
		dLng := distance * math.Sin(bearing) / kmPerDegreeLng

		f.threats[i].Coordinates = &types.Coordinates{
			Lng: center.Lng + dLng,
			Lat: center.Lat + dLat,
		}
	}
}

// Focus sets the display-only focused threat pointer. Only a visible
// threat can be focused; focusing has no gameplay effect.
func (f *Feed) Focus(index int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if index < 0 || index >= len(f.threats) {
		return errors.New("threat index out of range")
	}
	if !f.threats[index].Visible {
		return errors.New("threat not yet disclosed")
	}
	f.focused = index
	return nil
}

// Focused returns the focused threat index, or -1 when none is focused
func (f *Feed) Focused() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.focused
}

// CurrentTitle returns the title of the most recently disclosed threat
func (f *Feed) CurrentTitle() string {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.revealed == 0 {
		return ""
	}
	return f.threats[f.revealed-1].Title
}

// Snapshot returns a copy of every threat in index order
func (f *Feed) Snapshot() []types.Threat {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]types.Threat, len(f.threats))
	copy(out, f.threats)
	for i := range out {
		if f.threats[i].Coordinates != nil {
			coords := *f.threats[i].Coordinates
			out[i].Coordinates = &coords
		}
	}
	return out
}

// VisibleCount returns the number of disclosed threats
func (f *Feed) VisibleCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.revealed
}

// Len returns the total number of threats, disclosed or not
func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.threats)
}
