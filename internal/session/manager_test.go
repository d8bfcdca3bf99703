package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/crisis-command/config"
	"github.com/user/crisis-command/internal/types"
	"go.uber.org/zap"
)

const (
	testWait = 2 * time.Second
	testPoll = 5 * time.Millisecond
)

// fakeScorer is a scripted scoring collaborator for tests
type fakeScorer struct {
	mu            sync.Mutex
	start         types.StartResult
	startErr      error
	solve         func(sessionID, solution string) (types.ScoredResult, error)
	simulate      func(req types.SimulationRequest) (types.ScoredResult, error)
	solveCalls    int
	simulateCalls int
	simulateReqs  []types.SimulationRequest

	// When set, SolveAction blocks until the channel is closed
	block chan struct{}
}

func (f *fakeScorer) StartSession(ctx context.Context, locationHint string) (types.StartResult, error) {
	if f.startErr != nil {
		return types.StartResult{}, f.startErr
	}
	return f.start, nil
}

func (f *fakeScorer) SolveAction(ctx context.Context, sessionID, solution string) (types.ScoredResult, error) {
	f.mu.Lock()
	f.solveCalls++
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return types.ScoredResult{}, ctx.Err()
		}
	}
	return f.solve(sessionID, solution)
}

func (f *fakeScorer) RunSimulation(ctx context.Context, req types.SimulationRequest) (types.ScoredResult, error) {
	f.mu.Lock()
	f.simulateCalls++
	f.simulateReqs = append(f.simulateReqs, req)
	f.mu.Unlock()
	return f.simulate(req)
}

func testStartResult() types.StartResult {
	daily := make([]types.DailyThreat, 7)
	for i := range daily {
		daily[i] = types.DailyThreat{
			Day:                            i + 1,
			CriticalInfrastructureProblems: []string{fmt.Sprintf("Problem on day %d", i+1)},
		}
	}
	return types.StartResult{
		SessionID: "sess-1",
		MostPotentialThreat: types.ThreatReport{
			Name:        "River overflow",
			Description: "Expected to overflow within 12 hours.",
			Score:       8,
		},
		DailyThreats: daily,
	}
}

func testScenario() types.Scenario {
	return types.Scenario{
		DisasterType: "flood",
		Role:         "emergency coordinator",
		Location:     "Valencia, Spain",
		StartDate:    time.Date(2024, 10, 29, 8, 0, 0, 0, time.UTC),
		Center:       types.Coordinates{Lng: -0.3763, Lat: 39.4699},
	}
}

func scoredResult(severity int) types.ScoredResult {
	return types.ScoredResult{
		SeverityScore: severity,
		UpdatedResources: map[string]map[string]int{
			"Medical Resources":   {"Ambulances": 8, "Doctors": 20},
			"Logistics & Support": {"Rescue Boats": 6},
		},
		Analysis: types.Analysis{
			ShortResponse: "Evacuation prioritized correctly.",
			Feedback:      "Stage fuel closer to the shelters.",
			ResponseAnalysis: types.ResponseAnalysis{
				MedicalRelevance:      7,
				LogisticalFeasibility: 6,
				EthicalConsiderations: 8,
				ContextRelevance:      7,
				OverallEffectiveness:  6.5,
			},
		},
	}
}

func testConfig() config.Config {
	cfg := config.DefaultConfig()
	// Keep the clock effectively frozen during tests
	cfg.Game.TickIntervalSeconds = 3600
	cfg.Game.SeedResourcePath = ""
	cfg.Store.ArchiveDir = ""
	return cfg
}

func newTestManager(t *testing.T, scorer *fakeScorer) *Manager {
	t.Helper()
	m := NewManager(testConfig(), scorer, nil, zap.NewNop())
	t.Cleanup(m.Shutdown)
	return m
}

func mustStart(t *testing.T, m *Manager) types.Snapshot {
	t.Helper()
	snapshot, err := m.StartSession(context.Background(), testScenario())
	require.NoError(t, err)
	return snapshot
}

func TestStartSession(t *testing.T) {
	scorer := &fakeScorer{start: testStartResult()}
	m := newTestManager(t, scorer)

	snapshot := mustStart(t, m)

	assert.Equal(t, "sess-1", snapshot.ID)
	assert.Equal(t, 20, snapshot.TurnsLeft)
	assert.Equal(t, types.ConditionInProgress, snapshot.GameCondition)
	assert.Equal(t, 80.0, snapshot.Stability)
	assert.Empty(t, snapshot.History)
	assert.Equal(t, -1, snapshot.FocusedThreat)
	assert.True(t, snapshot.Playing)
	assert.Equal(t, time.Date(2024, 10, 29, 8, 0, 0, 0, time.UTC), snapshot.CurrentTime)

	// 1 initial + 7 daily threats, only index 0 visible
	require.Len(t, snapshot.Threats, 8)
	assert.True(t, snapshot.Threats[0].Visible)
	for _, threat := range snapshot.Threats[1:] {
		assert.False(t, threat.Visible)
	}
	for _, threat := range snapshot.Threats {
		assert.NotNil(t, threat.Coordinates)
	}

	// Default inventory seeded, full availability
	require.Len(t, snapshot.Ledger, 2)
	assert.Equal(t, "Medical Resources", snapshot.Ledger[0].Category)
	assert.Equal(t, 10, snapshot.Ledger[0].Items[0].Available)
}

func TestStartSessionScorerFailure(t *testing.T) {
	scorer := &fakeScorer{startErr: fmt.Errorf("collaborator down")}
	m := newTestManager(t, scorer)

	_, err := m.StartSession(context.Background(), testScenario())
	assert.Error(t, err)

	_, err = m.Snapshot("sess-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestStartSessionMalformedScenarioInventory(t *testing.T) {
	scorer := &fakeScorer{start: testStartResult()}
	m := newTestManager(t, scorer)

	scenario := testScenario()
	scenario.Resources = []types.ResourceGroup{
		{
			Category: "Medical Resources",
			// available above total violates the ledger invariant
			Items: []types.ResourceItem{{Name: "Ambulances", Available: 50, Total: 10}},
		},
	}

	snapshot, err := m.StartSession(context.Background(), scenario)
	require.NoError(t, err)

	// Falls back to the seeded default without surfacing an error
	require.Len(t, snapshot.Ledger, 2)
	assert.Equal(t, "Ambulances", snapshot.Ledger[0].Items[0].Name)
	assert.Equal(t, 10, snapshot.Ledger[0].Items[0].Total)
}

func TestStartSessionScenarioInventory(t *testing.T) {
	scorer := &fakeScorer{start: testStartResult()}
	m := newTestManager(t, scorer)

	scenario := testScenario()
	scenario.Resources = []types.ResourceGroup{
		{
			Category: "Field Hospital",
			Items:    []types.ResourceItem{{Name: "Beds", Available: 120, Total: 120}},
		},
	}

	snapshot, err := m.StartSession(context.Background(), scenario)
	require.NoError(t, err)
	require.Len(t, snapshot.Ledger, 1)
	assert.Equal(t, "Field Hospital", snapshot.Ledger[0].Category)
}

func TestClockControls(t *testing.T) {
	scorer := &fakeScorer{start: testStartResult()}
	m := newTestManager(t, scorer)
	mustStart(t, m)

	playing, err := m.TogglePlay("sess-1")
	assert.NoError(t, err)
	assert.False(t, playing)

	playing, err = m.TogglePlay("sess-1")
	assert.NoError(t, err)
	assert.True(t, playing)

	assert.NoError(t, m.SetSuspended("sess-1", true))
	assert.NoError(t, m.SetSuspended("sess-1", false))

	_, err = m.TogglePlay("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestFocusThreat(t *testing.T) {
	scorer := &fakeScorer{start: testStartResult()}
	m := newTestManager(t, scorer)
	mustStart(t, m)

	assert.NoError(t, m.FocusThreat("sess-1", 0))

	snapshot, err := m.Snapshot("sess-1")
	require.NoError(t, err)
	assert.Equal(t, 0, snapshot.FocusedThreat)

	// Focusing a hidden threat fails and changes nothing else
	assert.Error(t, m.FocusThreat("sess-1", 5))
	snapshot, err = m.Snapshot("sess-1")
	require.NoError(t, err)
	assert.Equal(t, 0, snapshot.FocusedThreat)
	assert.Equal(t, 20, snapshot.TurnsLeft)
}

func TestCompleteObjective(t *testing.T) {
	scorer := &fakeScorer{start: testStartResult()}
	m := newTestManager(t, scorer)
	mustStart(t, m)

	assert.NoError(t, m.CompleteObjective("sess-1"))

	snapshot, err := m.Snapshot("sess-1")
	require.NoError(t, err)
	assert.Equal(t, types.ConditionWon, snapshot.GameCondition)

	// Terminal is write-once
	assert.ErrorIs(t, m.CompleteObjective("sess-1"), ErrSessionEnded)
}

func TestCloseSession(t *testing.T) {
	scorer := &fakeScorer{start: testStartResult()}
	m := newTestManager(t, scorer)
	mustStart(t, m)

	assert.NoError(t, m.CloseSession("sess-1"))
	assert.ErrorIs(t, m.CloseSession("sess-1"), ErrSessionNotFound)

	_, err := m.Snapshot("sess-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestResumeSession(t *testing.T) {
	store := newTestStore(t)
	scorer := &fakeScorer{
		start: testStartResult(),
		solve: func(sessionID, solution string) (types.ScoredResult, error) {
			return scoredResult(4), nil
		},
	}
	m := NewManager(testConfig(), scorer, store, zap.NewNop())
	defer m.Shutdown()
	mustStart(t, m)

	_, err := m.SubmitAction(context.Background(), "sess-1", "Deploy rescue boats")
	require.NoError(t, err)

	// A fresh manager over the same store stands in for a reload
	restarted := NewManager(testConfig(), scorer, store, zap.NewNop())
	defer restarted.Shutdown()

	snapshot, err := restarted.ResumeSession(context.Background(), "sess-1")
	require.NoError(t, err)

	assert.Equal(t, "sess-1", snapshot.ID)
	assert.Equal(t, 19, snapshot.TurnsLeft)
	assert.Equal(t, 40.0, snapshot.Stability)
	assert.Equal(t, types.ConditionInProgress, snapshot.GameCondition)

	// Threat disclosure picks up where it left off
	require.Len(t, snapshot.Threats, 8)
	assert.True(t, snapshot.Threats[0].Visible)
	assert.True(t, snapshot.Threats[1].Visible)
	assert.False(t, snapshot.Threats[2].Visible)

	// Totals fixed at session start survive the reload
	assert.Equal(t, 8, snapshot.Ledger[0].Items[0].Available)
	assert.Equal(t, 10, snapshot.Ledger[0].Items[0].Total)

	// The resumed session keeps playing
	_, err = restarted.SubmitAction(context.Background(), "sess-1", "Reinforce the substation")
	require.NoError(t, err)

	snapshot, err = restarted.Snapshot("sess-1")
	require.NoError(t, err)
	assert.Equal(t, 18, snapshot.TurnsLeft)
	assert.True(t, snapshot.Threats[2].Visible)
}

func TestResumeSessionMalformedInventory(t *testing.T) {
	store := newTestStore(t)
	scorer := &fakeScorer{
		start: testStartResult(),
		solve: func(sessionID, solution string) (types.ScoredResult, error) {
			return scoredResult(4), nil
		},
	}
	m := NewManager(testConfig(), scorer, store, zap.NewNop())
	defer m.Shutdown()
	mustStart(t, m)

	_, err := m.SubmitAction(context.Background(), "sess-1", "Deploy rescue boats")
	require.NoError(t, err)

	// Corrupt the persisted inventory behind the store's back
	_, err = store.db.Exec(`UPDATE sessions SET resources = '{"not":"a ledger"' WHERE id = 'sess-1'`)
	require.NoError(t, err)

	restarted := NewManager(testConfig(), scorer, store, zap.NewNop())
	defer restarted.Shutdown()

	// The resume falls back to the seeded default without surfacing an
	// error; everything else is restored
	snapshot, err := restarted.ResumeSession(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Len(t, snapshot.Ledger, 2)
	assert.Equal(t, "Ambulances", snapshot.Ledger[0].Items[0].Name)
	assert.Equal(t, 10, snapshot.Ledger[0].Items[0].Available)
	require.Len(t, snapshot.Threats, 8)
	assert.True(t, snapshot.Threats[1].Visible)
	assert.Equal(t, 19, snapshot.TurnsLeft)
}

func TestResumeSessionLive(t *testing.T) {
	scorer := &fakeScorer{start: testStartResult()}
	m := newTestManager(t, scorer)
	started := mustStart(t, m)

	// A live session resumes as itself, without touching the store
	snapshot, err := m.ResumeSession(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, started.TurnsLeft, snapshot.TurnsLeft)
	assert.Equal(t, started.Stability, snapshot.Stability)
}

func TestResumeSessionMissing(t *testing.T) {
	store := newTestStore(t)
	scorer := &fakeScorer{start: testStartResult()}

	m := NewManager(testConfig(), scorer, store, zap.NewNop())
	_, err := m.ResumeSession(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// No store at all behaves the same
	unstored := newTestManager(t, scorer)
	_, err = unstored.ResumeSession(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestResumeSessionAfterObjective(t *testing.T) {
	store := newTestStore(t)
	scorer := &fakeScorer{start: testStartResult()}
	m := NewManager(testConfig(), scorer, store, zap.NewNop())
	defer m.Shutdown()
	mustStart(t, m)

	require.NoError(t, m.CompleteObjective("sess-1"))

	restarted := NewManager(testConfig(), scorer, store, zap.NewNop())
	defer restarted.Shutdown()

	// A terminal condition survives the reload and stays terminal
	snapshot, err := restarted.ResumeSession(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, types.ConditionWon, snapshot.GameCondition)

	_, err = restarted.SubmitAction(context.Background(), "sess-1", "One more")
	assert.ErrorIs(t, err, ErrSessionEnded)
}

func TestSnapshotIsolation(t *testing.T) {
	scorer := &fakeScorer{start: testStartResult()}
	m := newTestManager(t, scorer)
	mustStart(t, m)

	snapshot, err := m.Snapshot("sess-1")
	require.NoError(t, err)

	// Mutating the snapshot must not leak into session state
	snapshot.Ledger[0].Items[0].Available = 0
	snapshot.Threats[1].Visible = true

	fresh, err := m.Snapshot("sess-1")
	require.NoError(t, err)
	assert.Equal(t, 10, fresh.Ledger[0].Items[0].Available)
	assert.False(t, fresh.Threats[1].Visible)
}
