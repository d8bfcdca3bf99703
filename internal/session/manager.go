package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/user/crisis-command/config"
	"github.com/user/crisis-command/internal/clock"
	"github.com/user/crisis-command/internal/interfaces"
	"github.com/user/crisis-command/internal/ledger"
	"github.com/user/crisis-command/internal/threat"
	"github.com/user/crisis-command/internal/types"
	"go.uber.org/zap"
)

// preState is the session state captured immediately before a scoring
// call. The comparison engine evaluates the AI counterfactual against
// this state, not the post-action state.
type preState struct {
	stability float64
	resources map[string]map[string]int
	actions   []string
}

// Session holds the full state of one participant's run. All fields are
// owned by the Manager and mutated only under its lock.
type Session struct {
	id           string
	scenario     types.Scenario
	locationHint string

	turnsLeft int
	stability float64
	inventory ledger.Ledger
	feed      *threat.Feed
	clk       *clock.Clock
	runner    *clock.Runner
	history   []types.ActionRecord
	condition types.GameCondition

	lastUserResult *types.ScoredResult
	lastAiResult   *types.ScoredResult
	preLast        *preState

	inFlight bool
	ctx      context.Context
	cancel   context.CancelFunc
	archive  *Archive
}

// Manager owns every session and is the sole writer of session state.
// The pipeline, clock and threat feed propose changes that the manager
// applies as single atomic steps under its lock.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	scorer   interfaces.Scorer
	store    *Store
	config   config.Config
	logger   *zap.Logger
	onUpdate func(sessionID string, snapshot types.Snapshot)
}

// Ensure Manager satisfies the interfaces.SessionManager interface
var _ interfaces.SessionManager = (*Manager)(nil)

// NewManager creates a session manager
func NewManager(cfg config.Config, scorer interfaces.Scorer, store *Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		sessions: make(map[string]*Session),
		scorer:   scorer,
		store:    store,
		config:   cfg,
		logger:   logger,
	}
}

// SetUpdateHook registers a callback invoked with a fresh snapshot after
// every clock tick and every applied action
func (m *Manager) SetUpdateHook(hook func(sessionID string, snapshot types.Snapshot)) {
	m.onUpdate = hook
}

// StartSession opens a session with the incident collaborator and builds
// the initial state from the scenario descriptor
func (m *Manager) StartSession(ctx context.Context, scenario types.Scenario) (types.Snapshot, error) {
	locationHint := scenario.Location

	start, err := m.scorer.StartSession(ctx, locationHint)
	if err != nil {
		return types.Snapshot{}, err
	}

	feed := threat.Build(start)
	feed.AttachCoordinates(scenario.Center, m.config.Game.ThreatRadiusKm)

	inventory := m.initialInventory(scenario)

	stability := m.config.Game.DefaultStability
	if start.MostPotentialThreat.Score > 0 {
		stability = clampStability(float64(start.MostPotentialThreat.Score) * 10)
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:           start.SessionID,
		scenario:     scenario,
		locationHint: locationHint,
		turnsLeft:    m.config.Game.TotalTurns,
		stability:    stability,
		inventory:    inventory,
		feed:         feed,
		clk:          clock.New(scenario.StartDate, m.config.Game.SimHoursPerTick),
		history:      make([]types.ActionRecord, 0),
		condition:    types.ConditionInProgress,
		ctx:          sessionCtx,
		cancel:       cancel,
	}

	if m.store != nil {
		progress := ProgressRecord{
			Inventory: inventory,
			Threats:   feed.Snapshot(),
			Stability: stability,
			TurnsLeft: s.turnsLeft,
			Condition: s.condition,
		}
		if err := m.store.SaveScenario(s.id, locationHint, scenario, progress); err != nil {
			m.logger.Error("Failed to persist scenario", zap.String("session_id", s.id), zap.Error(err))
		}
	}

	if dir := m.config.Store.ArchiveDir; dir != "" {
		archive, err := OpenArchive(dir, s.id)
		if err != nil {
			m.logger.Error("Failed to open transcript archive", zap.String("session_id", s.id), zap.Error(err))
		} else {
			s.archive = archive
		}
	}

	interval := time.Duration(m.config.Game.TickIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	s.runner = clock.NewRunner(s.clk, interval, func(time.Time) {
		m.broadcast(s.id)
	})
	s.runner.Start()

	m.mu.Lock()
	m.sessions[s.id] = s
	snapshot := m.snapshotLocked(s)
	m.mu.Unlock()

	m.logger.Info("Session started",
		zap.String("session_id", s.id),
		zap.String("location", locationHint),
		zap.Int("threats", feed.Len()),
		zap.Int("turns", s.turnsLeft))

	return snapshot, nil
}

// initialInventory resolves the starting ledger: the scenario's extracted
// inventory when valid, otherwise the seed inventory. A malformed
// descriptor never aborts session start.
func (m *Manager) initialInventory(scenario types.Scenario) ledger.Ledger {
	if len(scenario.Resources) > 0 {
		inventory, err := ledger.Initialize(scenario.Resources)
		if err == nil {
			return inventory
		}
		var dataErr *ledger.DataError
		if errors.As(err, &dataErr) {
			m.logger.Warn("Scenario inventory invalid, using seed",
				zap.String("location", scenario.Location),
				zap.Error(err))
		}
	}
	return ledger.Seed(m.config.Game.SeedResourcePath, m.logger)
}

// ResumeSession rebuilds a session from its persisted state, so a
// reloaded client picks up where it left off without a new collaborator
// session. A session that is still live is returned as-is. The ledger
// falls back stored inventory -> scenario upload -> seed; a malformed
// stored inventory never aborts the resume.
func (m *Manager) ResumeSession(ctx context.Context, sessionID string) (types.Snapshot, error) {
	m.mu.RLock()
	if s, exists := m.sessions[sessionID]; exists {
		snapshot := m.snapshotLocked(s)
		m.mu.RUnlock()
		return snapshot, nil
	}
	m.mu.RUnlock()

	if m.store == nil {
		return types.Snapshot{}, ErrSessionNotFound
	}

	scenario, locationHint, err := m.store.LoadScenario(sessionID)
	if errors.Is(err, ErrNotStored) {
		return types.Snapshot{}, ErrSessionNotFound
	}
	if err != nil {
		return types.Snapshot{}, err
	}

	progress, err := m.store.LoadProgress(sessionID)
	if err != nil {
		var dataErr *ledger.DataError
		if !errors.As(err, &dataErr) || len(progress.Threats) == 0 {
			return types.Snapshot{}, err
		}
		m.logger.Warn("Stored inventory invalid, using fallback",
			zap.String("session_id", sessionID),
			zap.Error(err))
		progress.Inventory = m.initialInventory(scenario)
	}
	if progress.Condition == "" {
		progress.Condition = types.ConditionInProgress
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:           sessionID,
		scenario:     scenario,
		locationHint: locationHint,
		turnsLeft:    progress.TurnsLeft,
		stability:    progress.Stability,
		inventory:    progress.Inventory,
		feed:         threat.Restore(progress.Threats),
		clk:          clock.New(scenario.StartDate, m.config.Game.SimHoursPerTick),
		history:      make([]types.ActionRecord, 0),
		condition:    progress.Condition,
		ctx:          sessionCtx,
		cancel:       cancel,
	}

	if dir := m.config.Store.ArchiveDir; dir != "" && !s.condition.Terminal() {
		archive, err := OpenArchive(dir, s.id)
		if err != nil {
			m.logger.Error("Failed to open transcript archive", zap.String("session_id", s.id), zap.Error(err))
		} else {
			s.archive = archive
		}
	}

	interval := time.Duration(m.config.Game.TickIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	s.runner = clock.NewRunner(s.clk, interval, func(time.Time) {
		m.broadcast(s.id)
	})
	if s.condition.Terminal() {
		s.runner.Stop()
	} else {
		s.runner.Start()
	}

	m.mu.Lock()
	m.sessions[s.id] = s
	snapshot := m.snapshotLocked(s)
	m.mu.Unlock()

	m.logger.Info("Session resumed",
		zap.String("session_id", s.id),
		zap.String("location", locationHint),
		zap.Int("turns_left", s.turnsLeft),
		zap.String("condition", string(s.condition)))

	return snapshot, nil
}

// Snapshot returns a read-only deep copy of the session state
func (m *Manager) Snapshot(sessionID string) (types.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, exists := m.sessions[sessionID]
	if !exists {
		return types.Snapshot{}, ErrSessionNotFound
	}
	return m.snapshotLocked(s), nil
}

func (m *Manager) snapshotLocked(s *Session) types.Snapshot {
	history := make([]types.ActionRecord, len(s.history))
	copy(history, s.history)

	return types.Snapshot{
		ID:             s.id,
		TurnsLeft:      s.turnsLeft,
		Stability:      s.stability,
		Ledger:         s.inventory.Groups(),
		Threats:        s.feed.Snapshot(),
		FocusedThreat:  s.feed.Focused(),
		History:        history,
		LastUserResult: s.lastUserResult,
		LastAiResult:   s.lastAiResult,
		CurrentTime:    s.clk.Now(),
		Playing:        s.clk.Playing(),
		GameCondition:  s.condition,
	}
}

// TogglePlay flips the session clock and returns the new playing state
func (m *Manager) TogglePlay(sessionID string) (bool, error) {
	m.mu.RLock()
	s, exists := m.sessions[sessionID]
	m.mu.RUnlock()
	if !exists {
		return false, ErrSessionNotFound
	}
	return s.clk.TogglePlay(), nil
}

// SetSuspended marks the session clock suspended while input has focus
func (m *Manager) SetSuspended(sessionID string, suspended bool) error {
	m.mu.RLock()
	s, exists := m.sessions[sessionID]
	m.mu.RUnlock()
	if !exists {
		return ErrSessionNotFound
	}
	s.clk.SetSuspended(suspended)
	return nil
}

// FocusThreat sets the display-only focused threat pointer
func (m *Manager) FocusThreat(sessionID string, index int) error {
	m.mu.RLock()
	s, exists := m.sessions[sessionID]
	m.mu.RUnlock()
	if !exists {
		return ErrSessionNotFound
	}
	return s.feed.Focus(index)
}

// CompleteObjective transitions a session to won. No engine code path
// calls this; it is the extension point for a collaborator-driven or
// objective-driven victory signal.
func (m *Manager) CompleteObjective(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, exists := m.sessions[sessionID]
	if !exists {
		return ErrSessionNotFound
	}
	if s.condition.Terminal() {
		return ErrSessionEnded
	}
	m.terminateLocked(s, types.ConditionWon)

	if m.store != nil {
		progress := ProgressRecord{
			Inventory: s.inventory,
			Threats:   s.feed.Snapshot(),
			Stability: s.stability,
			TurnsLeft: s.turnsLeft,
			Condition: s.condition,
		}
		if err := m.store.SaveProgress(sessionID, progress); err != nil {
			m.logger.Error("Failed to persist progress", zap.String("session_id", sessionID), zap.Error(err))
		}
	}
	return nil
}

// terminateLocked applies the write-once transition to a terminal
// condition. The clock stops; the session remains queryable.
func (m *Manager) terminateLocked(s *Session, condition types.GameCondition) {
	if s.condition.Terminal() {
		return
	}
	s.condition = condition
	s.runner.Stop()
	if s.archive != nil {
		if err := s.archive.Close(); err != nil {
			m.logger.Error("Failed to close transcript archive", zap.String("session_id", s.id), zap.Error(err))
		}
		s.archive = nil
	}
	m.logger.Info("Session ended",
		zap.String("session_id", s.id),
		zap.String("condition", string(condition)))
}

// CloseSession tears a session down. Any in-flight scoring call is
// abandoned; its eventual response is discarded, never applied.
func (m *Manager) CloseSession(sessionID string) error {
	m.mu.Lock()
	s, exists := m.sessions[sessionID]
	if !exists {
		m.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	s.cancel()
	s.runner.Stop()
	if s.archive != nil {
		if err := s.archive.Close(); err != nil {
			m.logger.Error("Failed to close transcript archive", zap.String("session_id", sessionID), zap.Error(err))
		}
	}
	if m.store != nil {
		if err := m.store.DeleteSession(sessionID); err != nil {
			m.logger.Error("Failed to delete stored session", zap.String("session_id", sessionID), zap.Error(err))
		}
	}

	m.logger.Info("Session closed", zap.String("session_id", sessionID))
	return nil
}

// Shutdown closes every session and the store
func (m *Manager) Shutdown() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.CloseSession(id); err != nil && !errors.Is(err, ErrSessionNotFound) {
			m.logger.Error("Failed to close session during shutdown", zap.String("session_id", id), zap.Error(err))
		}
	}
	if m.store != nil {
		if err := m.store.Close(); err != nil {
			m.logger.Error("Failed to close session store", zap.Error(err))
		}
	}
}

func (m *Manager) broadcast(sessionID string) {
	if m.onUpdate == nil {
		return
	}
	snapshot, err := m.Snapshot(sessionID)
	if err != nil {
		return
	}
	m.onUpdate(sessionID, snapshot)
}

func clampStability(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
