package session

import (
	"context"
	"strings"
	"time"

	"github.com/user/crisis-command/internal/ledger"
	"github.com/user/crisis-command/internal/types"
	"go.uber.org/zap"
)

// SubmitAction serializes one user action through the scoring
// collaborator and applies the result as a single atomic step.
//
// Blank input after trimming is a deliberate no-op: it returns (nil, nil)
// and changes nothing. A submission while another is in flight is
// rejected with ErrSubmissionInFlight. On any failure the session state
// is exactly as it was before the call.
func (m *Manager) SubmitAction(ctx context.Context, sessionID, text string) (*types.ScoredResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	m.mu.Lock()
	s, exists := m.sessions[sessionID]
	if !exists {
		m.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	if s.condition.Terminal() {
		m.mu.Unlock()
		return nil, ErrSessionEnded
	}
	if s.inFlight {
		m.mu.Unlock()
		return nil, ErrSubmissionInFlight
	}
	s.inFlight = true

	// Captured before the call so the comparison engine can evaluate the
	// AI against the same starting conditions as this action.
	pre := &preState{
		stability: s.stability,
		resources: s.inventory.ToWire(),
		actions:   actionTexts(s.history),
	}
	sessionCtx := s.ctx
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		if current, ok := m.sessions[sessionID]; ok {
			current.inFlight = false
		}
		m.mu.Unlock()
	}()

	// The scoring call runs outside the lock; clock ticks and snapshot
	// reads interleave freely while it is pending. The call is bound to
	// the session context so teardown abandons it.
	callCtx, cancel := context.WithTimeout(sessionCtx, m.scoringTimeout())
	defer cancel()

	result, err := m.scorer.SolveAction(callCtx, sessionID, text)
	if err != nil {
		m.logger.Warn("Scoring call failed, state unchanged",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, exists = m.sessions[sessionID]
	if !exists {
		// Session torn down while the call was in flight; discard.
		return nil, ErrSessionNotFound
	}
	if s.condition.Terminal() {
		return nil, ErrSessionEnded
	}

	// Validate everything the apply consumes before mutating anything.
	next, err := ledger.FromWire(result.UpdatedResources, s.inventory)
	if err != nil {
		m.logger.Warn("Scored inventory rejected, state unchanged",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return nil, err
	}

	record := types.ActionRecord{
		Title:         s.feed.CurrentTitle(),
		Action:        text,
		ResultText:    result.Analysis.ShortResponse,
		Feedback:      result.Analysis.Feedback,
		Effectiveness: result.Analysis.ResponseAnalysis.OverallEffectiveness,
		Timestamp:     s.clk.Now(),
	}

	s.inventory = next
	s.stability = clampStability(float64(result.SeverityScore) * 10)
	s.history = append(s.history, record)
	s.lastUserResult = &result
	s.lastAiResult = nil
	s.preLast = pre

	if result.FollowUpThreat != nil {
		s.feed.Append(*result.FollowUpThreat)
		s.feed.AttachCoordinates(s.scenario.Center, m.config.Game.ThreatRadiusKm)
	}
	if index, ok := s.feed.RevealNext(); ok {
		m.logger.Debug("Threat disclosed",
			zap.String("session_id", sessionID),
			zap.Int("index", index))
	}

	if s.turnsLeft > 0 {
		s.turnsLeft--
	}
	if s.turnsLeft == 0 {
		m.terminateLocked(s, types.ConditionLost)
	}

	// Persistence and transcript are best-effort; the action is applied.
	if m.store != nil {
		progress := ProgressRecord{
			Inventory: s.inventory,
			Threats:   s.feed.Snapshot(),
			Stability: s.stability,
			TurnsLeft: s.turnsLeft,
			Condition: s.condition,
		}
		if err := m.store.SaveProgress(sessionID, progress); err != nil {
			m.logger.Error("Failed to persist progress",
				zap.String("session_id", sessionID),
				zap.Error(err))
		}
	}
	if s.archive != nil {
		if err := s.archive.Append(record); err != nil {
			m.logger.Error("Failed to archive action record",
				zap.String("session_id", sessionID),
				zap.Error(err))
		}
	}

	m.logger.Info("Action applied",
		zap.String("session_id", sessionID),
		zap.Int("severity", result.SeverityScore),
		zap.Float64("stability", s.stability),
		zap.Int("turns_left", s.turnsLeft))

	snapshot := m.snapshotLocked(s)
	if m.onUpdate != nil {
		go m.onUpdate(sessionID, snapshot)
	}

	return &result, nil
}

func (m *Manager) scoringTimeout() time.Duration {
	timeout := time.Duration(m.config.Scoring.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return timeout
}

func actionTexts(history []types.ActionRecord) []string {
	texts := make([]string, len(history))
	for i, record := range history {
		texts[i] = record.Action
	}
	return texts
}
