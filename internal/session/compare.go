package session

import (
	"context"

	"github.com/user/crisis-command/internal/types"
	"go.uber.org/zap"
)

// RequestComparison produces a side-by-side comparison of the user's
// most recent action and an AI counterfactual for the same situation.
//
// With no prior action it silently no-ops, returning (nil, nil). The AI
// result attached to the last scored response is reused when present;
// otherwise the collaborator's simulation endpoint is called with the
// state captured before the user's action. The comparison never mutates
// ledger, stability, turn budget or history.
func (m *Manager) RequestComparison(ctx context.Context, sessionID string) (*types.Comparison, error) {
	m.mu.RLock()
	s, exists := m.sessions[sessionID]
	if !exists {
		m.mu.RUnlock()
		return nil, ErrSessionNotFound
	}
	if len(s.history) == 0 || s.lastUserResult == nil {
		m.mu.RUnlock()
		return nil, nil
	}

	last := s.history[len(s.history)-1]
	userResult := s.lastUserResult
	aiResult := s.lastAiResult
	pre := s.preLast
	locationHint := s.locationHint
	sessionCtx := s.ctx
	m.mu.RUnlock()

	if aiResult == nil {
		if alt := userResult.Analysis.AlternativeSolutions; alt != nil {
			return &types.Comparison{
				User: types.ComparisonSide{
					Narrative: last.ResultText,
					Feedback:  last.Feedback,
					Score:     last.Effectiveness,
				},
				AI: types.ComparisonSide{
					Narrative: alt.AlternativeResult,
					Feedback:  alt.Feedback,
					Score:     alt.ResponseAnalysis.OverallEffectiveness,
				},
			}, nil
		}

		callCtx, cancel := context.WithTimeout(sessionCtx, m.scoringTimeout())
		defer cancel()

		simulated, err := m.scorer.RunSimulation(callCtx, types.SimulationRequest{
			LocationHint: locationHint,
			Stability:    pre.stability,
			Resources:    pre.resources,
			Actions:      pre.actions,
		})
		if err != nil {
			m.logger.Warn("Simulation call failed",
				zap.String("session_id", sessionID),
				zap.Error(err))
			return nil, err
		}

		m.mu.Lock()
		if current, ok := m.sessions[sessionID]; ok && current.lastUserResult == userResult {
			current.lastAiResult = &simulated
		}
		m.mu.Unlock()
		aiResult = &simulated
	}

	return &types.Comparison{
		User: types.ComparisonSide{
			Narrative: last.ResultText,
			Feedback:  last.Feedback,
			Score:     last.Effectiveness,
		},
		AI: types.ComparisonSide{
			Narrative: aiResult.Analysis.ShortResponse,
			Feedback:  aiResult.Analysis.Feedback,
			Score:     aiResult.Analysis.ResponseAnalysis.OverallEffectiveness,
		},
	}, nil
}
