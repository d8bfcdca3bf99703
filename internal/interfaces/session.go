package interfaces

import (
	"context"

	"github.com/user/crisis-command/internal/types"
)

// Scorer defines the interface to the external scoring collaborator
type Scorer interface {
	StartSession(ctx context.Context, locationHint string) (types.StartResult, error)
	SolveAction(ctx context.Context, sessionID, solution string) (types.ScoredResult, error)
	RunSimulation(ctx context.Context, req types.SimulationRequest) (types.ScoredResult, error)
}

// SessionManager defines the interface for session orchestration operations
type SessionManager interface {
	StartSession(ctx context.Context, scenario types.Scenario) (types.Snapshot, error)
	ResumeSession(ctx context.Context, sessionID string) (types.Snapshot, error)
	Snapshot(sessionID string) (types.Snapshot, error)
	SubmitAction(ctx context.Context, sessionID, text string) (*types.ScoredResult, error)
	RequestComparison(ctx context.Context, sessionID string) (*types.Comparison, error)
	TogglePlay(sessionID string) (bool, error)
	SetSuspended(sessionID string, suspended bool) error
	FocusThreat(sessionID string, index int) error
	CompleteObjective(sessionID string) error
	CloseSession(sessionID string) error
}
