package session

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/user/crisis-command/internal/ledger"
	"github.com/user/crisis-command/internal/types"
	"go.uber.org/zap"
)

// ErrNotStored is returned when a session has no persisted row
var ErrNotStored = errors.New("session not stored")

const storeSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id            TEXT PRIMARY KEY,
	location_hint TEXT NOT NULL,
	scenario      TEXT NOT NULL,
	resources     TEXT NOT NULL,
	threats       TEXT NOT NULL,
	stability     REAL NOT NULL,
	turns_left    INTEGER NOT NULL,
	condition     TEXT NOT NULL,
	updated_at    TIMESTAMP NOT NULL
);`

// ProgressRecord is the per-session state persisted across reloads
type ProgressRecord struct {
	Inventory ledger.Ledger
	Threats   []types.Threat
	Stability float64
	TurnsLeft int
	Condition types.GameCondition
}

// Store persists the scenario descriptor and session progress, so a
// reloaded client can resume where it left off. It is written once at
// session start and once after each successful action.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// OpenStore opens the session store and ensures its schema exists
func OpenStore(driver, dsn string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	if _, err := db.Exec(storeSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create session store schema: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// SaveScenario writes the immutable scenario descriptor and the initial
// progress for a session
func (st *Store) SaveScenario(sessionID, locationHint string, scenario types.Scenario, progress ProgressRecord) error {
	scenarioJSON, err := json.Marshal(scenario)
	if err != nil {
		return fmt.Errorf("failed to encode scenario: %w", err)
	}
	resourcesJSON, threatsJSON, err := encodeProgress(progress)
	if err != nil {
		return err
	}

	_, err = st.db.Exec(
		`INSERT INTO sessions (id, location_hint, scenario, resources, threats, stability, turns_left, condition, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   location_hint = excluded.location_hint,
		   scenario = excluded.scenario,
		   resources = excluded.resources,
		   threats = excluded.threats,
		   stability = excluded.stability,
		   turns_left = excluded.turns_left,
		   condition = excluded.condition,
		   updated_at = excluded.updated_at`,
		sessionID, locationHint, string(scenarioJSON), resourcesJSON, threatsJSON,
		progress.Stability, progress.TurnsLeft, string(progress.Condition), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save scenario: %w", err)
	}
	return nil
}

// SaveProgress updates the persisted session progress after a scored action
func (st *Store) SaveProgress(sessionID string, progress ProgressRecord) error {
	resourcesJSON, threatsJSON, err := encodeProgress(progress)
	if err != nil {
		return err
	}

	result, err := st.db.Exec(
		`UPDATE sessions SET resources = ?, threats = ?, stability = ?, turns_left = ?, condition = ?, updated_at = ? WHERE id = ?`,
		resourcesJSON, threatsJSON, progress.Stability, progress.TurnsLeft,
		string(progress.Condition), time.Now().UTC(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to save progress: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotStored
	}
	return nil
}

func encodeProgress(progress ProgressRecord) (string, string, error) {
	resourcesJSON, err := json.Marshal(progress.Inventory)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode inventory: %w", err)
	}
	threatsJSON, err := json.Marshal(progress.Threats)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode threats: %w", err)
	}
	return string(resourcesJSON), string(threatsJSON), nil
}

// LoadProgress reads the persisted progress for a session. A stored
// inventory that cannot be decoded or that violates the ledger invariant
// returns a DataError with every other field still populated, so the
// caller can fall back to a known-good inventory without losing the rest.
func (st *Store) LoadProgress(sessionID string) (ProgressRecord, error) {
	var resourcesJSON, threatsJSON, condition string
	var record ProgressRecord
	err := st.db.QueryRow(
		`SELECT resources, threats, stability, turns_left, condition FROM sessions WHERE id = ?`, sessionID,
	).Scan(&resourcesJSON, &threatsJSON, &record.Stability, &record.TurnsLeft, &condition)
	if errors.Is(err, sql.ErrNoRows) {
		return ProgressRecord{}, ErrNotStored
	}
	if err != nil {
		return ProgressRecord{}, fmt.Errorf("failed to load progress: %w", err)
	}
	record.Condition = types.GameCondition(condition)

	if err := json.Unmarshal([]byte(threatsJSON), &record.Threats); err != nil {
		return ProgressRecord{}, &ledger.DataError{Reason: "stored threats unparseable", Err: err}
	}

	var groups []types.ResourceGroup
	if err := json.Unmarshal([]byte(resourcesJSON), &groups); err != nil {
		return record, &ledger.DataError{Reason: "stored inventory unparseable", Err: err}
	}
	inventory, err := ledger.Initialize(groups)
	if err != nil {
		return record, err
	}
	record.Inventory = inventory

	return record, nil
}

// LoadScenario reads the persisted scenario descriptor for a session
func (st *Store) LoadScenario(sessionID string) (types.Scenario, string, error) {
	var scenarioJSON, locationHint string
	err := st.db.QueryRow(`SELECT scenario, location_hint FROM sessions WHERE id = ?`, sessionID).
		Scan(&scenarioJSON, &locationHint)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Scenario{}, "", ErrNotStored
	}
	if err != nil {
		return types.Scenario{}, "", fmt.Errorf("failed to load scenario: %w", err)
	}

	var scenario types.Scenario
	if err := json.Unmarshal([]byte(scenarioJSON), &scenario); err != nil {
		return types.Scenario{}, "", fmt.Errorf("failed to parse stored scenario: %w", err)
	}
	return scenario, locationHint, nil
}

// DeleteSession removes the persisted row for a session
func (st *Store) DeleteSession(sessionID string) error {
	if _, err := st.db.Exec(`DELETE FROM sessions WHERE id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Close closes the underlying database
func (st *Store) Close() error {
	return st.db.Close()
}
