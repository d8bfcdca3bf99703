package session

import (
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/crisis-command/internal/ledger"
	"github.com/user/crisis-command/internal/types"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore("sqlite3", filepath.Join(t.TempDir(), "sessions.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testProgress() ProgressRecord {
	return ProgressRecord{
		Inventory: ledger.Default(),
		Threats: []types.Threat{
			{Index: 0, Title: "River overflow", Score: 8, Visible: true},
			{Index: 1, Title: "Day 1 outlook", Visible: false},
		},
		Stability: 80,
		TurnsLeft: 20,
		Condition: types.ConditionInProgress,
	}
}

func TestStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)
	scenario := testScenario()
	progress := testProgress()

	// Test case 1: Save and load the scenario descriptor
	err := store.SaveScenario("sess-1", scenario.Location, scenario, progress)
	assert.NoError(t, err)

	loaded, hint, err := store.LoadScenario("sess-1")
	assert.NoError(t, err)
	assert.Equal(t, scenario.Location, hint)
	assert.Equal(t, scenario.DisasterType, loaded.DisasterType)
	assert.True(t, scenario.StartDate.Equal(loaded.StartDate))

	// Test case 2: Progress round-trips intact
	restored, err := store.LoadProgress("sess-1")
	assert.NoError(t, err)
	assert.Equal(t, progress.Inventory, restored.Inventory)
	assert.Equal(t, progress.Threats, restored.Threats)
	assert.Equal(t, 80.0, restored.Stability)
	assert.Equal(t, 20, restored.TurnsLeft)
	assert.Equal(t, types.ConditionInProgress, restored.Condition)

	// Test case 3: Updated progress replaces the stored one
	updated := progress
	updated.Inventory = progress.Inventory.Clone()
	updated.Inventory[0].Items[0].Available = 3
	updated.Threats = append([]types.Threat{}, progress.Threats...)
	updated.Threats[1].Visible = true
	updated.Stability = 40
	updated.TurnsLeft = 19
	err = store.SaveProgress("sess-1", updated)
	assert.NoError(t, err)

	restored, err = store.LoadProgress("sess-1")
	assert.NoError(t, err)
	assert.Equal(t, 3, restored.Inventory[0].Items[0].Available)
	assert.True(t, restored.Threats[1].Visible)
	assert.Equal(t, 40.0, restored.Stability)
	assert.Equal(t, 19, restored.TurnsLeft)

	// Test case 4: Saving a scenario twice upserts
	err = store.SaveScenario("sess-1", scenario.Location, scenario, progress)
	assert.NoError(t, err)
}

func TestStoreMissingSession(t *testing.T) {
	store := newTestStore(t)

	_, err := store.LoadProgress("missing")
	assert.ErrorIs(t, err, ErrNotStored)

	_, _, err = store.LoadScenario("missing")
	assert.ErrorIs(t, err, ErrNotStored)

	err = store.SaveProgress("missing", testProgress())
	assert.ErrorIs(t, err, ErrNotStored)
}

func TestStoreMalformedInventory(t *testing.T) {
	store := newTestStore(t)
	scenario := testScenario()

	require.NoError(t, store.SaveScenario("sess-1", scenario.Location, scenario, testProgress()))

	// Corrupt the stored inventory behind the store's back
	_, err := store.db.Exec(`UPDATE sessions SET resources = '{"not":"a ledger"' WHERE id = 'sess-1'`)
	require.NoError(t, err)

	restored, err := store.LoadProgress("sess-1")
	var dataErr *ledger.DataError
	assert.ErrorAs(t, err, &dataErr)

	// Everything except the inventory survives the corruption
	assert.Nil(t, restored.Inventory)
	assert.Len(t, restored.Threats, 2)
	assert.Equal(t, 20, restored.TurnsLeft)
}

func TestStoreMalformedThreats(t *testing.T) {
	store := newTestStore(t)
	scenario := testScenario()

	require.NoError(t, store.SaveScenario("sess-1", scenario.Location, scenario, testProgress()))

	_, err := store.db.Exec(`UPDATE sessions SET threats = '[{"broken"' WHERE id = 'sess-1'`)
	require.NoError(t, err)

	_, err = store.LoadProgress("sess-1")
	var dataErr *ledger.DataError
	assert.ErrorAs(t, err, &dataErr)
}

func TestStoreDelete(t *testing.T) {
	store := newTestStore(t)
	scenario := testScenario()

	require.NoError(t, store.SaveScenario("sess-1", scenario.Location, scenario, testProgress()))
	assert.NoError(t, store.DeleteSession("sess-1"))

	_, err := store.LoadProgress("sess-1")
	assert.ErrorIs(t, err, ErrNotStored)

	// Deleting a missing session is not an error
	assert.NoError(t, store.DeleteSession("sess-1"))
}
