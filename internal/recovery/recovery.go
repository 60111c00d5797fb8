// Package recovery persists the active POS session for crash recovery.
package recovery

import (
	"encoding/json"
	"os"
	"path/filepath"
	gosync "sync"
	"time"

	apperrors "github.com/emberpos/core/internal/errors"
	"github.com/emberpos/core/internal/logging"
	"github.com/emberpos/core/internal/models"
)

const snapshotFile = "crash_state.json"

// RecoveryResult is what startup hands to the UI layer: at most one
// snapshot, flagged stale when it predates the staleness window so the
// operator can default to discarding it. The restore/discard decision stays
// with the operator either way.
type RecoveryResult struct {
	HasSnapshot bool
	Stale       bool
	State       *models.CrashState
}

// Manager owns the single crash snapshot file. SaveSnapshot is called on
// every meaningful session mutation, so it stays a plain marshal plus an
// atomic rename.
type Manager struct {
	path       string
	staleAfter time.Duration

	mu   gosync.Mutex
	read bool
}

// NewManager creates a Manager storing its snapshot under dataDir.
func NewManager(dataDir string, staleAfter time.Duration) *Manager {
	return &Manager{
		path:       filepath.Join(dataDir, snapshotFile),
		staleAfter: staleAfter,
	}
}

// SaveSnapshot overwrites the outstanding snapshot. The write goes to a
// temp file first so a crash mid-write never corrupts the previous
// snapshot.
func (m *Manager) SaveSnapshot(state *models.CrashState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	state.Timestamp = time.Now().Unix()
	state.Version = models.CrashStateVersion

	data, err := json.Marshal(state)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "failed to marshal crash snapshot", err)
	}

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to write crash snapshot", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to replace crash snapshot", err)
	}
	return nil
}

// ReadSnapshotOnStartup returns the outstanding snapshot, once. Subsequent
// calls, a missing file, or an unreadable file all report no snapshot —
// recovery-data corruption must never block startup.
func (m *Manager) ReadSnapshotOnStartup() RecoveryResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.read {
		return RecoveryResult{}
	}
	m.read = true

	data, err := os.ReadFile(m.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.Warn("Crash snapshot unreadable, treating as absent",
				map[string]interface{}{"error": err.Error()})
		}
		return RecoveryResult{}
	}

	var state models.CrashState
	if err := json.Unmarshal(data, &state); err != nil {
		logging.ErrorWithCode("Crash snapshot corrupt, treating as absent",
			string(apperrors.ErrSnapshotCorrupt), err)
		return RecoveryResult{}
	}
	if state.Version != models.CrashStateVersion {
		logging.Warn("Crash snapshot version mismatch, treating as absent",
			map[string]interface{}{"version": state.Version})
		return RecoveryResult{}
	}

	stale := time.Since(state.Time()) > m.staleAfter
	if stale {
		logging.Info("Crash snapshot is stale",
			map[string]interface{}{"saved_at": state.Time().Format(time.RFC3339)})
	} else {
		logging.Info("Unclean shutdown detected, offering crash snapshot",
			map[string]interface{}{
				"saved_at":   state.Time().Format(time.RFC3339),
				"cart_items": len(state.CartItems),
			})
	}

	return RecoveryResult{HasSnapshot: true, Stale: stale, State: &state}
}

// ClearSnapshot removes the snapshot after a clean shutdown or once the
// operator has decided. A missing file is not an error.
func (m *Manager) ClearSnapshot() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to clear crash snapshot", err)
	}
	return nil
}
