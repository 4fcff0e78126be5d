package store

import (
	"database/sql"
	"fmt"
	"time"

	"taskforge/internal/logging"
	"taskforge/internal/types"
)

// Snapshot writes an immutable copy of a module's source at the next
// generation number and returns the snapshot taken. Generations are strictly
// increasing per module id; the max+1 computation and the insert share one
// transaction under the writer lock so no gap or duplicate can appear.
func (s *Store) Snapshot(moduleID, source string) (types.ModuleSnapshot, error) {
	var snap types.ModuleSnapshot
	err := s.write("snapshot", func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		var gen int
		err = tx.QueryRow(`SELECT COALESCE(MAX(generation), 0) FROM snapshots WHERE module_id = ?`,
			moduleID).Scan(&gen)
		if err != nil {
			return err
		}

		snap = types.ModuleSnapshot{
			ModuleID:   moduleID,
			Generation: gen + 1,
			Source:     source,
			Timestamp:  time.Now().UTC(),
		}
		_, err = tx.Exec(`
			INSERT INTO snapshots (module_id, generation, source, created_at)
			VALUES (?, ?, ?, ?)`,
			snap.ModuleID, snap.Generation, snap.Source, snap.Timestamp)
		if err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return types.ModuleSnapshot{}, err
	}
	logging.Evolution("snapshot taken: module=%s generation=%d", moduleID, snap.Generation)
	return snap, nil
}

// GetSnapshot fetches one snapshot by module id and generation.
func (s *Store) GetSnapshot(moduleID string, generation int) (types.ModuleSnapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT module_id, generation, source, created_at
		FROM snapshots WHERE module_id = ? AND generation = ?`, moduleID, generation)

	var snap types.ModuleSnapshot
	err := row.Scan(&snap.ModuleID, &snap.Generation, &snap.Source, &snap.Timestamp)
	if err == sql.ErrNoRows {
		return types.ModuleSnapshot{}, false, nil
	}
	if err != nil {
		return types.ModuleSnapshot{}, false, fmt.Errorf("get snapshot: %w", err)
	}
	return snap, true, nil
}

// SaveModule upserts a module's committed active source and generation.
// Called on every commit so improvements survive a restart.
func (s *Store) SaveModule(moduleID string, generation int, source string) error {
	err := s.write("save module", func() error {
		_, err := s.db.Exec(`
			INSERT INTO modules (module_id, generation, source, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(module_id) DO UPDATE SET
				generation = excluded.generation,
				source     = excluded.source,
				updated_at = excluded.updated_at`,
			moduleID, generation, source, time.Now().UTC())
		return err
	})
	if err != nil {
		return err
	}
	logging.Evolution("module saved: %s generation %d", moduleID, generation)
	return nil
}

// GetModule fetches a module's persisted active source and generation.
func (s *Store) GetModule(moduleID string) (generation int, source string, found bool, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`SELECT generation, source FROM modules WHERE module_id = ?`, moduleID)
	err = row.Scan(&generation, &source)
	if err == sql.ErrNoRows {
		return 0, "", false, nil
	}
	if err != nil {
		return 0, "", false, fmt.Errorf("get module: %w", err)
	}
	return generation, source, true, nil
}

// LatestGeneration returns the highest snapshot generation recorded for a
// module, or 0 when the module has never been snapshotted.
func (s *Store) LatestGeneration(moduleID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var gen int
	err := s.db.QueryRow(`SELECT COALESCE(MAX(generation), 0) FROM snapshots WHERE module_id = ?`,
		moduleID).Scan(&gen)
	if err != nil {
		return 0, fmt.Errorf("latest generation: %w", err)
	}
	return gen, nil
}
