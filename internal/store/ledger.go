package store

import (
	"fmt"
	"time"

	"taskforge/internal/logging"
	"taskforge/internal/types"
)

// AppendRecord appends one PerformanceRecord to the ledger. Every
// modification attempt lands here, commit and rollback alike.
func (s *Store) AppendRecord(rec types.PerformanceRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	err := s.write("append_record", func() error {
		_, err := s.db.Exec(`
			INSERT INTO ledger (module_id, generation, before_metric, after_metric,
				verdict, failing_stage, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rec.ModuleID, rec.Generation, rec.BeforeMetric, rec.AfterMetric,
			string(rec.Verdict), rec.FailingStage, rec.Timestamp)
		return err
	})
	if err == nil {
		logging.Evolution("ledger: module=%s gen=%d verdict=%s stage=%s",
			rec.ModuleID, rec.Generation, rec.Verdict, rec.FailingStage)
	}
	return err
}

// History returns a module's ledger entries in append order.
func (s *Store) History(moduleID string) ([]types.PerformanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT module_id, generation, before_metric, after_metric, verdict,
		       failing_stage, created_at
		FROM ledger WHERE module_id = ? ORDER BY id ASC`, moduleID)
	if err != nil {
		return nil, fmt.Errorf("ledger history: %w", err)
	}
	defer rows.Close()

	var out []types.PerformanceRecord
	for rows.Next() {
		var rec types.PerformanceRecord
		var verdict string
		if err := rows.Scan(&rec.ModuleID, &rec.Generation, &rec.BeforeMetric,
			&rec.AfterMetric, &verdict, &rec.FailingStage, &rec.Timestamp); err != nil {
			return nil, err
		}
		rec.Verdict = types.Verdict(verdict)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CompactLedger keeps the most recent keep entries per module and drops the
// rest. Optional maintenance; the ledger is otherwise append-only.
func (s *Store) CompactLedger(moduleID string, keep int) (int, error) {
	if keep <= 0 {
		return 0, fmt.Errorf("keep must be positive, got %d", keep)
	}
	var removed int64
	err := s.write("compact_ledger", func() error {
		res, err := s.db.Exec(`
			DELETE FROM ledger
			WHERE module_id = ? AND id NOT IN (
				SELECT id FROM ledger WHERE module_id = ? ORDER BY id DESC LIMIT ?
			)`, moduleID, moduleID, keep)
		if err != nil {
			return err
		}
		removed, _ = res.RowsAffected()
		return nil
	})
	return int(removed), err
}
