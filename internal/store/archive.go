package store

import (
	"database/sql"
	"fmt"
	"time"

	"taskforge/internal/types"
)

// ArchivedArtifact is one archived artifact source, keyed by timestamp for
// audit and replay.
type ArchivedArtifact struct {
	Key        string
	ArtifactID string
	TemplateID string
	Source     string
	CreatedAt  time.Time
}

// ArchiveArtifact stores an artifact's source under a timestamp key and
// returns the key. Keys embed the artifact id so two runs in the same
// nanosecond cannot collide.
func (s *Store) ArchiveArtifact(artifactID, templateID, source string) (string, error) {
	now := time.Now().UTC()
	key := fmt.Sprintf("%s_%s", now.Format("20060102T150405.000000000"), artifactID)
	err := s.write("archive_artifact", func() error {
		_, err := s.db.Exec(`
			INSERT INTO archive (key, artifact_id, template_id, source, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			key, artifactID, templateID, source, now)
		return err
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

// GetArchived fetches one archived artifact by key.
func (s *Store) GetArchived(key string) (ArchivedArtifact, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT key, artifact_id, template_id, source, created_at
		FROM archive WHERE key = ?`, key)

	var a ArchivedArtifact
	err := row.Scan(&a.Key, &a.ArtifactID, &a.TemplateID, &a.Source, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return ArchivedArtifact{}, false, nil
	}
	if err != nil {
		return ArchivedArtifact{}, false, fmt.Errorf("get archived: %w", err)
	}
	return a, true, nil
}

// ListArchived returns the most recent archived artifacts, newest first.
func (s *Store) ListArchived(limit int) ([]ArchivedArtifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT key, artifact_id, template_id, source, created_at
		FROM archive ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list archived: %w", err)
	}
	defer rows.Close()

	var out []ArchivedArtifact
	for rows.Next() {
		var a ArchivedArtifact
		if err := rows.Scan(&a.Key, &a.ArtifactID, &a.TemplateID, &a.Source, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// RecordExecution appends one ExecutionResult for audit. Every run is
// recorded, success or failure.
func (s *Store) RecordExecution(res types.ExecutionResult) error {
	if res.Timestamp.IsZero() {
		res.Timestamp = time.Now().UTC()
	}
	return s.write("record_execution", func() error {
		_, err := s.db.Exec(`
			INSERT INTO executions (artifact_id, signature, template_id, kind,
				output, error, exit_status, duration_ms, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			res.ArtifactID, res.Signature, res.TemplateID, string(res.Kind),
			res.Output, res.Error, res.ExitStatus, res.Duration.Milliseconds(),
			res.Timestamp)
		return err
	})
}

// Executions returns the most recent execution results, newest first.
func (s *Store) Executions(limit int) ([]types.ExecutionResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT artifact_id, signature, template_id, kind, output, error,
		       exit_status, duration_ms, created_at
		FROM executions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var out []types.ExecutionResult
	for rows.Next() {
		var res types.ExecutionResult
		var kind string
		var durMS int64
		if err := rows.Scan(&res.ArtifactID, &res.Signature, &res.TemplateID,
			&kind, &res.Output, &res.Error, &res.ExitStatus, &durMS, &res.Timestamp); err != nil {
			return nil, err
		}
		res.Kind = types.ResultKind(kind)
		res.Duration = time.Duration(durMS) * time.Millisecond
		out = append(out, res)
	}
	return out, rows.Err()
}
