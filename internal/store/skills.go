package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"taskforge/internal/logging"
	"taskforge/internal/types"
)

// Lookup returns the Skill for a signature, or ok=false when absent.
// Concurrent-safe for readers.
func (s *Store) Lookup(signature string) (types.Skill, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT signature, template_id, source, params, created_at, last_used,
		       use_count, success_count, failure_count
		FROM skills WHERE signature = ?`, signature)

	var sk types.Skill
	var params string
	err := row.Scan(&sk.Signature, &sk.TemplateID, &sk.Source, &params,
		&sk.CreatedAt, &sk.LastUsed, &sk.UseCount, &sk.SuccessCount, &sk.FailureCount)
	if err == sql.ErrNoRows {
		return types.Skill{}, false, nil
	}
	if err != nil {
		return types.Skill{}, false, fmt.Errorf("skill lookup: %w", err)
	}
	if err := json.Unmarshal([]byte(params), &sk.Params); err != nil {
		// Params are forward-compatible metadata; a corrupt blob degrades
		// to nil rather than poisoning the lookup.
		logging.Get(logging.CategoryStore).Warn("corrupt params for %q: %v", signature, err)
		sk.Params = nil
	}
	return sk, true, nil
}

// RecordSkill creates the Skill on first successful execution, or bumps its
// usage counters on reuse. Source, template and params are first-write-wins:
// an existing row never has those fields overwritten.
func (s *Store) RecordSkill(signature, templateID, source string, params map[string]string) error {
	if params == nil {
		params = map[string]string{}
	}
	blob, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}

	return s.write("record_skill", func() error {
		now := time.Now().UTC()
		res, err := s.db.Exec(`
			UPDATE skills
			SET last_used = ?, use_count = use_count + 1, success_count = success_count + 1
			WHERE signature = ?`, now, signature)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			logging.StoreDebug("skill %q reused", signature)
			return nil
		}
		_, err = s.db.Exec(`
			INSERT INTO skills (signature, template_id, source, params, created_at,
				last_used, use_count, success_count, failure_count)
			VALUES (?, ?, ?, ?, ?, ?, 1, 1, 0)`,
			signature, templateID, source, string(blob), now, now)
		if err == nil {
			logging.Store("skill learned: %q (template=%s)", signature, templateID)
		}
		return err
	})
}

// RecordSkillFailure increments a skill's failure count. The entry is kept:
// a flaky skill still beats re-synthesis, and the count stays visible for
// diagnostics.
func (s *Store) RecordSkillFailure(signature string) error {
	return s.write("record_skill_failure", func() error {
		_, err := s.db.Exec(`
			UPDATE skills
			SET failure_count = failure_count + 1, last_used = ?
			WHERE signature = ?`, time.Now().UTC(), signature)
		return err
	})
}

// Skills returns all stored skills ordered by most recently used.
func (s *Store) Skills() ([]types.Skill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT signature, template_id, source, params, created_at, last_used,
		       use_count, success_count, failure_count
		FROM skills ORDER BY last_used DESC`)
	if err != nil {
		return nil, fmt.Errorf("list skills: %w", err)
	}
	defer rows.Close()

	var out []types.Skill
	for rows.Next() {
		var sk types.Skill
		var params string
		if err := rows.Scan(&sk.Signature, &sk.TemplateID, &sk.Source, &params,
			&sk.CreatedAt, &sk.LastUsed, &sk.UseCount, &sk.SuccessCount, &sk.FailureCount); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(params), &sk.Params); err != nil {
			sk.Params = nil
		}
		out = append(out, sk)
	}
	return out, rows.Err()
}
