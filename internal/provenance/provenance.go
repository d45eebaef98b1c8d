package provenance

import (
	"database/sql"
	"fmt"
	"time"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS admission_log (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	proposal_id  TEXT NOT NULL,
	trigger_type TEXT NOT NULL,
	decision     TEXT NOT NULL,
	reason       TEXT,
	alignment    REAL NOT NULL,
	quality      REAL NOT NULL,
	votes_json   TEXT,
	block_index  INTEGER,
	created_at   TEXT NOT NULL
);
`

// #endregion schema

// #region entry
// Entry is a single row in the admission log. Every pipeline pass writes
// one, whatever the outcome; vote maps go in as JSON for audit only.
type Entry struct {
	ProposalID  string
	TriggerType string // "submission" | "drift_correction"
	Decision    string // "admit" | "reject" | "refused_lockdown"
	Reason      string
	Alignment   float64
	Quality     float64
	VotesJSON   string
	BlockIndex  int64 // 0 when nothing was appended
	CreatedAt   time.Time
}

// #endregion entry

// #region log
// Migrate creates the admission_log table.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate admission log: %w", err)
	}
	return nil
}

// LogDecision writes an admission entry.
func LogDecision(db *sql.DB, entry Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	var blockIdx interface{}
	if entry.BlockIndex > 0 {
		blockIdx = entry.BlockIndex
	}
	_, err := db.Exec(
		`INSERT INTO admission_log (proposal_id, trigger_type, decision, reason, alignment, quality, votes_json, block_index, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ProposalID,
		entry.TriggerType,
		entry.Decision,
		nullIfEmpty(entry.Reason),
		entry.Alignment,
		entry.Quality,
		nullIfEmpty(entry.VotesJSON),
		blockIdx,
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log decision: %w", err)
	}
	return nil
}

// Recent returns the latest admission entries, newest first.
func Recent(db *sql.DB, limit int) ([]Entry, error) {
	rows, err := db.Query(
		`SELECT proposal_id, trigger_type, decision, COALESCE(reason, ''), alignment, quality,
		        COALESCE(votes_json, ''), COALESCE(block_index, 0), created_at
		 FROM admission_log ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var createdStr string
		if err := rows.Scan(&e.ProposalID, &e.TriggerType, &e.Decision, &e.Reason,
			&e.Alignment, &e.Quality, &e.VotesJSON, &e.BlockIndex, &createdStr); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// #endregion log

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
