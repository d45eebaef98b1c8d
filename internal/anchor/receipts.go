package anchor

import (
	"database/sql"
	"fmt"
	"time"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS anchor_receipts (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	receipt_id  TEXT NOT NULL,
	digest      TEXT NOT NULL,
	status      TEXT NOT NULL,
	permanence  TEXT NOT NULL,
	network     TEXT NOT NULL,
	created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_anchor_receipts_digest
ON anchor_receipts(digest);
`

// #endregion schema

// #region receipt-store
// ReceiptStore persists permanence receipts alongside the ledger.
type ReceiptStore struct {
	db *sql.DB
}

// NewReceiptStore initializes the anchor_receipts table.
func NewReceiptStore(db *sql.DB) (*ReceiptStore, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate receipts: %w", err)
	}
	return &ReceiptStore{db: db}, nil
}

// Save persists one receipt.
func (s *ReceiptStore) Save(r Receipt) error {
	_, err := s.db.Exec(
		`INSERT INTO anchor_receipts (receipt_id, digest, status, permanence, network, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.ReceiptID, r.Digest, r.Status, r.Permanence, r.Network,
		r.Timestamp.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save receipt: %w", err)
	}
	return nil
}

// ByDigest returns the receipt for a block digest, or false when the block
// was never anchored.
func (s *ReceiptStore) ByDigest(digest string) (Receipt, bool, error) {
	var r Receipt
	var createdStr string
	err := s.db.QueryRow(
		`SELECT receipt_id, digest, status, permanence, network, created_at
		 FROM anchor_receipts WHERE digest = ? ORDER BY id DESC LIMIT 1`, digest,
	).Scan(&r.ReceiptID, &r.Digest, &r.Status, &r.Permanence, &r.Network, &createdStr)
	if err == sql.ErrNoRows {
		return Receipt{}, false, nil
	}
	if err != nil {
		return Receipt{}, false, fmt.Errorf("receipt by digest: %w", err)
	}
	r.Timestamp, _ = time.Parse(time.RFC3339Nano, createdStr)
	return r, true, nil
}

// List returns the most recent receipts, newest first.
func (s *ReceiptStore) List(limit int) ([]Receipt, error) {
	rows, err := s.db.Query(
		`SELECT receipt_id, digest, status, permanence, network, created_at
		 FROM anchor_receipts ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}
	defer rows.Close()

	var out []Receipt
	for rows.Next() {
		var r Receipt
		var createdStr string
		if err := rows.Scan(&r.ReceiptID, &r.Digest, &r.Status, &r.Permanence, &r.Network, &createdStr); err != nil {
			return nil, fmt.Errorf("scan receipt: %w", err)
		}
		r.Timestamp, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, r)
	}
	return out, rows.Err()
}

// #endregion receipt-store
