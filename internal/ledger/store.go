package ledger

import (
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/vector"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS blocks (
	idx          INTEGER PRIMARY KEY,
	created_at   TEXT NOT NULL,
	vector_id    TEXT NOT NULL,
	description  TEXT NOT NULL,
	vector       BLOB NOT NULL,
	prev_digest  TEXT NOT NULL,
	digest       TEXT NOT NULL
);
`

// #endregion schema

// #region store-struct
// Store is the append-only, hash-chained commitment ledger in SQLite.
// Writers must be serialized by the caller; reads may run concurrently.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (provenance
// log, anchor receipts).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion constructor

// #region genesis
// Genesis creates block 1 with the fixed origin payload and the sentinel
// previous digest. It must be called exactly once before any Append; a
// second call errors.
func (s *Store) Genesis(origin vector.Vector) (BlockRef, error) {
	n, err := s.Length()
	if err != nil {
		return BlockRef{}, err
	}
	if n > 0 {
		return BlockRef{}, fmt.Errorf("genesis already created (ledger length %d)", n)
	}
	return s.insert(1, GenesisVectorID, GenesisDescription, origin, GenesisSentinel)
}

// #endregion genesis

// #region append
// Append links a new block to the chain tail and returns its reference.
// The write is a single transaction: it either lands completely or not at
// all. Errors if Genesis has not run.
func (s *Store) Append(vectorID, description string, vec vector.Vector) (BlockRef, error) {
	head, err := s.Head()
	if err != nil {
		return BlockRef{}, fmt.Errorf("append without genesis: %w", err)
	}
	return s.insert(head.Index+1, vectorID, description, vec, head.Digest)
}

func (s *Store) insert(idx int64, vectorID, description string, vec vector.Vector, prevDigest string) (BlockRef, error) {
	createdAt := time.Now().UTC().Format(time.RFC3339Nano)
	digest := computeDigest(idx, createdAt, vectorID, description, vec, prevDigest)

	tx, err := s.db.Begin()
	if err != nil {
		return BlockRef{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO blocks (idx, created_at, vector_id, description, vector, prev_digest, digest)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		idx, createdAt, vectorID, description, encodeVector(vec), prevDigest, digest,
	)
	if err != nil {
		return BlockRef{}, fmt.Errorf("insert block %d: %w", idx, err)
	}
	if err := tx.Commit(); err != nil {
		return BlockRef{}, fmt.Errorf("commit: %w", err)
	}
	return BlockRef{Index: idx, Digest: digest, VectorID: vectorID}, nil
}

// #endregion append

// #region head
// Head returns the reference of the chain tail. Errors on an empty ledger.
func (s *Store) Head() (BlockRef, error) {
	var ref BlockRef
	err := s.db.QueryRow(
		`SELECT idx, digest, vector_id FROM blocks ORDER BY idx DESC LIMIT 1`,
	).Scan(&ref.Index, &ref.Digest, &ref.VectorID)
	if err != nil {
		return BlockRef{}, fmt.Errorf("head: %w", err)
	}
	return ref, nil
}

// Length returns the number of blocks in the chain.
func (s *Store) Length() (int64, error) {
	var n int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM blocks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("length: %w", err)
	}
	return n, nil
}

// #endregion head

// #region verify
// VerifyIntegrity recomputes every block digest from its stored payload and
// checks the chain links. It stops at the first mismatch and reports which
// block broke. An empty chain is trivially valid. Mismatches are reported,
// never repaired.
func (s *Store) VerifyIntegrity() (VerifyResult, error) {
	blocks, err := s.Blocks()
	if err != nil {
		return VerifyResult{}, err
	}

	prev := GenesisSentinel
	for _, b := range blocks {
		if b.PrevDigest != prev {
			return VerifyResult{Valid: false, FirstBrokenBlock: b.Index}, nil
		}
		recomputed := computeDigest(b.Index, b.Timestamp, b.VectorID, b.Description, b.Vector, b.PrevDigest)
		if recomputed != b.Digest {
			return VerifyResult{Valid: false, FirstBrokenBlock: b.Index}, nil
		}
		prev = b.Digest
	}
	return VerifyResult{Valid: true}, nil
}

// #endregion verify

// #region read
// Blocks returns the full chain in index order.
func (s *Store) Blocks() ([]Block, error) {
	rows, err := s.db.Query(
		`SELECT idx, created_at, vector_id, description, vector, prev_digest, digest
		 FROM blocks ORDER BY idx ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}
	defer rows.Close()

	var blocks []Block
	for rows.Next() {
		var b Block
		var blob []byte
		if err := rows.Scan(&b.Index, &b.Timestamp, &b.VectorID, &b.Description, &blob, &b.PrevDigest, &b.Digest); err != nil {
			return nil, fmt.Errorf("scan block: %w", err)
		}
		b.Vector = decodeVector(blob)
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

// Vectors returns all admitted commitment vectors in chain order,
// genesis included.
func (s *Store) Vectors() ([]vector.Vector, error) {
	blocks, err := s.Blocks()
	if err != nil {
		return nil, err
	}
	out := make([]vector.Vector, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, b.Vector)
	}
	return out, nil
}

// Relevant returns admitted commitments whose similarity to the query
// vector meets the threshold, most relevant first.
func (s *Store) Relevant(query vector.Vector, threshold float64) ([]Relevance, error) {
	blocks, err := s.Blocks()
	if err != nil {
		return nil, err
	}
	var out []Relevance
	for _, b := range blocks {
		score := vector.Cosine(query, b.Vector)
		if score >= threshold {
			out = append(out, Relevance{VectorID: b.VectorID, Description: b.Description, Score: score})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

// #endregion read

// #region digest
// computeDigest is a pure function of the block's stored payload and the
// previous digest. No hidden randomness: recomputing from stored content
// must always reproduce the stored digest, or verification is meaningless.
func computeDigest(idx int64, createdAt, vectorID, description string, vec vector.Vector, prevDigest string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%s|%s|%s|", idx, createdAt, vectorID, description, prevDigest)
	h.Write(encodeVector(vec))
	return hex.EncodeToString(h.Sum(nil))
}

// #endregion digest

// #region vector-encoding
func encodeVector(v vector.Vector) []byte {
	buf := make([]byte, len(v)*8)
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

func decodeVector(b []byte) vector.Vector {
	v := make(vector.Vector, len(b)/8)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return v
}

// #endregion vector-encoding
