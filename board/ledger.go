package board

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"
)

// LedgerFile is the ledger's name under the firmware root. The leading dot
// keeps the registry from treating it as a board.
const LedgerFile = ".builds.db"

// Build statuses recorded in the ledger.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("board: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("board: zstd decoder initialization failed: " + err.Error())
	}
}

const ledgerSchema = `CREATE TABLE IF NOT EXISTS builds (
	id              TEXT PRIMARY KEY,
	board           TEXT NOT NULL,
	fqbn            TEXT NOT NULL,
	status          TEXT NOT NULL,
	artifact        TEXT NOT NULL DEFAULT '',
	sha256          TEXT NOT NULL DEFAULT '',
	protocol_digest TEXT NOT NULL DEFAULT '',
	error           TEXT NOT NULL DEFAULT '',
	started_at      INTEGER NOT NULL,
	finished_at     INTEGER NOT NULL,
	diagnostics     BLOB
);
CREATE INDEX IF NOT EXISTS builds_board_finished ON builds(board, finished_at)`

// Entry is one recorded build attempt.
type Entry struct {
	ID             string
	Board          string
	FQBN           string
	Status         string
	Artifact       string
	SHA256         string
	ProtocolDigest string
	Error          string
	StartedAt      time.Time
	FinishedAt     time.Time
	Diagnostics    []byte
}

// Ledger records build attempts in SQLite.
type Ledger struct {
	db *sql.DB
}

// OpenLedger opens (creating if needed) the ledger at path.
func OpenLedger(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(ledgerSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating ledger schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

// OpenLedgerIn opens the ledger kept under a firmware root.
func OpenLedgerIn(root string) (*Ledger, error) {
	return OpenLedger(filepath.Join(root, LedgerFile))
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Record stores e, assigning an ID when it has none. The ID is returned.
func (l *Ledger) Record(ctx context.Context, e Entry) (string, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	var diag []byte
	if len(e.Diagnostics) > 0 {
		diag = zstdEncoder.EncodeAll(e.Diagnostics, nil)
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO builds (id, board, fqbn, status, artifact, sha256, protocol_digest, error, started_at, finished_at, diagnostics)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Board, e.FQBN, e.Status, e.Artifact, e.SHA256, e.ProtocolDigest, e.Error,
		e.StartedAt.UnixNano(), e.FinishedAt.UnixNano(), diag,
	)
	if err != nil {
		return "", fmt.Errorf("recording build of %s: %w", e.Board, err)
	}
	return e.ID, nil
}

// History returns recorded attempts, most recent first. An empty board
// selects all boards; limit <= 0 means no limit.
func (l *Ledger) History(ctx context.Context, board string, limit int) ([]Entry, error) {
	query := `SELECT id, board, fqbn, status, artifact, sha256, protocol_digest, error, started_at, finished_at, diagnostics FROM builds`
	var args []any
	if board != "" {
		query += ` WHERE board = ?`
		args = append(args, board)
	}
	query += ` ORDER BY finished_at DESC, id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying build history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var started, finished int64
		var diag []byte
		if err := rows.Scan(&e.ID, &e.Board, &e.FQBN, &e.Status, &e.Artifact, &e.SHA256,
			&e.ProtocolDigest, &e.Error, &started, &finished, &diag); err != nil {
			return nil, fmt.Errorf("scanning build history: %w", err)
		}
		e.StartedAt = time.Unix(0, started)
		e.FinishedAt = time.Unix(0, finished)
		if len(diag) > 0 {
			if e.Diagnostics, err = zstdDecoder.DecodeAll(diag, nil); err != nil {
				return nil, fmt.Errorf("decompressing diagnostics for build %s: %w", e.ID, err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
