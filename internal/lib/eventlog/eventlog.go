// Package eventlog indexes committed pool events in sqlite for off-chain consumers.
package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/TxnLab/lsd/internal/lib/lsd"
	"github.com/TxnLab/lsd/internal/lib/misc"
)

var (
	ErrWrite = errors.New("writing event failed")
	ErrRead  = errors.New("reading events failed")
)

// Log is an lsd.EventSink backed by a sqlite database.
type Log struct {
	logger *slog.Logger
	db     *sql.DB
	now    func() time.Time
}

var _ lsd.EventSink = (*Log)(nil)

// Open opens the event database at dbFilePath, creating the file and its tables when missing.
func Open(logger *slog.Logger, dbFilePath string) (*Log, error) {
	if err := prepareFile(dbFilePath); err != nil {
		return nil, fmt.Errorf("preparing event db %s: %w", dbFilePath, err)
	}
	sqlDB, err := sql.Open("sqlite3", dbFilePath)
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer
	sqlDB.SetMaxOpenConns(1)
	if err = createTables(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("creating event tables: %w", err)
	}
	misc.Debugf(logger, "event log opened at %s", dbFilePath)
	return &Log{logger: logger, db: sqlDB, now: time.Now}, nil
}

func prepareFile(dbFilePath string) error {
	return os.MkdirAll(filepath.Dir(dbFilePath), 0755)
}

func createTables(sqlDB *sql.DB) error {
	ctx := context.Background()
	tx, err := sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, stmt := range []string{
		`
CREATE TABLE IF NOT EXISTS Event (
	id INTEGER PRIMARY KEY AUTOINCREMENT NOT NULL,
	name VARCHAR(32) NOT NULL,
	pool VARCHAR(64) NOT NULL,
	era INTEGER NOT NULL,
	payload TEXT NOT NULL,
	createdAt INTEGER NOT NULL
);
`,
		`CREATE INDEX IF NOT EXISTS EventPoolEra ON Event (pool, era);`,
	} {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (l *Log) Close() error {
	return l.db.Close()
}

// Publish stores ev.
func (l *Log) Publish(ctx context.Context, ev lsd.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", ev.Name(), err)
	}
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		misc.Errorf(l.logger, "couldn't start a transaction to write the %s event: %v", ev.Name(), err)
		return ErrWrite
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO Event (name, pool, era, payload, createdAt) VALUES (?, ?, ?, ?, ?)
`, ev.Name(), ev.PoolAddress().String(), int64(ev.EraNumber()), string(payload), l.now().UnixNano())
	if err != nil {
		_ = tx.Rollback()
		misc.Errorf(l.logger, "inserting the %s event of pool %s failed: %v", ev.Name(), ev.PoolAddress(), err)
		return ErrWrite
	}
	if err = tx.Commit(); err != nil {
		return ErrWrite
	}
	return nil
}

type Record struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Pool      lsd.Address     `json:"pool"`
	Era       uint64          `json:"era"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Filter narrows Query. Zero fields match everything.
type Filter struct {
	Pool    lsd.Address
	Name    string
	FromEra uint64
	ToEra   uint64
	Limit   int
}

const defaultLimit = 100

// Query returns matching events, newest first.
func (l *Log) Query(ctx context.Context, filter Filter) ([]Record, error) {
	query := `SELECT id, name, pool, era, payload, createdAt FROM Event WHERE era >= ?`
	args := []any{int64(filter.FromEra)}
	if filter.ToEra != 0 {
		query += ` AND era <= ?`
		args = append(args, int64(filter.ToEra))
	}
	if !filter.Pool.IsZero() {
		query += ` AND pool = ?`
		args = append(args, filter.Pool.String())
	}
	if filter.Name != "" {
		query += ` AND name = ?`
		args = append(args, filter.Name)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		misc.Errorf(l.logger, "querying events failed: %v", err)
		return nil, ErrRead
	}
	defer rows.Close()
	records := make([]Record, 0)
	for rows.Next() {
		var (
			rec       Record
			pool      string
			era       int64
			payload   string
			createdAt int64
		)
		if err = rows.Scan(&rec.ID, &rec.Name, &pool, &era, &payload, &createdAt); err != nil {
			misc.Errorf(l.logger, "scanning events failed: %v", err)
			return nil, ErrRead
		}
		if rec.Pool, err = lsd.ParseAddress(pool); err != nil {
			return nil, fmt.Errorf("event %d: %w", rec.ID, err)
		}
		rec.Era = uint64(era)
		rec.Payload = json.RawMessage(payload)
		rec.CreatedAt = time.Unix(0, createdAt)
		records = append(records, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, ErrRead
	}
	return records, nil
}
