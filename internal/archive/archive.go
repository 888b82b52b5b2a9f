// Package archive keeps a SQLite record of every vessel definition a server
// has accepted. Writes are queued to a single writer goroutine so the tick
// loop never waits on disk.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"vessel-racer/internal/protocol"
	"vessel-racer/internal/vessel"
)

// ErrNotFound is returned by Get for an unknown vessel id.
var ErrNotFound = errors.New("archive: vessel not found")

// Record is one archived definition.
type Record struct {
	ID         vessel.ID
	Client     protocol.ClientID
	Tick       uint64
	Parts      int
	Definition vessel.Definition
	CreatedAt  time.Time
}

// Archive is a write-behind store of vessel definitions.
type Archive struct {
	db *sql.DB

	ch   chan Record
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Uint64
}

// Open creates (or reopens) the archive at path.
func Open(path string) (*Archive, error) {
	if path == "" {
		return nil, fmt.Errorf("archive: empty db path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("archive: create dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	a := &Archive{
		db: db,
		ch: make(chan Record, 4096),
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.loop()
	}()
	return a, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS vessels (
			id TEXT PRIMARY KEY,
			client INTEGER NOT NULL,
			tick INTEGER NOT NULL,
			parts INTEGER NOT NULL,
			definition_json TEXT NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_vessels_client ON vessels(client, tick);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Save queues def for writing. The first definition stored under an id wins,
// matching the asset table. Save never blocks; when the writer falls behind
// the record is dropped.
func (a *Archive) Save(client protocol.ClientID, tick uint64, id vessel.ID, def vessel.Definition) {
	if a == nil || a.closed.Load() {
		return
	}
	r := Record{
		ID:         id,
		Client:     client,
		Tick:       tick,
		Parts:      len(def.Parts),
		Definition: def.Clone(),
		CreatedAt:  time.Now().UTC(),
	}
	select {
	case a.ch <- r:
	default:
		a.dropped.Add(1)
		log.Warn().Str("vessel", id.String()).Msg("⚠️ archive queue full, definition not stored")
	}
}

// Dropped returns how many records were discarded because the queue was full.
func (a *Archive) Dropped() uint64 {
	return a.dropped.Load()
}

// Close flushes queued records and closes the database.
func (a *Archive) Close() error {
	var err error
	a.once.Do(func() {
		a.closed.Store(true)
		close(a.ch)
		a.wg.Wait()
		err = a.db.Close()
	})
	return err
}

func (a *Archive) loop() {
	insert, err := a.db.Prepare(`INSERT OR IGNORE INTO vessels(id,client,tick,parts,definition_json,created_at) VALUES(?,?,?,?,?,?)`)
	if err != nil {
		log.Error().Err(err).Msg("❌ archive prepare failed")
		for range a.ch {
		}
		return
	}
	defer insert.Close()

	for r := range a.ch {
		raw, err := json.Marshal(r.Definition)
		if err != nil {
			log.Warn().Err(err).Str("vessel", r.ID.String()).Msg("⚠️ archive encode failed")
			continue
		}
		if _, err := insert.Exec(r.ID.String(), int64(r.Client), int64(r.Tick), r.Parts, string(raw),
			r.CreatedAt.Format(time.RFC3339Nano)); err != nil {
			log.Warn().Err(err).Str("vessel", r.ID.String()).Msg("⚠️ archive write failed")
		}
	}
}

// Get loads one archived definition.
func (a *Archive) Get(ctx context.Context, id vessel.ID) (Record, error) {
	row := a.db.QueryRowContext(ctx,
		`SELECT id,client,tick,parts,definition_json,created_at FROM vessels WHERE id = ?`, id.String())
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return r, err
}

// List returns the most recent records, newest first. limit <= 0 means 100.
func (a *Archive) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := a.db.QueryContext(ctx,
		`SELECT id,client,tick,parts,definition_json,created_at FROM vessels ORDER BY tick DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Count returns how many definitions are stored.
func (a *Archive) Count(ctx context.Context) (int, error) {
	var n int
	err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vessels`).Scan(&n)
	return n, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (Record, error) {
	var (
		id, raw, created string
		client, tick     int64
		parts            int
	)
	if err := s.Scan(&id, &client, &tick, &parts, &raw, &created); err != nil {
		return Record{}, err
	}
	vid, err := vessel.ParseID(id)
	if err != nil {
		return Record{}, err
	}
	var def vessel.Definition
	if err := json.Unmarshal([]byte(raw), &def); err != nil {
		return Record{}, fmt.Errorf("archive: decode %s: %w", id, err)
	}
	at, _ := time.Parse(time.RFC3339Nano, created)
	return Record{
		ID:         vid,
		Client:     protocol.ClientID(client),
		Tick:       uint64(tick),
		Parts:      parts,
		Definition: def,
		CreatedAt:  at,
	}, nil
}
