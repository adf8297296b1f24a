// Package cache provides the optional chunk-level translation cache. An
// exact-match hit bypasses the provider entirely, so repeated runs over the
// same document cost nothing.
package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"rlm-translate/internal/logging"
)

// Key identifies one cached chunk translation. Any change to the language
// pair, model, or preset produces a different key.
type Key struct {
	SourceLang string
	TargetLang string
	Model      string
	Preset     string
	ChunkText  string
}

func (k Key) chunkHash() string {
	sum := sha256.Sum256([]byte(k.ChunkText))
	return hex.EncodeToString(sum[:])
}

// Stats summarizes cache usage.
type Stats struct {
	Entries int64 `json:"entries"`
	Hits    int64 `json:"hits"`
}

// Store is the sqlite-backed cache repository.
type Store struct {
	db  *sql.DB
	log logging.Logger
}

// Open opens or creates the cache database at path. An empty path selects an
// in-memory database.
func Open(path string, log logging.Logger) (*Store, error) {
	if log == nil {
		log = logging.NewNop()
	}
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_sync=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	if path == ":memory:" {
		// each pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(4)
	}

	s := &Store{db: db, log: log.WithComponent("cache")}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chunk_translations (
		id TEXT PRIMARY KEY,
		source_lang TEXT NOT NULL,
		target_lang TEXT NOT NULL,
		model TEXT NOT NULL,
		preset TEXT NOT NULL,
		chunk_hash TEXT NOT NULL,
		translation TEXT NOT NULL,
		hit_count INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		last_used_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(source_lang, target_lang, model, preset, chunk_hash)
	);

	CREATE INDEX IF NOT EXISTS idx_chunk_translations_last_used ON chunk_translations(last_used_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Get looks up a cached translation. A hit bumps the usage counters.
func (s *Store) Get(ctx context.Context, key Key) (string, bool, error) {
	query := `
		SELECT id, translation FROM chunk_translations
		WHERE source_lang = ? AND target_lang = ? AND model = ? AND preset = ? AND chunk_hash = ?`

	var id, translation string
	err := s.db.QueryRowContext(ctx, query,
		key.SourceLang, key.TargetLang, key.Model, key.Preset, key.chunkHash()).Scan(&id, &translation)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query cache: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE chunk_translations SET hit_count = hit_count + 1, last_used_at = CURRENT_TIMESTAMP WHERE id = ?`,
		id); err != nil {
		s.log.Warn("failed to bump cache hit counter", "error", err)
	}
	return translation, true, nil
}

// Put stores a translation, replacing any previous entry for the key.
func (s *Store) Put(ctx context.Context, key Key, translation string) error {
	query := `
		INSERT INTO chunk_translations (id, source_lang, target_lang, model, preset, chunk_hash, translation)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_lang, target_lang, model, preset, chunk_hash)
		DO UPDATE SET translation = excluded.translation, last_used_at = CURRENT_TIMESTAMP`

	_, err := s.db.ExecContext(ctx, query,
		uuid.New().String(), key.SourceLang, key.TargetLang, key.Model, key.Preset, key.chunkHash(), translation)
	if err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	return nil
}

// Stats reports entry and hit totals.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(hit_count), 0) FROM chunk_translations`).Scan(&st.Entries, &st.Hits)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read cache stats: %w", err)
	}
	return st, nil
}

// Prune deletes entries unused for longer than maxAge and reports how many
// rows were removed.
func (s *Store) Prune(ctx context.Context, maxAge time.Duration) (int64, error) {
	modifier := fmt.Sprintf("-%d seconds", int64(maxAge.Seconds()))
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM chunk_translations WHERE last_used_at < datetime('now', ?)`, modifier)
	if err != nil {
		return 0, fmt.Errorf("failed to prune cache: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned rows: %w", err)
	}
	if removed > 0 {
		s.log.Info("pruned cache entries", "removed", removed)
	}
	return removed, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
