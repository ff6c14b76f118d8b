// Package history records finished translation sessions in SQLite.
package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// MaxEntries is how many sessions are kept. Older ones are pruned on Add.
const MaxEntries = 100

var ErrNotFound = errors.New("history entry not found")

type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Entry is one translation session.
type Entry struct {
	ID         string
	Timestamp  time.Time
	SourceFile string
	OutputFile string
	TrackID    int

	SourceLanguage string
	TargetLanguage string
	Provider       string
	Model          string
	Preset         string

	TotalLines      int
	LinesTranslated int
	Duration        time.Duration

	PromptTokens     int
	CompletionTokens int
	// EstimatedCost is nil when no prices were configured
	EstimatedCost *float64

	Status Status
	Error  string
}

// SourceName is the base name of the source file.
func (e Entry) SourceName() string {
	return filepath.Base(e.SourceFile)
}

func (e Entry) TotalTokens() int {
	return e.PromptTokens + e.CompletionTokens
}

//go:embed migrations/*.sql
var migrationFS embed.FS

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the history database at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("history path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		"CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY)"); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	for _, name := range names {
		version := strings.TrimSuffix(name, ".sql")
		var count int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(1) FROM schema_migrations WHERE version = ?", version).Scan(&count); err != nil {
			return fmt.Errorf("scan migration version: %w", err)
		}
		if count > 0 {
			continue
		}
		data, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("record migration %s: %w", version, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migrations: %w", err)
	}
	return nil
}

// Add stores e, assigning an id and timestamp when missing, and prunes the
// oldest sessions beyond MaxEntries.
func (s *Store) Add(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}
	if e.Status == "" {
		e.Status = StatusCompleted
	}

	var cost sql.NullFloat64
	if e.EstimatedCost != nil {
		cost = sql.NullFloat64{Float64: *e.EstimatedCost, Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin history tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `INSERT INTO history (
		id, created_at, source_file, output_file, track_id,
		source_lang, target_lang, provider, model, preset,
		total_lines, lines_translated, duration_ms,
		prompt_tokens, completion_tokens, estimated_cost,
		status, error_message
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Timestamp.UTC().Format(time.RFC3339Nano), e.SourceFile, e.OutputFile, e.TrackID,
		e.SourceLanguage, e.TargetLanguage, e.Provider, e.Model, e.Preset,
		e.TotalLines, e.LinesTranslated, e.Duration.Milliseconds(),
		e.PromptTokens, e.CompletionTokens, cost,
		string(e.Status), e.Error,
	)
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM history WHERE seq NOT IN (
		SELECT seq FROM history ORDER BY seq DESC LIMIT ?
	)`, MaxEntries); err != nil {
		return fmt.Errorf("prune history: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit history entry: %w", err)
	}
	return nil
}

const selectColumns = `id, created_at, source_file, output_file, track_id,
	source_lang, target_lang, provider, model, preset,
	total_lines, lines_translated, duration_ms,
	prompt_tokens, completion_tokens, estimated_cost,
	status, error_message`

// List returns up to limit sessions, newest first. A limit of zero or less
// returns everything.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = MaxEntries
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+selectColumns+" FROM history ORDER BY seq DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return entries, nil
}

func (s *Store) Get(ctx context.Context, id string) (Entry, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+selectColumns+" FROM history WHERE id = ?", id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, err
}

// Delete removes the given sessions and returns how many existed.
func (s *Store) Delete(ctx context.Context, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM history WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return 0, fmt.Errorf("delete history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete history: %w", err)
	}
	return int(n), nil
}

func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM history"); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var (
		e          Entry
		created    string
		durationMs int64
		cost       sql.NullFloat64
		status     string
	)
	err := row.Scan(
		&e.ID, &created, &e.SourceFile, &e.OutputFile, &e.TrackID,
		&e.SourceLanguage, &e.TargetLanguage, &e.Provider, &e.Model, &e.Preset,
		&e.TotalLines, &e.LinesTranslated, &durationMs,
		&e.PromptTokens, &e.CompletionTokens, &cost,
		&status, &e.Error,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("scan history entry: %w", err)
	}
	if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
		e.Timestamp = ts.Local()
	}
	e.Duration = time.Duration(durationMs) * time.Millisecond
	if cost.Valid {
		v := cost.Float64
		e.EstimatedCost = &v
	}
	e.Status = Status(status)
	return e, nil
}
