package sink

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/stat-client/pkg/flatten"
	"github.com/Sternrassler/stat-client/pkg/table"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite" // SQLite driver
)

// SQLite appends tables to a SQLite database. Tables are created on first
// write and widened with new columns on later writes.
type SQLite struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1) // one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	return &SQLite{db: db, path: path}, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// DB exposes the handle for queries.
func (s *SQLite) DB() *sql.DB {
	return s.db
}

// Write appends every row of t to table name.
func (s *SQLite) Write(ctx context.Context, name string, t *table.Table) error {
	if err := checkName(name); err != nil {
		return err
	}
	if len(t.Columns) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := ensureTable(ctx, tx, name, t); err != nil {
		return err
	}

	cols := make([]string, len(t.Columns))
	marks := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = quote(c)
		marks[i] = "?"
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quote(name), strings.Join(cols, ", "), strings.Join(marks, ", ")))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(t.Columns))
	for r, row := range t.Rows {
		for i, v := range row {
			args[i] = sqlValue(v)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert row %d into %s: %w", r, name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", name, err)
	}

	log.Info().Str("table", name).Int("rows", t.Len()).Str("db", s.path).Msg("Rows appended")
	return nil
}

func ensureTable(ctx context.Context, tx *sql.Tx, name string, t *table.Table) error {
	existing, err := columnsOf(ctx, tx, name)
	if err != nil {
		return err
	}

	if len(existing) == 0 {
		defs := make([]string, len(t.Columns))
		for i, c := range t.Columns {
			defs[i] = quote(c) + " " + columnType(t, i)
		}
		q := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quote(name), strings.Join(defs, ", "))
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create table %s: %w", name, err)
		}
		return nil
	}

	for i, c := range t.Columns {
		if _, ok := existing[c]; ok {
			continue
		}
		q := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", quote(name), quote(c), columnType(t, i))
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("add column %s.%s: %w", name, c, err)
		}
	}
	return nil
}

func columnsOf(ctx context.Context, tx *sql.Tx, name string) (map[string]struct{}, error) {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quote(name)))
	if err != nil {
		return nil, fmt.Errorf("inspect table %s: %w", name, err)
	}
	defer rows.Close()

	cols := make(map[string]struct{})
	for rows.Next() {
		var (
			cid     int
			colName string
			colType string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &colName, &colType, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("inspect table %s: %w", name, err)
		}
		cols[colName] = struct{}{}
	}
	return cols, rows.Err()
}

// columnType picks the SQLite affinity from the first non-null cell.
func columnType(t *table.Table, col int) string {
	for _, row := range t.Rows {
		switch row[col].Type() {
		case flatten.TypeNull:
			continue
		case flatten.TypeInt, flatten.TypeBool:
			return "INTEGER"
		case flatten.TypeFloat:
			return "REAL"
		default:
			return "TEXT"
		}
	}
	return "TEXT"
}

func sqlValue(v flatten.Value) any {
	switch v.Type() {
	case flatten.TypeNull:
		return nil
	case flatten.TypeDate:
		return v.String()
	case flatten.TypeBool:
		if v.Bool() {
			return int64(1)
		}
		return int64(0)
	default:
		return v.Interface()
	}
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
