package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"schememap/internal/core"
	"schememap/internal/sources"

	_ "modernc.org/sqlite"
)

// ImportInfo describes one ReplaceSchemes run.
type ImportInfo struct {
	ID         string
	Source     string
	RowCount   int
	ImportedAt time.Time
}

type SQLiteRepository struct {
	db            *sql.DB
	path          string
	schemaVersion uint
}

var (
	_ sources.SchemeReader = (*SQLiteRepository)(nil)
	_ sources.SchemeWriter = (*SQLiteRepository)(nil)
)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, path: dbPath, schemaVersion: version}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Name() string { return "sqlite:" + filepath.Base(r.path) }

// SchemaVersion is the migration version applied at open.
func (r *SQLiteRepository) SchemaVersion() uint { return r.schemaVersion }

// ReadSchemes returns all rows in import order.
func (r *SQLiteRepository) ReadSchemes(ctx context.Context) ([]core.SchemeRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT category, gender, max_annual_income, scheme_name, state, benefit
		FROM schemes
		ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("query schemes: %w", err)
	}
	defer rows.Close()

	var out []core.SchemeRecord
	for rows.Next() {
		var (
			rec             core.SchemeRecord
			income, benefit string
		)
		if err := rows.Scan(&rec.Category, &rec.Gender, &income, &rec.SchemeName, &rec.State, &benefit); err != nil {
			return nil, fmt.Errorf("scan scheme: %w", err)
		}
		if rec.MaxAnnualIncome, err = decimal.NewFromString(income); err != nil {
			return nil, fmt.Errorf("scheme %q income: %w", rec.SchemeName, err)
		}
		if rec.Benefit, err = decimal.NewFromString(benefit); err != nil {
			return nil, fmt.Errorf("scheme %q benefit: %w", rec.SchemeName, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schemes: %w", err)
	}
	return out, nil
}

// ReplaceSchemes implements sources.SchemeWriter.
func (r *SQLiteRepository) ReplaceSchemes(ctx context.Context, records []core.SchemeRecord) (int, error) {
	info, err := r.Import(ctx, "unknown", records)
	if err != nil {
		return 0, err
	}
	return info.RowCount, nil
}

// Import swaps the whole schemes table in one transaction and records the run.
func (r *SQLiteRepository) Import(ctx context.Context, source string, records []core.SchemeRecord) (ImportInfo, error) {
	for i, rec := range records {
		if err := rec.Validate(); err != nil {
			return ImportInfo{}, fmt.Errorf("record %d (%s): %w", i, rec.SchemeName, err)
		}
	}

	info := ImportInfo{
		ID:         uuid.NewString(),
		Source:     source,
		RowCount:   len(records),
		ImportedAt: time.Now().UTC(),
	}
	stamp := info.ImportedAt.Format(time.RFC3339)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return ImportInfo{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM schemes`); err != nil {
		return ImportInfo{}, fmt.Errorf("clear schemes: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO schemes (position, category, gender, max_annual_income, scheme_name, state, benefit, imported_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return ImportInfo{}, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, rec := range records {
		_, err := stmt.ExecContext(ctx, i, rec.Category, rec.Gender, rec.MaxAnnualIncome.String(),
			rec.SchemeName, rec.State, rec.Benefit.String(), stamp)
		if err != nil {
			return ImportInfo{}, fmt.Errorf("insert scheme %d: %w", i, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO imports (id, source, row_count, imported_at) VALUES (?, ?, ?, ?)`,
		info.ID, info.Source, info.RowCount, stamp); err != nil {
		return ImportInfo{}, fmt.Errorf("record import: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return ImportInfo{}, fmt.Errorf("commit transaction: %w", err)
	}

	slog.InfoContext(ctx, "Schemes imported into SQLite",
		"import_id", info.ID,
		"source", info.Source,
		"rows", info.RowCount)
	return info, nil
}

// LastImport returns the most recent import, or ok=false when none exists.
func (r *SQLiteRepository) LastImport(ctx context.Context) (ImportInfo, bool, error) {
	var (
		info  ImportInfo
		stamp string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, source, row_count, imported_at FROM imports ORDER BY imported_at DESC, rowid DESC LIMIT 1`).
		Scan(&info.ID, &info.Source, &info.RowCount, &stamp)
	if errors.Is(err, sql.ErrNoRows) {
		return ImportInfo{}, false, nil
	}
	if err != nil {
		return ImportInfo{}, false, fmt.Errorf("query last import: %w", err)
	}
	if info.ImportedAt, err = time.Parse(time.RFC3339, stamp); err != nil {
		return ImportInfo{}, false, fmt.Errorf("parse import time: %w", err)
	}
	return info, true, nil
}

// Count returns the number of stored schemes.
func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schemes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count schemes: %w", err)
	}
	return n, nil
}
