package out

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"roomscan/internal/modules/capture/domain"
	captureout "roomscan/internal/modules/capture/port/out"
	apperrors "roomscan/internal/platform/errors"

	_ "modernc.org/sqlite"
)

const defaultListLimit = 50

type SQLiteScanIndex struct {
	db *sql.DB
}

func NewSQLiteScanIndex(dbPath string) (captureout.ScanIndex, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	index := &SQLiteScanIndex{db: db}
	if err := index.ensureSchema(context.Background()); err != nil {
		return nil, err
	}
	return index, nil
}

func (s *SQLiteScanIndex) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS scans (
  id TEXT PRIMARY KEY,
  session_id TEXT NOT NULL,
  data_path TEXT NOT NULL,
  model_path TEXT NOT NULL,
  walls INTEGER NOT NULL,
  doors INTEGER NOT NULL,
  windows INTEGER NOT NULL,
  openings INTEGER NOT NULL,
  floors INTEGER NOT NULL,
  objects INTEGER NOT NULL,
  sections INTEGER NOT NULL,
  created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS scans_created_at ON scans(created_at);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create scans table: %w", err)
	}
	return nil
}

func (s *SQLiteScanIndex) Record(ctx context.Context, record domain.ScanRecord) error {
	const stmt = `
INSERT INTO scans (id, session_id, data_path, model_path, walls, doors, windows, openings, floors, objects, sections, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  session_id=excluded.session_id,
  data_path=excluded.data_path,
  model_path=excluded.model_path,
  walls=excluded.walls,
  doors=excluded.doors,
  windows=excluded.windows,
  openings=excluded.openings,
  floors=excluded.floors,
  objects=excluded.objects,
  sections=excluded.sections,
  created_at=excluded.created_at;
`
	c := record.Counts
	if _, err := s.db.ExecContext(ctx, stmt,
		record.ID,
		record.SessionID,
		record.DataPath,
		record.ModelPath,
		c.Walls, c.Doors, c.Windows, c.Openings, c.Floors, c.Objects, c.Sections,
		record.CreatedAt.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("record scan: %w", err)
	}
	return nil
}

func (s *SQLiteScanIndex) List(ctx context.Context, limit int) ([]domain.ScanRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, session_id, data_path, model_path, walls, doors, windows, openings, floors, objects, sections, created_at
FROM scans ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	defer rows.Close()

	var out []domain.ScanRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scans: %w", err)
	}
	return out, nil
}

func (s *SQLiteScanIndex) Get(ctx context.Context, scanID string) (domain.ScanRecord, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, session_id, data_path, model_path, walls, doors, windows, openings, floors, objects, sections, created_at
FROM scans WHERE id = ?`, scanID)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ScanRecord{}, apperrors.ErrNotFound
	}
	return record, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteScanIndex) Close() error {
	return s.db.Close()
}

func scanRecord(row rowScanner) (domain.ScanRecord, error) {
	var record domain.ScanRecord
	var createdAt string
	c := &record.Counts
	if err := row.Scan(&record.ID, &record.SessionID, &record.DataPath, &record.ModelPath,
		&c.Walls, &c.Doors, &c.Windows, &c.Openings, &c.Floors, &c.Objects, &c.Sections, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ScanRecord{}, err
		}
		return domain.ScanRecord{}, fmt.Errorf("scan row: %w", err)
	}
	parsed, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return domain.ScanRecord{}, fmt.Errorf("parse created_at: %w", err)
	}
	record.CreatedAt = parsed
	return record, nil
}
