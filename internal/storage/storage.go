// Package storage provides SQLite-backed persistence for computed estimation frames.
package storage

import (
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/rewired-gh/pppwatch/internal/models"
)

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db        *sql.DB
	maxFrames int
	now       func() time.Time
}

// FrameInfo describes one stored frame without its rows.
type FrameInfo struct {
	ID         string    `json:"id"`
	PairKey    string    `json:"pair_key"`
	FirstIndex int       `json:"first_index"`
	LastIndex  int       `json:"last_index"`
	Rows       int       `json:"rows"`
	ComputedAt time.Time `json:"computed_at"`
}

// New opens or creates the SQLite database at dbPath, keeping at most maxFrames
// frames per pair. An empty dbPath defaults to $TMPDIR/pppwatch/data.db.
func New(maxFrames int, dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "pppwatch", "data.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	if maxFrames < 1 {
		maxFrames = 1
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	s := &Storage{db: db, maxFrames: maxFrames, now: time.Now}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS frames (
			id           TEXT PRIMARY KEY,
			pair_key     TEXT NOT NULL,
			first_index  INTEGER NOT NULL,
			last_index   INTEGER NOT NULL,
			row_count    INTEGER NOT NULL,
			computed_at  INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS frame_rows (
			frame_id       TEXT NOT NULL REFERENCES frames(id) ON DELETE CASCADE,
			idx            INTEGER NOT NULL,
			price_a        REAL NOT NULL,
			price_b        REAL NOT NULL,
			price_ratio    REAL NOT NULL,
			rate           REAL NOT NULL,
			instant_coef   REAL NOT NULL,
			running_coef   REAL NOT NULL,
			estimate       REAL NOT NULL,
			relative_error REAL,
			error_mean     REAL,
			error_std      REAL,
			error_low      REAL,
			error_high     REAL,
			estimate_low   REAL,
			estimate_high  REAL,
			PRIMARY KEY (frame_id, idx)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_frames_pair_computed ON frames(pair_key, computed_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveFrame stores a frame for a pair and returns its generated ID.
// Older frames beyond the per-pair cap are removed in the same transaction.
func (s *Storage) SaveFrame(pairKey string, frame *models.Frame) (string, error) {
	if pairKey == "" {
		return "", fmt.Errorf("pair key must not be empty")
	}
	if frame.Len() == 0 {
		return "", fmt.Errorf("refusing to store an empty frame")
	}
	first := frame.Row(0).Index
	last, _ := frame.LastIndex()

	id := uuid.New().String()

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(`
		INSERT INTO frames (id, pair_key, first_index, last_index, row_count, computed_at)
		VALUES (?,?,?,?,?,?)`,
		id, pairKey, first, last, frame.Len(), s.now().UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert frame: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO frame_rows
			(frame_id, idx, price_a, price_b, price_ratio, rate, instant_coef, running_coef,
			 estimate, relative_error, error_mean, error_std, error_low, error_high,
			 estimate_low, estimate_high)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare row insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range frame.Rows() {
		_, err := stmt.Exec(
			id, r.Index, r.PriceA, r.PriceB, r.PriceRatio, r.Rate, r.InstantCoef, r.RunningCoef,
			r.Estimate, nullable(r.RelativeError), nullable(r.ErrorMean), nullable(r.ErrorStd),
			nullable(r.ErrorLow), nullable(r.ErrorHigh), nullable(r.EstimateLow), nullable(r.EstimateHigh),
		)
		if err != nil {
			return "", fmt.Errorf("failed to insert row %d: %w", r.Index, err)
		}
	}

	if _, err = tx.Exec(`
		DELETE FROM frames WHERE pair_key = ? AND id NOT IN (
			SELECT id FROM frames WHERE pair_key = ? ORDER BY computed_at DESC, rowid DESC LIMIT ?
		)`, pairKey, pairKey, s.maxFrames); err != nil {
		return "", fmt.Errorf("failed to enforce frame cap: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit frame: %w", err)
	}
	return id, nil
}

// LoadFrame returns the most recently stored frame for a pair along with its
// metadata, or a nil frame if none exists.
func (s *Storage) LoadFrame(pairKey string) (*models.Frame, FrameInfo, error) {
	fi, err := scanInfo(s.db.QueryRow(`
		SELECT id, pair_key, first_index, last_index, row_count, computed_at
		FROM frames WHERE pair_key = ?
		ORDER BY computed_at DESC, rowid DESC LIMIT 1`, pairKey).Scan)
	if err == sql.ErrNoRows {
		return nil, FrameInfo{}, nil
	}
	if err != nil {
		return nil, FrameInfo{}, fmt.Errorf("failed to find frame: %w", err)
	}
	frame, err := s.LoadFrameByID(fi.ID)
	if err != nil {
		return nil, FrameInfo{}, err
	}
	return frame, fi, nil
}

// LoadFrameByID returns the rows of one stored frame.
func (s *Storage) LoadFrameByID(id string) (*models.Frame, error) {
	rows, err := s.db.Query(`SELECT `+rowCols+` FROM frame_rows WHERE frame_id = ? ORDER BY idx`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query frame rows: %w", err)
	}
	defer rows.Close()

	var out []models.Row
	for rows.Next() {
		r, err := scanRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan frame row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("frame not found: %s", id)
	}
	return models.NewFrame(out)
}

// FrameHistory lists stored frames for a pair, newest first.
func (s *Storage) FrameHistory(pairKey string) ([]FrameInfo, error) {
	rows, err := s.db.Query(`
		SELECT id, pair_key, first_index, last_index, row_count, computed_at
		FROM frames WHERE pair_key = ? ORDER BY computed_at DESC, rowid DESC`, pairKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query frames: %w", err)
	}
	defer rows.Close()

	history := []FrameInfo{}
	for rows.Next() {
		fi, err := scanInfo(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan frame: %w", err)
		}
		history = append(history, fi)
	}
	return history, rows.Err()
}

func scanInfo(scan func(...any) error) (FrameInfo, error) {
	var fi FrameInfo
	var computedAtNano int64
	if err := scan(&fi.ID, &fi.PairKey, &fi.FirstIndex, &fi.LastIndex, &fi.Rows, &computedAtNano); err != nil {
		return FrameInfo{}, err
	}
	fi.ComputedAt = time.Unix(0, computedAtNano)
	return fi, nil
}

// ClearFrames removes every stored frame for a pair.
func (s *Storage) ClearFrames(pairKey string) error {
	if _, err := s.db.Exec(`DELETE FROM frames WHERE pair_key = ?`, pairKey); err != nil {
		return fmt.Errorf("failed to clear frames: %w", err)
	}
	return nil
}

const rowCols = `idx, price_a, price_b, price_ratio, rate, instant_coef, running_coef,
	estimate, relative_error, error_mean, error_std, error_low, error_high,
	estimate_low, estimate_high`

func scanRow(scan func(...any) error) (models.Row, error) {
	var r models.Row
	var relErr, mean, std, low, high, estLow, estHigh sql.NullFloat64
	err := scan(
		&r.Index, &r.PriceA, &r.PriceB, &r.PriceRatio, &r.Rate, &r.InstantCoef, &r.RunningCoef,
		&r.Estimate, &relErr, &mean, &std, &low, &high, &estLow, &estHigh,
	)
	if err != nil {
		return models.Row{}, err
	}
	r.RelativeError = fromNullable(relErr)
	r.ErrorMean = fromNullable(mean)
	r.ErrorStd = fromNullable(std)
	r.ErrorLow = fromNullable(low)
	r.ErrorHigh = fromNullable(high)
	r.EstimateLow = fromNullable(estLow)
	r.EstimateHigh = fromNullable(estHigh)
	return r, nil
}

// nullable maps the in-memory missing marker (and infinities) to SQL NULL.
func nullable(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func fromNullable(v sql.NullFloat64) float64 {
	if !v.Valid {
		return models.Missing()
	}
	return v.Float64
}
