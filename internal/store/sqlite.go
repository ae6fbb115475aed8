package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/swc-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS evaluations (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	lat        REAL NOT NULL,
	lon        REAL NOT NULL,
	land_use   TEXT NOT NULL,
	mode       TEXT NOT NULL DEFAULT '',
	risk_level TEXT NOT NULL DEFAULT '',
	reason     TEXT NOT NULL DEFAULT '',
	result     TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_evaluations_status ON evaluations(status);
CREATE INDEX IF NOT EXISTS idx_evaluations_created_at ON evaluations(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveEvaluation(ctx context.Context, a *model.Analysis) error {
	r := newRecord(a)
	resultJSON, err := json.Marshal(a)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal analysis")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO evaluations (id, status, lat, lon, land_use, mode, risk_level, reason, result, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, string(r.Status), r.Latitude, r.Longitude, string(r.LandUse),
		string(r.Mode), string(r.RiskLevel), r.Reason, string(resultJSON), r.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert evaluation %s", r.ID)
}

func (s *SQLiteStore) GetEvaluation(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM evaluations WHERE id = ?`, id,
	)
	r, err := scanSQLiteRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get evaluation %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get evaluation %s", id)
	}
	return r, nil
}

func (s *SQLiteStore) ListEvaluations(ctx context.Context, filter Filter) ([]Record, error) {
	query := `SELECT ` + selectColumns + ` FROM evaluations WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.LandUse != "" {
		query += ` AND land_use = ?`
		args = append(args, string(filter.LandUse))
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, filter.limit())

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list evaluations")
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanSQLiteRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan evaluation")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list evaluations iterate")
}

func scanSQLiteRecord(row scannable) (*Record, error) {
	var r Record
	var status, landUse, mode, riskLevel, resultJSON string
	err := row.Scan(&r.ID, &status, &r.Latitude, &r.Longitude, &landUse,
		&mode, &riskLevel, &r.Reason, &resultJSON, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	r.Status = model.AnalysisStatus(status)
	r.LandUse = model.LandUse(landUse)
	r.Mode = model.Mode(mode)
	r.RiskLevel = model.RiskLevel(riskLevel)
	if err := json.Unmarshal([]byte(resultJSON), &r.Analysis); err != nil {
		return nil, eris.Wrap(err, "unmarshal analysis")
	}
	return &r, nil
}
