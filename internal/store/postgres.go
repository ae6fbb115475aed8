package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/swc-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store needs. pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store using pgxpool. Locations are kept in a
// PostGIS point column.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS postgis;

CREATE TABLE IF NOT EXISTS evaluations (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	lat        DOUBLE PRECISION NOT NULL,
	lon        DOUBLE PRECISION NOT NULL,
	land_use   TEXT NOT NULL,
	mode       TEXT NOT NULL DEFAULT '',
	risk_level TEXT NOT NULL DEFAULT '',
	reason     TEXT NOT NULL DEFAULT '',
	location   geometry(Point, 4326) NOT NULL,
	result     JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_evaluations_status ON evaluations(status);
CREATE INDEX IF NOT EXISTS idx_evaluations_created_at ON evaluations(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_evaluations_location ON evaluations USING GIST (location);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// encodePoint returns the EWKB of a WGS84 point.
func encodePoint(lat, lon float64) ([]byte, error) {
	p := geom.NewPointFlat(geom.XY, []float64{lon, lat}).SetSRID(4326)
	data, err := ewkb.Marshal(p, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: encode location")
	}
	return data, nil
}

func (s *PostgresStore) SaveEvaluation(ctx context.Context, a *model.Analysis) error {
	r := newRecord(a)
	resultJSON, err := json.Marshal(a)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal analysis")
	}
	location, err := encodePoint(r.Latitude, r.Longitude)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO evaluations (id, status, lat, lon, land_use, mode, risk_level, reason, location, result, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, ST_GeomFromEWKB($9), $10, $11)`,
		r.ID, string(r.Status), r.Latitude, r.Longitude, string(r.LandUse),
		string(r.Mode), string(r.RiskLevel), r.Reason, location, resultJSON, r.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert evaluation %s", r.ID)
}

func (s *PostgresStore) GetEvaluation(ctx context.Context, id string) (*Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+selectColumns+` FROM evaluations WHERE id = $1`, id,
	)
	r, err := scanPostgresRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get evaluation %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get evaluation %s", id)
	}
	return r, nil
}

func (s *PostgresStore) ListEvaluations(ctx context.Context, filter Filter) ([]Record, error) {
	query := `SELECT ` + selectColumns + ` FROM evaluations WHERE 1=1`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if filter.LandUse != "" {
		args = append(args, string(filter.LandUse))
		query += fmt.Sprintf(` AND land_use = $%d`, len(args))
	}
	args = append(args, filter.limit())
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list evaluations")
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanPostgresRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan evaluation")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list evaluations iterate")
}

func scanPostgresRecord(row scannable) (*Record, error) {
	var r Record
	var status, landUse, mode, riskLevel string
	var resultJSON []byte
	err := row.Scan(&r.ID, &status, &r.Latitude, &r.Longitude, &landUse,
		&mode, &riskLevel, &r.Reason, &resultJSON, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	r.Status = model.AnalysisStatus(status)
	r.LandUse = model.LandUse(landUse)
	r.Mode = model.Mode(mode)
	r.RiskLevel = model.RiskLevel(riskLevel)
	if err := json.Unmarshal(resultJSON, &r.Analysis); err != nil {
		return nil, eris.Wrap(err, "unmarshal analysis")
	}
	return &r, nil
}
