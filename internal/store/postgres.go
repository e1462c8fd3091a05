package store

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/mergerwatch/casecrawl/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it
// in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// PostgresStore implements CaseStore using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
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
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const pgMigration = `
CREATE TABLE IF NOT EXISTS cases (
	id                BIGSERIAL PRIMARY KEY,
	case_name         TEXT NOT NULL,
	notice_start_date TEXT,
	notice_end_date   TEXT,
	source_url        TEXT,
	region            TEXT,
	attachment_path   TEXT,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_cases_case_name ON cases(case_name);
CREATE INDEX IF NOT EXISTS idx_cases_source_url ON cases(source_url);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, pgMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

const pgCaseColumns = `id, case_name, notice_start_date, notice_end_date, source_url, region, attachment_path, created_at`

func (s *PostgresStore) GetByName(ctx context.Context, caseName string) (*model.Case, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgCaseColumns+` FROM cases WHERE case_name = $1 ORDER BY id DESC LIMIT 1`,
		caseName,
	)
	c, err := scanPgCase(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get case by name %q", caseName)
	}
	return c, nil
}

func (s *PostgresStore) GetBySourceURL(ctx context.Context, sourceURL string) (*model.Case, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgCaseColumns+` FROM cases WHERE source_url = $1 ORDER BY id DESC LIMIT 1`,
		sourceURL,
	)
	c, err := scanPgCase(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get case by source url %q", sourceURL)
	}
	return c, nil
}

func (s *PostgresStore) Insert(ctx context.Context, c *model.Case) (int64, error) {
	createdAt := time.Now().UTC()
	if c.CreatedAt != nil {
		createdAt = *c.CreatedAt
	}
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO cases (case_name, notice_start_date, notice_end_date, source_url, region, attachment_path, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		c.CaseName, c.NoticeStartDate, c.NoticeEndDate, c.SourceURL, c.Region, c.AttachmentPath, createdAt,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: insert case %q", c.CaseName)
	}
	return id, nil
}

func (s *PostgresStore) Update(ctx context.Context, id int64, u CaseUpdate) error {
	if u.Empty() {
		return nil
	}

	var (
		sets []string
		args []any
	)
	add := func(col string, val any) {
		args = append(args, val)
		sets = append(sets, col+" = $"+strconv.Itoa(len(args)))
	}
	if u.CaseName != nil {
		add("case_name", *u.CaseName)
	}
	if u.NoticeStartDate != nil {
		add("notice_start_date", *u.NoticeStartDate)
	}
	if u.NoticeEndDate != nil {
		add("notice_end_date", *u.NoticeEndDate)
	}
	if u.SourceURL != nil {
		add("source_url", *u.SourceURL)
	}
	if u.Region != nil {
		add("region", *u.Region)
	}
	if u.AttachmentPath != nil {
		add("attachment_path", *u.AttachmentPath)
	}
	if u.TouchedAt != nil {
		add("created_at", *u.TouchedAt)
	}
	args = append(args, id)

	tag, err := s.pool.Exec(ctx,
		`UPDATE cases SET `+strings.Join(sets, ", ")+` WHERE id = $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: update case %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("case not found: %d", id)
	}
	return nil
}

func (s *PostgresStore) All(ctx context.Context) ([]model.Case, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgCaseColumns+` FROM cases ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list cases")
	}
	defer rows.Close()

	var out []model.Case
	for rows.Next() {
		c, err := scanPgCase(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan case")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate cases")
}

func (s *PostgresStore) DedupeBySourceURL(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM cases
		WHERE source_url IS NOT NULL
		  AND id NOT IN (
			SELECT MAX(id) FROM cases WHERE source_url IS NOT NULL GROUP BY source_url
		  )`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: dedupe by source url")
	}
	return int(tag.RowsAffected()), nil
}

func scanPgCase(row pgx.Row) (*model.Case, error) {
	var c model.Case
	err := row.Scan(&c.ID, &c.CaseName, &c.NoticeStartDate, &c.NoticeEndDate,
		&c.SourceURL, &c.Region, &c.AttachmentPath, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
