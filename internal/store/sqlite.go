package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/mergerwatch/casecrawl/internal/model"
)

// SQLiteStore implements CaseStore using modernc.org/sqlite.
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
CREATE TABLE IF NOT EXISTS cases (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	case_name         TEXT NOT NULL,
	notice_start_date TEXT,
	notice_end_date   TEXT,
	source_url        TEXT,
	region            TEXT,
	attachment_path   TEXT,
	created_at        DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_cases_case_name ON cases(case_name);
CREATE INDEX IF NOT EXISTS idx_cases_source_url ON cases(source_url);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteCaseColumns = `id, case_name, notice_start_date, notice_end_date, source_url, region, attachment_path, created_at`

func (s *SQLiteStore) GetByName(ctx context.Context, caseName string) (*model.Case, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteCaseColumns+` FROM cases WHERE case_name = ? ORDER BY id DESC LIMIT 1`,
		caseName,
	)
	c, err := scanCase(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get case by name %q", caseName)
	}
	return c, nil
}

func (s *SQLiteStore) GetBySourceURL(ctx context.Context, sourceURL string) (*model.Case, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteCaseColumns+` FROM cases WHERE source_url = ? ORDER BY id DESC LIMIT 1`,
		sourceURL,
	)
	c, err := scanCase(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get case by source url %q", sourceURL)
	}
	return c, nil
}

func (s *SQLiteStore) Insert(ctx context.Context, c *model.Case) (int64, error) {
	createdAt := time.Now().UTC()
	if c.CreatedAt != nil {
		createdAt = *c.CreatedAt
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO cases (case_name, notice_start_date, notice_end_date, source_url, region, attachment_path, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.CaseName, c.NoticeStartDate, c.NoticeEndDate, c.SourceURL, c.Region, c.AttachmentPath, createdAt,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: insert case %q", c.CaseName)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: last insert id")
	}
	return id, nil
}

func (s *SQLiteStore) Update(ctx context.Context, id int64, u CaseUpdate) error {
	if u.Empty() {
		return nil
	}

	var (
		sets []string
		args []any
	)
	if u.CaseName != nil {
		sets = append(sets, "case_name = ?")
		args = append(args, *u.CaseName)
	}
	if u.NoticeStartDate != nil {
		sets = append(sets, "notice_start_date = ?")
		args = append(args, *u.NoticeStartDate)
	}
	if u.NoticeEndDate != nil {
		sets = append(sets, "notice_end_date = ?")
		args = append(args, *u.NoticeEndDate)
	}
	if u.SourceURL != nil {
		sets = append(sets, "source_url = ?")
		args = append(args, *u.SourceURL)
	}
	if u.Region != nil {
		sets = append(sets, "region = ?")
		args = append(args, *u.Region)
	}
	if u.AttachmentPath != nil {
		sets = append(sets, "attachment_path = ?")
		args = append(args, *u.AttachmentPath)
	}
	if u.TouchedAt != nil {
		sets = append(sets, "created_at = ?")
		args = append(args, *u.TouchedAt)
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		`UPDATE cases SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update case %d", id)
	}
	return checkRowsAffected(res, "case", id)
}

func (s *SQLiteStore) All(ctx context.Context) ([]model.Case, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteCaseColumns+` FROM cases ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list cases")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan case")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate cases")
}

func (s *SQLiteStore) DedupeBySourceURL(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM cases
		WHERE source_url IS NOT NULL
		  AND id NOT IN (
			SELECT MAX(id) FROM cases WHERE source_url IS NOT NULL GROUP BY source_url
		  )`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: dedupe by source url")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// helpers

func checkRowsAffected(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %d", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanCase(row scannable) (*model.Case, error) {
	var (
		c         model.Case
		start     sql.NullString
		end       sql.NullString
		sourceURL sql.NullString
		region    sql.NullString
		attach    sql.NullString
		createdAt sql.NullTime
	)
	err := row.Scan(&c.ID, &c.CaseName, &start, &end, &sourceURL, &region, &attach, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if start.Valid {
		c.NoticeStartDate = &start.String
	}
	if end.Valid {
		c.NoticeEndDate = &end.String
	}
	if sourceURL.Valid {
		c.SourceURL = &sourceURL.String
	}
	if region.Valid {
		c.Region = &region.String
	}
	if attach.Valid {
		c.AttachmentPath = &attach.String
	}
	if createdAt.Valid {
		t := createdAt.Time
		c.CreatedAt = &t
	}
	return &c, nil
}
