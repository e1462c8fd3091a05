// Package store persists cases. SQLite is the default backend; Postgres is
// available for shared deployments. Both speak the same CaseStore
// interface, so the reconciler does not care which one it is given.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/mergerwatch/casecrawl/internal/model"
)

// CaseUpdate is a field-limited update: only non-nil fields are written.
// The reconciler uses this to fill missing values without clobbering
// columns it did not inspect. TouchedAt refreshes created_at, which
// doubles as the last-reconciliation timestamp.
type CaseUpdate struct {
	CaseName        *string
	NoticeStartDate *string
	NoticeEndDate   *string
	SourceURL       *string
	Region          *string
	AttachmentPath  *string
	TouchedAt       *time.Time
}

// Empty reports whether the update carries no fields.
func (u CaseUpdate) Empty() bool {
	return u.CaseName == nil && u.NoticeStartDate == nil &&
		u.NoticeEndDate == nil && u.SourceURL == nil &&
		u.Region == nil && u.AttachmentPath == nil && u.TouchedAt == nil
}

// CaseStore defines the persistence interface for the crawl pipeline.
// Lookup methods return (nil, nil) when no row matches.
type CaseStore interface {
	GetByName(ctx context.Context, caseName string) (*model.Case, error)
	GetBySourceURL(ctx context.Context, sourceURL string) (*model.Case, error)
	Insert(ctx context.Context, c *model.Case) (int64, error)
	Update(ctx context.Context, id int64, u CaseUpdate) error
	All(ctx context.Context) ([]model.Case, error)

	// DedupeBySourceURL deletes older duplicates sharing a source URL,
	// keeping the most recently inserted row. Returns rows deleted.
	DedupeBySourceURL(ctx context.Context) (int, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Config selects and configures the storage backend.
type Config struct {
	Driver string      `yaml:"driver" mapstructure:"driver"`
	Path   string      `yaml:"path" mapstructure:"path"`
	DSN    string      `yaml:"dsn" mapstructure:"dsn"`
	Pool   *PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// Open creates the configured store and runs migrations.
func Open(ctx context.Context, cfg Config) (CaseStore, error) {
	var (
		s   CaseStore
		err error
	)
	switch cfg.Driver {
	case "", "sqlite":
		s, err = NewSQLite(cfg.Path)
	case "postgres":
		s, err = NewPostgres(ctx, cfg.DSN, cfg.Pool)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}
