// Package reconcile merges freshly crawled case details into the store.
// Fills are monotonic: a stored value is never overwritten with a different
// one, only NULL columns are filled. Region is the exception and is always
// corrected, because early runs recorded every case under 未知.
package reconcile

import (
	"context"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mergerwatch/casecrawl/internal/attach"
	"github.com/mergerwatch/casecrawl/internal/fetch"
	"github.com/mergerwatch/casecrawl/internal/model"
	"github.com/mergerwatch/casecrawl/internal/resilience"
	"github.com/mergerwatch/casecrawl/internal/source"
	"github.com/mergerwatch/casecrawl/internal/store"
)

// Outcome classifies what reconciliation did with one case.
type Outcome int

const (
	// Unchanged means the stored row already had everything the detail
	// page offered.
	Unchanged Outcome = iota
	// Updated means at least one column was filled or corrected.
	Updated
	// Inserted means the case was new.
	Inserted
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case Unchanged:
		return "unchanged"
	case Updated:
		return "updated"
	case Inserted:
		return "inserted"
	default:
		return "unknown"
	}
}

// Options tunes reconciler behavior.
type Options struct {
	// Verify re-reads each written row and logs a mismatch. Off by
	// default; it doubles the read load for a condition that has not
	// been observed outside of manual database edits.
	Verify bool
}

// Reconciler drives the per-case fetch, parse, and merge.
type Reconciler struct {
	store  store.CaseStore
	client *fetch.Client
	attach *attach.Fetcher
	retry  resilience.RetryConfig
	opts   Options
}

// New creates a reconciler.
func New(st store.CaseStore, client *fetch.Client, fetcher *attach.Fetcher, retry resilience.RetryConfig, opts Options) *Reconciler {
	return &Reconciler{store: st, client: client, attach: fetcher, retry: retry, opts: opts}
}

// ReconcileCase processes one listing entry against the store. Errors are
// per-case: the caller logs them and moves on to the next entry.
func (r *Reconciler) ReconcileCase(ctx context.Context, rule source.Rule, link model.CaseLink) (Outcome, error) {
	existing, err := r.store.GetByName(ctx, link.Title)
	if err != nil {
		return Unchanged, err
	}
	if existing != nil && r.complete(existing, rule.Region) {
		// Nothing the detail page offers can change this row, but a
		// re-sighting still refreshes its reconciliation timestamp.
		return Unchanged, r.touch(ctx, existing.ID)
	}

	doc, err := r.fetchDetail(ctx, rule, link.URL)
	if err != nil {
		return Unchanged, err
	}

	detail, err := rule.Parser.Parse(doc, link.URL)
	if err != nil {
		return Unchanged, err
	}

	if existing == nil && detail.Title != link.Title {
		// Listing titles get truncated; the detail page carries the full
		// name the row may have been stored under.
		existing, err = r.store.GetByName(ctx, detail.Title)
		if err != nil {
			return Unchanged, err
		}
	}

	if existing != nil {
		return r.update(ctx, rule, existing, detail)
	}
	return r.insert(ctx, rule, link, detail)
}

// complete reports whether a stored row can gain nothing from its detail
// page: both dates present, attachment present, region already correct.
func (r *Reconciler) complete(c *model.Case, region string) bool {
	return c.NoticeStartDate != nil && c.NoticeEndDate != nil &&
		c.AttachmentPath != nil && model.StrVal(c.Region) == region
}

func (r *Reconciler) fetchDetail(ctx context.Context, rule source.Rule, pageURL string) (*goquery.Document, error) {
	cfg := r.retry
	cfg.OnRetry = resilience.RetryLogger(string(rule.Source), "fetch detail")
	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (*goquery.Document, error) {
		return r.client.GetDocument(ctx, pageURL)
	})
}

func (r *Reconciler) update(ctx context.Context, rule source.Rule, existing *model.Case, detail *model.Detail) (Outcome, error) {
	var u store.CaseUpdate
	if detail.Title != "" && existing.CaseName != detail.Title {
		// The row was stored under a truncated listing title; the detail
		// page carries the full name.
		u.CaseName = &detail.Title
	}
	if existing.NoticeStartDate == nil && detail.StartDate != "" {
		u.NoticeStartDate = &detail.StartDate
	}
	if existing.NoticeEndDate == nil && detail.EndDate != "" {
		u.NoticeEndDate = &detail.EndDate
	}
	if existing.SourceURL == nil && detail.SourceURL != "" {
		u.SourceURL = &detail.SourceURL
	}
	if model.StrVal(existing.Region) != rule.Region {
		u.Region = &rule.Region
	}
	if existing.AttachmentPath == nil && detail.AttachmentURL != "" {
		path, err := r.attach.Acquire(ctx, existing.CaseName, detail.AttachmentURL)
		if err != nil {
			// The row update still proceeds; the attachment can be
			// picked up on the next run.
			zap.L().Warn("attachment acquisition failed",
				zap.String("case", existing.CaseName),
				zap.Error(err),
			)
		} else {
			u.AttachmentPath = &path
		}
	}

	outcome := Updated
	if u.Empty() {
		outcome = Unchanged
	}
	now := time.Now().UTC()
	u.TouchedAt = &now
	if err := r.store.Update(ctx, existing.ID, u); err != nil {
		return Unchanged, err
	}
	if r.opts.Verify {
		name := existing.CaseName
		if u.CaseName != nil {
			name = *u.CaseName
		}
		r.verifyRow(ctx, name)
	}
	return outcome, nil
}

// touch refreshes the last-reconciliation timestamp without changing any
// other column.
func (r *Reconciler) touch(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	return r.store.Update(ctx, id, store.CaseUpdate{TouchedAt: &now})
}

func (r *Reconciler) insert(ctx context.Context, rule source.Rule, link model.CaseLink, detail *model.Detail) (Outcome, error) {
	var attachmentPath *string
	if detail.AttachmentURL != "" {
		path, err := r.attach.Acquire(ctx, detail.Title, detail.AttachmentURL)
		if err != nil {
			zap.L().Warn("attachment acquisition failed",
				zap.String("case", detail.Title),
				zap.Error(err),
			)
		} else {
			attachmentPath = &path
		}
	}

	c := &model.Case{
		CaseName:        detail.Title,
		NoticeStartDate: model.StrPtr(detail.StartDate),
		NoticeEndDate:   model.StrPtr(detail.EndDate),
		SourceURL:       model.StrPtr(link.URL),
		Region:          &rule.Region,
		AttachmentPath:  attachmentPath,
	}
	if _, err := r.store.Insert(ctx, c); err != nil {
		return Unchanged, eris.Wrapf(err, "reconcile: insert %q", detail.Title)
	}
	if r.opts.Verify {
		r.verifyRow(ctx, detail.Title)
	}
	return Inserted, nil
}

func (r *Reconciler) verifyRow(ctx context.Context, caseName string) {
	got, err := r.store.GetByName(ctx, caseName)
	if err != nil || got == nil {
		zap.L().Error("post-write verification failed",
			zap.String("case", caseName),
			zap.Error(err),
		)
	}
}
