// Package run drives full crawl runs: page loop per source, per-case
// reconciliation, pacing between requests, and the final workbook export.
package run

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mergerwatch/casecrawl/internal/export"
	"github.com/mergerwatch/casecrawl/internal/fetch"
	"github.com/mergerwatch/casecrawl/internal/model"
	"github.com/mergerwatch/casecrawl/internal/reconcile"
	"github.com/mergerwatch/casecrawl/internal/resilience"
	"github.com/mergerwatch/casecrawl/internal/source"
	"github.com/mergerwatch/casecrawl/internal/store"
)

// Options tunes a crawl run.
type Options struct {
	// MaxPages is the hard page bound per source; pagination bugs on the
	// sites must not turn into unbounded crawls.
	MaxPages int

	// DelayMin and DelayMax bound the random pause between cases and
	// between pages.
	DelayMin time.Duration
	DelayMax time.Duration

	// Concurrency bounds how many sources crawl in parallel. Each source
	// is a different host, so parallelism does not compound per-host load.
	Concurrency int
}

func (o Options) withDefaults() Options {
	if o.MaxPages <= 0 {
		o.MaxPages = 50
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 2
	}
	return o
}

// Orchestrator runs crawls against a set of source rules.
type Orchestrator struct {
	store    store.CaseStore
	client   *fetch.Client
	rec      *reconcile.Reconciler
	exporter *export.Exporter
	retry    resilience.RetryConfig
	opts     Options
}

// New creates an orchestrator. The exporter may be nil to skip the
// workbook step.
func New(st store.CaseStore, client *fetch.Client, rec *reconcile.Reconciler, exporter *export.Exporter, retry resilience.RetryConfig, opts Options) *Orchestrator {
	return &Orchestrator{
		store:    st,
		client:   client,
		rec:      rec,
		exporter: exporter,
		retry:    retry,
		opts:     opts.withDefaults(),
	}
}

// RunSource crawls one source to completion and returns its report. The
// report is returned even on error with the totals accumulated so far.
func (o *Orchestrator) RunSource(ctx context.Context, rule source.Rule) (*model.RunReport, error) {
	report := &model.RunReport{
		RunID:     uuid.New().String(),
		Source:    string(rule.Source),
		Region:    rule.Region,
		StartedAt: time.Now().UTC(),
	}
	defer func() { report.EndedAt = time.Now().UTC() }()

	zap.L().Info("source run started",
		zap.String("run_id", report.RunID),
		zap.String("source", report.Source),
	)

	adapter := source.NewAdapter(rule, o.client, o.retry)
	for pageNo := 1; pageNo <= o.opts.MaxPages; pageNo++ {
		page, done, err := adapter.FetchListing(ctx, pageNo)
		if err != nil {
			if eris.Is(err, source.ErrPagerStalled) {
				zap.L().Warn("pager stalled, treating as end of source",
					zap.String("source", report.Source),
					zap.Int("page", pageNo),
				)
				break
			}
			return report, eris.Wrapf(err, "run: %s", rule.Source)
		}
		if done {
			break
		}

		report.Pages++
		for _, link := range page.Cases {
			report.Seen++
			out, err := o.rec.ReconcileCase(ctx, rule, link)
			if err != nil {
				if ctx.Err() != nil {
					return report, eris.Wrap(ctx.Err(), "run: cancelled")
				}
				zap.L().Warn("case reconciliation failed",
					zap.String("source", report.Source),
					zap.String("case", link.Title),
					zap.Error(err),
				)
				report.Skipped++
				continue
			}
			switch out {
			case reconcile.Inserted:
				report.Inserted++
			case reconcile.Updated:
				report.Updated++
			default:
				report.Skipped++
			}
			if err := o.pause(ctx); err != nil {
				return report, err
			}
		}
		if err := o.pause(ctx); err != nil {
			return report, err
		}
	}

	zap.L().Info("source run finished",
		zap.String("run_id", report.RunID),
		zap.String("source", report.Source),
		zap.Int("pages", report.Pages),
		zap.Int("seen", report.Seen),
		zap.Int("inserted", report.Inserted),
		zap.Int("updated", report.Updated),
		zap.Int("skipped", report.Skipped),
	)
	return report, nil
}

// RunAll crawls every rule, bounded by Options.Concurrency, then exports
// the workbook. A failing source does not stop the others; their errors
// are joined into the returned error.
func (o *Orchestrator) RunAll(ctx context.Context, rules []source.Rule) ([]model.RunReport, error) {
	reports := make([]*model.RunReport, len(rules))
	errs := make([]error, len(rules))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Concurrency)
	for i, rule := range rules {
		g.Go(func() error {
			report, err := o.RunSource(gCtx, rule)
			reports[i] = report
			if err != nil {
				zap.L().Error("source run failed",
					zap.String("source", string(rule.Source)),
					zap.Error(err),
				)
				errs[i] = err
			}
			// Keep the other sources running.
			return nil
		})
	}
	_ = g.Wait()

	out := make([]model.RunReport, 0, len(rules))
	for _, r := range reports {
		if r != nil {
			out = append(out, *r)
		}
	}

	if err := o.Export(ctx); err != nil {
		// The data is safe in the store; the workbook can be regenerated.
		zap.L().Warn("workbook export failed", zap.Error(err))
	}

	return out, errors.Join(errs...)
}

// Export writes the workbook from the current store contents.
func (o *Orchestrator) Export(ctx context.Context) error {
	if o.exporter == nil {
		return nil
	}
	cases, err := o.store.All(ctx)
	if err != nil {
		return err
	}
	return o.exporter.Write(cases)
}

// pause sleeps a random duration inside the configured window.
func (o *Orchestrator) pause(ctx context.Context) error {
	d := o.opts.DelayMin
	if jitter := o.opts.DelayMax - o.opts.DelayMin; jitter > 0 {
		d += time.Duration(rand.Int63n(int64(jitter)))
	}
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "run: cancelled")
	case <-timer.C:
		return nil
	}
}
