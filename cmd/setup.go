package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/mergerwatch/casecrawl/internal/attach"
	"github.com/mergerwatch/casecrawl/internal/export"
	"github.com/mergerwatch/casecrawl/internal/fetch"
	"github.com/mergerwatch/casecrawl/internal/pagetype"
	"github.com/mergerwatch/casecrawl/internal/reconcile"
	"github.com/mergerwatch/casecrawl/internal/resilience"
	"github.com/mergerwatch/casecrawl/internal/run"
	"github.com/mergerwatch/casecrawl/internal/source"
	"github.com/mergerwatch/casecrawl/internal/store"
)

func initStore(ctx context.Context) (store.CaseStore, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	return st, nil
}

func newFetchClient() *fetch.Client {
	return fetch.NewClient(fetch.Options{
		UserAgent:    cfg.Fetch.UserAgent,
		Timeout:      cfg.Fetch.Timeout(),
		RateLimiters: fetch.DefaultRateLimiters(),
	})
}

func retryConfig() resilience.RetryConfig {
	return resilience.RetryConfig{
		Attempts: cfg.Crawl.RetryLimit,
		Delay:    cfg.Crawl.RetryDelay(),
	}
}

// loadRules returns the built-in rule table with any configured overrides
// applied, filtered to the requested source names. Empty names means all.
func loadRules(names []string) ([]source.Rule, error) {
	var overrides map[string]source.Override
	if cfg.Sources.OverridesFile != "" {
		var err error
		overrides, err = source.LoadOverrides(cfg.Sources.OverridesFile)
		if err != nil {
			return nil, err
		}
	}

	want := make(map[pagetype.Source]bool, len(names))
	for _, name := range names {
		s, ok := pagetype.ParseSource(name)
		if !ok {
			return nil, eris.Errorf("unknown source %q", name)
		}
		want[s] = true
	}

	var rules []source.Rule
	for _, r := range source.Rules() {
		if len(want) > 0 && !want[r.Source] {
			continue
		}
		if o, ok := overrides[string(r.Source)]; ok {
			r = r.Apply(o)
		}
		rules = append(rules, r)
	}
	return rules, nil
}

func newOrchestrator(st store.CaseStore, exporter *export.Exporter) *run.Orchestrator {
	client := newFetchClient()
	retry := retryConfig()
	fetcher := attach.NewFetcher(client, cfg.Paths.Attachments, retry)
	rec := reconcile.New(st, client, fetcher, retry, reconcile.Options{Verify: cfg.Crawl.Verify})

	return run.New(st, client, rec, exporter, retry, run.Options{
		MaxPages:    cfg.Crawl.MaxPages,
		DelayMin:    cfg.Crawl.DelayMin(),
		DelayMax:    cfg.Crawl.DelayMax(),
		Concurrency: cfg.Crawl.Concurrency,
	})
}
