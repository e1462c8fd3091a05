package run

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/mergerwatch/casecrawl/internal/attach"
	"github.com/mergerwatch/casecrawl/internal/export"
	"github.com/mergerwatch/casecrawl/internal/fetch"
	"github.com/mergerwatch/casecrawl/internal/pagetype"
	"github.com/mergerwatch/casecrawl/internal/parse"
	"github.com/mergerwatch/casecrawl/internal/reconcile"
	"github.com/mergerwatch/casecrawl/internal/resilience"
	"github.com/mergerwatch/casecrawl/internal/source"
	"github.com/mergerwatch/casecrawl/internal/store"
)

func detailPage(title string) string {
	return fmt.Sprintf(`<html><body>
<h1>%s</h1>
<div id="content">
  <p>公示期：2025年4月8日至2025年4月17日</p>
  <p><a href="/files/%s.pdf">案件公示表</a></p>
</div>
</body></html>`, title, title)
}

func listPage(titles ...string) string {
	html := `<html><body><div class="public_list_team"><ul>`
	for _, title := range titles {
		html += fmt.Sprintf(`<li><a href="/%s.html">%s</a><span>2025-04-08</span></li>`, title, title)
	}
	html += `</ul></div></body></html>`
	return html
}

// newCrawlServer serves two listing pages with three cases total.
func newCrawlServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/list/":
			_, _ = fmt.Fprint(w, listPage("案件一", "案件二"))
		case r.URL.Path == "/list/index_1.html":
			_, _ = fmt.Fprint(w, listPage("案件三"))
		case strings.HasPrefix(r.URL.Path, "/files/"):
			_, _ = fmt.Fprint(w, "PDF")
		case strings.HasSuffix(r.URL.Path, ".html") && r.URL.Path != "/list/index_2.html":
			title := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/"), ".html")
			_, _ = fmt.Fprint(w, detailPage(title))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func crawlRule(baseURL string) source.Rule {
	return source.Rule{
		Source:     pagetype.Beijing,
		Region:     "北京",
		BaseURL:    baseURL + "/list/",
		Pagination: source.Pagination{Kind: source.StaticIndex, FirstIndex: 1},
		List: source.ListRule{
			ItemSelector: "div.public_list_team ul li",
			LinkSelector: "a",
			DateSelector: "span",
		},
		Parser: &parse.Parser{
			Source:     string(pagetype.Beijing),
			Title:      []parse.TitleStrategy{parse.ElementTitle("h1")},
			DateRange:  []parse.DateStrategy{parse.ContainerDates("div#content")},
			Attachment: []parse.AttachmentStrategy{parse.DocLinkScan("", false)},
		},
	}
}

func newOrchestrator(t *testing.T, exportPath string, opts Options) (*Orchestrator, store.CaseStore) {
	t.Helper()
	st, err := store.Open(context.Background(), store.Config{
		Path: filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck

	client := fetch.NewClient(fetch.Options{Timeout: 5 * time.Second})
	retry := resilience.RetryConfig{Attempts: 2, Delay: time.Millisecond}
	fetcher := attach.NewFetcher(client, t.TempDir(), retry)
	rec := reconcile.New(st, client, fetcher, retry, reconcile.Options{})

	var exporter *export.Exporter
	if exportPath != "" {
		exporter = export.New(exportPath)
	}
	return New(st, client, rec, exporter, retry, opts), st
}

func TestRunSource_CrawlsAllPages(t *testing.T) {
	srv := newCrawlServer(t)
	o, st := newOrchestrator(t, "", Options{})

	report, err := o.RunSource(context.Background(), crawlRule(srv.URL))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Pages)
	assert.Equal(t, 3, report.Seen)
	assert.Equal(t, 3, report.Inserted)
	assert.Zero(t, report.Updated)
	assert.Zero(t, report.Skipped)
	assert.NotEmpty(t, report.RunID)
	assert.False(t, report.EndedAt.Before(report.StartedAt))

	all, err := st.All(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestRunSource_SecondRunIsIdempotent(t *testing.T) {
	srv := newCrawlServer(t)
	o, st := newOrchestrator(t, "", Options{})
	ctx := context.Background()

	_, err := o.RunSource(ctx, crawlRule(srv.URL))
	require.NoError(t, err)

	report, err := o.RunSource(ctx, crawlRule(srv.URL))
	require.NoError(t, err)
	assert.Zero(t, report.Inserted)
	assert.Zero(t, report.Updated)
	assert.Equal(t, 3, report.Skipped)

	all, err := st.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3, "re-running must not duplicate cases")
}

func TestRunSource_MaxPagesBound(t *testing.T) {
	srv := newCrawlServer(t)
	o, _ := newOrchestrator(t, "", Options{MaxPages: 1})

	report, err := o.RunSource(context.Background(), crawlRule(srv.URL))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Pages)
	assert.Equal(t, 2, report.Seen)
}

func TestRunSource_PagerStallEndsSourceCleanly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "case.html") {
			_, _ = fmt.Fprint(w, detailPage("不变案件"))
			return
		}
		if strings.HasPrefix(r.URL.Path, "/files/") {
			_, _ = fmt.Fprint(w, "PDF")
			return
		}
		_, _ = fmt.Fprint(w, `<html><body><div class="plist"><a href="/case.html">不变案件</a></div></body></html>`)
	}))
	t.Cleanup(srv.Close)

	rule := crawlRule(srv.URL)
	rule.Source = pagetype.SAMR
	rule.Region = "总局"
	rule.BaseURL = srv.URL + "/index.html"
	rule.Pagination = source.Pagination{Kind: source.Pager, PagerURL: srv.URL + "/pager"}
	rule.List = source.ListRule{ItemSelector: "div.plist a"}

	o, _ := newOrchestrator(t, "", Options{})
	report, err := o.RunSource(context.Background(), rule)
	require.NoError(t, err, "a stalled pager ends the source, it is not a run failure")
	assert.Equal(t, 1, report.Pages)
	assert.Equal(t, 1, report.Inserted)
}

func TestRunAll_ExportsWorkbook(t *testing.T) {
	srv := newCrawlServer(t)
	exportPath := filepath.Join(t.TempDir(), "cases.xlsx")
	o, _ := newOrchestrator(t, exportPath, Options{})

	reports, err := o.RunAll(context.Background(), []source.Rule{crawlRule(srv.URL)})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, 3, reports[0].Inserted)

	f, err := xlsx.OpenFile(exportPath)
	require.NoError(t, err)
	require.NotEmpty(t, f.Sheets)
	assert.Len(t, f.Sheets[0].Rows, 4) // header + three cases
}

func TestRunAll_OneFailingSourceDoesNotStopOthers(t *testing.T) {
	srv := newCrawlServer(t)
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(dead.Close)

	badRule := crawlRule(dead.URL)
	badRule.Source = pagetype.Chongqing
	badRule.Region = "重庆"

	o, st := newOrchestrator(t, "", Options{Concurrency: 1})
	reports, err := o.RunAll(context.Background(), []source.Rule{badRule, crawlRule(srv.URL)})
	require.Error(t, err)
	require.Len(t, reports, 2)

	all, listErr := st.All(context.Background())
	require.NoError(t, listErr)
	assert.Len(t, all, 3, "the healthy source must complete")
}
