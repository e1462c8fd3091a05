package source

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mergerwatch/casecrawl/internal/fetch"
	"github.com/mergerwatch/casecrawl/internal/model"
	"github.com/mergerwatch/casecrawl/internal/resilience"
)

// ErrPagerStalled means the "next" control was invoked but the listing did
// not change: the first title matched the previous page's fingerprint. The
// error is not transient, so it is never retried into a loop.
var ErrPagerStalled = eris.New("source: pager did not advance")

// Page is the result of one listing fetch.
type Page struct {
	Number int
	Cases  []model.CaseLink
}

// Adapter walks one source's listing pages. It is stateful for Pager
// sources (the fingerprint of the page last seen); create a fresh adapter
// per run.
type Adapter struct {
	rule        Rule
	client      *fetch.Client
	retry       resilience.RetryConfig
	fingerprint string
}

// NewAdapter creates an adapter for the given rule.
func NewAdapter(rule Rule, client *fetch.Client, retry resilience.RetryConfig) *Adapter {
	retry.OnRetry = resilience.RetryLogger(string(rule.Source), "fetch listing")
	return &Adapter{rule: rule, client: client, retry: retry}
}

// Rule returns the adapter's source rule.
func (a *Adapter) Rule() Rule {
	return a.rule
}

// FetchListing fetches listing page pageNo (1-based) and extracts its case
// links. done=true means the source has no page at pageNo and the run
// should stop; it is not an error. Transient fetch failures are retried up
// to the adapter's budget before surfacing.
func (a *Adapter) FetchListing(ctx context.Context, pageNo int) (page *Page, done bool, err error) {
	if pageNo > 1 && a.rule.Pagination.Kind == Flat {
		return nil, true, nil
	}

	doc, err := resilience.DoVal(ctx, a.retry, func(ctx context.Context) (*goquery.Document, error) {
		return a.fetchPage(ctx, pageNo)
	})
	if err != nil {
		if fetch.IsNotFound(err) {
			// Probed past the last page.
			return nil, true, nil
		}
		return nil, false, eris.Wrapf(err, "source: %s: fetch listing page %d", a.rule.Source, pageNo)
	}

	cases := a.extractCases(doc)
	if len(cases) == 0 {
		zap.L().Info("listing page empty, treating as end of source",
			zap.String("source", string(a.rule.Source)),
			zap.Int("page", pageNo),
		)
		return nil, true, nil
	}

	if a.rule.Pagination.Kind == Pager {
		if pageNo > 1 && cases[0].Title == a.fingerprint {
			return nil, false, eris.Wrapf(ErrPagerStalled, "source: %s: page %d", a.rule.Source, pageNo)
		}
		a.fingerprint = cases[0].Title
	}

	return &Page{Number: pageNo, Cases: cases}, false, nil
}

func (a *Adapter) fetchPage(ctx context.Context, pageNo int) (*goquery.Document, error) {
	p := a.rule.Pagination
	if p.Kind == Pager && pageNo > 1 {
		form := url.Values{}
		form.Set("webId", string(a.rule.Source))
		form.Set("pageNo", strconv.Itoa(pageNo))
		return a.client.PostForm(ctx, p.PagerURL, form)
	}
	return a.client.GetDocument(ctx, a.pageURL(pageNo))
}

// pageURL maps a page number to its listing URL for static-index sources.
func (a *Adapter) pageURL(pageNo int) string {
	if pageNo <= 1 || a.rule.Pagination.Kind != StaticIndex {
		return a.rule.BaseURL
	}
	dir := a.rule.BaseURL
	if i := strings.LastIndex(dir, "/"); i >= 0 && strings.HasSuffix(dir, ".html") {
		dir = dir[:i+1]
	}
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	return dir + fmt.Sprintf("index_%d.html", pageNo-2+a.rule.Pagination.FirstIndex)
}

// extractCases reads the case links off a listing document per the list
// rule. Relative hrefs are resolved against the document URL.
func (a *Adapter) extractCases(doc *goquery.Document) []model.CaseLink {
	var cases []model.CaseLink

	doc.Find(a.rule.List.ItemSelector).Each(func(_ int, item *goquery.Selection) {
		link := item
		if a.rule.List.LinkSelector != "" {
			link = item.Find(a.rule.List.LinkSelector).First()
			if link.Length() == 0 {
				return
			}
		}

		href, ok := link.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		title := strings.TrimSpace(link.Text())
		if title == "" {
			return
		}

		var listDate string
		if a.rule.List.DateSelector != "" {
			listDate = strings.TrimSpace(item.Find(a.rule.List.DateSelector).First().Text())
		}

		if a.rule.List.StripDateSuffix && listDate != "" && strings.HasSuffix(title, listDate) {
			title = strings.TrimSpace(strings.TrimSuffix(title, listDate))
			title = strings.TrimSpace(strings.TrimSuffix(title, "."))
		}
		if title == "" {
			return
		}

		cases = append(cases, model.CaseLink{
			Title:    title,
			URL:      a.resolveHref(doc, href),
			ListDate: listDate,
		})
	})

	return cases
}

func (a *Adapter) resolveHref(doc *goquery.Document, href string) string {
	href = strings.TrimPrefix(strings.TrimSpace(href), "./")
	base := doc.Url
	if base == nil {
		var err error
		base, err = url.Parse(a.rule.BaseURL)
		if err != nil {
			return href
		}
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
