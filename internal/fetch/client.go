// Package fetch is the HTTP layer shared by the source adapters and the
// attachment fetcher: rate-limited GETs, charset-aware HTML decoding, and
// streamed downloads. Each call is a single attempt; callers decide the
// retry policy via the resilience package.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"
	"golang.org/x/time/rate"

	"github.com/mergerwatch/casecrawl/internal/resilience"
)

// HTTPError is a non-transient HTTP failure (4xx). The static-index
// paginators probe past the last page and read a 404 as "no more pages".
type HTTPError struct {
	Status int
	URL    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("fetch: http %d from %s", e.Status, e.URL)
}

// IsNotFound reports whether err is an HTTP 404.
func IsNotFound(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.Status == http.StatusNotFound
}

// Options configures the fetch client.
type Options struct {
	UserAgent    string
	Timeout      time.Duration
	RateLimiters map[string]*rate.Limiter
}

// Client wraps net/http with per-host rate limiting and transient-error
// classification.
type Client struct {
	http           *http.Client
	opts           Options
	limiters       map[string]*rate.Limiter
	defaultLimiter *rate.Limiter
}

// DefaultRateLimiters returns the per-host limiters for the known sources.
// The big sites tolerate a request every couple of seconds; nothing here is
// latency sensitive.
func DefaultRateLimiters() map[string]*rate.Limiter {
	hosts := []string{
		"www.samr.gov.cn",
		"scjgj.beijing.gov.cn",
		"scjgj.cq.gov.cn",
		"scjgj.sh.gov.cn",
		"amr.gd.gov.cn",
		"snamr.shaanxi.gov.cn",
	}
	limiters := make(map[string]*rate.Limiter, len(hosts))
	for _, h := range hosts {
		limiters[h] = rate.NewLimiter(rate.Every(2*time.Second), 1)
	}
	return limiters
}

// NewClient creates a fetch client with the given options.
func NewClient(opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"
	}
	limiters := make(map[string]*rate.Limiter)
	for k, v := range opts.RateLimiters {
		limiters[k] = v
	}
	transport := &http.Transport{
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		http: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		opts:           opts,
		limiters:       limiters,
		defaultLimiter: rate.NewLimiter(rate.Every(time.Second), 2),
	}
}

func (c *Client) limiterFor(rawURL string) *rate.Limiter {
	u, err := url.Parse(rawURL)
	if err != nil {
		return c.defaultLimiter
	}
	if lim, ok := c.limiters[u.Host]; ok {
		return lim
	}
	return c.defaultLimiter
}

func (c *Client) do(ctx context.Context, method, rawURL string, body io.Reader) (*http.Response, error) {
	if err := c.limiterFor(rawURL).Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "fetch: rate limiter wait")
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, eris.Wrap(err, "fetch: create request")
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.NewTransientFetchError(eris.Wrapf(err, "fetch: %s %s", method, rawURL), 0)
	}

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		_ = resp.Body.Close()
		return nil, resilience.NewTransientFetchError(
			eris.Errorf("fetch: http %d from %s", resp.StatusCode, rawURL), resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, &HTTPError{Status: resp.StatusCode, URL: rawURL}
	}

	return resp, nil
}

// GetDocument fetches an HTML page and parses it into a goquery document.
// The body is decoded to UTF-8 first; the provincial sites still serve
// GBK/GB18030 with and without matching Content-Type headers.
func (c *Client) GetDocument(ctx context.Context, rawURL string) (*goquery.Document, error) {
	resp, err := c.do(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, resilience.NewTransientFetchError(eris.Wrap(err, "fetch: read body"), 0)
	}

	enc, _, _ := charset.DetermineEncoding(raw, resp.Header.Get("Content-Type"))
	utf8Body, _, err := transform.Bytes(enc.NewDecoder(), raw)
	if err != nil {
		// Fall back to the raw bytes; goquery copes with mostly-valid input.
		utf8Body = raw
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(utf8Body))
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: parse html from %s", rawURL)
	}
	doc.Url = resp.Request.URL
	return doc, nil
}

// Download fetches a URL and returns the raw body stream. The caller owns
// the ReadCloser.
func (c *Client) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	resp, err := c.do(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// PostForm sends a form-encoded POST and parses the HTML response. Used by
// the pager-style sources whose "next" control is a server endpoint.
func (c *Client) PostForm(ctx context.Context, rawURL string, form url.Values) (*goquery.Document, error) {
	if err := c.limiterFor(rawURL).Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "fetch: rate limiter wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return nil, eris.Wrap(err, "fetch: create request")
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.NewTransientFetchError(eris.Wrapf(err, "fetch: POST %s", rawURL), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resilience.NewTransientFetchError(
			eris.Errorf("fetch: http %d from %s", resp.StatusCode, rawURL), resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{Status: resp.StatusCode, URL: rawURL}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: parse html from %s", rawURL)
	}
	doc.Url = resp.Request.URL
	return doc, nil
}
