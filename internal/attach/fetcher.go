// Package attach downloads case attachments to local disk. Files are named
// after the case so re-runs can skip documents already on disk, and a
// failed download never leaves a partial file behind.
package attach

import (
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mergerwatch/casecrawl/internal/fetch"
	"github.com/mergerwatch/casecrawl/internal/resilience"
)

// knownExtensions are the document types the sources actually publish.
var knownExtensions = map[string]bool{
	".doc":  true,
	".docx": true,
	".pdf":  true,
	".xls":  true,
	".xlsx": true,
	".zip":  true,
	".rar":  true,
	".wps":  true,
}

const maxFilenameRunes = 120

// Fetcher downloads attachments into a single directory.
type Fetcher struct {
	client *fetch.Client
	dir    string
	retry  resilience.RetryConfig
}

// NewFetcher creates a fetcher writing into dir. The directory is created
// on first use.
func NewFetcher(client *fetch.Client, dir string, retry resilience.RetryConfig) *Fetcher {
	return &Fetcher{client: client, dir: dir, retry: retry}
}

// Acquire downloads the attachment at rawURL for the named case and returns
// the local path. If a file with the derived name already exists the
// download is skipped and the existing path is returned. On failure any
// partially written file is removed.
func (f *Fetcher) Acquire(ctx context.Context, caseName, rawURL string) (string, error) {
	if rawURL == "" {
		return "", eris.New("attach: empty attachment url")
	}

	dest := filepath.Join(f.dir, Filename(caseName, rawURL))
	if _, err := os.Stat(dest); err == nil {
		zap.L().Debug("attachment already on disk, skipping download",
			zap.String("case", caseName),
			zap.String("path", dest),
		)
		return dest, nil
	}

	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "attach: create directory %s", f.dir)
	}

	cfg := f.retry
	cfg.OnRetry = resilience.RetryLogger(caseName, "download attachment")
	err := resilience.Do(ctx, cfg, func(ctx context.Context) error {
		return f.download(ctx, rawURL, dest)
	})
	if err != nil {
		return "", eris.Wrapf(err, "attach: download %s", rawURL)
	}

	zap.L().Info("attachment downloaded",
		zap.String("case", caseName),
		zap.String("path", dest),
	)
	return dest, nil
}

func (f *Fetcher) download(ctx context.Context, rawURL, dest string) error {
	body, err := f.client.Download(ctx, rawURL)
	if err != nil {
		return err
	}
	defer body.Close() //nolint:errcheck

	out, err := os.Create(dest)
	if err != nil {
		return eris.Wrapf(err, "attach: create %s", dest)
	}

	if _, err := io.Copy(out, body); err != nil {
		_ = out.Close()
		_ = os.Remove(dest)
		return resilience.NewTransientFetchError(eris.Wrap(err, "attach: stream body"), 0)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dest)
		return eris.Wrapf(err, "attach: close %s", dest)
	}
	return nil
}

// minStemRunes is the shortest URL basename stem considered a real
// filename; anything shorter is usually an upload hash fragment or a
// single-character label.
const minStemRunes = 4

// Filename derives the on-disk name for a case attachment. The URL's
// decoded terminal segment is preferred when it looks like a real
// filename; otherwise the sanitized case name plus the URL's extension is
// used. URLs without a recognized extension default to .doc, which is
// what the sources serve when the link goes through a download handler.
func Filename(caseName, rawURL string) string {
	base, ext := urlBasename(rawURL)
	if base != "" {
		return sanitize(base) + ext
	}
	return sanitize(caseName) + ext
}

// urlBasename returns the decoded terminal path segment stem when
// plausible (recognized extension, stem not suspiciously short), plus the
// extension to use either way.
func urlBasename(rawURL string) (stem, ext string) {
	ext = ".doc"
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", ext
	}
	base := path.Base(u.Path)
	if decoded, err := url.PathUnescape(base); err == nil {
		base = decoded
	}
	e := strings.ToLower(path.Ext(base))
	if !knownExtensions[e] {
		return "", ext
	}
	ext = e
	stem = strings.TrimSuffix(base, path.Ext(base))
	if len([]rune(stem)) < minStemRunes {
		return "", ext
	}
	return stem, ext
}

// sanitize replaces filesystem-hostile characters and bounds the length;
// case names routinely exceed 80 characters of Chinese text.
func sanitize(name string) string {
	name = strings.TrimSpace(name)
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', '\n', '\r', '\t':
			return '_'
		}
		return r
	}, name)

	runes := []rune(name)
	if len(runes) > maxFilenameRunes {
		runes = runes[:maxFilenameRunes]
	}
	out := strings.TrimSpace(string(runes))
	if out == "" {
		out = "attachment"
	}
	return out
}
