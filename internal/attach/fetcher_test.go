package attach

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mergerwatch/casecrawl/internal/fetch"
	"github.com/mergerwatch/casecrawl/internal/resilience"
)

func testFetcher(t *testing.T) (*Fetcher, string) {
	t.Helper()
	dir := t.TempDir()
	client := fetch.NewClient(fetch.Options{Timeout: 5 * time.Second})
	return NewFetcher(client, dir, resilience.RetryConfig{Attempts: 2, Delay: time.Millisecond}), dir
}

func TestAcquire_DownloadsAndNames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, "PDF-BYTES")
	}))
	defer srv.Close()

	f, dir := testFetcher(t)
	got, err := f.Acquire(context.Background(), "某某收购案公示", srv.URL+"/files/notice.pdf")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "notice.pdf"), got)

	data, err := os.ReadFile(got)
	require.NoError(t, err)
	assert.Equal(t, "PDF-BYTES", string(data))
}

func TestAcquire_SkipsExistingFile(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = fmt.Fprint(w, "content")
	}))
	defer srv.Close()

	f, _ := testFetcher(t)
	ctx := context.Background()
	url := srv.URL + "/a.docx"

	first, err := f.Acquire(ctx, "重复案件", url)
	require.NoError(t, err)
	second, err := f.Acquire(ctx, "重复案件", url)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, hits, "second acquire must not re-download")
}

func TestAcquire_NotFoundLeavesNoFile(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	f, dir := testFetcher(t)
	_, err := f.Acquire(context.Background(), "缺失案件", srv.URL+"/gone.pdf")
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAcquire_PartialFileRemovedOnStreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		_, _ = w.Write([]byte("short"))
		hj, ok := w.(http.Hijacker)
		require.True(t, ok)
		conn, _, err := hj.Hijack()
		require.NoError(t, err)
		_ = conn.Close()
	}))
	defer srv.Close()

	f, dir := testFetcher(t)
	_, err := f.Acquire(context.Background(), "中断案件", srv.URL+"/big.pdf")
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "partial download must be cleaned up")
}

func TestAcquire_EmptyURL(t *testing.T) {
	f, _ := testFetcher(t)
	_, err := f.Acquire(context.Background(), "某案件", "")
	assert.Error(t, err)
}

func TestFilename(t *testing.T) {
	tests := []struct {
		name     string
		caseName string
		url      string
		want     string
	}{
		{"plausible url basename wins", "某案", "https://x.gov.cn/f/经营者集中简易案件公示表.pdf", "经营者集中简易案件公示表.pdf"},
		{"escaped url basename", "某案", "https://x.gov.cn/f/%E6%A1%88%E4%BB%B6%E5%85%AC%E7%A4%BA%E8%A1%A8.docx", "案件公示表.docx"},
		{"short url basename falls back to case name", "A公司收购B公司案", "https://x.gov.cn/f/公示表.pdf", "A公司收购B公司案.pdf"},
		{"escaped extension", "某案", "https://x.gov.cn/f/%E8%A1%A8.docx", "某案.docx"},
		{"no extension defaults to doc", "某案", "https://x.gov.cn/download?id=9", "某案.doc"},
		{"unknown extension defaults to doc", "某案", "https://x.gov.cn/f/page.jsp", "某案.doc"},
		{"unsafe characters replaced", `甲/乙:案"`, "https://x.gov.cn/f/a.xls", "甲_乙_案_.xls"},
		{"uppercase extension normalized", "某案", "https://x.gov.cn/f/A.PDF", "某案.pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Filename(tt.caseName, tt.url))
		})
	}
}

func TestFilename_LongNameTruncated(t *testing.T) {
	long := ""
	for i := 0; i < 200; i++ {
		long += "案"
	}
	got := Filename(long, "https://x.gov.cn/f/a.pdf")
	assert.Len(t, []rune(got), maxFilenameRunes+len(".pdf"))
}
