package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mergerwatch/casecrawl/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func insertCase(t *testing.T, st *SQLiteStore, name, sourceURL string) int64 {
	t.Helper()
	id, err := st.Insert(context.Background(), &model.Case{
		CaseName:  name,
		SourceURL: model.StrPtr(sourceURL),
	})
	require.NoError(t, err)
	return id
}

func TestSQLite_InsertAndGetByName(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	id, err := st.Insert(ctx, &model.Case{
		CaseName:        "甲公司收购乙公司股权案",
		NoticeStartDate: model.StrPtr("2025-04-08"),
		NoticeEndDate:   model.StrPtr("2025-04-17"),
		SourceURL:       model.StrPtr("https://www.samr.gov.cn/a.html"),
		Region:          model.StrPtr("总局"),
	})
	require.NoError(t, err)
	assert.Positive(t, id)

	got, err := st.GetByName(ctx, "甲公司收购乙公司股权案")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "2025-04-08", model.StrVal(got.NoticeStartDate))
	assert.Equal(t, "2025-04-17", model.StrVal(got.NoticeEndDate))
	assert.Equal(t, "总局", model.StrVal(got.Region))
	assert.Nil(t, got.AttachmentPath)
	require.NotNil(t, got.CreatedAt)
}

func TestSQLite_GetByName_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	got, err := st.GetByName(context.Background(), "不存在的案件")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_GetByName_DuplicatesReturnNewest(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	insertCase(t, st, "重复案件", "https://x.gov.cn/old.html")
	newest := insertCase(t, st, "重复案件", "https://x.gov.cn/new.html")

	got, err := st.GetByName(ctx, "重复案件")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, newest, got.ID)
}

func TestSQLite_GetBySourceURL(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	id := insertCase(t, st, "某案件", "https://x.gov.cn/a.html")

	got, err := st.GetBySourceURL(ctx, "https://x.gov.cn/a.html")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, id, got.ID)

	got, err = st.GetBySourceURL(ctx, "https://x.gov.cn/other.html")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_Update_OnlyGivenFields(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	id, err := st.Insert(ctx, &model.Case{
		CaseName:        "某案件",
		NoticeStartDate: model.StrPtr("2025-01-01"),
		Region:          model.StrPtr("未知"),
	})
	require.NoError(t, err)

	err = st.Update(ctx, id, CaseUpdate{
		NoticeEndDate: model.StrPtr("2025-01-10"),
		Region:        model.StrPtr("上海"),
	})
	require.NoError(t, err)

	got, err := st.GetByName(ctx, "某案件")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "2025-01-01", model.StrVal(got.NoticeStartDate), "untouched field must survive")
	assert.Equal(t, "2025-01-10", model.StrVal(got.NoticeEndDate))
	assert.Equal(t, "上海", model.StrVal(got.Region))
}

func TestSQLite_Update_TouchRefreshesCreatedAt(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	old := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	id, err := st.Insert(ctx, &model.Case{CaseName: "某案件", CreatedAt: &old})
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, st.Update(ctx, id, CaseUpdate{TouchedAt: &now}))

	got, err := st.GetByName(ctx, "某案件")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NotNil(t, got.CreatedAt)
	assert.True(t, got.CreatedAt.After(old))
}

func TestSQLite_Update_NameAndSourceURL(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	id, err := st.Insert(ctx, &model.Case{CaseName: "甲公司收购乙公司股..."})
	require.NoError(t, err)

	err = st.Update(ctx, id, CaseUpdate{
		CaseName:  model.StrPtr("甲公司收购乙公司股权案"),
		SourceURL: model.StrPtr("https://x.gov.cn/a.html"),
	})
	require.NoError(t, err)

	got, err := st.GetByName(ctx, "甲公司收购乙公司股权案")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "https://x.gov.cn/a.html", model.StrVal(got.SourceURL))
}

func TestSQLite_Update_EmptyIsNoop(t *testing.T) {
	st := newTestSQLiteStore(t)
	id := insertCase(t, st, "某案件", "https://x.gov.cn/a.html")

	require.NoError(t, st.Update(context.Background(), id, CaseUpdate{}))
}

func TestSQLite_Update_MissingRow(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.Update(context.Background(), 9999, CaseUpdate{Region: model.StrPtr("北京")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLite_All_OrderedByID(t *testing.T) {
	st := newTestSQLiteStore(t)

	insertCase(t, st, "案件一", "https://x.gov.cn/1.html")
	insertCase(t, st, "案件二", "https://x.gov.cn/2.html")

	all, err := st.All(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "案件一", all[0].CaseName)
	assert.Equal(t, "案件二", all[1].CaseName)
}

func TestSQLite_DedupeBySourceURL(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	insertCase(t, st, "旧名字", "https://x.gov.cn/dup.html")
	kept := insertCase(t, st, "新名字", "https://x.gov.cn/dup.html")
	other := insertCase(t, st, "独立案件", "https://x.gov.cn/solo.html")

	// Rows without a source URL are never touched.
	noURL, err := st.Insert(ctx, &model.Case{CaseName: "手工录入"})
	require.NoError(t, err)

	deleted, err := st.DedupeBySourceURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	all, err := st.All(ctx)
	require.NoError(t, err)
	ids := make([]int64, 0, len(all))
	for _, c := range all {
		ids = append(ids, c.ID)
	}
	assert.ElementsMatch(t, []int64{kept, other, noURL}, ids)

	// Idempotent.
	deleted, err = st.DedupeBySourceURL(ctx)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestOpen_SQLiteDefaultDriver(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "open.db")
	s, err := Open(context.Background(), Config{Path: dbPath})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck

	_, err = s.Insert(context.Background(), &model.Case{CaseName: "冒烟案件"})
	assert.NoError(t, err)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "oracle"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}
