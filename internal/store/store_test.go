// internal/store/store_test.go
package store

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github-trending-tracker/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := Open(filepath.Join(t.TempDir(), "test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate())
	return st
}

func sampleRepo(name, language string, stars int) model.Repo {
	return model.Repo{
		Name:        name,
		URL:         "https://github.com/" + name,
		Description: "a test repository",
		Stars:       stars,
		Forks:       3,
		CreatedAt:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt:   time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
		Language:    language,
		Topics:      []string{"web", "api"},
		StarGrowth:  float64(stars),
	}
}

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestMigrate_Idempotent(t *testing.T) {
	st := newTestStore(t)

	require.NoError(t, st.UpsertBatch(context.Background(), []model.Repo{sampleRepo("a/b", "python", 5)}))
	require.NoError(t, st.Migrate()) // Second run must not fail or drop data

	page := st.Query(context.Background(), QueryParams{Language: "all", Page: 1, PageSize: 10})
	assert.Equal(t, 1, page.TotalCount)
}

func TestUpsertBatch_ReplacesExistingRow(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertBatch(ctx, []model.Repo{sampleRepo("owner/repo", "python", 10)}))

	updated := sampleRepo("owner/repo", "python", 99)
	updated.Description = "rewritten"
	require.NoError(t, st.UpsertBatch(ctx, []model.Repo{updated}))

	page := st.Query(ctx, QueryParams{Language: "python", Page: 1, PageSize: 10})
	require.Len(t, page.Repos, 1, "the table must never hold two rows with the same name")
	assert.Equal(t, 1, page.TotalCount)
	assert.Equal(t, 99, page.Repos[0].Stars)
	assert.Equal(t, "rewritten", page.Repos[0].Description)
}

func TestUpsertBatch_AppendsOneHistoryEntryPerBatch(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	batch := []model.Repo{
		sampleRepo("a/one", "python", 1),
		sampleRepo("a/two", "python", 2),
		sampleRepo("a/three", "javascript", 3),
	}
	require.NoError(t, st.UpsertBatch(ctx, batch))

	var entries int
	var repoCount int
	require.NoError(t, st.db.QueryRow(`SELECT COUNT(*) FROM update_history`).Scan(&entries))
	require.NoError(t, st.db.QueryRow(`SELECT repos_count FROM update_history ORDER BY id DESC LIMIT 1`).Scan(&repoCount))
	assert.Equal(t, 1, entries)
	assert.Equal(t, len(batch), repoCount)

	_, ok := st.LastUpdateTime(ctx)
	assert.True(t, ok)
}

func TestUpsertBatch_EmptyBatchWritesNothing(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertBatch(ctx, nil))

	_, ok := st.LastUpdateTime(ctx)
	assert.False(t, ok)
}

func TestQuery_EmptyStoreSentinel(t *testing.T) {
	st := newTestStore(t)

	page := st.Query(context.Background(), QueryParams{Language: "all", Page: 1, PageSize: 12})
	assert.Equal(t, 0, page.TotalCount)
	assert.Equal(t, 1, page.TotalPages, "totalPages is at least 1 even with no rows")
	assert.Equal(t, 1, page.CurrentPage)
	assert.Empty(t, page.Repos)
}

func TestQuery_ClampsPageIntoRange(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	batch := make([]model.Repo, 0, 25)
	for i := 0; i < 25; i++ {
		batch = append(batch, sampleRepo(fmt.Sprintf("owner/repo-%02d", i), "python", i))
	}
	require.NoError(t, st.UpsertBatch(ctx, batch))

	page := st.Query(ctx, QueryParams{Language: "all", Page: 99, PageSize: 12})
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, 3, page.CurrentPage, "page 99 is clamped to the last page")
	assert.Equal(t, 25, page.TotalCount)
	assert.Len(t, page.Repos, 1)

	page = st.Query(ctx, QueryParams{Language: "all", Page: 0, PageSize: 12})
	assert.Equal(t, 1, page.CurrentPage)
}

func TestQuery_OrdersByStarsThenPaginates(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertBatch(ctx, []model.Repo{
		sampleRepo("a/mid", "python", 50),
		sampleRepo("a/low", "javascript", 10),
		sampleRepo("a/high", "python", 90),
	}))

	page := st.Query(ctx, QueryParams{Language: "all", Page: 1, PageSize: 2})
	require.Len(t, page.Repos, 2)
	assert.Equal(t, 90, page.Repos[0].Stars)
	assert.Equal(t, 50, page.Repos[1].Stars)
	assert.Equal(t, 2, page.TotalPages)
	assert.Equal(t, 3, page.TotalCount)

	page = st.Query(ctx, QueryParams{Language: "all", Page: 2, PageSize: 2})
	require.Len(t, page.Repos, 1)
	assert.Equal(t, 10, page.Repos[0].Stars)
}

func TestQuery_LanguageFilter(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertBatch(ctx, []model.Repo{
		sampleRepo("a/py", "Python", 10), // Mixed case as upstream reports it
		sampleRepo("a/js", "JavaScript", 20),
		sampleRepo("a/go", "Go", 30),
	}))

	page := st.Query(ctx, QueryParams{Language: "python", Page: 1, PageSize: 10})
	require.Len(t, page.Repos, 1)
	assert.Equal(t, "a/py", page.Repos[0].Name)

	// "all" is restricted to the tracked set; the Go repo stays invisible.
	page = st.Query(ctx, QueryParams{Language: "all", Page: 1, PageSize: 10})
	assert.Equal(t, 2, page.TotalCount)

	page = st.Query(ctx, QueryParams{Language: "go", Page: 1, PageSize: 10})
	assert.Equal(t, 1, page.TotalCount)
}

func TestQuery_DateFilter(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	st.now = fixedNow(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, st.UpsertBatch(ctx, []model.Repo{sampleRepo("a/old", "python", 10)}))

	st.now = fixedNow(time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC))
	require.NoError(t, st.UpsertBatch(ctx, []model.Repo{sampleRepo("a/new", "python", 20)}))

	page := st.Query(ctx, QueryParams{Language: "all", Date: "2025-03-01", Page: 1, PageSize: 10})
	require.Len(t, page.Repos, 1)
	assert.Equal(t, "a/old", page.Repos[0].Name)

	page = st.Query(ctx, QueryParams{Language: "all", Date: "2025-03-03", Page: 1, PageSize: 10})
	assert.Equal(t, 0, page.TotalCount)
	assert.Equal(t, 1, page.TotalPages)
}

func TestQuery_RoundTripsTopics(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	repo := sampleRepo("a/topical", "python", 10)
	repo.Topics = []string{"ml", "cli", "data"}
	require.NoError(t, st.UpsertBatch(ctx, []model.Repo{repo}))

	page := st.Query(ctx, QueryParams{Language: "python", Page: 1, PageSize: 10})
	require.Len(t, page.Repos, 1)
	assert.Equal(t, []string{"ml", "cli", "data"}, page.Repos[0].Topics)
}

func TestLastUpdateTime(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, ok := st.LastUpdateTime(ctx)
	assert.False(t, ok, "no history yet")

	at := time.Date(2025, 4, 5, 6, 7, 8, 0, time.UTC)
	st.now = fixedNow(at)
	require.NoError(t, st.UpsertBatch(ctx, []model.Repo{sampleRepo("a/b", "python", 1)}))

	got, ok := st.LastUpdateTime(ctx)
	require.True(t, ok)
	assert.WithinDuration(t, at, got, 0)
}

func TestAvailableDates(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	assert.Empty(t, st.AvailableDates(ctx))

	st.now = fixedNow(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	require.NoError(t, st.UpsertBatch(ctx, []model.Repo{sampleRepo("a/one", "python", 1)}))
	st.now = fixedNow(time.Date(2025, 3, 1, 23, 0, 0, 0, time.UTC))
	require.NoError(t, st.UpsertBatch(ctx, []model.Repo{sampleRepo("a/two", "python", 2)}))
	st.now = fixedNow(time.Date(2025, 3, 5, 10, 0, 0, 0, time.UTC))
	require.NoError(t, st.UpsertBatch(ctx, []model.Repo{sampleRepo("a/three", "python", 3)}))

	assert.Equal(t, []string{"2025-03-05", "2025-03-01"}, st.AvailableDates(ctx),
		"distinct dates, most recent first")
}

func TestPurge_RemovesOnlyRowsStrictlyBeforeCutoff(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	today := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)

	// One batch exactly at the boundary, one a day earlier.
	st.now = fixedNow(today.AddDate(0, 0, -30))
	require.NoError(t, st.UpsertBatch(ctx, []model.Repo{sampleRepo("a/boundary", "python", 1)}))
	st.now = fixedNow(today.AddDate(0, 0, -31))
	require.NoError(t, st.UpsertBatch(ctx, []model.Repo{sampleRepo("a/stale", "python", 2)}))

	st.now = fixedNow(today)
	require.NoError(t, st.Purge(ctx, 30))

	page := st.Query(ctx, QueryParams{Language: "all", Page: 1, PageSize: 10})
	require.Len(t, page.Repos, 1)
	assert.Equal(t, "a/boundary", page.Repos[0].Name, "the row dated exactly at the cutoff is kept")

	var history int
	require.NoError(t, st.db.QueryRow(`SELECT COUNT(*) FROM update_history`).Scan(&history))
	assert.Equal(t, 1, history, "history strictly before the cutoff is purged too")
}

func TestQuery_FailureYieldsEmptySentinel(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.Close()) // Force every statement after this to fail

	page := st.Query(context.Background(), QueryParams{Language: "all", Page: 5, PageSize: 12})
	assert.Equal(t, model.EmptyPage(), page)
}
