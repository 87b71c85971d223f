// internal/fetcher/fetcher.go
package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github-trending-tracker/internal/github"
	"github-trending-tracker/internal/model"
)

// maxPerPage is the upstream search API page-size cap.
const maxPerPage = 100

// Searcher issues one page of a repository search against the upstream API.
type Searcher interface {
	Search(ctx context.Context, query string, page, perPage int) (*github.SearchResult, error)
}

// Upserter persists one normalized batch together with its history entry.
type Upserter interface {
	UpsertBatch(ctx context.Context, batch []model.Repo) error
}

// Options control one fetch invocation.
type Options struct {
	Language    string // "all" or a single language
	MinStars    int
	Topic       string // optional topic filter
	RecencyDays int
	Quota       int // target record count for the whole invocation
}

// DefaultOptions mirrors the scheduled job's defaults.
func DefaultOptions() Options {
	return Options{Language: "all", MinStars: 10, RecencyDays: 7, Quota: 100}
}

// Fetcher pulls trending repositories from the upstream search API,
// normalizes them, and hands the combined batch to the store.
type Fetcher struct {
	client Searcher
	store  Upserter
	logger *slog.Logger
	delay  time.Duration
	now    func() time.Time
}

// New creates a Fetcher. delay is the blocking pause between successive
// upstream page requests.
func New(client Searcher, store Upserter, logger *slog.Logger, delay time.Duration) *Fetcher {
	return &Fetcher{
		client: client,
		store:  store,
		logger: logger,
		delay:  delay,
		now:    time.Now,
	}
}

// Fetch runs one fetch invocation and returns the number of records
// persisted. Per-language upstream failures are logged and absorbed; only a
// persistence failure is returned.
func (f *Fetcher) Fetch(ctx context.Context, opts Options) (int, error) {
	languages := []string{opts.Language}
	perLanguage := opts.Quota
	if opts.Language == "all" {
		languages = model.TrackedLanguages
		perLanguage = opts.Quota / len(languages)
	}

	var batch []model.Repo
	for _, lang := range languages {
		batch = append(batch, f.fetchLanguage(ctx, lang, perLanguage, opts)...)
	}

	if len(batch) == 0 {
		f.logger.Info("No repositories were fetched")
		return 0, nil
	}

	if err := f.store.UpsertBatch(ctx, batch); err != nil {
		return 0, fmt.Errorf("persist batch: %w", err)
	}
	f.logger.Info("Persisted fetch batch", "count", len(batch))
	return len(batch), nil
}

// fetchLanguage pages through the search results for one language until its
// share of the quota is met. An upstream failure ends paging for this
// language only; records already collected are kept.
func (f *Fetcher) fetchLanguage(ctx context.Context, lang string, quota int, opts Options) []model.Repo {
	pages := (quota + maxPerPage - 1) / maxPerPage
	query := f.buildQuery(lang, opts)

	var repos []model.Repo
	for page := 1; page <= pages; page++ {
		size := quota - len(repos)
		if size > maxPerPage {
			size = maxPerPage
		}
		if size <= 0 {
			break
		}

		result, err := f.client.Search(ctx, query, page, size)
		if err != nil {
			f.logger.Error("Search request failed",
				"language", lang, "page", page, "error", err)
			break
		}

		f.logger.Info("Fetched search page",
			"language", lang, "page", page, "items", len(result.Items))

		for _, raw := range result.Items {
			repo, err := f.normalizeRecord(raw)
			if err != nil {
				f.logger.Warn("Skipping record", "language", lang, "reason", err)
				continue
			}
			repos = append(repos, repo)
		}

		// Fixed blocking pause between upstream requests to respect the
		// search API rate limit. Not cancellable mid-delay.
		time.Sleep(f.delay)
	}

	// Batch-local ordering; names break star ties deterministically.
	sort.Slice(repos, func(i, j int) bool {
		if repos[i].Stars != repos[j].Stars {
			return repos[i].Stars > repos[j].Stars
		}
		return repos[i].Name < repos[j].Name
	})
	return repos
}

// normalizeRecord turns one raw search item into a snapshot, or an error
// describing why the record is dropped. A failure here never aborts the
// sibling records of the same page.
func (f *Fetcher) normalizeRecord(raw json.RawMessage) (model.Repo, error) {
	var item github.RepoItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return model.Repo{}, fmt.Errorf("decode record: %w", err)
	}
	if item.FullName == "" {
		return model.Repo{}, errors.New("record has no full_name")
	}
	if item.StargazersCount < 0 || item.ForksCount < 0 {
		return model.Repo{}, fmt.Errorf("record %s has negative counts", item.FullName)
	}

	now := f.now().UTC()
	return model.Repo{
		Name:        item.FullName,
		URL:         item.HTMLURL,
		Description: stringValue(item.Description),
		Stars:       item.StargazersCount,
		Forks:       item.ForksCount,
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   now,
		Language:    stringValue(item.Language),
		Topics:      item.Topics,
		StarGrowth:  float64(item.StargazersCount),
		FetchTime:   now,
	}, nil
}

// buildQuery assembles the upstream search expression:
// language:<L> created:><date> stars:>=<N> [topic:<T>]
func (f *Fetcher) buildQuery(lang string, opts Options) string {
	since := f.now().UTC().AddDate(0, 0, -opts.RecencyDays).Format("2006-01-02")
	query := fmt.Sprintf("language:%s created:>%s stars:>=%d", lang, since, opts.MinStars)
	if opts.Topic != "" {
		query += " topic:" + opts.Topic
	}
	return query
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
