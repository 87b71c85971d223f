// internal/store/store.go
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github-trending-tracker/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// timeLayout is the at-rest timestamp format. RFC3339 text keeps sqlite's
// DATE() usable for calendar-day filtering.
const timeLayout = time.RFC3339

const defaultPageSize = 12

// Store is the sqlite persistence layer for repository snapshots and the
// update-history log. The single scheduled writer and concurrent readers
// rely on sqlite's own locking; no application-level locking is added.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open opens (creating if needed) the sqlite database at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database %s: %w", path, err)
	}
	return New(db, logger), nil
}

// New wraps an already-open database handle.
func New(db *sql.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger, now: time.Now}
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate idempotently brings the schema up to date. Safe to call on every
// process start; existing data is never dropped.
func (s *Store) Migrate() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	drv, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("prepare migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", drv)
	if err != nil {
		return fmt.Errorf("prepare migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// UpsertBatch replaces-or-inserts every snapshot keyed by name and appends
// exactly one history row with the batch size, all in one transaction. The
// batch and its history row commit or roll back together.
func (s *Store) UpsertBatch(ctx context.Context, batch []model.Repo) error {
	if len(batch) == 0 {
		return nil
	}
	fetchTime := s.now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert transaction: %w", err)
	}
	defer tx.Rollback() // No-op once the transaction is committed.

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO repos
			(name, url, description, stars, created_at, updated_at,
			 language, topics, star_growth, forks, fetch_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			url = excluded.url,
			description = excluded.description,
			stars = excluded.stars,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			language = excluded.language,
			topics = excluded.topics,
			star_growth = excluded.star_growth,
			forks = excluded.forks,
			fetch_time = excluded.fetch_time`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range batch {
		_, err := stmt.ExecContext(ctx,
			r.Name,
			r.URL,
			r.Description,
			r.Stars,
			r.CreatedAt.UTC().Format(timeLayout),
			r.UpdatedAt.UTC().Format(timeLayout),
			r.Language,
			// Comma-joined with no escaping; GitHub topic slugs cannot
			// contain commas.
			strings.Join(r.Topics, ","),
			r.StarGrowth,
			r.Forks,
			fetchTime.Format(timeLayout),
		)
		if err != nil {
			return fmt.Errorf("upsert repo %s: %w", r.Name, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO update_history (update_time, repos_count) VALUES (?, ?)`,
		fetchTime.Format(timeLayout), len(batch))
	if err != nil {
		return fmt.Errorf("append update history: %w", err)
	}

	return tx.Commit()
}

// QueryParams narrows and pages a snapshot query. Language "all" (or empty)
// restricts to the tracked language set; Date, when set, is a calendar day
// in YYYY-MM-DD form matched against fetch_time.
type QueryParams struct {
	Language string
	Date     string
	Page     int
	PageSize int
}

// Query returns one page of snapshots ordered by stars descending. Any
// underlying failure degrades to the empty sentinel; this read path never
// surfaces an error to its caller.
func (s *Store) Query(ctx context.Context, p QueryParams) model.RepoPage {
	page, err := s.query(ctx, p)
	if err != nil {
		s.logger.Error("Repo query failed, returning empty page", "error", err)
		return model.EmptyPage()
	}
	return page
}

func (s *Store) query(ctx context.Context, p QueryParams) (model.RepoPage, error) {
	if p.PageSize <= 0 {
		p.PageSize = defaultPageSize
	}

	var conds []string
	var args []any

	if p.Language != "" && p.Language != "all" {
		conds = append(conds, "LOWER(language) = LOWER(?)")
		args = append(args, p.Language)
	} else {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(model.TrackedLanguages)), ",")
		conds = append(conds, fmt.Sprintf("LOWER(language) IN (%s)", placeholders))
		for _, l := range model.TrackedLanguages {
			args = append(args, l)
		}
	}
	if p.Date != "" {
		conds = append(conds, "DATE(fetch_time) = DATE(?)")
		args = append(args, p.Date)
	}
	where := " WHERE " + strings.Join(conds, " AND ")

	var totalCount int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM repos"+where, args...).Scan(&totalCount); err != nil {
		return model.RepoPage{}, fmt.Errorf("count repos: %w", err)
	}

	totalPages := (totalCount + p.PageSize - 1) / p.PageSize
	if totalPages < 1 {
		totalPages = 1
	}
	page := p.Page
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT name, url, description, stars, created_at, updated_at,
			language, topics, star_growth, forks, fetch_time
		FROM repos`+where+`
		ORDER BY stars DESC, name ASC
		LIMIT ? OFFSET ?`,
		append(args, p.PageSize, (page-1)*p.PageSize)...)
	if err != nil {
		return model.RepoPage{}, fmt.Errorf("select repos: %w", err)
	}
	defer rows.Close()

	repos := []model.Repo{}
	for rows.Next() {
		r, err := scanRepo(rows)
		if err != nil {
			return model.RepoPage{}, err
		}
		repos = append(repos, r)
	}
	if err := rows.Err(); err != nil {
		return model.RepoPage{}, fmt.Errorf("iterate repos: %w", err)
	}

	return model.RepoPage{
		Repos:       repos,
		TotalPages:  totalPages,
		CurrentPage: page,
		TotalCount:  totalCount,
	}, nil
}

func scanRepo(rows *sql.Rows) (model.Repo, error) {
	var r model.Repo
	var createdAt, updatedAt, fetchTime, topics string
	err := rows.Scan(&r.Name, &r.URL, &r.Description, &r.Stars, &createdAt,
		&updatedAt, &r.Language, &topics, &r.StarGrowth, &r.Forks, &fetchTime)
	if err != nil {
		return model.Repo{}, fmt.Errorf("scan repo row: %w", err)
	}
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	r.FetchTime = parseTime(fetchTime)
	r.Topics = splitTopics(topics)
	return r, nil
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func splitTopics(raw string) []string {
	if raw == "" {
		return []string{}
	}
	return strings.Split(raw, ",")
}

// LastUpdateTime returns the update time of the most recent history entry.
// ok is false when no fetch has ever been persisted.
func (s *Store) LastUpdateTime(ctx context.Context) (t time.Time, ok bool) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT update_time FROM update_history ORDER BY id DESC LIMIT 1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false
	}
	if err != nil {
		s.logger.Error("Last update lookup failed", "error", err)
		return time.Time{}, false
	}
	return parseTime(raw), true
}

// AvailableDates returns the distinct calendar dates present across all
// snapshots, most recent first.
func (s *Store) AvailableDates(ctx context.Context) []string {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT DATE(fetch_time) AS day FROM repos ORDER BY day DESC`)
	if err != nil {
		s.logger.Error("Available dates lookup failed", "error", err)
		return []string{}
	}
	defer rows.Close()

	dates := []string{}
	for rows.Next() {
		var day string
		if err := rows.Scan(&day); err != nil {
			s.logger.Error("Available dates scan failed", "error", err)
			return []string{}
		}
		dates = append(dates, day)
	}
	if err := rows.Err(); err != nil {
		s.logger.Error("Available dates iteration failed", "error", err)
		return []string{}
	}
	return dates
}

// Purge deletes every snapshot and history row whose calendar date is
// strictly before today minus retentionDays. Rows dated exactly at the
// cutoff are kept. Deletion is immediate and irreversible.
func (s *Store) Purge(ctx context.Context, retentionDays int) error {
	cutoff := s.now().UTC().AddDate(0, 0, -retentionDays).Format("2006-01-02")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin purge transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM repos WHERE DATE(fetch_time) < DATE(?)`, cutoff)
	if err != nil {
		return fmt.Errorf("purge repos: %w", err)
	}
	purgedRepos, _ := res.RowsAffected()

	res, err = tx.ExecContext(ctx,
		`DELETE FROM update_history WHERE DATE(update_time) < DATE(?)`, cutoff)
	if err != nil {
		return fmt.Errorf("purge update history: %w", err)
	}
	purgedHistory, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit purge: %w", err)
	}

	s.logger.Info("Purged data older than cutoff",
		"cutoff", cutoff, "repos", purgedRepos, "history", purgedHistory)
	return nil
}
