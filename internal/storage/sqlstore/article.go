package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"prism/internal/domain"
)

// existenceChunk bounds the IN list of one existence query.
const existenceChunk = 500

const articleColumns = "id, source, title, url, author, published_date, content, summary, scraped_date, analyzed_date"

type ArticleStore struct {
	db *sqlx.DB
}

func NewArticleStore(db *sqlx.DB) *ArticleStore {
	return &ArticleStore{db: db}
}

// InsertIfAbsent writes a new article and returns its id. When a row with
// the same (source, url) already exists it returns domain.ErrDuplicate and
// leaves that row untouched.
func (s *ArticleStore) InsertIfAbsent(ctx context.Context, article *domain.Article) (int64, error) {
	exec := GetExecutor(ctx, s.db)

	query := exec.Rebind(`
		INSERT INTO articles (source, title, url, author, published_date, content, scraped_date)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source, url) DO NOTHING
		RETURNING id`)

	var id int64
	err := exec.QueryRowxContext(ctx, query,
		article.Source,
		article.Title,
		article.URL,
		article.Author,
		utcPtr(article.PublishedAt),
		article.Content,
		article.ScrapedAt.UTC(),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrDuplicate
	}
	if err != nil {
		return 0, err
	}

	article.ID = id
	return id, nil
}

// ExistingURLs returns the subset of urls already stored for source.
func (s *ArticleStore) ExistingURLs(ctx context.Context, source string, urls []string) (map[string]struct{}, error) {
	result := make(map[string]struct{})
	if len(urls) == 0 {
		return result, nil
	}

	exec := GetExecutor(ctx, s.db)

	for start := 0; start < len(urls); start += existenceChunk {
		chunk := urls[start:min(start+existenceChunk, len(urls))]

		query, args, err := sqlx.In(`SELECT url FROM articles WHERE source = ? AND url IN (?)`, source, chunk)
		if err != nil {
			return nil, err
		}

		var found []string
		if err := sqlx.SelectContext(ctx, exec, &found, exec.Rebind(query), args...); err != nil {
			return nil, err
		}
		for _, u := range found {
			result[u] = struct{}{}
		}
	}

	return result, nil
}

func (s *ArticleStore) Get(ctx context.Context, id int64) (*domain.Article, error) {
	exec := GetExecutor(ctx, s.db)

	var article domain.Article
	err := sqlx.GetContext(ctx, exec, &article,
		exec.Rebind(`SELECT `+articleColumns+` FROM articles WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &article, nil
}
