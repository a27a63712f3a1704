package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"prism/internal/domain"
)

// StageTracker answers which articles are due for analysis and which are
// reportable. It keeps no state of its own.
type StageTracker struct {
	db *sqlx.DB
}

func NewStageTracker(db *sqlx.DB) *StageTracker {
	return &StageTracker{db: db}
}

// Unanalyzed returns articles with no analyzed_date, oldest scrape first.
// A non-positive limit returns all of them.
func (t *StageTracker) Unanalyzed(ctx context.Context, limit int) ([]domain.Article, error) {
	exec := GetExecutor(ctx, t.db)

	q := builder(exec).
		Select(strings.Split(articleColumns, ", ")...).
		From("articles").
		Where(sq.Eq{"analyzed_date": nil}).
		OrderBy("scraped_date ASC", "id ASC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	return t.selectArticles(ctx, exec, q)
}

// MarkAnalyzed sets summary and analyzed_date once. A second call for the
// same article returns domain.ErrAlreadyAnalyzed.
func (t *StageTracker) MarkAnalyzed(ctx context.Context, id int64, summary string, at time.Time) error {
	exec := GetExecutor(ctx, t.db)

	query, args, err := builder(exec).
		Update("articles").
		Set("summary", summary).
		Set("analyzed_date", at.UTC()).
		Where(sq.Eq{"id": id, "analyzed_date": nil}).
		ToSql()
	if err != nil {
		return err
	}

	res, err := exec.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var exists int
	err = sqlx.GetContext(ctx, exec, &exists, exec.Rebind(`SELECT 1 FROM articles WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}
	return domain.ErrAlreadyAnalyzed
}

// Reportable returns analyzed articles scraped within windowDays of now,
// newest first by published date, falling back to scrape date.
func (t *StageTracker) Reportable(ctx context.Context, now time.Time, windowDays int) ([]domain.Article, error) {
	exec := GetExecutor(ctx, t.db)
	cutoff := now.AddDate(0, 0, -windowDays).UTC()

	q := builder(exec).
		Select(strings.Split(articleColumns, ", ")...).
		From("articles").
		Where(sq.NotEq{"analyzed_date": nil}).
		Where(sq.GtOrEq{"scraped_date": cutoff}).
		OrderBy("COALESCE(published_date, scraped_date) DESC", "id DESC")

	return t.selectArticles(ctx, exec, q)
}

func (t *StageTracker) selectArticles(ctx context.Context, exec sqlx.ExtContext, q sq.SelectBuilder) ([]domain.Article, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}

	var articles []domain.Article
	if err := sqlx.SelectContext(ctx, exec, &articles, query, args...); err != nil {
		return nil, err
	}
	return articles, nil
}
