package sqlstore

import (
	"context"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"prism/internal/domain"
)

// insertChunk bounds the rows of one multi-row insert.
const insertChunk = 200

type IOCStore struct {
	db *sqlx.DB
}

func NewIOCStore(db *sqlx.DB) *IOCStore {
	return &IOCStore{db: db}
}

// InsertBatch links iocs to an article. Pairs already stored for the
// article are ignored.
func (s *IOCStore) InsertBatch(ctx context.Context, articleID int64, iocs []domain.IOC) error {
	exec := GetExecutor(ctx, s.db)

	for start := 0; start < len(iocs); start += insertChunk {
		chunk := iocs[start:min(start+insertChunk, len(iocs))]

		insert := builder(exec).
			Insert("iocs").
			Columns("article_id", "type", "value", "context")
		for _, ioc := range chunk {
			insert = insert.Values(articleID, string(ioc.Type), ioc.Value, ioc.Context)
		}

		query, args, err := insert.Suffix("ON CONFLICT (article_id, type, value) DO NOTHING").ToSql()
		if err != nil {
			return err
		}
		if _, err := exec.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}

	return nil
}

func (s *IOCStore) ListByArticle(ctx context.Context, articleID int64) ([]domain.IOC, error) {
	exec := GetExecutor(ctx, s.db)

	query, args, err := builder(exec).
		Select("id", "article_id", "type", "value", "context").
		From("iocs").
		Where(sq.Eq{"article_id": articleID}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, err
	}

	var iocs []domain.IOC
	if err := sqlx.SelectContext(ctx, exec, &iocs, query, args...); err != nil {
		return nil, err
	}
	return iocs, nil
}

// Search finds IOCs whose value contains term, case-insensitively, newest
// articles first.
func (s *IOCStore) Search(ctx context.Context, term string, limit int) ([]domain.IOCMatch, error) {
	exec := GetExecutor(ctx, s.db)

	q := builder(exec).
		Select("i.id", "i.article_id", "i.type", "i.value", "i.context",
			"a.source", "a.title", "a.url", "a.scraped_date").
		From("iocs i").
		Join("articles a ON a.id = i.article_id").
		Where(sq.Expr(`LOWER(i.value) LIKE ? ESCAPE '\'`, "%"+escapeLike(strings.ToLower(term))+"%")).
		OrderBy("a.scraped_date DESC", "i.id")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}

	var matches []domain.IOCMatch
	if err := sqlx.SelectContext(ctx, exec, &matches, query, args...); err != nil {
		return nil, err
	}
	return matches, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
