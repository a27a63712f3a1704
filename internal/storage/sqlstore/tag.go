package sqlstore

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

type TagStore struct {
	db *sqlx.DB
}

func NewTagStore(db *sqlx.DB) *TagStore {
	return &TagStore{db: db}
}

func (s *TagStore) InsertBatch(ctx context.Context, articleID int64, tags []string) error {
	if len(tags) == 0 {
		return nil
	}

	exec := GetExecutor(ctx, s.db)

	insert := builder(exec).Insert("tags").Columns("article_id", "tag")
	for _, tag := range tags {
		insert = insert.Values(articleID, tag)
	}

	query, args, err := insert.Suffix("ON CONFLICT (article_id, tag) DO NOTHING").ToSql()
	if err != nil {
		return err
	}

	_, err = exec.ExecContext(ctx, query, args...)
	return err
}

func (s *TagStore) ListByArticle(ctx context.Context, articleID int64) ([]string, error) {
	exec := GetExecutor(ctx, s.db)

	query, args, err := builder(exec).
		Select("tag").
		From("tags").
		Where(sq.Eq{"article_id": articleID}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, err
	}

	var tags []string
	if err := sqlx.SelectContext(ctx, exec, &tags, query, args...); err != nil {
		return nil, err
	}
	return tags, nil
}
