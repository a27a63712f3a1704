package service

import (
	"context"
	"errors"
	"strings"

	"prism/internal/domain"
)

var ErrEmptySearch = errors.New("search term is empty")

// DefaultSearchLimit caps IOC search results when no limit is given.
const DefaultSearchLimit = 100

type SearchService struct {
	iocs IOCStore
}

func NewSearchService(iocs IOCStore) *SearchService {
	return &SearchService{iocs: iocs}
}

// Search returns IOCs whose value contains term, case-insensitively,
// with the most recently scraped articles first.
func (s *SearchService) Search(ctx context.Context, term string, limit int) ([]domain.IOCMatch, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, ErrEmptySearch
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	return s.iocs.Search(ctx, term, limit)
}
