// Package search coordinates the gap-analysis gateway and persistence into
// one user-visible operation.
package search

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/unbuiltapp/unbuilt/internal/gapanalysis"
	"github.com/unbuiltapp/unbuilt/internal/model"
	"github.com/unbuiltapp/unbuilt/internal/store"
)

var ErrEmptyQuery = errors.New("query must not be empty")

// Analyzer produces gap records for a query. Satisfied by *gapanalysis.Client.
type Analyzer interface {
	Analyze(ctx context.Context, query string) ([]gapanalysis.Gap, error)
}

type Service struct {
	searches *store.SearchStore
	analyzer Analyzer
	logger   *slog.Logger
}

func NewService(searches *store.SearchStore, analyzer Analyzer, logger *slog.Logger) *Service {
	return &Service{searches: searches, analyzer: analyzer, logger: logger}
}

// Submit runs the analysis and persists the search with its result batch.
// The gateway is called before anything is written, and the write happens in
// one transaction, so a failed analysis leaves no partial search behind.
// Entitlement is the caller's responsibility.
func (s *Service) Submit(ctx context.Context, userID int64, query string) (*model.Search, []model.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil, ErrEmptyQuery
	}

	gaps, err := s.analyzer.Analyze(ctx, query)
	if err != nil {
		return nil, nil, err
	}

	results := make([]model.SearchResult, len(gaps))
	for i, g := range gaps {
		results[i] = model.SearchResult{
			Title:           g.Title,
			Description:     g.Description,
			Category:        g.Category,
			Feasibility:     g.Feasibility,
			MarketPotential: g.MarketPotential,
			InnovationScore: g.InnovationScore,
			MarketSize:      g.MarketSize,
			GapReason:       g.GapReason,
		}
	}

	search, stored, err := s.searches.CreateWithResults(userID, query, results)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("search completed", "search_id", search.ID, "user_id", userID, "results", len(stored))
	return search, stored, nil
}
