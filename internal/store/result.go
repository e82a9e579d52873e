package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/unbuiltapp/unbuilt/internal/model"
)

type ResultStore struct {
	db *sql.DB
}

func NewResultStore(db *sql.DB) *ResultStore {
	return &ResultStore{db: db}
}

func scanResult(scanner interface{ Scan(...any) error }) (*model.SearchResult, error) {
	var r model.SearchResult
	err := scanner.Scan(
		&r.ID, &r.SearchID, &r.Title, &r.Description, &r.Category,
		&r.Feasibility, &r.MarketPotential, &r.InnovationScore,
		&r.MarketSize, &r.GapReason, &r.IsSaved, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

const resultCols = `id, search_id, title, description, category, feasibility,
	market_potential, innovation_score, market_size, gap_reason, is_saved, created_at`

func (s *ResultStore) GetByID(id int64) (*model.SearchResult, error) {
	row := s.db.QueryRow(`SELECT `+resultCols+` FROM search_results WHERE id = ?`, id)
	r, err := scanResult(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get result: %w", err)
	}
	return r, nil
}

func (s *ResultStore) ListBySearch(searchID int64) ([]model.SearchResult, error) {
	rows, err := s.db.Query(
		`SELECT `+resultCols+` FROM search_results WHERE search_id = ? ORDER BY id`,
		searchID,
	)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()
	return collectResults(rows)
}

// ListSavedByUser returns every result the user has bookmarked, newest first.
func (s *ResultStore) ListSavedByUser(userID int64) ([]model.SearchResult, error) {
	rows, err := s.db.Query(
		`SELECT `+resultColsPrefixed+` FROM search_results r
		 JOIN searches s ON s.id = r.search_id
		 WHERE s.user_id = ? AND r.is_saved = 1
		 ORDER BY r.created_at DESC, r.id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list saved results: %w", err)
	}
	defer rows.Close()
	return collectResults(rows)
}

// ListByIDs returns the given results, restricted to searches owned by the
// user. Unknown or foreign ids are silently omitted.
func (s *ResultStore) ListByIDs(userID int64, ids []int64) ([]model.SearchResult, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+1)
	args = append(args, userID)
	for _, id := range ids {
		args = append(args, id)
	}
	rows, err := s.db.Query(
		`SELECT `+resultColsPrefixed+` FROM search_results r
		 JOIN searches s ON s.id = r.search_id
		 WHERE s.user_id = ? AND r.id IN (`+placeholders+`)
		 ORDER BY r.id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list results by ids: %w", err)
	}
	defer rows.Close()
	return collectResults(rows)
}

func (s *ResultStore) SetSaved(id int64, saved bool) (*model.SearchResult, error) {
	_, err := s.db.Exec(`UPDATE search_results SET is_saved = ? WHERE id = ?`, saved, id)
	if err != nil {
		return nil, fmt.Errorf("set saved: %w", err)
	}
	return s.GetByID(id)
}

func (s *ResultStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM search_results WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete result: %w", err)
	}
	return nil
}

const resultColsPrefixed = `r.id, r.search_id, r.title, r.description, r.category, r.feasibility,
	r.market_potential, r.innovation_score, r.market_size, r.gap_reason, r.is_saved, r.created_at`

func collectResults(rows *sql.Rows) ([]model.SearchResult, error) {
	var results []model.SearchResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		results = append(results, *r)
	}
	return results, rows.Err()
}
