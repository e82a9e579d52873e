package store

import (
	"database/sql"
	"fmt"

	"github.com/unbuiltapp/unbuilt/internal/model"
)

type SearchStore struct {
	db *sql.DB
}

func NewSearchStore(db *sql.DB) *SearchStore {
	return &SearchStore{db: db}
}

func scanSearch(scanner interface{ Scan(...any) error }) (*model.Search, error) {
	var sr model.Search
	err := scanner.Scan(&sr.ID, &sr.UserID, &sr.Query, &sr.ResultsCount, &sr.ShareToken, &sr.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &sr, nil
}

const searchCols = `id, user_id, query, results_count, share_token, created_at`

// CreateWithResults persists a search and its result batch in one transaction.
// Either the search row and every result land together, or nothing does.
// results_count is written from the batch length, so the counter invariant
// holds by construction.
func (s *SearchStore) CreateWithResults(userID int64, query string, results []model.SearchResult) (*model.Search, []model.SearchResult, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO searches (user_id, query, results_count) VALUES (?, ?, ?)`,
		userID, query, len(results),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("insert search: %w", err)
	}
	searchID, err := res.LastInsertId()
	if err != nil {
		return nil, nil, fmt.Errorf("last insert id: %w", err)
	}

	for i := range results {
		r := &results[i]
		rres, err := tx.Exec(
			`INSERT INTO search_results
				(search_id, title, description, category, feasibility, market_potential,
				 innovation_score, market_size, gap_reason)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			searchID, r.Title, r.Description, r.Category, r.Feasibility,
			r.MarketPotential, r.InnovationScore, r.MarketSize, r.GapReason,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("insert search result: %w", err)
		}
		r.SearchID = searchID
		r.ID, err = rres.LastInsertId()
		if err != nil {
			return nil, nil, fmt.Errorf("last insert id: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit tx: %w", err)
	}

	search, err := s.GetByID(searchID)
	if err != nil {
		return nil, nil, err
	}
	stored, err := NewResultStore(s.db).ListBySearch(searchID)
	if err != nil {
		return nil, nil, err
	}
	return search, stored, nil
}

func (s *SearchStore) GetByID(id int64) (*model.Search, error) {
	row := s.db.QueryRow(`SELECT `+searchCols+` FROM searches WHERE id = ?`, id)
	sr, err := scanSearch(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get search: %w", err)
	}
	return sr, nil
}

func (s *SearchStore) GetByShareToken(token string) (*model.Search, error) {
	row := s.db.QueryRow(`SELECT `+searchCols+` FROM searches WHERE share_token = ?`, token)
	sr, err := scanSearch(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get search by share token: %w", err)
	}
	return sr, nil
}

// ListByUser returns the user's search history, newest first.
func (s *SearchStore) ListByUser(userID int64) ([]model.Search, error) {
	rows, err := s.db.Query(
		`SELECT `+searchCols+` FROM searches WHERE user_id = ? ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list searches: %w", err)
	}
	defer rows.Close()

	var searches []model.Search
	for rows.Next() {
		sr, err := scanSearch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan search: %w", err)
		}
		searches = append(searches, *sr)
	}
	return searches, rows.Err()
}

func (s *SearchStore) SetShareToken(id int64, token string) (*model.Search, error) {
	_, err := s.db.Exec(`UPDATE searches SET share_token = ? WHERE id = ?`, token, id)
	if err != nil {
		return nil, fmt.Errorf("set share token: %w", err)
	}
	return s.GetByID(id)
}
