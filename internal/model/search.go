package model

import "time"

// Gap categories produced by the analysis gateway. Every stored result's
// category is one of these.
const (
	CategoryTech     = "Tech That's Missing"
	CategoryServices = "Services That Don't Exist"
	CategoryProducts = "Products Nobody's Made"
	CategoryBusiness = "Business Models"
)

// Levels used for feasibility and market potential.
const (
	LevelHigh   = "high"
	LevelMedium = "medium"
	LevelLow    = "low"
)

type Search struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	Query        string    `json:"query"`
	ResultsCount int       `json:"results_count"`
	ShareToken   *string   `json:"share_token"`
	CreatedAt    time.Time `json:"created_at"`
}

type SearchResult struct {
	ID              int64     `json:"id"`
	SearchID        int64     `json:"search_id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Category        string    `json:"category"`
	Feasibility     string    `json:"feasibility"`
	MarketPotential string    `json:"market_potential"`
	InnovationScore int       `json:"innovation_score"`
	MarketSize      string    `json:"market_size"`
	GapReason       string    `json:"gap_reason"`
	IsSaved         bool      `json:"is_saved"`
	CreatedAt       time.Time `json:"created_at"`
}
