// Package resultview filters, sorts, and paginates result sets. Everything
// here is pure: same input list and spec, same output, no I/O.
package resultview

import (
	"sort"
	"strings"

	"github.com/unbuiltapp/unbuilt/internal/model"
)

// PageSize is the fixed number of results per page.
const PageSize = 10

// Sort keys.
const (
	SortRelevance       = "relevance"
	SortFeasibility     = "feasibility"
	SortMarketPotential = "market-potential"
	SortInnovation      = "innovation"
)

// FilterSpec narrows a result set. Empty slices and an empty query impose no
// constraint; a zero MinScore or MaxScore leaves that bound unconstrained.
type FilterSpec struct {
	Categories      []string `json:"categories"`
	Query           string   `json:"query"`
	MinScore        int      `json:"min_score"`
	MaxScore        int      `json:"max_score"`
	Feasibility     []string `json:"feasibility"`
	MarketPotential []string `json:"market_potential"`
}

// Filter keeps the results matching every constraint of the spec, preserving
// input order.
func Filter(results []model.SearchResult, spec FilterSpec) []model.SearchResult {
	categories := toSet(spec.Categories)
	feasibility := toSet(spec.Feasibility)
	potential := toSet(spec.MarketPotential)
	query := strings.ToLower(strings.TrimSpace(spec.Query))

	lo, hi := spec.MinScore, spec.MaxScore
	if lo == 0 {
		lo = 1
	}
	if hi == 0 {
		hi = 10
	}

	out := make([]model.SearchResult, 0, len(results))
	for _, r := range results {
		if categories != nil && !categories[r.Category] {
			continue
		}
		if feasibility != nil && !feasibility[r.Feasibility] {
			continue
		}
		if potential != nil && !potential[r.MarketPotential] {
			continue
		}
		if r.InnovationScore < lo || r.InnovationScore > hi {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(r.Title), query) &&
			!strings.Contains(strings.ToLower(r.Description), query) {
			continue
		}
		out = append(out, r)
	}
	return out
}

var levelOrdinal = map[string]int{
	model.LevelHigh:   3,
	model.LevelMedium: 2,
	model.LevelLow:    1,
}

// Sort orders results by the given key, descending, with ties keeping their
// original relative order. Relevance (and any unknown key) is the input order.
func Sort(results []model.SearchResult, key string) []model.SearchResult {
	out := make([]model.SearchResult, len(results))
	copy(out, results)

	switch key {
	case SortFeasibility:
		sort.SliceStable(out, func(i, j int) bool {
			return levelOrdinal[out[i].Feasibility] > levelOrdinal[out[j].Feasibility]
		})
	case SortMarketPotential:
		sort.SliceStable(out, func(i, j int) bool {
			return levelOrdinal[out[i].MarketPotential] > levelOrdinal[out[j].MarketPotential]
		})
	case SortInnovation:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].InnovationScore > out[j].InnovationScore
		})
	}
	return out
}

// Paginate returns the 1-based page of the result set and the total page
// count. Pages past the end are empty.
func Paginate(results []model.SearchResult, page int) ([]model.SearchResult, int) {
	totalPages := (len(results) + PageSize - 1) / PageSize
	if page < 1 {
		page = 1
	}
	start := (page - 1) * PageSize
	if start >= len(results) {
		return []model.SearchResult{}, totalPages
	}
	end := start + PageSize
	if end > len(results) {
		end = len(results)
	}
	return results[start:end], totalPages
}

func toSet(values []string) map[string]bool {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
