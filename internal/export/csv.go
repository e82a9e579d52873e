package export

import (
	"strconv"
	"strings"

	"github.com/unbuiltapp/unbuilt/internal/model"
)

var csvHeader = []string{
	"Title", "Description", "Category", "Feasibility",
	"Market Potential", "Innovation Score", "Market Size", "Gap Reason",
}

// ToCSV renders the results as CSV text. Text fields are quoted with embedded
// quotes doubled; the numeric score is left bare.
func ToCSV(results []model.SearchResult) string {
	var b strings.Builder

	for i, h := range csvHeader {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(quote(h))
	}
	b.WriteByte('\n')

	for _, r := range results {
		fields := []string{
			quote(r.Title),
			quote(r.Description),
			quote(r.Category),
			quote(r.Feasibility),
			quote(r.MarketPotential),
			strconv.Itoa(r.InnovationScore),
			quote(r.MarketSize),
			quote(r.GapReason),
		}
		b.WriteString(strings.Join(fields, ","))
		b.WriteByte('\n')
	}
	return b.String()
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
