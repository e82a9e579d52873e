// Package gapanalysis turns a free-text market query into a bounded list of
// structured opportunity records by calling the Gemini API. When no API key
// is configured it serves deterministic placeholder data so the rest of the
// pipeline stays exercisable.
package gapanalysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/unbuiltapp/unbuilt/internal/model"
)

// ErrAnalysisFailed is returned when the model call errors or its output
// cannot be parsed into valid gap records.
var ErrAnalysisFailed = errors.New("gap analysis failed")

const (
	defaultModel   = "gemini-1.5-flash"
	requestTimeout = 60 * time.Second
	minGaps        = 1
	maxGaps        = 8
)

// Gap is one candidate market gap as returned by the model.
type Gap struct {
	Title           string `json:"title"`
	Description     string `json:"description"`
	Category        string `json:"category"`
	Feasibility     string `json:"feasibility"`
	MarketPotential string `json:"marketPotential"`
	InnovationScore int    `json:"innovationScore"`
	MarketSize      string `json:"marketSize"`
	GapReason       string `json:"gapReason"`
}

type Client struct {
	client    *genai.Client
	modelName string
	logger    *slog.Logger
}

// NewClient initializes the Gemini client. An empty apiKey yields a client in
// fallback mode that never calls out.
func NewClient(ctx context.Context, apiKey, modelName string, logger *slog.Logger) (*Client, error) {
	if modelName == "" {
		modelName = defaultModel
	}
	c := &Client{modelName: modelName, logger: logger}
	if apiKey == "" {
		logger.Info("no gemini api key configured, serving fallback gap data")
		return c, nil
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	c.client = client
	return c, nil
}

// Configured returns true if a live Gemini client is available.
func (c *Client) Configured() bool {
	return c.client != nil
}

func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Analyze returns 1-8 validated gap records for the query. One synchronous
// call, no retry; the caller surfaces ErrAnalysisFailed as a generic error.
func (c *Client) Analyze(ctx context.Context, query string) ([]Gap, error) {
	if c.client == nil {
		return fallbackGaps(query), nil
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	m := c.client.GenerativeModel(c.modelName)
	m.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   gapSchema,
	}

	prompt := fmt.Sprintf(
		`Identify 5 to 8 market gaps for the following query: %q. `+
			`For each gap give a concise title, a description of what is missing, `+
			`why it does not exist yet, an estimated market size (e.g. "$2.3B"), `+
			`and honest feasibility and market potential ratings.`,
		query,
	)

	resp, err := m.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		c.logger.Error("gemini request failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
	}

	raw := responseText(resp)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty model response", ErrAnalysisFailed)
	}

	gaps, err := ParseGaps([]byte(raw))
	if err != nil {
		c.logger.Error("gemini response rejected", "error", err)
		return nil, err
	}
	return gaps, nil
}

// ParseGaps decodes and validates a JSON array of gap records.
func ParseGaps(data []byte) ([]Gap, error) {
	var gaps []Gap
	if err := json.Unmarshal(data, &gaps); err != nil {
		return nil, fmt.Errorf("%w: parse output: %v", ErrAnalysisFailed, err)
	}
	if len(gaps) < minGaps || len(gaps) > maxGaps {
		return nil, fmt.Errorf("%w: expected %d-%d gaps, got %d", ErrAnalysisFailed, minGaps, maxGaps, len(gaps))
	}
	for i, g := range gaps {
		if err := validateGap(g); err != nil {
			return nil, fmt.Errorf("%w: gap %d: %v", ErrAnalysisFailed, i, err)
		}
	}
	return gaps, nil
}

var validCategories = map[string]bool{
	model.CategoryTech:     true,
	model.CategoryServices: true,
	model.CategoryProducts: true,
	model.CategoryBusiness: true,
}

var validLevels = map[string]bool{
	model.LevelHigh:   true,
	model.LevelMedium: true,
	model.LevelLow:    true,
}

func validateGap(g Gap) error {
	if g.Title == "" {
		return errors.New("missing title")
	}
	if !validCategories[g.Category] {
		return fmt.Errorf("unknown category %q", g.Category)
	}
	if !validLevels[g.Feasibility] {
		return fmt.Errorf("invalid feasibility %q", g.Feasibility)
	}
	if !validLevels[g.MarketPotential] {
		return fmt.Errorf("invalid market potential %q", g.MarketPotential)
	}
	if g.InnovationScore < 1 || g.InnovationScore > 10 {
		return fmt.Errorf("innovation score %d out of range", g.InnovationScore)
	}
	return nil
}

var gapSchema = &genai.Schema{
	Type: genai.TypeArray,
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"title":       {Type: genai.TypeString},
			"description": {Type: genai.TypeString},
			"category": {
				Type: genai.TypeString,
				Enum: []string{model.CategoryTech, model.CategoryServices, model.CategoryProducts, model.CategoryBusiness},
			},
			"feasibility": {
				Type: genai.TypeString,
				Enum: []string{model.LevelHigh, model.LevelMedium, model.LevelLow},
			},
			"marketPotential": {
				Type: genai.TypeString,
				Enum: []string{model.LevelHigh, model.LevelMedium, model.LevelLow},
			},
			"innovationScore": {Type: genai.TypeInteger},
			"marketSize":      {Type: genai.TypeString},
			"gapReason":       {Type: genai.TypeString},
		},
		Required: []string{"title", "description", "category", "feasibility", "marketPotential", "innovationScore", "marketSize", "gapReason"},
	},
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var out string
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			out += string(text)
		}
	}
	return out
}

// fallbackGaps returns deterministic placeholder records keyed off the query
// text so the product works end to end without a live credential.
func fallbackGaps(query string) []Gap {
	return []Gap{
		{
			Title:           fmt.Sprintf("AI-Powered %s Optimization Platform", query),
			Description:     fmt.Sprintf("No turnkey platform exists that applies machine learning to optimize %s workflows for mid-market companies.", query),
			Category:        model.CategoryTech,
			Feasibility:     model.LevelHigh,
			MarketPotential: model.LevelHigh,
			InnovationScore: 8,
			MarketSize:      "$2.3B",
			GapReason:       "Incumbents focus on enterprise customers, leaving the mid-market underserved.",
		},
		{
			Title:           fmt.Sprintf("On-Demand %s Consulting Marketplace", query),
			Description:     fmt.Sprintf("A vetted marketplace matching %s specialists with short-term projects does not exist.", query),
			Category:        model.CategoryServices,
			Feasibility:     model.LevelMedium,
			MarketPotential: model.LevelHigh,
			InnovationScore: 6,
			MarketSize:      "$850M",
			GapReason:       "Fragmented supply and poor quality signal keep this market informal.",
		},
		{
			Title:           fmt.Sprintf("Subscription %s Outcome Guarantee", query),
			Description:     fmt.Sprintf("Nobody sells %s as a guaranteed-outcome subscription with pricing tied to measured results.", query),
			Category:        model.CategoryBusiness,
			Feasibility:     model.LevelLow,
			MarketPotential: model.LevelMedium,
			InnovationScore: 7,
			MarketSize:      "$1.1B",
			GapReason:       "Outcome measurement is hard to contract for, so vendors default to time-based billing.",
		},
	}
}
