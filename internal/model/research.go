package model

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
)

// Company is a research target.
type Company struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Industry    string    `json:"industry,omitempty"`
	Location    string    `json:"location,omitempty"`
	Description string    `json:"description,omitempty"`
	Overview    string    `json:"overview,omitempty"`
	Website     string    `json:"website,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CompanyFilter narrows the companies considered by an analysis.
type CompanyFilter struct {
	Industry string `json:"industry,omitempty"`
	Location string `json:"location,omitempty"`
}

// FinancialMetric is a numeric fact about a company.
type FinancialMetric struct {
	ID         string    `json:"id"`
	CompanyID  string    `json:"company_id"`
	MetricType string    `json:"metric_type"`
	Value      float64   `json:"value"`
	Unit       string    `json:"unit,omitempty"`
	Period     string    `json:"period,omitempty"`
	RawMention string    `json:"raw_mention,omitempty"`
	SourceURL  string    `json:"source_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// CompanyEvent is a dated occurrence (funding round, acquisition, launch).
type CompanyEvent struct {
	ID         string    `json:"id"`
	CompanyID  string    `json:"company_id"`
	EventType  string    `json:"event_type"`
	Details    string    `json:"details,omitempty"`
	EventDate  string    `json:"event_date,omitempty"`
	RawMention string    `json:"raw_mention,omitempty"`
	SourceURL  string    `json:"source_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// CompanySource links a company to a page its data was derived from.
type CompanySource struct {
	ID        string    `json:"id"`
	CompanyID string    `json:"company_id"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// SearchQuery records a search request; its results hang off it.
type SearchQuery struct {
	ID           string    `json:"id"`
	QueryText    string    `json:"query_text"`
	TargetEntity string    `json:"target_entity,omitempty"`
	ResultCount  int       `json:"result_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// SearchResult is one ranked hit of a search query.
type SearchResult struct {
	ID          string    `json:"id"`
	QueryID     string    `json:"query_id"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Snippet     string    `json:"snippet"`
	Rank        int       `json:"rank"`
	IsProcessed bool      `json:"is_processed"`
	ProcessOK   bool      `json:"process_ok"`
	CreatedAt   time.Time `json:"created_at"`
}

// Range is an inclusive numeric range. A zero Max means unbounded.
type Range struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max,omitempty" yaml:"max,omitempty"`
}

// GrowthCriteria sets the annual growth thresholds of a strategy.
type GrowthCriteria struct {
	MinAnnualGrowth       float64 `json:"min_annual_growth" yaml:"min_annual_growth"`
	PreferredAnnualGrowth float64 `json:"preferred_annual_growth,omitempty" yaml:"preferred_annual_growth,omitempty"`
}

// StrategyCriteria is the weighted rubric companies are scored against.
type StrategyCriteria struct {
	IndustryFocus   []string           `json:"industry_focus,omitempty" yaml:"industry_focus,omitempty"`
	RevenueRange    *Range             `json:"revenue_range,omitempty" yaml:"revenue_range,omitempty"`
	Growth          *GrowthCriteria    `json:"growth_criteria,omitempty" yaml:"growth_criteria,omitempty"`
	GeographicFocus []string           `json:"geographic_focus,omitempty" yaml:"geographic_focus,omitempty"`
	Weights         map[string]float64 `json:"weights,omitempty" yaml:"weights,omitempty"`
}

// Strategy is an investment strategy with its scoring criteria.
type Strategy struct {
	ID          string           `json:"id" yaml:"id,omitempty"`
	Name        string           `json:"name" yaml:"name"`
	Description string           `json:"description,omitempty" yaml:"description,omitempty"`
	Criteria    StrategyCriteria `json:"criteria" yaml:"criteria"`
	CreatedAt   time.Time        `json:"created_at" yaml:"-"`
}

// FactorScore is one line of a score breakdown.
type FactorScore struct {
	Score         float64 `json:"score"`
	Weight        float64 `json:"weight"`
	WeightedScore float64 `json:"weighted_score"`
}

// AnalysisResult is a company's score against a strategy.
type AnalysisResult struct {
	ID             string                 `json:"id"`
	CompanyID      string                 `json:"company_id"`
	StrategyID     string                 `json:"strategy_id"`
	OverallScore   float64                `json:"overall_score"`
	Explanation    string                 `json:"explanation"`
	ScoreBreakdown map[string]FactorScore `json:"score_breakdown"`
	CreatedAt      time.Time              `json:"created_at"`
}

// ExtractedData is the structured output of LLM extraction over one page.
type ExtractedData struct {
	CompanyNameMentioned string            `json:"company_name_mentioned,omitempty"`
	Summary              string            `json:"summary,omitempty"`
	Metrics              []ExtractedMetric `json:"metrics"`
	Events               []ExtractedEvent  `json:"events"`
}

// Empty reports whether nothing was extracted.
func (d ExtractedData) Empty() bool {
	return d.CompanyNameMentioned == "" && d.Summary == "" && len(d.Metrics) == 0 && len(d.Events) == 0
}

// ExtractedMetric is a financial metric mentioned in text.
type ExtractedMetric struct {
	MetricType string   `json:"metric_type"`
	Value      *float64 `json:"value"`
	Unit       string   `json:"unit,omitempty"`
	Period     string   `json:"period,omitempty"`
	RawMention string   `json:"raw_mention,omitempty"`
}

// ExtractedEvent is a company event mentioned in text.
type ExtractedEvent struct {
	EventType  string `json:"event_type"`
	Details    string `json:"details,omitempty"`
	Date       string `json:"date,omitempty"`
	RawMention string `json:"raw_mention,omitempty"`
}

// CrawledPage is the cleaned text of one fetched page.
type CrawledPage struct {
	URL        string `json:"url"`
	Title      string `json:"title"`
	Text       string `json:"text"`
	StatusCode int    `json:"status_code,omitempty"`
}

// SearchHit is one result returned by a web search provider.
type SearchHit struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// DecodeExtractedData converts an extracted_data payload, usually a
// JSON-decoded map, into ExtractedData.
func DecodeExtractedData(v any) (ExtractedData, error) {
	var data ExtractedData
	switch d := v.(type) {
	case nil:
		return data, eris.Wrap(ErrInvalidParams, "extracted_data is required")
	case ExtractedData:
		return d, nil
	case *ExtractedData:
		return *d, nil
	}
	b, err := json.Marshal(v)
	if err == nil {
		err = json.Unmarshal(b, &data)
	}
	if err != nil {
		return data, eris.Wrapf(ErrInvalidParams, "extracted_data: %v", err)
	}
	return data, nil
}

// SourcedData is extracted data with the page it came from.
type SourcedData struct {
	Data      ExtractedData `json:"extracted_data"`
	SourceURL string        `json:"source_url,omitempty"`
}
