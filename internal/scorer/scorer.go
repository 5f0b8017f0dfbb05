// Package scorer rates companies against an investment strategy's weighted
// criteria.
package scorer

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"github.com/sells-group/company-research/internal/model"
)

// Factor names used in weights and score breakdowns.
const (
	FactorIndustry = "industry_match"
	FactorRevenue  = "revenue"
	FactorGrowth   = "growth"
	FactorLocation = "location"
)

// Metric types the rubric reads.
const (
	MetricRevenue    = "revenue"
	MetricGrowthRate = "growth_rate"
)

// CompanyProfile is what the rubric knows about a company.
type CompanyProfile struct {
	Industry string
	Location string
	// Revenue and GrowthRate are nil when no metric was recorded.
	Revenue    *float64
	GrowthRate *float64
}

// ProfileFromMetrics builds a profile from a company and its metrics, newest
// first as the store lists them. The first metric of each type wins.
func ProfileFromMetrics(c model.Company, metrics []model.FinancialMetric) CompanyProfile {
	p := CompanyProfile{Industry: c.Industry, Location: c.Location}
	for _, m := range metrics {
		v := m.Value
		switch m.MetricType {
		case MetricRevenue:
			if p.Revenue == nil {
				p.Revenue = &v
			}
		case MetricGrowthRate:
			if p.GrowthRate == nil {
				p.GrowthRate = &v
			}
		}
	}
	return p
}

// Score is the outcome of rating one company.
type Score struct {
	Overall     float64                      `json:"overall"`
	Breakdown   map[string]model.FactorScore `json:"breakdown"`
	Explanation string                       `json:"explanation"`
}

var folder = cases.Fold()

func fold(s string) string {
	return folder.String(strings.TrimSpace(s))
}

// Evaluate scores p against c. Only factors the strategy sets criteria for
// take part; the overall score is the weighted mean of those factors.
func Evaluate(p CompanyProfile, c model.StrategyCriteria) Score {
	components := make(map[string]float64)
	var phrases []string

	if len(c.IndustryFocus) > 0 {
		s := scoreIndustry(p.Industry, c.IndustryFocus)
		components[FactorIndustry] = s
		if s == 1 {
			phrases = append(phrases, "industry matches focus")
		} else {
			phrases = append(phrases, "industry outside focus")
		}
	}
	if c.RevenueRange != nil {
		s := scoreRevenue(p.Revenue, *c.RevenueRange)
		components[FactorRevenue] = s
		switch {
		case p.Revenue == nil:
			phrases = append(phrases, "no revenue data")
		case s == 1:
			phrases = append(phrases, "revenue within range")
		case s > 0:
			phrases = append(phrases, "revenue below range")
		default:
			phrases = append(phrases, "revenue above range")
		}
	}
	if c.Growth != nil {
		s := scoreGrowth(p.GrowthRate, *c.Growth)
		components[FactorGrowth] = s
		switch {
		case p.GrowthRate == nil:
			phrases = append(phrases, "no growth data")
		case s == 1:
			phrases = append(phrases, "growth at or above preferred rate")
		case s > 0:
			phrases = append(phrases, "growth above minimum")
		default:
			phrases = append(phrases, "growth below minimum")
		}
	}
	if len(c.GeographicFocus) > 0 {
		s := scoreLocation(p.Location, c.GeographicFocus)
		components[FactorLocation] = s
		if s == 1 {
			phrases = append(phrases, "location in target geography")
		} else {
			phrases = append(phrases, "location outside target geography")
		}
	}

	breakdown := make(map[string]model.FactorScore, len(components))
	var total, weightSum float64
	for name, s := range components {
		w := weight(c.Weights, name)
		breakdown[name] = model.FactorScore{Score: s, Weight: w, WeightedScore: s * w}
		total += s * w
		weightSum += w
	}
	overall := 0.0
	if weightSum > 0 {
		overall = math.Round(total/weightSum*1000) / 1000
	}

	return Score{
		Overall:     overall,
		Breakdown:   breakdown,
		Explanation: explain(overall, phrases),
	}
}

func weight(weights map[string]float64, name string) float64 {
	if w, ok := weights[name]; ok && w >= 0 {
		return w
	}
	return 1
}

// Tier names the band an overall score falls in.
func Tier(overall float64) string {
	switch {
	case overall >= 0.8:
		return "excellent"
	case overall >= 0.6:
		return "strong"
	case overall >= 0.4:
		return "moderate"
	default:
		return "weak"
	}
}

func explain(overall float64, phrases []string) string {
	if len(phrases) == 0 {
		return "Strategy sets no scoring criteria."
	}
	sort.Strings(phrases)
	return fmt.Sprintf("Company scored %.2f, a %s match for the strategy: %s.",
		overall, Tier(overall), strings.Join(phrases, "; "))
}

// scoreIndustry returns 1 when industry is one of focus, case-folded.
func scoreIndustry(industry string, focus []string) float64 {
	if industry == "" {
		return 0
	}
	ind := fold(industry)
	for _, f := range focus {
		if fold(f) == ind {
			return 1
		}
	}
	return 0
}

// scoreRevenue returns 1 inside the range, partial credit below it and 0
// above it.
func scoreRevenue(revenue *float64, r model.Range) float64 {
	if revenue == nil || *revenue <= 0 {
		return 0
	}
	v := *revenue
	if r.Max > 0 && v > r.Max {
		return 0
	}
	if v >= r.Min {
		return 1
	}
	return math.Max(0, v/r.Min)
}

// scoreGrowth returns 1 at or above the preferred rate, scales linearly
// between the minimum and preferred rates and returns 0 below the minimum.
func scoreGrowth(rate *float64, g model.GrowthCriteria) float64 {
	if rate == nil {
		return 0
	}
	v := *rate
	preferred := g.PreferredAnnualGrowth
	if preferred <= g.MinAnnualGrowth {
		preferred = 2 * g.MinAnnualGrowth
	}
	switch {
	case v >= preferred:
		return 1
	case v < g.MinAnnualGrowth:
		return 0
	case preferred == g.MinAnnualGrowth:
		return 1
	}
	return (v - g.MinAnnualGrowth) / (preferred - g.MinAnnualGrowth)
}

// scoreLocation returns 1 when any focus region appears in location.
func scoreLocation(location string, focus []string) float64 {
	if location == "" {
		return 0
	}
	loc := fold(location)
	for _, f := range focus {
		if f = fold(f); f != "" && strings.Contains(loc, f) {
			return 1
		}
	}
	return 0
}
