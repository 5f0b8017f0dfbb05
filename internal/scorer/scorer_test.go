package scorer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/company-research/internal/model"
)

func f(v float64) *float64 { return &v }

func fullCriteria() model.StrategyCriteria {
	return model.StrategyCriteria{
		IndustryFocus:   []string{"Software", "Healthcare"},
		RevenueRange:    &model.Range{Min: 10_000_000, Max: 100_000_000},
		Growth:          &model.GrowthCriteria{MinAnnualGrowth: 10, PreferredAnnualGrowth: 30},
		GeographicFocus: []string{"texas", "california"},
	}
}

func TestEvaluate_PerfectMatch(t *testing.T) {
	s := Evaluate(CompanyProfile{
		Industry:   "SOFTWARE",
		Location:   "Austin, Texas",
		Revenue:    f(50_000_000),
		GrowthRate: f(35),
	}, fullCriteria())

	assert.Equal(t, 1.0, s.Overall)
	require.Len(t, s.Breakdown, 4)
	for name, fs := range s.Breakdown {
		assert.Equal(t, 1.0, fs.Score, name)
		assert.Equal(t, 1.0, fs.Weight, name)
	}
	assert.Contains(t, s.Explanation, "excellent match")
	assert.Contains(t, s.Explanation, "revenue within range")
}

func TestEvaluate_WeightedPartial(t *testing.T) {
	c := fullCriteria()
	c.Weights = map[string]float64{FactorIndustry: 3, FactorRevenue: 1}

	s := Evaluate(CompanyProfile{
		Industry:   "Retail",
		Location:   "Ohio",
		Revenue:    f(5_000_000),
		GrowthRate: f(20),
	}, c)

	// industry 0*3, revenue 0.5*1, growth 0.5*1, location 0*1 over weight 6.
	assert.InDelta(t, 1.0/6.0, s.Overall, 0.001)
	assert.Equal(t, 3.0, s.Breakdown[FactorIndustry].Weight)
	assert.InDelta(t, 0.5, s.Breakdown[FactorRevenue].WeightedScore, 1e-9)
	assert.Contains(t, s.Explanation, "weak match")
}

func TestEvaluate_OnlySetCriteriaCount(t *testing.T) {
	s := Evaluate(CompanyProfile{Industry: "Healthcare"}, model.StrategyCriteria{IndustryFocus: []string{"healthcare"}})
	assert.Equal(t, 1.0, s.Overall)
	assert.Len(t, s.Breakdown, 1)

	empty := Evaluate(CompanyProfile{Industry: "Healthcare"}, model.StrategyCriteria{})
	assert.Zero(t, empty.Overall)
	assert.Empty(t, empty.Breakdown)
	assert.Equal(t, "Strategy sets no scoring criteria.", empty.Explanation)
}

func TestScoreRevenue(t *testing.T) {
	r := model.Range{Min: 10, Max: 100}
	assert.Equal(t, 0.0, scoreRevenue(nil, r))
	assert.Equal(t, 1.0, scoreRevenue(f(10), r))
	assert.Equal(t, 1.0, scoreRevenue(f(100), r))
	assert.Equal(t, 0.5, scoreRevenue(f(5), r))
	assert.Equal(t, 0.0, scoreRevenue(f(101), r))
	assert.Equal(t, 1.0, scoreRevenue(f(1e12), model.Range{Min: 10}), "zero max is unbounded")
}

func TestScoreGrowth(t *testing.T) {
	g := model.GrowthCriteria{MinAnnualGrowth: 10}
	assert.Equal(t, 0.0, scoreGrowth(nil, g))
	assert.Equal(t, 0.0, scoreGrowth(f(5), g))
	assert.Equal(t, 0.0, scoreGrowth(f(10), g))
	assert.Equal(t, 0.5, scoreGrowth(f(15), g), "preferred defaults to twice the minimum")
	assert.Equal(t, 1.0, scoreGrowth(f(20), g))
}

func TestScoreLocation_CaseFolded(t *testing.T) {
	assert.Equal(t, 1.0, scoreLocation("MÜNCHEN, Germany", []string{"münchen"}))
	assert.Equal(t, 0.0, scoreLocation("", []string{"texas"}))
	assert.Equal(t, 0.0, scoreLocation("Ohio", []string{"", "texas"}))
}

func TestTier(t *testing.T) {
	assert.Equal(t, "excellent", Tier(0.8))
	assert.Equal(t, "strong", Tier(0.6))
	assert.Equal(t, "moderate", Tier(0.4))
	assert.Equal(t, "weak", Tier(0.39))
}

func TestProfileFromMetrics_NewestWins(t *testing.T) {
	now := time.Now()
	p := ProfileFromMetrics(model.Company{Industry: "Software", Location: "Austin"}, []model.FinancialMetric{
		{MetricType: MetricRevenue, Value: 1, CreatedAt: now},
		{MetricType: MetricRevenue, Value: 2, CreatedAt: now},
		{MetricType: MetricGrowthRate, Value: 12},
		{MetricType: "employees", Value: 40},
	})
	require.NotNil(t, p.Revenue)
	assert.Equal(t, 1.0, *p.Revenue)
	assert.Equal(t, 12.0, *p.GrowthRate)
	assert.Equal(t, "Software", p.Industry)
}
