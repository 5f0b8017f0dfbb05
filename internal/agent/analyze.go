package agent

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/company-research/internal/model"
	"github.com/sells-group/company-research/internal/scorer"
	"github.com/sells-group/company-research/internal/store"
)

// Analyze scores companies against an investment strategy.
type Analyze struct{}

// NewAnalyze creates the analyze agent.
func NewAnalyze() *Analyze { return &Analyze{} }

// Type implements Agent.
func (a *Analyze) Type() model.AgentType { return model.AgentAnalyze }

// Process implements Agent.
func (a *Analyze) Process(ctx context.Context, q store.Queries, task model.Task) (Outcome, error) {
	if task.TaskType != model.TaskCompanyAnalysis {
		return Outcome{}, unsupported(a, task)
	}
	strategyID := task.Params.String("strategy_id")
	if strategyID == "" {
		return Outcome{}, missingParam(model.AgentAnalyze, "strategy_id")
	}

	strategy, err := q.GetStrategy(ctx, strategyID)
	if err != nil {
		return Outcome{}, eris.Wrap(err, "analyze agent: load strategy")
	}

	var filter model.CompanyFilter
	if f := task.Params.Map("filters"); f != nil {
		fp := model.Params(f)
		filter.Industry = fp.String("industry")
		filter.Location = fp.String("location")
	}
	companies, err := q.ListCompanies(ctx, filter)
	if err != nil {
		return Outcome{}, eris.Wrap(err, "analyze agent: list companies")
	}

	results := make([]map[string]any, 0, len(companies))
	for _, c := range companies {
		metrics, err := q.ListMetrics(ctx, c.ID)
		if err != nil {
			return Outcome{}, eris.Wrapf(err, "analyze agent: metrics for %s", c.ID)
		}
		score := scorer.Evaluate(scorer.ProfileFromMetrics(c, metrics), strategy.Criteria)

		if _, err := q.SaveAnalysisResult(ctx, model.AnalysisResult{
			CompanyID:      c.ID,
			StrategyID:     strategy.ID,
			OverallScore:   score.Overall,
			Explanation:    score.Explanation,
			ScoreBreakdown: score.Breakdown,
		}); err != nil {
			return Outcome{}, eris.Wrapf(err, "analyze agent: save result for %s", c.ID)
		}
		results = append(results, map[string]any{
			"company_id":   c.ID,
			"company_name": c.Name,
			"score":        score.Overall,
			"explanation":  score.Explanation,
		})
	}

	zap.L().Info("analyze agent: scored companies",
		zap.String("task_id", task.ID),
		zap.String("strategy_id", strategy.ID),
		zap.Int("count", len(results)),
	)
	res := success(fmt.Sprintf("Analyzed %d companies against strategy %s.", len(results), strategy.Name))
	res["analyzed_count"] = len(results)
	res["results"] = results
	return Done(res), nil
}
