package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/company-research/internal/model"
	"github.com/sells-group/company-research/internal/store"
)

// Storage persists extracted data onto a company.
type Storage struct{}

// NewStorage creates the store agent.
func NewStorage() *Storage { return &Storage{} }

// Type implements Agent.
func (s *Storage) Type() model.AgentType { return model.AgentStore }

// Process implements Agent.
func (s *Storage) Process(ctx context.Context, q store.Queries, task model.Task) (Outcome, error) {
	if task.TaskType != model.TaskStoreExtractedData {
		return Outcome{}, unsupported(s, task)
	}
	companyID := task.Params.String("company_id")
	if companyID == "" {
		return Outcome{}, missingParam(model.AgentStore, "company_id")
	}
	if _, err := q.GetCompany(ctx, companyID); err != nil {
		return Outcome{}, eris.Wrap(err, "store agent: load company")
	}
	data, err := model.DecodeExtractedData(task.Params["extracted_data"])
	if err != nil {
		return Outcome{}, eris.Wrap(err, "store agent")
	}
	overwrite := task.Params.Bool("overwrite", false)
	sourceURL := task.Params.String("source_url")

	metrics := 0
	for _, m := range data.Metrics {
		if m.Value == nil || m.MetricType == "" {
			continue
		}
		if err := q.UpsertMetric(ctx, model.FinancialMetric{
			CompanyID:  companyID,
			MetricType: m.MetricType,
			Value:      *m.Value,
			Unit:       m.Unit,
			Period:     m.Period,
			RawMention: m.RawMention,
			SourceURL:  sourceURL,
		}); err != nil {
			return Outcome{}, eris.Wrap(err, "store agent: metric")
		}
		metrics++
	}

	events := 0
	for _, e := range data.Events {
		if e.EventType == "" {
			continue
		}
		if err := q.UpsertEvent(ctx, model.CompanyEvent{
			CompanyID:  companyID,
			EventType:  e.EventType,
			Details:    e.Details,
			EventDate:  e.Date,
			RawMention: e.RawMention,
			SourceURL:  sourceURL,
		}); err != nil {
			return Outcome{}, eris.Wrap(err, "store agent: event")
		}
		events++
	}

	if summary := strings.TrimSpace(data.Summary); summary != "" {
		if err := q.UpdateCompanyOverview(ctx, companyID, summary, overwrite); err != nil {
			return Outcome{}, eris.Wrap(err, "store agent: overview")
		}
	}

	links := 0
	if sourceURL != "" && sourceURL != "Unknown" {
		if overwrite {
			links, err = q.ReplaceSources(ctx, companyID, []string{sourceURL})
		} else {
			var added bool
			added, err = q.AddSource(ctx, companyID, sourceURL)
			if added {
				links = 1
			}
		}
		if err != nil {
			return Outcome{}, eris.Wrap(err, "store agent: source link")
		}
	}

	zap.L().Info("store agent: stored extracted data",
		zap.String("task_id", task.ID),
		zap.String("company_id", companyID),
		zap.Bool("overwrite", overwrite),
		zap.Int("metrics", metrics),
		zap.Int("events", events),
		zap.Int("links", links),
	)
	res := success(fmt.Sprintf("Stored %d metrics and %d events for company %s.", metrics, events, companyID))
	res["metrics_stored"] = metrics
	res["events_stored"] = events
	res["links_stored"] = links
	return Done(res), nil
}
