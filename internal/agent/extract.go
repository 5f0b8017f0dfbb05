package agent

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/company-research/internal/extract"
	"github.com/sells-group/company-research/internal/model"
	"github.com/sells-group/company-research/internal/store"
)

// Extract turns page text into structured company data with an LLM.
type Extract struct {
	completer     Completer
	maxInputChars int
}

// NewExtract creates the extract agent.
func NewExtract(deps Deps) *Extract {
	deps = deps.withDefaults()
	return &Extract{completer: deps.Completer, maxInputChars: deps.MaxInputChars}
}

// Type implements Agent.
func (e *Extract) Type() model.AgentType { return model.AgentExtract }

// Process implements Agent.
func (e *Extract) Process(ctx context.Context, _ store.Queries, task model.Task) (Outcome, error) {
	if task.TaskType != model.TaskExtractFromContent {
		return Outcome{}, unsupported(e, task)
	}

	content := task.Params.String("content")
	if content == "" {
		content = task.Params.String("full_content_limited")
	}
	sourceURL := task.Params.String("source_url")
	if sourceURL == "" {
		sourceURL = "Unknown"
	}

	log := zap.L().With(zap.String("task_id", task.ID), zap.String("source_url", sourceURL))
	if content == "" {
		log.Warn("extract agent: no content, skipping")
		return Done(model.Result{"status": "skipped", "message": "No content provided for extraction."}), nil
	}

	prompt := extract.BuildPrompt(content, task.Params.String("company_name"), e.maxInputChars)
	raw, err := e.completer.Complete(ctx, prompt)
	if err != nil {
		return Outcome{}, eris.Wrap(err, "extract agent: complete")
	}

	data, ok := extract.Parse(raw)
	log.Info("extract agent: extracted",
		zap.Bool("parsed", ok),
		zap.Int("metrics", len(data.Metrics)),
		zap.Int("events", len(data.Events)),
	)

	res := model.Result{
		"status":         "success",
		"source_url":     sourceURL,
		"extracted_data": data,
	}
	if id, found := task.Params["original_search_result_id"]; found {
		res["original_search_result_id"] = id
	}
	return Done(res), nil
}
