package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/company-research/internal/model"
	"github.com/sells-group/company-research/internal/store"
)

// Ingestion loads strategy documents and acknowledges CSV imports.
type Ingestion struct{}

// NewIngestion creates the data ingestion agent.
func NewIngestion() *Ingestion { return &Ingestion{} }

// Type implements Agent.
func (i *Ingestion) Type() model.AgentType { return model.AgentDataIngestion }

// Process implements Agent.
func (i *Ingestion) Process(ctx context.Context, q store.Queries, task model.Task) (Outcome, error) {
	switch task.TaskType {
	case model.TaskProcessCSV:
		zap.L().Info("ingestion agent: csv import acknowledged",
			zap.String("task_id", task.ID),
			zap.String("file", task.Params.String("file_path")),
		)
		return Done(success("CSV processing acknowledged.")), nil
	case model.TaskProcessStrategy:
		st, err := StrategyFromParams(task.Params)
		if err != nil {
			return Outcome{}, err
		}
		saved, err := q.CreateStrategy(ctx, st)
		if err != nil {
			return Outcome{}, eris.Wrap(err, "ingestion agent: save strategy")
		}
		zap.L().Info("ingestion agent: strategy stored",
			zap.String("task_id", task.ID),
			zap.String("strategy_id", saved.ID),
			zap.String("name", saved.Name),
		)
		res := success(fmt.Sprintf("Strategy %q processed.", saved.Name))
		res["strategy_id"] = saved.ID
		return Done(res), nil
	}
	return Outcome{}, unsupported(i, task)
}

// StrategyFromParams reads a strategy from a "document" param holding YAML
// or JSON text, or from a "strategy" object.
func StrategyFromParams(p model.Params) (model.Strategy, error) {
	var st model.Strategy
	if doc := p.String("document"); strings.TrimSpace(doc) != "" {
		if err := yaml.Unmarshal([]byte(doc), &st); err != nil {
			return st, eris.Wrapf(model.ErrInvalidParams, "ingestion agent: strategy document: %v", err)
		}
	} else if obj, ok := p["strategy"]; ok && obj != nil {
		b, err := json.Marshal(obj)
		if err == nil {
			err = json.Unmarshal(b, &st)
		}
		if err != nil {
			return st, eris.Wrapf(model.ErrInvalidParams, "ingestion agent: strategy object: %v", err)
		}
	} else {
		return st, missingParam(model.AgentDataIngestion, "document or strategy")
	}

	st.Name = strings.TrimSpace(st.Name)
	if st.Name == "" {
		return st, missingParam(model.AgentDataIngestion, "strategy name")
	}
	return st, nil
}
