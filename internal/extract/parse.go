package extract

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/company-research/internal/model"
)

var fenceRe = regexp.MustCompile("(?is)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// cleanJSON pulls the JSON object out of a model reply that may wrap it in
// a code fence or prefix it with "json".
func cleanJSON(raw string) string {
	if m := fenceRe.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}
	text := strings.TrimSpace(raw)
	if len(text) >= 4 && strings.EqualFold(text[:4], "json") {
		text = strings.TrimSpace(text[4:])
	}
	return text
}

// rawData mirrors ExtractedData with loosely typed metric values, since
// models often quote numbers or add units.
type rawData struct {
	CompanyNameMentioned string `json:"company_name_mentioned"`
	Summary              string `json:"summary"`
	Metrics              []struct {
		MetricType string `json:"metric_type"`
		Value      any    `json:"value"`
		Unit       string `json:"unit"`
		Period     string `json:"period"`
		RawMention string `json:"raw_mention"`
	} `json:"metrics"`
	Events []model.ExtractedEvent `json:"events"`
}

// Parse decodes a model reply. A reply that is not valid JSON is run
// through jsonrepair once; if that also fails, Parse returns empty data
// and ok=false. It never returns an error: a parse failure is not a task
// failure.
func Parse(raw string) (model.ExtractedData, bool) {
	data, err := decode(cleanJSON(raw))
	if err != nil {
		zap.L().Warn("extract: unparseable model output",
			zap.Error(err),
			zap.Int("length", len(raw)),
		)
		return emptyData(), false
	}
	return data, true
}

func decode(text string) (model.ExtractedData, error) {
	var rd rawData
	if err := json.Unmarshal([]byte(text), &rd); err != nil {
		repaired, rerr := jsonrepair.JSONRepair(text)
		if rerr != nil {
			return model.ExtractedData{}, eris.Wrapf(model.ErrParse, "decode: %v; repair: %v", err, rerr)
		}
		rd = rawData{}
		if err := json.Unmarshal([]byte(repaired), &rd); err != nil {
			return model.ExtractedData{}, eris.Wrapf(model.ErrParse, "decode repaired: %v", err)
		}
	}

	out := emptyData()
	out.CompanyNameMentioned = strings.TrimSpace(rd.CompanyNameMentioned)
	out.Summary = strings.TrimSpace(rd.Summary)
	for _, m := range rd.Metrics {
		if m.MetricType == "" {
			continue
		}
		out.Metrics = append(out.Metrics, model.ExtractedMetric{
			MetricType: m.MetricType,
			Value:      toFloat(m.Value),
			Unit:       m.Unit,
			Period:     m.Period,
			RawMention: m.RawMention,
		})
	}
	for _, e := range rd.Events {
		if e.EventType == "" {
			continue
		}
		out.Events = append(out.Events, e)
	}
	return out, nil
}

func emptyData() model.ExtractedData {
	return model.ExtractedData{
		Metrics: []model.ExtractedMetric{},
		Events:  []model.ExtractedEvent{},
	}
}

var numberCleaner = strings.NewReplacer(",", "", "$", "", "%", "", " ", "")

// toFloat converts a JSON value to a number, accepting numeric strings
// like "$1,200,000". Anything else is nil.
func toFloat(v any) *float64 {
	switch n := v.(type) {
	case float64:
		return &n
	case string:
		if f, err := strconv.ParseFloat(numberCleaner.Replace(n), 64); err == nil {
			return &f
		}
	}
	return nil
}
