package store

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/company-research/internal/model"
)

// defaultListLimit caps list queries that do not set a limit.
const defaultListLimit = 100

// paragraphSep joins appended overview paragraphs.
const paragraphSep = "\n\n"

func notFound(entity, id string) error {
	return eris.Wrapf(model.ErrNotFound, "%s %s", entity, id)
}

// marshalNullable encodes v as JSON, returning nil for nil maps so the
// column stays NULL.
func marshalNullable[M ~map[string]any](v M) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, eris.Wrap(err, "marshal json")
	}
	return b, nil
}

func unmarshalMap[M ~map[string]any](b []byte) (M, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var m M
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, eris.Wrap(err, "unmarshal json")
	}
	return m, nil
}

// profileState is the JSON column of profile_runs. The scalar phase, poll
// count and error live in their own columns so active runs can be queried.
type profileState struct {
	SearchTaskID   string               `json:"search_task_id,omitempty"`
	SearchQueryID  string               `json:"search_query_id,omitempty"`
	CrawlTaskIDs   []string             `json:"crawl_task_ids,omitempty"`
	ExtractTaskIDs []string             `json:"extract_task_ids,omitempty"`
	StoreTaskIDs   []string             `json:"store_task_ids,omitempty"`
	Aggregated     []model.SourcedData  `json:"aggregated,omitempty"`
	Report         model.PipelineReport `json:"report"`
}

func stateOf(run *model.ProfileRun) ([]byte, error) {
	b, err := json.Marshal(profileState{
		SearchTaskID:   run.SearchTaskID,
		SearchQueryID:  run.SearchQueryID,
		CrawlTaskIDs:   run.CrawlTaskIDs,
		ExtractTaskIDs: run.ExtractTaskIDs,
		StoreTaskIDs:   run.StoreTaskIDs,
		Aggregated:     run.Aggregated,
		Report:         run.Report,
	})
	return b, eris.Wrap(err, "marshal profile state")
}

func applyState(run *model.ProfileRun, b []byte) error {
	if len(b) == 0 {
		return nil
	}
	var st profileState
	if err := json.Unmarshal(b, &st); err != nil {
		return eris.Wrap(err, "unmarshal profile state")
	}
	run.SearchTaskID = st.SearchTaskID
	run.SearchQueryID = st.SearchQueryID
	run.CrawlTaskIDs = st.CrawlTaskIDs
	run.ExtractTaskIDs = st.ExtractTaskIDs
	run.StoreTaskIDs = st.StoreTaskIDs
	run.Aggregated = st.Aggregated
	run.Report = st.Report
	return nil
}

func now() time.Time {
	return time.Now().UTC()
}

func timePtr(t time.Time) *time.Time {
	return &t
}
