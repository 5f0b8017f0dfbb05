package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/company-research/internal/db"
	"github.com/sells-group/company-research/internal/model"
)

// --- Search ---

func (s pgQueries) CreateSearchQuery(ctx context.Context, queryText, targetEntity string) (*model.SearchQuery, error) {
	sq := &model.SearchQuery{ID: uuid.New().String(), QueryText: queryText, TargetEntity: targetEntity, CreatedAt: now()}
	_, err := s.q.Exec(ctx,
		`INSERT INTO search_queries (id, query_text, target_entity, result_count, created_at) VALUES ($1, $2, $3, 0, $4)`,
		sq.ID, sq.QueryText, sq.TargetEntity, sq.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert search query")
	}
	return sq, nil
}

func (s pgQueries) GetSearchQuery(ctx context.Context, id string) (*model.SearchQuery, error) {
	var sq model.SearchQuery
	err := s.q.QueryRow(ctx,
		`SELECT id, query_text, target_entity, result_count, created_at FROM search_queries WHERE id = $1`, id,
	).Scan(&sq.ID, &sq.QueryText, &sq.TargetEntity, &sq.ResultCount, &sq.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("search query", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get search query %s", id)
	}
	return &sq, nil
}

// AddSearchResults bulk-loads results with COPY and records the count on
// the parent query.
func (s pgQueries) AddSearchResults(ctx context.Context, queryID string, results []model.SearchResult) (int, error) {
	ts := now()
	rows := make([][]any, len(results))
	for i, r := range results {
		id := r.ID
		if id == "" {
			id = uuid.New().String()
		}
		rows[i] = []any{id, queryID, r.Title, r.URL, r.Snippet, r.Rank, false, false, ts}
	}

	columns := []string{"id", "query_id", "title", "url", "snippet", "rank", "is_processed", "process_ok", "created_at"}
	if _, err := db.CopyFrom(ctx, s.q, "search_results", columns, rows); err != nil {
		return 0, eris.Wrapf(err, "postgres: add search results %s", queryID)
	}

	tag, err := s.q.Exec(ctx,
		`UPDATE search_queries SET result_count = $1 WHERE id = $2`, len(results), queryID,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: update result count %s", queryID)
	}
	if err := checkTag(tag, "search query", queryID); err != nil {
		return 0, err
	}
	return len(results), nil
}

func (s pgQueries) ListSearchResults(ctx context.Context, queryID string, unprocessedOnly bool) ([]model.SearchResult, error) {
	query := `SELECT id, query_id, title, url, snippet, rank, is_processed, process_ok, created_at
		FROM search_results WHERE query_id = $1`
	if unprocessedOnly {
		query += ` AND is_processed = false`
	}
	query += ` ORDER BY rank ASC`

	rows, err := s.q.Query(ctx, query, queryID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list search results")
	}
	defer rows.Close()

	var out []model.SearchResult
	for rows.Next() {
		var r model.SearchResult
		if err := rows.Scan(&r.ID, &r.QueryID, &r.Title, &r.URL, &r.Snippet, &r.Rank, &r.IsProcessed, &r.ProcessOK, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan search result")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list search results iterate")
}

func (s pgQueries) MarkSearchResultProcessed(ctx context.Context, id string, ok bool) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE search_results SET is_processed = true, process_ok = $1 WHERE id = $2`, ok, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark search result %s", id)
	}
	return checkTag(tag, "search result", id)
}

// --- Companies ---

const pgCompanyColumns = `id, name, industry, location, description, overview, website, created_at, updated_at`

func (s pgQueries) CreateCompany(ctx context.Context, c model.Company) (*model.Company, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.CreatedAt = now()
	c.UpdatedAt = c.CreatedAt
	_, err := s.q.Exec(ctx,
		`INSERT INTO companies (`+pgCompanyColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.Name, c.Industry, c.Location, c.Description, c.Overview, c.Website, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert company")
	}
	return &c, nil
}

func (s pgQueries) GetCompany(ctx context.Context, id string) (*model.Company, error) {
	var c model.Company
	err := s.q.QueryRow(ctx,
		`SELECT `+pgCompanyColumns+` FROM companies WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.Industry, &c.Location, &c.Description, &c.Overview, &c.Website, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("company", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get company %s", id)
	}
	return &c, nil
}

func (s pgQueries) ListCompanies(ctx context.Context, filter model.CompanyFilter) ([]model.Company, error) {
	query := `SELECT ` + pgCompanyColumns + ` FROM companies WHERE ($1 = '' OR industry = $1) AND ($2 = '' OR location ILIKE '%' || $2 || '%') ORDER BY name ASC`
	rows, err := s.q.Query(ctx, query, filter.Industry, filter.Location)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list companies")
	}
	defer rows.Close()

	var out []model.Company
	for rows.Next() {
		var c model.Company
		if err := rows.Scan(&c.ID, &c.Name, &c.Industry, &c.Location, &c.Description, &c.Overview, &c.Website, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan company")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list companies iterate")
}

func (s pgQueries) UpdateCompanyOverview(ctx context.Context, id, overview string, replace bool) error {
	query := `UPDATE companies SET overview = CASE
		WHEN overview = '' THEN $1
		WHEN overview = $1::text OR right(overview, length($2::text)) = $2::text THEN overview
		ELSE overview || $2 END, updated_at = $3 WHERE id = $4`
	args := []any{overview, paragraphSep + overview, now(), id}
	if replace {
		query = `UPDATE companies SET overview = $1, updated_at = $2 WHERE id = $3`
		args = []any{overview, now(), id}
	}
	tag, err := s.q.Exec(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: update overview %s", id)
	}
	return checkTag(tag, "company", id)
}

func (s pgQueries) UpsertMetric(ctx context.Context, m model.FinancialMetric) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO financial_metrics (id, company_id, metric_type, value, unit, period, raw_mention, source_url, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (company_id, metric_type, period) DO UPDATE SET
		   value = EXCLUDED.value, unit = EXCLUDED.unit, raw_mention = EXCLUDED.raw_mention, source_url = EXCLUDED.source_url`,
		uuid.New().String(), m.CompanyID, m.MetricType, m.Value, m.Unit, m.Period, m.RawMention, m.SourceURL, now(),
	)
	return eris.Wrapf(err, "postgres: upsert metric %s/%s", m.CompanyID, m.MetricType)
}

func (s pgQueries) ListMetrics(ctx context.Context, companyID string) ([]model.FinancialMetric, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, company_id, metric_type, value, unit, period, raw_mention, source_url, created_at
		 FROM financial_metrics WHERE company_id = $1 ORDER BY created_at DESC`, companyID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list metrics")
	}
	defer rows.Close()

	var out []model.FinancialMetric
	for rows.Next() {
		var m model.FinancialMetric
		if err := rows.Scan(&m.ID, &m.CompanyID, &m.MetricType, &m.Value, &m.Unit, &m.Period, &m.RawMention, &m.SourceURL, &m.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan metric")
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list metrics iterate")
}

func (s pgQueries) UpsertEvent(ctx context.Context, e model.CompanyEvent) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO company_events (id, company_id, event_type, details, event_date, raw_mention, source_url, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (company_id, event_type, event_date) DO UPDATE SET
		   details = EXCLUDED.details, raw_mention = EXCLUDED.raw_mention, source_url = EXCLUDED.source_url`,
		uuid.New().String(), e.CompanyID, e.EventType, e.Details, e.EventDate, e.RawMention, e.SourceURL, now(),
	)
	return eris.Wrapf(err, "postgres: upsert event %s/%s", e.CompanyID, e.EventType)
}

func (s pgQueries) ListEvents(ctx context.Context, companyID string) ([]model.CompanyEvent, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, company_id, event_type, details, event_date, raw_mention, source_url, created_at
		 FROM company_events WHERE company_id = $1 ORDER BY created_at DESC`, companyID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list events")
	}
	defer rows.Close()

	var out []model.CompanyEvent
	for rows.Next() {
		var e model.CompanyEvent
		if err := rows.Scan(&e.ID, &e.CompanyID, &e.EventType, &e.Details, &e.EventDate, &e.RawMention, &e.SourceURL, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan event")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list events iterate")
}

func (s pgQueries) AddSource(ctx context.Context, companyID, url string) (bool, error) {
	tag, err := s.q.Exec(ctx,
		`INSERT INTO company_sources (id, company_id, url, created_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (company_id, url) DO NOTHING`,
		uuid.New().String(), companyID, url, now(),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: add source %s", companyID)
	}
	return tag.RowsAffected() == 1, nil
}

func (s pgQueries) ReplaceSources(ctx context.Context, companyID string, urls []string) (int, error) {
	if _, err := s.q.Exec(ctx, `DELETE FROM company_sources WHERE company_id = $1`, companyID); err != nil {
		return 0, eris.Wrapf(err, "postgres: delete sources %s", companyID)
	}
	added := 0
	for _, u := range urls {
		ok, err := s.AddSource(ctx, companyID, u)
		if err != nil {
			return added, err
		}
		if ok {
			added++
		}
	}
	return added, nil
}

func (s pgQueries) ListSources(ctx context.Context, companyID string) ([]model.CompanySource, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, company_id, url, created_at FROM company_sources WHERE company_id = $1 ORDER BY created_at ASC`, companyID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sources")
	}
	defer rows.Close()

	var out []model.CompanySource
	for rows.Next() {
		var cs model.CompanySource
		if err := rows.Scan(&cs.ID, &cs.CompanyID, &cs.URL, &cs.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan source")
		}
		out = append(out, cs)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list sources iterate")
}

// --- Strategies and analysis ---

func (s pgQueries) CreateStrategy(ctx context.Context, st model.Strategy) (*model.Strategy, error) {
	if st.ID == "" {
		st.ID = uuid.New().String()
	}
	st.CreatedAt = now()
	criteria, err := json.Marshal(st.Criteria)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal criteria")
	}
	_, err = s.q.Exec(ctx,
		`INSERT INTO investment_strategies (id, name, description, criteria, created_at) VALUES ($1, $2, $3, $4, $5)`,
		st.ID, st.Name, st.Description, criteria, st.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert strategy")
	}
	return &st, nil
}

func (s pgQueries) GetStrategy(ctx context.Context, id string) (*model.Strategy, error) {
	var st model.Strategy
	var criteria []byte
	err := s.q.QueryRow(ctx,
		`SELECT id, name, description, criteria, created_at FROM investment_strategies WHERE id = $1`, id,
	).Scan(&st.ID, &st.Name, &st.Description, &criteria, &st.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("strategy", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get strategy %s", id)
	}
	if err := json.Unmarshal(criteria, &st.Criteria); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal criteria")
	}
	return &st, nil
}

func (s pgQueries) SaveAnalysisResult(ctx context.Context, r model.AnalysisResult) (*model.AnalysisResult, error) {
	r.ID = uuid.New().String()
	r.CreatedAt = now()
	breakdown, err := json.Marshal(r.ScoreBreakdown)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal score breakdown")
	}
	_, err = s.q.Exec(ctx,
		`INSERT INTO analysis_results (id, company_id, strategy_id, overall_score, explanation, score_breakdown, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.CompanyID, r.StrategyID, r.OverallScore, r.Explanation, breakdown, r.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert analysis result")
	}
	return &r, nil
}

func (s pgQueries) ListAnalysisResults(ctx context.Context, strategyID string) ([]model.AnalysisResult, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, company_id, strategy_id, overall_score, explanation, score_breakdown, created_at
		 FROM analysis_results WHERE strategy_id = $1 ORDER BY overall_score DESC`, strategyID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list analysis results")
	}
	defer rows.Close()

	var out []model.AnalysisResult
	for rows.Next() {
		var r model.AnalysisResult
		var breakdown []byte
		if err := rows.Scan(&r.ID, &r.CompanyID, &r.StrategyID, &r.OverallScore, &r.Explanation, &breakdown, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan analysis result")
		}
		if err := json.Unmarshal(breakdown, &r.ScoreBreakdown); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal score breakdown")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list analysis results iterate")
}

// --- Profile runs ---

const pgProfileColumns = `id, parent_task_id, company_id, company_name, phase, state, polls, error, created_at, updated_at`

func (s pgQueries) CreateProfileRun(ctx context.Context, run model.ProfileRun) (*model.ProfileRun, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	run.CreatedAt = now()
	run.UpdatedAt = run.CreatedAt
	state, err := stateOf(&run)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create profile run")
	}
	_, err = s.q.Exec(ctx,
		`INSERT INTO profile_runs (`+pgProfileColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		run.ID, run.ParentTaskID, run.CompanyID, run.CompanyName, string(run.Phase), state,
		run.Polls, run.Error, run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert profile run")
	}
	return &run, nil
}

func (s pgQueries) GetProfileRun(ctx context.Context, id string) (*model.ProfileRun, error) {
	run, err := scanPgProfileRun(s.q.QueryRow(ctx,
		`SELECT `+pgProfileColumns+` FROM profile_runs WHERE id = $1`, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("profile run", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get profile run %s", id)
	}
	return run, nil
}

func (s pgQueries) UpdateProfileRun(ctx context.Context, run *model.ProfileRun) error {
	state, err := stateOf(run)
	if err != nil {
		return eris.Wrap(err, "postgres: update profile run")
	}
	run.UpdatedAt = now()
	tag, err := s.q.Exec(ctx,
		`UPDATE profile_runs SET phase = $1, state = $2, polls = $3, error = $4, updated_at = $5 WHERE id = $6`,
		string(run.Phase), state, run.Polls, run.Error, run.UpdatedAt, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update profile run %s", run.ID)
	}
	return checkTag(tag, "profile run", run.ID)
}

func (s pgQueries) ListActiveProfileRuns(ctx context.Context) ([]model.ProfileRun, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+pgProfileColumns+` FROM profile_runs WHERE phase NOT IN ($1, $2, $3) ORDER BY created_at ASC`,
		string(model.PhaseDone), string(model.PhaseEmpty), string(model.PhaseFailed),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list active profile runs")
	}
	defer rows.Close()

	var out []model.ProfileRun
	for rows.Next() {
		run, err := scanPgProfileRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan profile run")
		}
		out = append(out, *run)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list active profile runs iterate")
}

func scanPgProfileRun(row pgx.Row) (*model.ProfileRun, error) {
	var run model.ProfileRun
	var phase string
	var state []byte
	if err := row.Scan(&run.ID, &run.ParentTaskID, &run.CompanyID, &run.CompanyName, &phase, &state,
		&run.Polls, &run.Error, &run.CreatedAt, &run.UpdatedAt); err != nil {
		return nil, err
	}
	run.Phase = model.WorkflowPhase(phase)
	if err := applyState(&run, state); err != nil {
		return nil, err
	}
	return &run, nil
}
