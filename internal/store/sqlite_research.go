package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/company-research/internal/model"
)

// --- Search ---

func (s sqliteQueries) CreateSearchQuery(ctx context.Context, queryText, targetEntity string) (*model.SearchQuery, error) {
	sq := &model.SearchQuery{ID: uuid.New().String(), QueryText: queryText, TargetEntity: targetEntity, CreatedAt: now()}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO search_queries (id, query_text, target_entity, result_count, created_at) VALUES (?, ?, ?, 0, ?)`,
		sq.ID, sq.QueryText, sq.TargetEntity, sq.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert search query")
	}
	return sq, nil
}

func (s sqliteQueries) GetSearchQuery(ctx context.Context, id string) (*model.SearchQuery, error) {
	var sq model.SearchQuery
	err := s.q.QueryRowContext(ctx,
		`SELECT id, query_text, target_entity, result_count, created_at FROM search_queries WHERE id = ?`, id,
	).Scan(&sq.ID, &sq.QueryText, &sq.TargetEntity, &sq.ResultCount, &sq.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("search query", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get search query %s", id)
	}
	return &sq, nil
}

func (s sqliteQueries) AddSearchResults(ctx context.Context, queryID string, results []model.SearchResult) (int, error) {
	ts := now()
	for _, r := range results {
		id := r.ID
		if id == "" {
			id = uuid.New().String()
		}
		_, err := s.q.ExecContext(ctx,
			`INSERT INTO search_results (id, query_id, title, url, snippet, rank, is_processed, process_ok, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, 0, 0, ?)`,
			id, queryID, r.Title, r.URL, r.Snippet, r.Rank, ts,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert search result for query %s", queryID)
		}
	}

	res, err := s.q.ExecContext(ctx,
		`UPDATE search_queries SET result_count = ? WHERE id = ?`, len(results), queryID,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: update result count %s", queryID)
	}
	if err := checkRowsAffected(res, "search query", queryID); err != nil {
		return 0, err
	}
	return len(results), nil
}

func (s sqliteQueries) ListSearchResults(ctx context.Context, queryID string, unprocessedOnly bool) ([]model.SearchResult, error) {
	query := `SELECT id, query_id, title, url, snippet, rank, is_processed, process_ok, created_at
		FROM search_results WHERE query_id = ?`
	if unprocessedOnly {
		query += ` AND is_processed = 0`
	}
	query += ` ORDER BY rank ASC`

	rows, err := s.q.QueryContext(ctx, query, queryID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list search results")
	}
	defer rows.Close()

	var out []model.SearchResult
	for rows.Next() {
		var r model.SearchResult
		if err := rows.Scan(&r.ID, &r.QueryID, &r.Title, &r.URL, &r.Snippet, &r.Rank, &r.IsProcessed, &r.ProcessOK, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan search result")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list search results iterate")
}

func (s sqliteQueries) MarkSearchResultProcessed(ctx context.Context, id string, ok bool) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE search_results SET is_processed = 1, process_ok = ? WHERE id = ?`, boolInt(ok), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark search result %s", id)
	}
	return checkRowsAffected(res, "search result", id)
}

// --- Companies ---

const sqliteCompanyColumns = `id, name, industry, location, description, overview, website, created_at, updated_at`

func (s sqliteQueries) CreateCompany(ctx context.Context, c model.Company) (*model.Company, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.CreatedAt = now()
	c.UpdatedAt = c.CreatedAt
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO companies (`+sqliteCompanyColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Industry, c.Location, c.Description, c.Overview, c.Website, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert company")
	}
	return &c, nil
}

func (s sqliteQueries) GetCompany(ctx context.Context, id string) (*model.Company, error) {
	var c model.Company
	err := s.q.QueryRowContext(ctx,
		`SELECT `+sqliteCompanyColumns+` FROM companies WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &c.Industry, &c.Location, &c.Description, &c.Overview, &c.Website, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("company", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get company %s", id)
	}
	return &c, nil
}

func (s sqliteQueries) ListCompanies(ctx context.Context, filter model.CompanyFilter) ([]model.Company, error) {
	query := `SELECT ` + sqliteCompanyColumns + ` FROM companies WHERE 1=1`
	var args []any
	if filter.Industry != "" {
		query += ` AND industry = ?`
		args = append(args, filter.Industry)
	}
	if filter.Location != "" {
		query += ` AND location LIKE ?`
		args = append(args, "%"+filter.Location+"%")
	}
	query += ` ORDER BY name ASC`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list companies")
	}
	defer rows.Close()

	var out []model.Company
	for rows.Next() {
		var c model.Company
		if err := rows.Scan(&c.ID, &c.Name, &c.Industry, &c.Location, &c.Description, &c.Overview, &c.Website, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan company")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list companies iterate")
}

func (s sqliteQueries) UpdateCompanyOverview(ctx context.Context, id, overview string, replace bool) error {
	// Appending skips a paragraph identical to the current last one.
	query := `UPDATE companies SET overview = CASE
		WHEN overview = '' THEN ?1
		WHEN overview = ?1 OR substr(overview, -length(?2)) = ?2 THEN overview
		ELSE overview || ?2 END, updated_at = ?3 WHERE id = ?4`
	args := []any{overview, paragraphSep + overview, now(), id}
	if replace {
		query = `UPDATE companies SET overview = ?, updated_at = ? WHERE id = ?`
		args = []any{overview, now(), id}
	}
	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update overview %s", id)
	}
	return checkRowsAffected(res, "company", id)
}

func (s sqliteQueries) UpsertMetric(ctx context.Context, m model.FinancialMetric) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO financial_metrics (id, company_id, metric_type, value, unit, period, raw_mention, source_url, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (company_id, metric_type, period) DO UPDATE SET
		   value = excluded.value, unit = excluded.unit, raw_mention = excluded.raw_mention, source_url = excluded.source_url`,
		uuid.New().String(), m.CompanyID, m.MetricType, m.Value, m.Unit, m.Period, m.RawMention, m.SourceURL, now(),
	)
	return eris.Wrapf(err, "sqlite: upsert metric %s/%s", m.CompanyID, m.MetricType)
}

func (s sqliteQueries) ListMetrics(ctx context.Context, companyID string) ([]model.FinancialMetric, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, company_id, metric_type, value, unit, period, raw_mention, source_url, created_at
		 FROM financial_metrics WHERE company_id = ? ORDER BY created_at DESC`, companyID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list metrics")
	}
	defer rows.Close()

	var out []model.FinancialMetric
	for rows.Next() {
		var m model.FinancialMetric
		if err := rows.Scan(&m.ID, &m.CompanyID, &m.MetricType, &m.Value, &m.Unit, &m.Period, &m.RawMention, &m.SourceURL, &m.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan metric")
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list metrics iterate")
}

func (s sqliteQueries) UpsertEvent(ctx context.Context, e model.CompanyEvent) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO company_events (id, company_id, event_type, details, event_date, raw_mention, source_url, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (company_id, event_type, event_date) DO UPDATE SET
		   details = excluded.details, raw_mention = excluded.raw_mention, source_url = excluded.source_url`,
		uuid.New().String(), e.CompanyID, e.EventType, e.Details, e.EventDate, e.RawMention, e.SourceURL, now(),
	)
	return eris.Wrapf(err, "sqlite: upsert event %s/%s", e.CompanyID, e.EventType)
}

func (s sqliteQueries) ListEvents(ctx context.Context, companyID string) ([]model.CompanyEvent, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, company_id, event_type, details, event_date, raw_mention, source_url, created_at
		 FROM company_events WHERE company_id = ? ORDER BY created_at DESC`, companyID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list events")
	}
	defer rows.Close()

	var out []model.CompanyEvent
	for rows.Next() {
		var e model.CompanyEvent
		if err := rows.Scan(&e.ID, &e.CompanyID, &e.EventType, &e.Details, &e.EventDate, &e.RawMention, &e.SourceURL, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan event")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list events iterate")
}

func (s sqliteQueries) AddSource(ctx context.Context, companyID, url string) (bool, error) {
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO company_sources (id, company_id, url, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (company_id, url) DO NOTHING`,
		uuid.New().String(), companyID, url, now(),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: add source %s", companyID)
	}
	n, err := res.RowsAffected()
	return n == 1, eris.Wrap(err, "sqlite: add source rows affected")
}

func (s sqliteQueries) ReplaceSources(ctx context.Context, companyID string, urls []string) (int, error) {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM company_sources WHERE company_id = ?`, companyID); err != nil {
		return 0, eris.Wrapf(err, "sqlite: delete sources %s", companyID)
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

func (s sqliteQueries) ListSources(ctx context.Context, companyID string) ([]model.CompanySource, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, company_id, url, created_at FROM company_sources WHERE company_id = ? ORDER BY created_at ASC`, companyID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sources")
	}
	defer rows.Close()

	var out []model.CompanySource
	for rows.Next() {
		var cs model.CompanySource
		if err := rows.Scan(&cs.ID, &cs.CompanyID, &cs.URL, &cs.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan source")
		}
		out = append(out, cs)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list sources iterate")
}

// --- Strategies and analysis ---

func (s sqliteQueries) CreateStrategy(ctx context.Context, st model.Strategy) (*model.Strategy, error) {
	if st.ID == "" {
		st.ID = uuid.New().String()
	}
	st.CreatedAt = now()
	criteria, err := json.Marshal(st.Criteria)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal criteria")
	}
	_, err = s.q.ExecContext(ctx,
		`INSERT INTO investment_strategies (id, name, description, criteria, created_at) VALUES (?, ?, ?, ?, ?)`,
		st.ID, st.Name, st.Description, string(criteria), st.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert strategy")
	}
	return &st, nil
}

func (s sqliteQueries) GetStrategy(ctx context.Context, id string) (*model.Strategy, error) {
	var st model.Strategy
	var criteria string
	err := s.q.QueryRowContext(ctx,
		`SELECT id, name, description, criteria, created_at FROM investment_strategies WHERE id = ?`, id,
	).Scan(&st.ID, &st.Name, &st.Description, &criteria, &st.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("strategy", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get strategy %s", id)
	}
	if err := json.Unmarshal([]byte(criteria), &st.Criteria); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal criteria")
	}
	return &st, nil
}

func (s sqliteQueries) SaveAnalysisResult(ctx context.Context, r model.AnalysisResult) (*model.AnalysisResult, error) {
	r.ID = uuid.New().String()
	r.CreatedAt = now()
	breakdown, err := json.Marshal(r.ScoreBreakdown)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal score breakdown")
	}
	_, err = s.q.ExecContext(ctx,
		`INSERT INTO analysis_results (id, company_id, strategy_id, overall_score, explanation, score_breakdown, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.CompanyID, r.StrategyID, r.OverallScore, r.Explanation, string(breakdown), r.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert analysis result")
	}
	return &r, nil
}

func (s sqliteQueries) ListAnalysisResults(ctx context.Context, strategyID string) ([]model.AnalysisResult, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, company_id, strategy_id, overall_score, explanation, score_breakdown, created_at
		 FROM analysis_results WHERE strategy_id = ? ORDER BY overall_score DESC`, strategyID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list analysis results")
	}
	defer rows.Close()

	var out []model.AnalysisResult
	for rows.Next() {
		var r model.AnalysisResult
		var breakdown string
		if err := rows.Scan(&r.ID, &r.CompanyID, &r.StrategyID, &r.OverallScore, &r.Explanation, &breakdown, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan analysis result")
		}
		if err := json.Unmarshal([]byte(breakdown), &r.ScoreBreakdown); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal score breakdown")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list analysis results iterate")
}

// --- Profile runs ---

const sqliteProfileColumns = `id, parent_task_id, company_id, company_name, phase, state, polls, error, created_at, updated_at`

func (s sqliteQueries) CreateProfileRun(ctx context.Context, run model.ProfileRun) (*model.ProfileRun, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	run.CreatedAt = now()
	run.UpdatedAt = run.CreatedAt
	state, err := stateOf(&run)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: create profile run")
	}
	_, err = s.q.ExecContext(ctx,
		`INSERT INTO profile_runs (`+sqliteProfileColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.ParentTaskID, run.CompanyID, run.CompanyName, string(run.Phase), string(state),
		run.Polls, run.Error, run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert profile run")
	}
	return &run, nil
}

func (s sqliteQueries) GetProfileRun(ctx context.Context, id string) (*model.ProfileRun, error) {
	run, err := scanSQLiteProfileRun(s.q.QueryRowContext(ctx,
		`SELECT `+sqliteProfileColumns+` FROM profile_runs WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("profile run", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get profile run %s", id)
	}
	return run, nil
}

func (s sqliteQueries) UpdateProfileRun(ctx context.Context, run *model.ProfileRun) error {
	state, err := stateOf(run)
	if err != nil {
		return eris.Wrap(err, "sqlite: update profile run")
	}
	run.UpdatedAt = now()
	res, err := s.q.ExecContext(ctx,
		`UPDATE profile_runs SET phase = ?, state = ?, polls = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(run.Phase), string(state), run.Polls, run.Error, run.UpdatedAt, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update profile run %s", run.ID)
	}
	return checkRowsAffected(res, "profile run", run.ID)
}

func (s sqliteQueries) ListActiveProfileRuns(ctx context.Context) ([]model.ProfileRun, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+sqliteProfileColumns+` FROM profile_runs WHERE phase NOT IN (?, ?, ?) ORDER BY created_at ASC`,
		string(model.PhaseDone), string(model.PhaseEmpty), string(model.PhaseFailed),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list active profile runs")
	}
	defer rows.Close()

	var out []model.ProfileRun
	for rows.Next() {
		run, err := scanSQLiteProfileRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan profile run")
		}
		out = append(out, *run)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list active profile runs iterate")
}

func scanSQLiteProfileRun(row scannable) (*model.ProfileRun, error) {
	var run model.ProfileRun
	var state string
	if err := row.Scan(&run.ID, &run.ParentTaskID, &run.CompanyID, &run.CompanyName, &run.Phase, &state,
		&run.Polls, &run.Error, &run.CreatedAt, &run.UpdatedAt); err != nil {
		return nil, err
	}
	if err := applyState(&run, []byte(state)); err != nil {
		return nil, err
	}
	return &run, nil
}
