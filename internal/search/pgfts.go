package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across plans, review_comments, and
// decision_log using plainto_tsquery and ts_rank, with ts_headline for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}
	argN := 2

	var subQueries []string

	// Plans sub-query
	if q.FilterType == "" || q.FilterType == ResultPlan {
		planWhere := "p.fts @@ " + tsQuery
		if q.InvestorID != "" {
			planWhere += fmt.Sprintf(" AND p.investor_id = $%d", argN)
			args = append(args, q.InvestorID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'plan'::text AS type, p.id, p.title,
				ts_headline('english', coalesce(p.investor_name, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				p.id AS plan_id, p.investor_id,
				ts_rank(p.fts, %s) AS rank
			FROM plans p
			WHERE %s`, tsQuery, tsQuery, planWhere))
	}

	// Review comments sub-query
	if q.FilterType == "" || q.FilterType == ResultComment {
		commentWhere := "rc.fts @@ " + tsQuery
		if q.InvestorID != "" {
			commentWhere += fmt.Sprintf(" AND p.investor_id = $%d", argN)
			args = append(args, q.InvestorID)
			argN++
		}
		if q.PlanID != "" {
			commentWhere += fmt.Sprintf(" AND rc.plan_id = $%d", argN)
			args = append(args, q.PlanID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'comment'::text AS type, rc.id, rc.page_title AS title,
				ts_headline('english', coalesce(rc.comment, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				rc.plan_id, p.investor_id,
				ts_rank(rc.fts, %s) AS rank
			FROM review_comments rc
			JOIN plans p ON p.id = rc.plan_id
			WHERE %s`, tsQuery, tsQuery, commentWhere))
	}

	// Decision log sub-query
	if q.FilterType == "" || q.FilterType == ResultDecision {
		decWhere := "dl.fts @@ " + tsQuery
		if q.InvestorID != "" {
			decWhere += fmt.Sprintf(" AND p.investor_id = $%d", argN)
			args = append(args, q.InvestorID)
			argN++
		}
		if q.PlanID != "" {
			decWhere += fmt.Sprintf(" AND dl.plan_id = $%d", argN)
			args = append(args, q.PlanID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'decision'::text AS type, dl.id::text, dl.action AS title,
				ts_headline('english', coalesce(dl.note, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				dl.plan_id, p.investor_id,
				ts_rank(dl.fts, %s) AS rank
			FROM decision_log dl
			JOIN plans p ON p.id = dl.plan_id
			WHERE %s`, tsQuery, tsQuery, decWhere))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, plan_id, investor_id
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.PlanID, &r.InvestorID); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]PlanRecord, []CommentRecord, []DecisionRecord, error) {
	planRows, err := p.db.QueryContext(ctx, `
		SELECT id, title, plan_type, status, investor_id, investor_name
		FROM plans
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load plans: %w", err)
	}
	defer planRows.Close()

	plans := make([]PlanRecord, 0)
	for planRows.Next() {
		var pr PlanRecord
		if err := planRows.Scan(&pr.ID, &pr.Title, &pr.PlanType, &pr.Status, &pr.InvestorID, &pr.InvestorName); err != nil {
			return nil, nil, nil, fmt.Errorf("scan plan: %w", err)
		}
		plans = append(plans, pr)
	}
	if err := planRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate plans: %w", err)
	}

	commentRows, err := p.db.QueryContext(ctx, `
		SELECT rc.id, rc.comment, rc.page_title, rc.plan_id, p.investor_id, rc.author, rc.pass
		FROM review_comments rc
		JOIN plans p ON p.id = rc.plan_id
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load comments: %w", err)
	}
	defer commentRows.Close()

	comments := make([]CommentRecord, 0)
	for commentRows.Next() {
		var c CommentRecord
		if err := commentRows.Scan(&c.ID, &c.Body, &c.PageTitle, &c.PlanID, &c.InvestorID, &c.Author, &c.Pass); err != nil {
			return nil, nil, nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := commentRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate comments: %w", err)
	}

	decisionRows, err := p.db.QueryContext(ctx, `
		SELECT dl.id::text, dl.note, dl.action, dl.plan_id, p.investor_id
		FROM decision_log dl
		JOIN plans p ON p.id = dl.plan_id
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load decisions: %w", err)
	}
	defer decisionRows.Close()

	decisions := make([]DecisionRecord, 0)
	for decisionRows.Next() {
		var d DecisionRecord
		if err := decisionRows.Scan(&d.ID, &d.Note, &d.Action, &d.PlanID, &d.InvestorID); err != nil {
			return nil, nil, nil, fmt.Errorf("scan decision: %w", err)
		}
		decisions = append(decisions, d)
	}
	if err := decisionRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate decisions: %w", err)
	}

	return plans, comments, decisions, nil
}
