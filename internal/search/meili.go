package search

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const (
	idxPlans     = "tawteen_plans"
	idxComments  = "tawteen_comments"
	idxDecisions = "tawteen_decisions"
)

// Meili implements Searcher and Indexer via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures indexes.
// Returns nil if the initial connection fails (caller should proceed without it).
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	// Initial health check
	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndexes()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndexes() {
	indexes := []struct {
		uid        string
		primaryKey string
		filterable []string
		searchable []string
	}{
		{
			uid:        idxPlans,
			primaryKey: "id",
			filterable: []string{"investorId", "status", "planType"},
			searchable: []string{"title", "investorName"},
		},
		{
			uid:        idxComments,
			primaryKey: "id",
			filterable: []string{"planId", "investorId", "pass"},
			searchable: []string{"body", "pageTitle"},
		},
		{
			uid:        idxDecisions,
			primaryKey: "id",
			filterable: []string{"planId", "investorId", "action"},
			searchable: []string{"note"},
		},
	}

	for _, idx := range indexes {
		if _, err := m.client.CreateIndex(&meili.IndexConfig{
			Uid:        idx.uid,
			PrimaryKey: idx.primaryKey,
		}); err != nil {
			log.Printf("search: create index %s (may already exist): %v", idx.uid, err)
		}

		index := m.client.Index(idx.uid)
		filterableInterface := make([]interface{}, len(idx.filterable))
		for i, v := range idx.filterable {
			filterableInterface[i] = v
		}
		if _, err := index.UpdateFilterableAttributes(&filterableInterface); err != nil {
			log.Printf("search: update filterable attrs for %s: %v", idx.uid, err)
		}
		if _, err := index.UpdateSearchableAttributes(&idx.searchable); err != nil {
			log.Printf("search: update searchable attrs for %s: %v", idx.uid, err)
		}
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring indexes")
				m.configureIndexes()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries all three indexes (or a filtered subset) and merges results.
func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}

	var queries []*meili.SearchRequest
	targetIndexes := []struct {
		uid  string
		rtyp ResultType
	}{
		{idxPlans, ResultPlan},
		{idxComments, ResultComment},
		{idxDecisions, ResultDecision},
	}

	for _, ti := range targetIndexes {
		if q.FilterType != "" && q.FilterType != ti.rtyp {
			continue
		}
		sr := &meili.SearchRequest{
			IndexUID:              ti.uid,
			Limit:                 limit,
			Offset:                int64(q.Offset),
			AttributesToHighlight: []string{"*"},
			HighlightPreTag:       "<mark>",
			HighlightPostTag:      "</mark>",
			ShowRankingScore:      true,
		}

		var filters []string
		if q.InvestorID != "" {
			filters = append(filters, fmt.Sprintf("investorId = %q", q.InvestorID))
		}
		if q.PlanID != "" && ti.rtyp != ResultPlan {
			filters = append(filters, fmt.Sprintf("planId = %q", q.PlanID))
		}
		if len(filters) > 0 {
			sr.Filter = filters
		}
		queries = append(queries, sr)
	}

	if len(queries) == 0 {
		return nil, 0, nil
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: queries,
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var results []Result
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		rtyp := indexToResultType(sr.IndexUID)
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit, rtyp))
		}
	}

	return results, total, nil
}

func indexToResultType(uid string) ResultType {
	switch uid {
	case idxPlans:
		return ResultPlan
	case idxComments:
		return ResultComment
	case idxDecisions:
		return ResultDecision
	default:
		return ""
	}
}

func hitToResult(hit meili.Hit, rtyp ResultType) Result {
	r := Result{Type: rtyp}
	r.ID = decodeString(hit, "id")
	r.PlanID = decodeString(hit, "planId")
	r.InvestorID = decodeString(hit, "investorId")

	switch rtyp {
	case ResultPlan:
		r.Title = firstNonBlank(decodeFormattedString(hit, "title"), decodeString(hit, "title"))
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "investorName"), decodeString(hit, "investorName"))
		r.PlanID = r.ID // plan's own ID
	case ResultComment:
		r.Title = firstNonBlank(decodeFormattedString(hit, "pageTitle"), decodeString(hit, "pageTitle"))
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "body"), decodeString(hit, "body"))
	case ResultDecision:
		r.Title = firstNonBlank(decodeFormattedString(hit, "action"), decodeString(hit, "action"))
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "note"), decodeString(hit, "note"))
	}
	return r
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]string
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	return strings.TrimSpace(formatted[key])
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// IndexPlan adds or updates a plan in the search index.
func (m *Meili) IndexPlan(p PlanRecord) error {
	_, err := m.client.Index(idxPlans).AddDocuments([]PlanRecord{p}, nil)
	return err
}

// IndexComment adds or updates a review comment in the search index.
func (m *Meili) IndexComment(c CommentRecord) error {
	_, err := m.client.Index(idxComments).AddDocuments([]CommentRecord{c}, nil)
	return err
}

// IndexDecision adds or updates a decision log entry in the search index.
func (m *Meili) IndexDecision(d DecisionRecord) error {
	_, err := m.client.Index(idxDecisions).AddDocuments([]DecisionRecord{d}, nil)
	return err
}

// DeletePlan removes a plan from the search index.
func (m *Meili) DeletePlan(id string) error {
	_, err := m.client.Index(idxPlans).DeleteDocument(id, nil)
	return err
}

// DeleteComment removes a review comment from the search index.
func (m *Meili) DeleteComment(id string) error {
	_, err := m.client.Index(idxComments).DeleteDocument(id, nil)
	return err
}

// IndexPlans bulk-indexes plans.
func (m *Meili) IndexPlans(plans []PlanRecord) error {
	if len(plans) == 0 {
		return nil
	}
	_, err := m.client.Index(idxPlans).AddDocuments(plans, nil)
	return err
}

// IndexComments bulk-indexes review comments.
func (m *Meili) IndexComments(comments []CommentRecord) error {
	if len(comments) == 0 {
		return nil
	}
	_, err := m.client.Index(idxComments).AddDocuments(comments, nil)
	return err
}

// IndexDecisions bulk-indexes decision records.
func (m *Meili) IndexDecisions(decisions []DecisionRecord) error {
	if len(decisions) == 0 {
		return nil
	}
	_, err := m.client.Index(idxDecisions).AddDocuments(decisions, nil)
	return err
}
