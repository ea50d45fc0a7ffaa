package search

import (
	"context"
	"log"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili *Meili
	pgfts *PgFTS
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}

	results, total, err := s.pgfts.Search(q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexPlan indexes a plan (fire-and-forget to Meilisearch).
func (s *Service) IndexPlan(p PlanRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexPlan(p); err != nil {
			log.Printf("search: index plan %s: %v", p.ID, err)
		}
	}()
}

// IndexComment indexes a review comment (fire-and-forget to Meilisearch).
func (s *Service) IndexComment(c CommentRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexComment(c); err != nil {
			log.Printf("search: index comment %s: %v", c.ID, err)
		}
	}()
}

// IndexDecision indexes a decision log entry (fire-and-forget to Meilisearch).
func (s *Service) IndexDecision(d DecisionRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexDecision(d); err != nil {
			log.Printf("search: index decision %s: %v", d.ID, err)
		}
	}()
}

// DeletePlan removes a plan from the search index (fire-and-forget).
func (s *Service) DeletePlan(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeletePlan(id); err != nil {
			log.Printf("search: delete plan %s: %v", id, err)
		}
	}()
}

// DeleteComment removes a review comment from the search index (fire-and-forget).
func (s *Service) DeleteComment(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteComment(id); err != nil {
			log.Printf("search: delete comment %s: %v", id, err)
		}
	}()
}

// ReindexAll pushes the given records to Meilisearch.
func (s *Service) ReindexAll(plans []PlanRecord, comments []CommentRecord, decisions []DecisionRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}

	if len(plans) > 0 {
		if err := s.meili.IndexPlans(plans); err != nil {
			log.Printf("search: reindex plans: %v", err)
		}
	}
	if len(comments) > 0 {
		if err := s.meili.IndexComments(comments); err != nil {
			log.Printf("search: reindex comments: %v", err)
		}
	}
	if len(decisions) > 0 {
		if err := s.meili.IndexDecisions(decisions); err != nil {
			log.Printf("search: reindex decisions: %v", err)
		}
	}
}

// ReindexAllFromPG reindexes all searchable entities from PostgreSQL into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	plans, comments, decisions, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	s.ReindexAll(plans, comments, decisions)
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
