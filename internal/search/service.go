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

// IndexNewsletter indexes a newsletter (fire-and-forget to Meilisearch).
func (s *Service) IndexNewsletter(n NewsletterRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexNewsletter(n); err != nil {
			log.Printf("search: index newsletter %s: %v", n.ID, err)
		}
	}()
}

// IndexSubmission indexes a submission (fire-and-forget to Meilisearch).
func (s *Service) IndexSubmission(sub SubmissionRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexSubmission(sub); err != nil {
			log.Printf("search: index submission %s: %v", sub.ID, err)
		}
	}()
}

// IndexNotice indexes a notice board entry (fire-and-forget to Meilisearch).
func (s *Service) IndexNotice(n NoticeRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexNotice(n); err != nil {
			log.Printf("search: index notice %s: %v", n.ID, err)
		}
	}()
}

// DeleteSubmission removes a submission from the search index (fire-and-forget).
func (s *Service) DeleteSubmission(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteSubmission(id); err != nil {
			log.Printf("search: delete submission %s: %v", id, err)
		}
	}()
}

// DeleteNotice removes a notice from the search index (fire-and-forget).
func (s *Service) DeleteNotice(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteNotice(id); err != nil {
			log.Printf("search: delete notice %s: %v", id, err)
		}
	}()
}

// ReindexAll pushes the given records to Meilisearch.
func (s *Service) ReindexAll(newsletters []NewsletterRecord, submissions []SubmissionRecord, notices []NoticeRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}

	if len(newsletters) > 0 {
		if err := s.meili.IndexNewsletters(newsletters); err != nil {
			log.Printf("search: reindex newsletters: %v", err)
		}
	}
	if len(submissions) > 0 {
		if err := s.meili.IndexSubmissions(submissions); err != nil {
			log.Printf("search: reindex submissions: %v", err)
		}
	}
	if len(notices) > 0 {
		if err := s.meili.IndexNotices(notices); err != nil {
			log.Printf("search: reindex notices: %v", err)
		}
	}
}

// ReindexAllFromPG reindexes all searchable entities from PostgreSQL into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	newsletters, submissions, notices, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	s.ReindexAll(newsletters, submissions, notices)
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
