package app

import (
	"context"
	"sort"
	"strings"
	"time"

	"pratyush/api/internal/rbac"
	"pratyush/api/internal/search"
	"pratyush/api/internal/store"
)

const (
	trendingWindow   = 30 * 24 * time.Hour
	trendingLimit    = 3
	spotlightLimit   = 2
	activityLimit    = 5
	noticeBoardLimit = 20
)

// CurrentIssue returns the most recent published issue with its department
// sections, or nil when nothing is published yet.
func (s *Service) CurrentIssue(ctx context.Context) (map[string]any, error) {
	issue, err := s.store.CurrentIssue(ctx)
	if err != nil {
		return nil, fromStore(err, "Issue not found")
	}
	if issue == nil {
		return map[string]any{"issue": nil}, nil
	}

	sections, err := s.store.ListDepartmentIssues(ctx, issue.ID)
	if err != nil {
		return nil, fromStore(err, "Issue not found")
	}

	sectionItems := make([]map[string]any, 0, len(sections))
	for _, section := range sections {
		sectionItems = append(sectionItems, departmentIssuePayload(section))
	}

	payload := issuePayload(*issue)
	payload["departments"] = sectionItems
	return map[string]any{"issue": payload}, nil
}

// TrendingNewsletters ranks published releases of the last 30 days by likes.
func (s *Service) TrendingNewsletters(ctx context.Context) ([]map[string]any, error) {
	since := s.now().Add(-trendingWindow)
	items, err := s.store.TrendingNewsletters(ctx, since, trendingLimit)
	if err != nil {
		return nil, fromStore(err, "Newsletters not found")
	}

	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		out = append(out, newsletterPayload(item.Newsletter, item.LikeCount))
	}
	return out, nil
}

// SpotlightSubmissions favors pinned approved submissions; recency breaks
// ties.
func (s *Service) SpotlightSubmissions(ctx context.Context) ([]map[string]any, error) {
	items, err := s.store.SpotlightSubmissions(ctx, spotlightLimit)
	if err != nil {
		return nil, fromStore(err, "Submissions not found")
	}

	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		out = append(out, submissionPayload(item))
	}
	return out, nil
}

func (s *Service) ActiveNotices(ctx context.Context) ([]map[string]any, error) {
	items, err := s.store.ActiveNotices(ctx, noticeBoardLimit)
	if err != nil {
		return nil, fromStore(err, "Notices not found")
	}

	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		out = append(out, noticePayload(item))
	}
	return out, nil
}

type activityItem struct {
	payload   map[string]any
	timestamp time.Time
}

// RecentActivity interleaves the latest submissions, newsletter releases
// and feedback into a single reverse-chronological feed.
func (s *Service) RecentActivity(ctx context.Context) ([]map[string]any, error) {
	var items []activityItem

	submissions, err := s.store.RecentSubmissions(ctx, 3)
	if err != nil {
		return nil, fromStore(err, "Activity not found")
	}
	for _, sub := range submissions {
		items = append(items, activityItem{
			payload: map[string]any{
				"id":        sub.ID,
				"kind":      "submission",
				"title":     sub.Title,
				"status":    sub.Status,
				"timestamp": sub.CreatedAt,
			},
			timestamp: sub.CreatedAt,
		})
	}

	newsletters, err := s.store.RecentPublishedNewsletters(ctx, 3)
	if err != nil {
		return nil, fromStore(err, "Activity not found")
	}
	for _, item := range newsletters {
		items = append(items, activityItem{
			payload: map[string]any{
				"id":        item.ID,
				"kind":      "newsletter",
				"title":     item.Title,
				"timestamp": item.CreatedAt,
			},
			timestamp: item.CreatedAt,
		})
	}

	feedback, err := s.store.RecentFeedback(ctx, 2)
	if err != nil {
		return nil, fromStore(err, "Activity not found")
	}
	for _, entry := range feedback {
		items = append(items, activityItem{
			payload: map[string]any{
				"id":        entry.ID,
				"kind":      "feedback",
				"title":     "New feedback received",
				"timestamp": entry.CreatedAt,
			},
			timestamp: entry.CreatedAt,
		})
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].timestamp.After(items[j].timestamp)
	})
	if len(items) > activityLimit {
		items = items[:activityLimit]
	}

	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		out = append(out, item.payload)
	}
	return out, nil
}

// Stats aggregates the public dashboard counters. "This month" is measured
// against the server clock's current calendar month.
func (s *Service) Stats(ctx context.Context) (map[string]any, error) {
	now := s.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	stats, err := s.store.Stats(ctx, monthStart)
	if err != nil {
		return nil, fromStore(err, "Stats not found")
	}

	return map[string]any{
		"publishedNewsletters":  stats.PublishedNewsletters,
		"approvedSubmissions":   stats.ApprovedSubmissions,
		"thisMonthSubmissions":  stats.ThisMonthSubmissions,
		"averageFeedbackRating": stats.AverageFeedbackRating,
	}, nil
}

// ListSubmissions serves both the public gallery and the moderation queue.
// Callers without moderation rights only ever see approved entries.
func (s *Service) ListSubmissions(ctx context.Context, session *Session, status string) ([]map[string]any, error) {
	status = strings.ToLower(strings.TrimSpace(status))

	moderator := false
	var caller Caller
	if session != nil {
		resolved, err := s.callerFor(ctx, *session)
		if err != nil {
			return nil, err
		}
		caller = resolved
		moderator = rbac.HasAny(caller.Role, rbac.RoleAdmin, rbac.RoleEditor, rbac.RolePresident, rbac.RoleContributor)
	}
	if !moderator {
		status = "approved"
	} else if status != "" && status != "pending" && status != "approved" && status != "rejected" {
		return nil, validationError("status must be pending, approved or rejected", nil)
	}

	items, err := s.store.ListSubmissions(ctx, status)
	if err != nil {
		return nil, fromStore(err, "Submissions not found")
	}

	// Contributors moderate only their own department, so pending and
	// rejected entries from other departments stay hidden.
	if moderator && caller.Role == rbac.RoleContributor {
		scoped := make([]store.Submission, 0, len(items))
		for _, item := range items {
			if item.Status == "approved" || s.departmentMatches(ctx, caller, item.Department) {
				scoped = append(scoped, item)
			}
		}
		items = scoped
	}

	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		out = append(out, submissionPayload(item))
	}
	return out, nil
}

func (s *Service) ListIssues(ctx context.Context) ([]map[string]any, error) {
	items, err := s.store.ListIssues(ctx)
	if err != nil {
		return nil, fromStore(err, "Issues not found")
	}

	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		out = append(out, issuePayload(item))
	}
	return out, nil
}

func (s *Service) ListDepartmentIssues(ctx context.Context, issueID string) ([]map[string]any, error) {
	if _, err := s.store.GetIssue(ctx, issueID); err != nil {
		return nil, fromStore(err, "Issue not found")
	}

	items, err := s.store.ListDepartmentIssues(ctx, issueID)
	if err != nil {
		return nil, fromStore(err, "Issue not found")
	}

	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		out = append(out, departmentIssuePayload(item))
	}
	return out, nil
}

func (s *Service) ListDepartments(ctx context.Context) ([]map[string]any, error) {
	items, err := s.store.ListDepartments(ctx)
	if err != nil {
		return nil, fromStore(err, "Departments not found")
	}

	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		out = append(out, map[string]any{
			"id":          item.ID,
			"name":        item.Name,
			"shortName":   item.ShortName,
			"slug":        item.Slug,
			"category":    item.Category,
			"description": item.Description,
		})
	}
	return out, nil
}

func (s *Service) ListNewsletters(ctx context.Context) ([]map[string]any, error) {
	items, err := s.store.ListPublishedNewsletters(ctx)
	if err != nil {
		return nil, fromStore(err, "Newsletters not found")
	}

	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		out = append(out, newsletterPayload(item, 0))
	}
	return out, nil
}

// SearchArchive runs a public archive search; only published and approved
// content is ever surfaced.
func (s *Service) SearchArchive(ctx context.Context, text, filterType, department string, limit, offset int) (map[string]any, error) {
	if strings.TrimSpace(text) == "" {
		return nil, validationError("Search query is required", nil)
	}
	if s.search == nil {
		return nil, unavailable("Search is not configured", nil)
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	resp := s.search.Search(search.Query{
		Text:             text,
		FilterType:       search.ResultType(filterType),
		FilterDepartment: department,
		Limit:            limit,
		Offset:           offset,
	})

	results := make([]map[string]any, 0, len(resp.Results))
	for _, hit := range resp.Results {
		results = append(results, map[string]any{
			"type":       string(hit.Type),
			"id":         hit.ID,
			"title":      hit.Title,
			"snippet":    hit.Snippet,
			"department": hit.Department,
		})
	}

	return map[string]any{
		"results": results,
		"total":   resp.Total,
		"query":   resp.Query,
	}, nil
}

func (s *Service) Profile(ctx context.Context, session Session) (map[string]any, error) {
	profile, err := s.store.GetProfile(ctx, session.UserID)
	if err != nil {
		return nil, fromStore(err, "Profile not found")
	}
	return profilePayload(profile), nil
}

// --- response payloads ---

func issuePayload(issue store.Issue) map[string]any {
	return map[string]any{
		"id":          issue.ID,
		"year":        issue.Year,
		"month":       issue.Month,
		"title":       issue.Title,
		"pdfUrl":      issue.GlobalPDFURL,
		"publishedAt": issue.PublishedAt,
		"published":   issue.PublishedAt != nil,
		"createdAt":   issue.CreatedAt,
	}
}

func departmentIssuePayload(section store.DepartmentIssue) map[string]any {
	return map[string]any{
		"id":                  section.ID,
		"issueId":             section.IssueID,
		"departmentId":        section.DepartmentID,
		"departmentName":      section.DepartmentName,
		"departmentShortName": section.DepartmentShortName,
		"summary":             section.Summary,
		"pdfUrl":              section.PDFURL,
		"publishedAt":         section.PublishedAt,
	}
}

func newsletterPayload(item store.Newsletter, likes int) map[string]any {
	return map[string]any{
		"id":          item.ID,
		"title":       item.Title,
		"description": item.Description,
		"issueDate":   item.IssueDate,
		"year":        item.Year,
		"month":       item.Month,
		"pdfUrl":      item.PDFURL,
		"published":   item.IsPublished,
		"likes":       likes,
		"createdAt":   item.CreatedAt,
	}
}

func submissionPayload(item store.Submission) map[string]any {
	return map[string]any{
		"id":            item.ID,
		"title":         item.Title,
		"summary":       item.Summary,
		"category":      item.Category,
		"department":    item.Department,
		"semester":      item.Semester,
		"mediaUrl":      item.MediaURL,
		"externalLink":  item.ExternalLink,
		"submitterName": item.SubmitterName,
		"status":        item.Status,
		"pinned":        item.Pinned,
		"createdAt":     item.CreatedAt,
	}
}

func noticePayload(item store.Notice) map[string]any {
	return map[string]any{
		"id":          item.ID,
		"title":       item.Title,
		"body":        item.Body,
		"linkUrl":     item.LinkURL,
		"pinned":      item.Pinned,
		"publishedAt": item.PublishedAt,
		"expiresAt":   item.ExpiresAt,
	}
}

func profilePayload(profile store.Profile) map[string]any {
	return map[string]any{
		"userId":       profile.UserID,
		"fullName":     profile.FullName,
		"phone":        profile.Phone,
		"departmentId": profile.DepartmentID,
		"semester":     profile.Semester,
		"avatarUrl":    profile.AvatarURL,
	}
}
