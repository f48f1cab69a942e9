package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"pratyush/api/internal/config"
	"pratyush/api/internal/store"
)

type fakeStore struct {
	getUserByIDFn              func(context.Context, string) (store.User, error)
	resolveRoleFn              func(context.Context, string) (string, error)
	grantRoleFn                func(context.Context, string, string) error
	getProfileFn               func(context.Context, string) (store.Profile, error)
	getDepartmentFn            func(context.Context, string) (store.Department, error)
	departmentCountFn          func(context.Context) (int, error)
	insertDepartmentFn         func(context.Context, store.Department) error
	upsertIssueFn              func(context.Context, store.Issue) (store.Issue, error)
	getIssueFn                 func(context.Context, string) (store.Issue, error)
	currentIssueFn             func(context.Context) (*store.Issue, error)
	setIssuePublishedFn        func(context.Context, string, bool) error
	listDepartmentIssuesFn     func(context.Context, string) ([]store.DepartmentIssue, error)
	trendingNewslettersFn      func(context.Context, time.Time, int) ([]store.NewsletterWithLikes, error)
	recentNewslettersFn        func(context.Context, int) ([]store.Newsletter, error)
	insertSubmissionFn         func(context.Context, store.Submission) (store.Submission, error)
	getSubmissionFn            func(context.Context, string) (store.Submission, error)
	listSubmissionsFn          func(context.Context, string) ([]store.Submission, error)
	recentSubmissionsFn        func(context.Context, int) ([]store.Submission, error)
	updateSubmissionStatusFn   func(context.Context, string, string, string) error
	setSubmissionPinnedFn      func(context.Context, string, bool) error
	insertNoticeFn             func(context.Context, store.Notice) (store.Notice, error)
	updateNoticeFn             func(context.Context, store.Notice) (store.Notice, error)
	toggleReactionFn           func(context.Context, string, string, string, string) (bool, error)
	likeCountFn                func(context.Context, string, string) (int, error)
	insertFeedbackFn           func(context.Context, store.Feedback) (store.Feedback, error)
	recentFeedbackFn           func(context.Context, int) ([]store.Feedback, error)
	statsFn                    func(context.Context, time.Time) (store.Stats, error)
	getSubscriberByEmailFn     func(context.Context, string) (store.Subscriber, error)
	insertSubscriberFn         func(context.Context, store.Subscriber) (store.Subscriber, error)
	refreshPendingSubscriberFn func(context.Context, string, string, string, string, *int, string) error
	getSubscriberByTokenFn     func(context.Context, string) (store.Subscriber, error)
	confirmSubscriberFn        func(context.Context, string) error
}

func (f *fakeStore) GetUserByID(ctx context.Context, id string) (store.User, error) {
	if f.getUserByIDFn != nil {
		return f.getUserByIDFn(ctx, id)
	}
	return store.User{ID: id, DisplayName: "Test User"}, nil
}
func (f *fakeStore) ResolveRole(ctx context.Context, userID string) (string, error) {
	if f.resolveRoleFn != nil {
		return f.resolveRoleFn(ctx, userID)
	}
	return "", nil
}
func (f *fakeStore) GrantRole(ctx context.Context, userID, role string) error {
	if f.grantRoleFn != nil {
		return f.grantRoleFn(ctx, userID, role)
	}
	return nil
}
func (f *fakeStore) GetProfile(ctx context.Context, userID string) (store.Profile, error) {
	if f.getProfileFn != nil {
		return f.getProfileFn(ctx, userID)
	}
	return store.Profile{}, store.ErrNotFound
}
func (f *fakeStore) UpdateProfile(context.Context, store.Profile) (store.Profile, error) {
	return store.Profile{}, nil
}
func (f *fakeStore) ListDepartments(context.Context) ([]store.Department, error) { return nil, nil }
func (f *fakeStore) GetDepartment(ctx context.Context, id string) (store.Department, error) {
	if f.getDepartmentFn != nil {
		return f.getDepartmentFn(ctx, id)
	}
	return store.Department{ID: id}, nil
}
func (f *fakeStore) InsertDepartment(ctx context.Context, item store.Department) error {
	if f.insertDepartmentFn != nil {
		return f.insertDepartmentFn(ctx, item)
	}
	return nil
}
func (f *fakeStore) DepartmentCount(ctx context.Context) (int, error) {
	if f.departmentCountFn != nil {
		return f.departmentCountFn(ctx)
	}
	return 0, nil
}
func (f *fakeStore) UpsertIssue(ctx context.Context, item store.Issue) (store.Issue, error) {
	if f.upsertIssueFn != nil {
		return f.upsertIssueFn(ctx, item)
	}
	return item, nil
}
func (f *fakeStore) GetIssue(ctx context.Context, id string) (store.Issue, error) {
	if f.getIssueFn != nil {
		return f.getIssueFn(ctx, id)
	}
	return store.Issue{ID: id}, nil
}
func (f *fakeStore) ListIssues(context.Context) ([]store.Issue, error) { return nil, nil }
func (f *fakeStore) CurrentIssue(ctx context.Context) (*store.Issue, error) {
	if f.currentIssueFn != nil {
		return f.currentIssueFn(ctx)
	}
	return nil, nil
}
func (f *fakeStore) SetIssuePublished(ctx context.Context, id string, published bool) error {
	if f.setIssuePublishedFn != nil {
		return f.setIssuePublishedFn(ctx, id, published)
	}
	return nil
}
func (f *fakeStore) UpsertDepartmentIssue(_ context.Context, item store.DepartmentIssue) (store.DepartmentIssue, error) {
	return item, nil
}
func (f *fakeStore) ListDepartmentIssues(ctx context.Context, issueID string) ([]store.DepartmentIssue, error) {
	if f.listDepartmentIssuesFn != nil {
		return f.listDepartmentIssuesFn(ctx, issueID)
	}
	return nil, nil
}
func (f *fakeStore) InsertNewsletter(_ context.Context, item store.Newsletter) (store.Newsletter, error) {
	return item, nil
}
func (f *fakeStore) GetNewsletter(_ context.Context, id string) (store.Newsletter, error) {
	return store.Newsletter{ID: id}, nil
}
func (f *fakeStore) SetNewsletterPublished(context.Context, string, bool) error { return nil }
func (f *fakeStore) TrendingNewsletters(ctx context.Context, since time.Time, limit int) ([]store.NewsletterWithLikes, error) {
	if f.trendingNewslettersFn != nil {
		return f.trendingNewslettersFn(ctx, since, limit)
	}
	return nil, nil
}
func (f *fakeStore) RecentPublishedNewsletters(ctx context.Context, limit int) ([]store.Newsletter, error) {
	if f.recentNewslettersFn != nil {
		return f.recentNewslettersFn(ctx, limit)
	}
	return nil, nil
}
func (f *fakeStore) ListPublishedNewsletters(context.Context) ([]store.Newsletter, error) {
	return nil, nil
}
func (f *fakeStore) InsertSubmission(ctx context.Context, item store.Submission) (store.Submission, error) {
	if f.insertSubmissionFn != nil {
		return f.insertSubmissionFn(ctx, item)
	}
	item.ID = "sub-1"
	item.Status = "pending"
	return item, nil
}
func (f *fakeStore) GetSubmission(ctx context.Context, id string) (store.Submission, error) {
	if f.getSubmissionFn != nil {
		return f.getSubmissionFn(ctx, id)
	}
	return store.Submission{ID: id, Status: "pending"}, nil
}
func (f *fakeStore) ListSubmissions(ctx context.Context, status string) ([]store.Submission, error) {
	if f.listSubmissionsFn != nil {
		return f.listSubmissionsFn(ctx, status)
	}
	return nil, nil
}
func (f *fakeStore) SpotlightSubmissions(context.Context, int) ([]store.Submission, error) {
	return nil, nil
}
func (f *fakeStore) RecentSubmissions(ctx context.Context, limit int) ([]store.Submission, error) {
	if f.recentSubmissionsFn != nil {
		return f.recentSubmissionsFn(ctx, limit)
	}
	return nil, nil
}
func (f *fakeStore) UpdateSubmissionStatus(ctx context.Context, id, status, moderatedBy string) error {
	if f.updateSubmissionStatusFn != nil {
		return f.updateSubmissionStatusFn(ctx, id, status, moderatedBy)
	}
	return nil
}
func (f *fakeStore) SetSubmissionPinned(ctx context.Context, id string, pinned bool) error {
	if f.setSubmissionPinnedFn != nil {
		return f.setSubmissionPinnedFn(ctx, id, pinned)
	}
	return nil
}
func (f *fakeStore) DeleteSubmission(context.Context, string) error { return nil }
func (f *fakeStore) ActiveNotices(context.Context, int) ([]store.Notice, error) {
	return nil, nil
}
func (f *fakeStore) InsertNotice(ctx context.Context, item store.Notice) (store.Notice, error) {
	if f.insertNoticeFn != nil {
		return f.insertNoticeFn(ctx, item)
	}
	item.ID = "not-1"
	return item, nil
}
func (f *fakeStore) UpdateNotice(ctx context.Context, item store.Notice) (store.Notice, error) {
	if f.updateNoticeFn != nil {
		return f.updateNoticeFn(ctx, item)
	}
	return item, nil
}
func (f *fakeStore) DeleteNotice(context.Context, string) error { return nil }
func (f *fakeStore) ToggleReaction(ctx context.Context, userID, entityType, entityID, reaction string) (bool, error) {
	if f.toggleReactionFn != nil {
		return f.toggleReactionFn(ctx, userID, entityType, entityID, reaction)
	}
	return false, nil
}
func (f *fakeStore) LikeCount(ctx context.Context, entityType, entityID string) (int, error) {
	if f.likeCountFn != nil {
		return f.likeCountFn(ctx, entityType, entityID)
	}
	return 0, nil
}
func (f *fakeStore) InsertFeedback(ctx context.Context, item store.Feedback) (store.Feedback, error) {
	if f.insertFeedbackFn != nil {
		return f.insertFeedbackFn(ctx, item)
	}
	item.ID = "fbk-1"
	return item, nil
}
func (f *fakeStore) RecentFeedback(ctx context.Context, limit int) ([]store.Feedback, error) {
	if f.recentFeedbackFn != nil {
		return f.recentFeedbackFn(ctx, limit)
	}
	return nil, nil
}
func (f *fakeStore) Stats(ctx context.Context, monthStart time.Time) (store.Stats, error) {
	if f.statsFn != nil {
		return f.statsFn(ctx, monthStart)
	}
	return store.Stats{}, nil
}
func (f *fakeStore) GetSubscriberByEmail(ctx context.Context, email string) (store.Subscriber, error) {
	if f.getSubscriberByEmailFn != nil {
		return f.getSubscriberByEmailFn(ctx, email)
	}
	return store.Subscriber{}, store.ErrNotFound
}
func (f *fakeStore) InsertSubscriber(ctx context.Context, item store.Subscriber) (store.Subscriber, error) {
	if f.insertSubscriberFn != nil {
		return f.insertSubscriberFn(ctx, item)
	}
	item.ID = "sbr-1"
	return item, nil
}
func (f *fakeStore) RefreshPendingSubscriber(ctx context.Context, id, name, phone, department string, semester *int, token string) error {
	if f.refreshPendingSubscriberFn != nil {
		return f.refreshPendingSubscriberFn(ctx, id, name, phone, department, semester, token)
	}
	return nil
}
func (f *fakeStore) GetSubscriberByToken(ctx context.Context, token string) (store.Subscriber, error) {
	if f.getSubscriberByTokenFn != nil {
		return f.getSubscriberByTokenFn(ctx, token)
	}
	return store.Subscriber{}, store.ErrNotFound
}
func (f *fakeStore) ConfirmSubscriber(ctx context.Context, id string) error {
	if f.confirmSubscriberFn != nil {
		return f.confirmSubscriberFn(ctx, id)
	}
	return nil
}
func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) SaveRefreshSession(context.Context, string, string, time.Time) error { return nil }
func (f *fakeStore) LookupRefreshSession(context.Context, string) (string, error) {
	return "", store.ErrNotFound
}
func (f *fakeStore) RevokeRefreshSession(context.Context, string) error { return nil }

func newTestService(fs *fakeStore) *Service {
	return &Service{
		cfg:      config.Config{SessionSecret: "test-secret", AccessTTL: 15 * time.Minute, RefreshTTL: 30 * 24 * time.Hour, SiteURL: "http://localhost:5173"},
		store:    fs,
		sessions: fs,
		now:      time.Now,
	}
}

func domainCode(t *testing.T, err error) string {
	t.Helper()
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	return domainErr.Code
}

func TestSubmitContentEntersPending(t *testing.T) {
	var inserted store.Submission
	fs := &fakeStore{
		insertSubmissionFn: func(_ context.Context, item store.Submission) (store.Submission, error) {
			inserted = item
			item.ID = "sub-1"
			item.Status = "pending"
			return item, nil
		},
	}
	svc := newTestService(fs)

	payload, err := svc.SubmitContent(context.Background(), SubmitContentInput{
		Title:         "Robotics Club Wins Nationals",
		Summary:       "The team took first place.",
		Category:      "Achievement",
		Department:    "Computer Engineering",
		SubmitterName: "Priya",
	})
	if err != nil {
		t.Fatalf("SubmitContent() error = %v", err)
	}
	if payload["status"] != "pending" {
		t.Fatalf("expected pending status, got %v", payload["status"])
	}
	if inserted.Status != "" {
		t.Fatalf("service must not set the status itself, got %q", inserted.Status)
	}
	if inserted.Category != "Achievement" {
		t.Fatalf("expected category kept as entered, got %q", inserted.Category)
	}
}

func TestSubmitContentRejectsMissingFields(t *testing.T) {
	svc := newTestService(&fakeStore{})

	_, err := svc.SubmitContent(context.Background(), SubmitContentInput{
		Title:         "Title",
		Summary:       "Summary",
		Department:    "IT",
		SubmitterName: "Priya",
	})
	if code := domainCode(t, err); code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %s", code)
	}
}

func TestModerateApprovalIsTerminal(t *testing.T) {
	fs := &fakeStore{
		getSubmissionFn: func(_ context.Context, id string) (store.Submission, error) {
			return store.Submission{ID: id, Status: "approved"}, nil
		},
	}
	svc := newTestService(fs)
	session := Session{UserID: "usr-1", Role: "admin"}

	_, err := svc.Moderate(context.Background(), session, "sub-1", "rejected")
	if code := domainCode(t, err); code != "INVALID_STATE_TRANSITION" {
		t.Fatalf("expected INVALID_STATE_TRANSITION, got %s", code)
	}
}

func TestModerateRejectedCanBeApproved(t *testing.T) {
	var savedStatus, savedBy string
	fs := &fakeStore{
		getSubmissionFn: func(_ context.Context, id string) (store.Submission, error) {
			return store.Submission{ID: id, Status: "rejected"}, nil
		},
		updateSubmissionStatusFn: func(_ context.Context, _, status, moderatedBy string) error {
			savedStatus = status
			savedBy = moderatedBy
			return nil
		},
	}
	svc := newTestService(fs)
	session := Session{UserID: "usr-1", Role: "editor"}

	payload, err := svc.Moderate(context.Background(), session, "sub-1", "approved")
	if err != nil {
		t.Fatalf("Moderate() error = %v", err)
	}
	if savedStatus != "approved" || savedBy != "usr-1" {
		t.Fatalf("expected approved by usr-1, got %s by %s", savedStatus, savedBy)
	}
	if payload["status"] != "approved" {
		t.Fatalf("expected approved payload, got %v", payload["status"])
	}
}

func TestModerateRejectTwiceIsNoOp(t *testing.T) {
	updated := false
	fs := &fakeStore{
		getSubmissionFn: func(_ context.Context, id string) (store.Submission, error) {
			return store.Submission{ID: id, Status: "rejected"}, nil
		},
		updateSubmissionStatusFn: func(context.Context, string, string, string) error {
			updated = true
			return nil
		},
	}
	svc := newTestService(fs)
	session := Session{UserID: "usr-1", Role: "admin"}

	if _, err := svc.Moderate(context.Background(), session, "sub-1", "rejected"); err != nil {
		t.Fatalf("Moderate() error = %v", err)
	}
	if updated {
		t.Fatal("rejecting an already rejected submission must not write")
	}
}

func TestModerateDeniedForViewer(t *testing.T) {
	svc := newTestService(&fakeStore{})
	session := Session{UserID: "usr-1", Role: "viewer"}

	_, err := svc.Moderate(context.Background(), session, "sub-1", "approved")
	if code := domainCode(t, err); code != "PERMISSION_DENIED" {
		t.Fatalf("expected PERMISSION_DENIED, got %s", code)
	}
}

func TestModerateContributorScopedToDepartment(t *testing.T) {
	deptID := "dep-ce"
	fs := &fakeStore{
		getSubmissionFn: func(_ context.Context, id string) (store.Submission, error) {
			return store.Submission{ID: id, Status: "pending", Department: "Computer Engineering"}, nil
		},
		getProfileFn: func(_ context.Context, userID string) (store.Profile, error) {
			return store.Profile{UserID: userID, DepartmentID: &deptID}, nil
		},
		getDepartmentFn: func(_ context.Context, id string) (store.Department, error) {
			if id == "dep-ce" {
				return store.Department{ID: id, Name: "Computer Engineering", ShortName: "CE", Slug: "computer"}, nil
			}
			return store.Department{ID: id, Name: "Civil Engineering", ShortName: "Civil", Slug: "civil"}, nil
		},
	}
	svc := newTestService(fs)
	session := Session{UserID: "usr-1", Role: "contributor"}

	if _, err := svc.Moderate(context.Background(), session, "sub-1", "approved"); err != nil {
		t.Fatalf("contributor in matching department should moderate, got %v", err)
	}

	fs.getSubmissionFn = func(_ context.Context, id string) (store.Submission, error) {
		return store.Submission{ID: id, Status: "pending", Department: "Mechanical Engineering"}, nil
	}
	_, err := svc.Moderate(context.Background(), session, "sub-2", "approved")
	if code := domainCode(t, err); code != "PERMISSION_DENIED" {
		t.Fatalf("expected PERMISSION_DENIED outside own department, got %s", code)
	}
}

func TestTogglePinRequiresApproved(t *testing.T) {
	fs := &fakeStore{
		getSubmissionFn: func(_ context.Context, id string) (store.Submission, error) {
			return store.Submission{ID: id, Status: "pending"}, nil
		},
	}
	svc := newTestService(fs)
	session := Session{UserID: "usr-1", Role: "admin"}

	_, err := svc.TogglePin(context.Background(), session, "sub-1")
	if code := domainCode(t, err); code != "INVALID_STATE_TRANSITION" {
		t.Fatalf("expected INVALID_STATE_TRANSITION, got %s", code)
	}
}

func TestTogglePinFlipsState(t *testing.T) {
	var savedPinned bool
	fs := &fakeStore{
		getSubmissionFn: func(_ context.Context, id string) (store.Submission, error) {
			return store.Submission{ID: id, Status: "approved", Pinned: true}, nil
		},
		setSubmissionPinnedFn: func(_ context.Context, _ string, pinned bool) error {
			savedPinned = pinned
			return nil
		},
	}
	svc := newTestService(fs)
	session := Session{UserID: "usr-1", Role: "president"}

	payload, err := svc.TogglePin(context.Background(), session, "sub-1")
	if err != nil {
		t.Fatalf("TogglePin() error = %v", err)
	}
	if savedPinned {
		t.Fatal("expected pin to flip from true to false")
	}
	if payload["pinned"] != false {
		t.Fatalf("expected pinned false in payload, got %v", payload["pinned"])
	}
}

func TestReactTogglesAndCounts(t *testing.T) {
	fs := &fakeStore{
		toggleReactionFn: func(_ context.Context, userID, entityType, entityID, reaction string) (bool, error) {
			if userID != "usr-1" || entityType != "newsletter" || reaction != "like" {
				t.Fatalf("unexpected toggle args: %s %s %s", userID, entityType, reaction)
			}
			return true, nil
		},
		likeCountFn: func(context.Context, string, string) (int, error) { return 4, nil },
	}
	svc := newTestService(fs)
	session := Session{UserID: "usr-1", Role: "viewer"}

	payload, err := svc.React(context.Background(), session, "newsletter", "nws-1", "like")
	if err != nil {
		t.Fatalf("React() error = %v", err)
	}
	if payload["removed"] != true {
		t.Fatalf("expected removed true, got %v", payload["removed"])
	}
	if payload["likes"] != 4 {
		t.Fatalf("expected 4 likes, got %v", payload["likes"])
	}
}

func TestReactRejectsUnknownEntity(t *testing.T) {
	svc := newTestService(&fakeStore{})
	session := Session{UserID: "usr-1", Role: "viewer"}

	_, err := svc.React(context.Background(), session, "feedback", "fbk-1", "like")
	if code := domainCode(t, err); code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %s", code)
	}
}

func TestSubmitFeedbackValidatesRating(t *testing.T) {
	svc := newTestService(&fakeStore{})

	for _, rating := range []int{0, 6, -1} {
		_, err := svc.SubmitFeedback(context.Background(), nil, rating, "")
		if code := domainCode(t, err); code != "VALIDATION_ERROR" {
			t.Fatalf("rating %d: expected VALIDATION_ERROR, got %s", rating, code)
		}
	}

	if _, err := svc.SubmitFeedback(context.Background(), nil, 5, "Great newsletter"); err != nil {
		t.Fatalf("SubmitFeedback() error = %v", err)
	}
}

func TestSubscribeNewEmailIssuesToken(t *testing.T) {
	var inserted store.Subscriber
	fs := &fakeStore{
		insertSubscriberFn: func(_ context.Context, item store.Subscriber) (store.Subscriber, error) {
			inserted = item
			item.ID = "sbr-1"
			return item, nil
		},
	}
	svc := newTestService(fs)

	payload, err := svc.Subscribe(context.Background(), SubscribeInput{Email: "Priya@Example.COM", Name: "Priya"})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if inserted.Email != "priya@example.com" {
		t.Fatalf("expected lowercased email, got %q", inserted.Email)
	}
	if inserted.ConfirmToken == nil || *inserted.ConfirmToken == "" {
		t.Fatal("expected a confirmation token on the new subscriber")
	}
	if token, ok := payload["devConfirmToken"].(string); !ok || token == "" {
		t.Fatal("expected dev token in response when SMTP is not configured")
	}
}

func TestSubscribeConfirmedEmailConflicts(t *testing.T) {
	fs := &fakeStore{
		getSubscriberByEmailFn: func(_ context.Context, email string) (store.Subscriber, error) {
			return store.Subscriber{ID: "sbr-1", Email: email, Confirmed: true}, nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.Subscribe(context.Background(), SubscribeInput{Email: "priya@example.com"})
	if code := domainCode(t, err); code != "CONFLICT" {
		t.Fatalf("expected CONFLICT, got %s", code)
	}
}

func TestSubscribePendingEmailRotatesToken(t *testing.T) {
	var rotatedToken string
	fs := &fakeStore{
		getSubscriberByEmailFn: func(_ context.Context, email string) (store.Subscriber, error) {
			old := "old-token"
			return store.Subscriber{ID: "sbr-1", Email: email, Confirmed: false, ConfirmToken: &old}, nil
		},
		refreshPendingSubscriberFn: func(_ context.Context, _, _, _, _ string, _ *int, token string) error {
			rotatedToken = token
			return nil
		},
	}
	svc := newTestService(fs)

	if _, err := svc.Subscribe(context.Background(), SubscribeInput{Email: "priya@example.com"}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if rotatedToken == "" || rotatedToken == "old-token" {
		t.Fatalf("expected a fresh token, got %q", rotatedToken)
	}
}

func TestConfirmSubscriptionIsIdempotent(t *testing.T) {
	confirmed := false
	fs := &fakeStore{
		getSubscriberByTokenFn: func(_ context.Context, token string) (store.Subscriber, error) {
			return store.Subscriber{ID: "sbr-1", Email: "priya@example.com", Confirmed: true}, nil
		},
		confirmSubscriberFn: func(context.Context, string) error {
			confirmed = true
			return nil
		},
	}
	svc := newTestService(fs)

	payload, err := svc.ConfirmSubscription(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("ConfirmSubscription() error = %v", err)
	}
	if confirmed {
		t.Fatal("already confirmed subscriber must not be written again")
	}
	if payload["email"] != "priya@example.com" {
		t.Fatalf("expected subscriber email in payload, got %v", payload["email"])
	}
}

func TestConfirmSubscriptionUnknownToken(t *testing.T) {
	svc := newTestService(&fakeStore{})

	_, err := svc.ConfirmSubscription(context.Background(), "bogus")
	if code := domainCode(t, err); code != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND, got %s", code)
	}
}

func TestUploadGlobalIssueDeniedBeforeStorageWrite(t *testing.T) {
	svc := newTestService(&fakeStore{})
	session := Session{UserID: "usr-1", Role: "editor"}

	_, err := svc.UploadGlobalIssue(context.Background(), session, IssueUploadMeta{Year: 2026, Month: 8, Title: "August"}, Upload{Reader: strings.NewReader("%PDF"), Size: 4, ContentType: "application/pdf", Ext: "pdf"})
	if code := domainCode(t, err); code != "PERMISSION_DENIED" {
		t.Fatalf("expected PERMISSION_DENIED for editor, got %s", code)
	}
}

func TestPublishIssueGatedToPublishers(t *testing.T) {
	published := false
	fs := &fakeStore{
		setIssuePublishedFn: func(_ context.Context, _ string, p bool) error {
			published = p
			return nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.PublishIssue(context.Background(), Session{UserID: "usr-1", Role: "contributor"}, "iss-1")
	if code := domainCode(t, err); code != "PERMISSION_DENIED" {
		t.Fatalf("expected PERMISSION_DENIED for contributor, got %s", code)
	}

	if _, err := svc.PublishIssue(context.Background(), Session{UserID: "usr-2", Role: "president"}, "iss-1"); err != nil {
		t.Fatalf("PublishIssue() error = %v", err)
	}
	if !published {
		t.Fatal("expected the issue to be published")
	}
}

func TestGrantRoleAdminOnly(t *testing.T) {
	svc := newTestService(&fakeStore{})

	err := svc.GrantRole(context.Background(), Session{UserID: "usr-1", Role: "president"}, "usr-2", "editor")
	if code := domainCode(t, err); code != "PERMISSION_DENIED" {
		t.Fatalf("expected PERMISSION_DENIED for president, got %s", code)
	}

	if err := svc.GrantRole(context.Background(), Session{UserID: "usr-1", Role: "admin"}, "usr-2", "editor"); err != nil {
		t.Fatalf("GrantRole() error = %v", err)
	}

	err = svc.GrantRole(context.Background(), Session{UserID: "usr-1", Role: "admin"}, "usr-2", "superuser")
	if code := domainCode(t, err); code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR for unknown role, got %s", code)
	}
}

func TestSaveNoticeStampsPublicationTime(t *testing.T) {
	posted := time.Date(2026, time.August, 29, 10, 0, 0, 0, time.UTC)
	var inserted store.Notice
	fs := &fakeStore{
		insertNoticeFn: func(_ context.Context, item store.Notice) (store.Notice, error) {
			inserted = item
			item.ID = "not-1"
			return item, nil
		},
	}
	svc := newTestService(fs)
	svc.now = func() time.Time { return posted }

	payload, err := svc.SaveNotice(context.Background(), Session{UserID: "usr-1", Role: "admin"},
		NoticeInput{Title: "Sports day", Body: "Ground floor auditorium, Friday"})
	if err != nil {
		t.Fatalf("SaveNotice() error = %v", err)
	}
	if inserted.PublishedAt.IsZero() || !inserted.PublishedAt.Equal(posted) {
		t.Fatalf("expected published_at stamped with the service clock, got %v", inserted.PublishedAt)
	}
	got, ok := payload["publishedAt"].(time.Time)
	if !ok || !got.Equal(posted) {
		t.Fatalf("expected payload publishedAt %v, got %v", posted, payload["publishedAt"])
	}
}

func TestSaveNoticeWithIDUpdatesExisting(t *testing.T) {
	published := time.Date(2026, time.July, 1, 9, 0, 0, 0, time.UTC)
	insertCalled := false
	var updated store.Notice
	fs := &fakeStore{
		insertNoticeFn: func(_ context.Context, item store.Notice) (store.Notice, error) {
			insertCalled = true
			return item, nil
		},
		updateNoticeFn: func(_ context.Context, item store.Notice) (store.Notice, error) {
			updated = item
			item.PublishedAt = published
			return item, nil
		},
	}
	svc := newTestService(fs)

	id := "not-7"
	payload, err := svc.SaveNotice(context.Background(), Session{UserID: "usr-1", Role: "editor"},
		NoticeInput{ID: &id, Title: "Sports day", Body: "Moved to Saturday"})
	if err != nil {
		t.Fatalf("SaveNotice() error = %v", err)
	}
	if insertCalled {
		t.Fatal("an update must not insert a new notice")
	}
	if updated.ID != "not-7" {
		t.Fatalf("expected update against not-7, got %q", updated.ID)
	}
	got, ok := payload["publishedAt"].(time.Time)
	if !ok || !got.Equal(published) {
		t.Fatalf("expected the original publication time %v to survive, got %v", published, payload["publishedAt"])
	}
}

func TestBootstrapSeedsOnlyEmptyCatalogue(t *testing.T) {
	var insertedSlugs []string
	fs := &fakeStore{
		insertDepartmentFn: func(_ context.Context, item store.Department) error {
			insertedSlugs = append(insertedSlugs, item.Slug)
			return nil
		},
	}
	svc := newTestService(fs)

	if err := svc.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	if len(insertedSlugs) != 15 {
		t.Fatalf("expected 15 seeded departments, got %d", len(insertedSlugs))
	}

	fs.departmentCountFn = func(context.Context) (int, error) { return 15, nil }
	insertedSlugs = nil
	if err := svc.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	if len(insertedSlugs) != 0 {
		t.Fatal("bootstrap must not reseed a populated catalogue")
	}
}

func TestSessionRoundTrip(t *testing.T) {
	fs := &fakeStore{
		getUserByIDFn: func(_ context.Context, id string) (store.User, error) {
			return store.User{ID: id, DisplayName: "Asha"}, nil
		},
		resolveRoleFn: func(context.Context, string) (string, error) { return "editor", nil },
	}
	svc := newTestService(fs)

	session, err := svc.CreateSession(context.Background(), "usr-1")
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if session.Role != "editor" {
		t.Fatalf("expected editor role, got %s", session.Role)
	}
	if session.RefreshToken == "" {
		t.Fatal("expected a refresh token")
	}

	parsed, err := svc.SessionFromToken(context.Background(), session.Token)
	if err != nil {
		t.Fatalf("SessionFromToken() error = %v", err)
	}
	if parsed.UserID != "usr-1" || parsed.UserName != "Asha" {
		t.Fatalf("unexpected session identity: %s %s", parsed.UserID, parsed.UserName)
	}
}

func TestSessionRoleDefaultsToViewer(t *testing.T) {
	svc := newTestService(&fakeStore{})

	session, err := svc.CreateSession(context.Background(), "usr-1")
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if session.Role != "viewer" {
		t.Fatalf("expected viewer for ungranted user, got %s", session.Role)
	}
}
