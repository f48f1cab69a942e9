package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"pratyush/api/internal/auth"
	"pratyush/api/internal/authpw"
	"pratyush/api/internal/config"
	"pratyush/api/internal/rbac"
	"pratyush/api/internal/search"
	"pratyush/api/internal/storage"
	"pratyush/api/internal/store"
	"pratyush/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

// Caller is a session resolved against role grants and profile. Every
// gated command takes one explicitly.
type Caller struct {
	UserID       string
	Name         string
	Role         rbac.Role
	DepartmentID *string
}

// Upload carries a file stream handed to object storage.
type Upload struct {
	Reader      io.Reader
	Size        int64
	ContentType string
	Ext         string
}

type SubmitContentInput struct {
	Title          string  `json:"title"`
	Summary        string  `json:"summary"`
	Category       string  `json:"category"`
	Department     string  `json:"department"`
	Semester       *int    `json:"semester"`
	ExternalLink   *string `json:"externalLink"`
	SubmitterName  string  `json:"submitterName"`
	SubmitterEmail *string `json:"submitterEmail"`
	Media          *Upload `json:"-"`
}

type IssueUploadMeta struct {
	Year  int    `json:"year"`
	Month int    `json:"month"`
	Title string `json:"title"`
}

type DepartmentIssueUploadMeta struct {
	IssueID      string `json:"issueId"`
	DepartmentID string `json:"departmentId"`
	Summary      string `json:"summary"`
}

type NewsletterReleaseInput struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Year        int     `json:"year"`
	Month       int     `json:"month"`
	PDF         *Upload `json:"-"`
}

type SubscribeInput struct {
	Email      string `json:"email"`
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Department string `json:"department"`
	Semester   *int   `json:"semester"`
}

type NoticeInput struct {
	ID        *string `json:"id"`
	Title     string  `json:"title"`
	Body      string  `json:"body"`
	LinkURL   *string `json:"linkUrl"`
	Pinned    bool    `json:"pinned"`
	ExpiresAt *string `json:"expiresAt"`
}

type ProfileInput struct {
	FullName     string  `json:"fullName"`
	Phone        string  `json:"phone"`
	DepartmentID *string `json:"departmentId"`
	Semester     *int    `json:"semester"`
	AvatarURL    string  `json:"avatarUrl"`
}

var allowedReactionEntities = map[string]struct{}{
	"newsletter": {},
	"submission": {},
}

type dataStore interface {
	GetUserByID(context.Context, string) (store.User, error)
	ResolveRole(context.Context, string) (string, error)
	GrantRole(context.Context, string, string) error
	GetProfile(context.Context, string) (store.Profile, error)
	UpdateProfile(context.Context, store.Profile) (store.Profile, error)

	ListDepartments(context.Context) ([]store.Department, error)
	GetDepartment(context.Context, string) (store.Department, error)
	InsertDepartment(context.Context, store.Department) error
	DepartmentCount(context.Context) (int, error)

	UpsertIssue(context.Context, store.Issue) (store.Issue, error)
	GetIssue(context.Context, string) (store.Issue, error)
	ListIssues(context.Context) ([]store.Issue, error)
	CurrentIssue(context.Context) (*store.Issue, error)
	SetIssuePublished(context.Context, string, bool) error
	UpsertDepartmentIssue(context.Context, store.DepartmentIssue) (store.DepartmentIssue, error)
	ListDepartmentIssues(context.Context, string) ([]store.DepartmentIssue, error)

	InsertNewsletter(context.Context, store.Newsletter) (store.Newsletter, error)
	GetNewsletter(context.Context, string) (store.Newsletter, error)
	SetNewsletterPublished(context.Context, string, bool) error
	TrendingNewsletters(context.Context, time.Time, int) ([]store.NewsletterWithLikes, error)
	RecentPublishedNewsletters(context.Context, int) ([]store.Newsletter, error)
	ListPublishedNewsletters(context.Context) ([]store.Newsletter, error)

	InsertSubmission(context.Context, store.Submission) (store.Submission, error)
	GetSubmission(context.Context, string) (store.Submission, error)
	ListSubmissions(context.Context, string) ([]store.Submission, error)
	SpotlightSubmissions(context.Context, int) ([]store.Submission, error)
	RecentSubmissions(context.Context, int) ([]store.Submission, error)
	UpdateSubmissionStatus(context.Context, string, string, string) error
	SetSubmissionPinned(context.Context, string, bool) error
	DeleteSubmission(context.Context, string) error

	ActiveNotices(context.Context, int) ([]store.Notice, error)
	InsertNotice(context.Context, store.Notice) (store.Notice, error)
	UpdateNotice(context.Context, store.Notice) (store.Notice, error)
	DeleteNotice(context.Context, string) error

	ToggleReaction(context.Context, string, string, string, string) (bool, error)
	LikeCount(context.Context, string, string) (int, error)
	InsertFeedback(context.Context, store.Feedback) (store.Feedback, error)
	RecentFeedback(context.Context, int) ([]store.Feedback, error)
	Stats(context.Context, time.Time) (store.Stats, error)

	GetSubscriberByEmail(context.Context, string) (store.Subscriber, error)
	InsertSubscriber(context.Context, store.Subscriber) (store.Subscriber, error)
	RefreshPendingSubscriber(context.Context, string, string, string, string, *int, string) error
	GetSubscriberByToken(context.Context, string) (store.Subscriber, error)
	ConfirmSubscriber(context.Context, string) error

	Ping(ctx context.Context) error
}

// sessionStore holds refresh tokens; Redis in production, Postgres as the
// fallback when Redis is not configured.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (string, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type objectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
}

type mailer interface {
	IsConfigured() bool
	SendSubscriptionConfirmEmail(to, name, confirmURL string) error
	SendVerificationEmail(to, userName, verificationURL string) error
	SendPasswordResetEmail(to, userName, resetURL string) error
}

type searchIndex interface {
	Search(q search.Query) search.Response
	IndexNewsletter(search.NewsletterRecord)
	IndexSubmission(search.SubmissionRecord)
	IndexNotice(search.NoticeRecord)
	DeleteSubmission(id string)
	DeleteNotice(id string)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	objects  objectStore
	mail     mailer
	search   searchIndex
	authpw   *authpw.Service
	now      func() time.Time
}

// Deps are the gateways the service drives; Search and Mail may be nil.
type Deps struct {
	Sessions sessionStore
	Objects  objectStore
	Mail     mailer
	Search   searchIndex
	Auth     *authpw.Service
}

func New(cfg config.Config, dataStore *store.PostgresStore, deps Deps) *Service {
	sessions := deps.Sessions
	if sessions == nil {
		sessions = dataStore
	}
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: sessions,
		objects:  deps.Objects,
		mail:     deps.Mail,
		search:   deps.Search,
		authpw:   deps.Auth,
		now:      time.Now,
	}
}

// Bootstrap seeds the department catalogue on an empty database.
func (s *Service) Bootstrap(ctx context.Context) error {
	count, err := s.store.DepartmentCount(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	seeds := []store.Department{
		{Name: "Administrative", ShortName: "Admin", Slug: "administrative", Category: "administrative", Description: "Administrative operations and management of the institution"},
		{Name: "Architecture", ShortName: "Arch", Slug: "architecture", Category: "engineering", Description: "Architectural design, planning, and construction technology"},
		{Name: "Automation and Robotics Engineering", ShortName: "ARE", Slug: "automation-robotics", Category: "engineering", Description: "Automation systems, robotics, and control engineering"},
		{Name: "Automobile Engineering", ShortName: "Auto", Slug: "automobile", Category: "engineering", Description: "Automotive technology, design, and manufacturing"},
		{Name: "Biomedical Engineering", ShortName: "BME", Slug: "biomedical", Category: "engineering", Description: "Medical device technology and bioengineering solutions"},
		{Name: "Civil Engineering", ShortName: "Civil", Slug: "civil", Category: "engineering", Description: "Infrastructure development, construction, and urban planning"},
		{Name: "Computer Engineering", ShortName: "CE", Slug: "computer", Category: "technology", Description: "Computer systems, software development, and digital technology"},
		{Name: "Electrical Engineering", ShortName: "EE", Slug: "electrical", Category: "engineering", Description: "Power systems, electrical machines, and energy technology"},
		{Name: "Electronics and Communication Engineering", ShortName: "ECE", Slug: "electronics-communication", Category: "engineering", Description: "Electronics, telecommunications, and signal processing"},
		{Name: "Information and Communication Technology", ShortName: "ICT", Slug: "ict", Category: "technology", Description: "Information systems, networking, and communication technology"},
		{Name: "Information Technology", ShortName: "IT", Slug: "information-technology", Category: "technology", Description: "Software development, databases, and IT infrastructure"},
		{Name: "Instrumentation and Control Engineering", ShortName: "ICE", Slug: "instrumentation-control", Category: "engineering", Description: "Process control, measurement systems, and industrial automation"},
		{Name: "Mechanical Engineering", ShortName: "ME", Slug: "mechanical", Category: "engineering", Description: "Mechanical systems, thermal engineering, and manufacturing"},
		{Name: "Mechanical Engineering CAD/CAM", ShortName: "ME CAD/CAM", Slug: "mechanical-cadcam", Category: "engineering", Description: "Computer-aided design, manufacturing, and digital fabrication"},
		{Name: "Plastic Engineering", ShortName: "PE", Slug: "plastic", Category: "engineering", Description: "Polymer technology, plastic processing, and materials engineering"},
	}

	for _, seed := range seeds {
		if err := s.store.InsertDepartment(ctx, seed); err != nil {
			return err
		}
	}
	return nil
}

// --- sessions ---

func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	userID, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.CreateSession(ctx, userID)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := s.now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.SessionSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewToken()
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	role, err := s.effectiveRole(ctx, user.ID)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Role:         string(role),
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.SessionSecret), token)
	if err != nil {
		return Session{}, err
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	role, err := s.effectiveRole(ctx, user.ID)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Role:      string(role),
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// effectiveRole is the most recently granted role; users without a grant
// act as viewers.
func (s *Service) effectiveRole(ctx context.Context, userID string) (rbac.Role, error) {
	role, err := s.store.ResolveRole(ctx, userID)
	if err != nil {
		return "", err
	}
	if role == "" {
		return rbac.RoleViewer, nil
	}
	return rbac.Role(role), nil
}

func (s *Service) callerFor(ctx context.Context, session Session) (Caller, error) {
	caller := Caller{
		UserID: session.UserID,
		Name:   session.UserName,
		Role:   rbac.Role(session.Role),
	}
	if caller.Role == "" {
		caller.Role = rbac.RoleViewer
	}
	profile, err := s.store.GetProfile(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return caller, nil
		}
		return Caller{}, err
	}
	caller.DepartmentID = profile.DepartmentID
	return caller, nil
}

// departmentMatches reports whether the caller's profile department is the
// one a submission names. Submissions store the department as entered text,
// so the check accepts name, short name, or slug.
func (s *Service) departmentMatches(ctx context.Context, caller Caller, department string) bool {
	if caller.DepartmentID == nil || strings.TrimSpace(department) == "" {
		return false
	}
	dept, err := s.store.GetDepartment(ctx, *caller.DepartmentID)
	if err != nil {
		return false
	}
	return strings.EqualFold(dept.Name, department) ||
		strings.EqualFold(dept.ShortName, department) ||
		strings.EqualFold(dept.Slug, department)
}

// departmentIDMatches is the stricter check used for department uploads,
// where the target is a department ID rather than free text.
func departmentIDMatches(caller Caller, departmentID string) bool {
	return caller.DepartmentID != nil && *caller.DepartmentID == departmentID
}

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authpw
}

func (s *Service) SMTPConfigured() bool {
	return s.mail != nil && s.mail.IsConfigured()
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// --- submissions ---

func (s *Service) SubmitContent(ctx context.Context, input SubmitContentInput) (map[string]any, error) {
	details := map[string]any{}
	if strings.TrimSpace(input.Title) == "" {
		details["title"] = "required"
	}
	if strings.TrimSpace(input.Summary) == "" {
		details["summary"] = "required"
	}
	if strings.TrimSpace(input.Category) == "" {
		details["category"] = "required"
	}
	if strings.TrimSpace(input.Department) == "" {
		details["department"] = "required"
	}
	if strings.TrimSpace(input.SubmitterName) == "" {
		details["submitterName"] = "required"
	}
	if input.Semester != nil && (*input.Semester < 1 || *input.Semester > 8) {
		details["semester"] = "must be between 1 and 8"
	}
	if len(details) > 0 {
		return nil, validationError("Invalid submission", details)
	}

	var mediaURL *string
	if input.Media != nil {
		if s.objects == nil {
			return nil, unavailable("Media storage not configured", nil)
		}
		key := storage.MediaKey(util.NewID("med"), defaultExt(input.Media.Ext))
		url, err := s.objects.Put(ctx, key, input.Media.Reader, input.Media.Size, input.Media.ContentType)
		if err != nil {
			return nil, unavailable("Media upload failed", nil)
		}
		mediaURL = &url
	}

	// Status is never caller-supplied; every submission enters pending.
	created, err := s.store.InsertSubmission(ctx, store.Submission{
		Title:          strings.TrimSpace(input.Title),
		Summary:        strings.TrimSpace(input.Summary),
		Category:       strings.TrimSpace(input.Category),
		Department:     strings.TrimSpace(input.Department),
		Semester:       input.Semester,
		MediaURL:       mediaURL,
		ExternalLink:   input.ExternalLink,
		SubmitterName:  strings.TrimSpace(input.SubmitterName),
		SubmitterEmail: input.SubmitterEmail,
	})
	if err != nil {
		return nil, fromStore(err, "Submission not found")
	}

	s.indexSubmission(created)

	return submissionPayload(created), nil
}

func (s *Service) Moderate(ctx context.Context, session Session, submissionID, decision string) (map[string]any, error) {
	decision = strings.ToLower(strings.TrimSpace(decision))
	if decision != "approved" && decision != "rejected" {
		return nil, validationError("Decision must be approved or rejected", nil)
	}

	caller, err := s.callerFor(ctx, session)
	if err != nil {
		return nil, err
	}

	submission, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, fromStore(err, "Submission not found")
	}

	if !rbac.CanModerate(caller.Role, s.departmentMatches(ctx, caller, submission.Department)) {
		return nil, permissionDenied("Not allowed to moderate this submission")
	}

	switch {
	case submission.Status == "approved":
		// Approval is terminal: published content never silently un-publishes.
		return nil, invalidStateTransition("Submission is already approved")
	case submission.Status == decision:
		// rejected -> rejected is a no-op.
		return submissionPayload(submission), nil
	}

	if err := s.store.UpdateSubmissionStatus(ctx, submissionID, decision, caller.UserID); err != nil {
		return nil, fromStore(err, "Submission not found")
	}

	submission.Status = decision
	submission.ModeratedBy = &caller.UserID
	s.indexSubmission(submission)

	return submissionPayload(submission), nil
}

func (s *Service) TogglePin(ctx context.Context, session Session, submissionID string) (map[string]any, error) {
	caller, err := s.callerFor(ctx, session)
	if err != nil {
		return nil, err
	}

	submission, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, fromStore(err, "Submission not found")
	}

	if !rbac.CanModerate(caller.Role, s.departmentMatches(ctx, caller, submission.Department)) {
		return nil, permissionDenied("Not allowed to pin this submission")
	}

	if submission.Status != "approved" {
		return nil, invalidStateTransition("Only approved submissions can be pinned")
	}

	if err := s.store.SetSubmissionPinned(ctx, submissionID, !submission.Pinned); err != nil {
		return nil, fromStore(err, "Submission not found")
	}

	submission.Pinned = !submission.Pinned
	return submissionPayload(submission), nil
}

func (s *Service) DeleteSubmission(ctx context.Context, session Session, submissionID string) error {
	caller, err := s.callerFor(ctx, session)
	if err != nil {
		return err
	}

	submission, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return fromStore(err, "Submission not found")
	}

	if !rbac.CanModerate(caller.Role, s.departmentMatches(ctx, caller, submission.Department)) {
		return permissionDenied("Not allowed to delete this submission")
	}

	if err := s.store.DeleteSubmission(ctx, submissionID); err != nil {
		return fromStore(err, "Submission not found")
	}
	if s.search != nil {
		s.search.DeleteSubmission(submissionID)
	}
	return nil
}

// --- issues & uploads ---

func (s *Service) UploadGlobalIssue(ctx context.Context, session Session, meta IssueUploadMeta, file Upload) (map[string]any, error) {
	caller, err := s.callerFor(ctx, session)
	if err != nil {
		return nil, err
	}
	// Gate before the storage write so a denied caller leaves no orphan object.
	if !rbac.CanPublish(caller.Role) {
		return nil, permissionDenied("Not allowed to upload the global newsletter")
	}

	if err := validateIssueMeta(meta); err != nil {
		return nil, err
	}
	if s.objects == nil {
		return nil, unavailable("Object storage not configured", nil)
	}

	key := storage.GlobalIssueKey(meta.Year, meta.Month, defaultExt(file.Ext))
	url, err := s.objects.Put(ctx, key, file.Reader, file.Size, file.ContentType)
	if err != nil {
		return nil, unavailable("Upload failed", nil)
	}

	now := s.now()
	issue, err := s.store.UpsertIssue(ctx, store.Issue{
		Year:         meta.Year,
		Month:        meta.Month,
		Title:        strings.TrimSpace(meta.Title),
		GlobalPDFURL: &url,
		PublishedAt:  &now,
		CreatedBy:    caller.UserID,
	})
	if err != nil {
		// The object is durable at this point; report where it landed so
		// the record write can be retried without re-uploading.
		domainErr := fromStore(err, "Issue not found")
		domainErr.Details = map[string]any{"objectUrl": url}
		return nil, domainErr
	}

	return issuePayload(issue), nil
}

func (s *Service) UploadDepartmentIssue(ctx context.Context, session Session, meta DepartmentIssueUploadMeta, file Upload) (map[string]any, error) {
	caller, err := s.callerFor(ctx, session)
	if err != nil {
		return nil, err
	}
	if !rbac.CanUploadDepartment(caller.Role, departmentIDMatches(caller, meta.DepartmentID)) {
		return nil, permissionDenied("Not allowed to upload for this department")
	}

	if strings.TrimSpace(meta.IssueID) == "" || strings.TrimSpace(meta.DepartmentID) == "" {
		return nil, validationError("issueId and departmentId are required", nil)
	}
	if s.objects == nil {
		return nil, unavailable("Object storage not configured", nil)
	}

	if _, err := s.store.GetIssue(ctx, meta.IssueID); err != nil {
		return nil, fromStore(err, "Issue not found")
	}
	if _, err := s.store.GetDepartment(ctx, meta.DepartmentID); err != nil {
		return nil, fromStore(err, "Department not found")
	}

	key := storage.DepartmentIssueKey(meta.DepartmentID, meta.IssueID, defaultExt(file.Ext))
	url, err := s.objects.Put(ctx, key, file.Reader, file.Size, file.ContentType)
	if err != nil {
		return nil, unavailable("Upload failed", nil)
	}

	now := s.now()
	section, err := s.store.UpsertDepartmentIssue(ctx, store.DepartmentIssue{
		IssueID:      meta.IssueID,
		DepartmentID: meta.DepartmentID,
		Summary:      strings.TrimSpace(meta.Summary),
		PDFURL:       &url,
		PublishedAt:  &now,
		CreatedBy:    caller.UserID,
	})
	if err != nil {
		domainErr := fromStore(err, "Issue not found")
		domainErr.Details = map[string]any{"objectUrl": url}
		return nil, domainErr
	}

	return departmentIssuePayload(section), nil
}

func (s *Service) PublishIssue(ctx context.Context, session Session, issueID string) (map[string]any, error) {
	return s.setIssuePublished(ctx, session, issueID, true)
}

func (s *Service) UnpublishIssue(ctx context.Context, session Session, issueID string) (map[string]any, error) {
	return s.setIssuePublished(ctx, session, issueID, false)
}

func (s *Service) setIssuePublished(ctx context.Context, session Session, issueID string, published bool) (map[string]any, error) {
	caller, err := s.callerFor(ctx, session)
	if err != nil {
		return nil, err
	}
	if !rbac.CanPublish(caller.Role) {
		return nil, permissionDenied("Not allowed to change issue publication")
	}

	// Idempotent: republishing refreshes the timestamp, unpublishing a
	// draft leaves it a draft.
	if err := s.store.SetIssuePublished(ctx, issueID, published); err != nil {
		return nil, fromStore(err, "Issue not found")
	}

	issue, err := s.store.GetIssue(ctx, issueID)
	if err != nil {
		return nil, fromStore(err, "Issue not found")
	}
	return issuePayload(issue), nil
}

// --- newsletter releases ---

func (s *Service) CreateNewsletterRelease(ctx context.Context, session Session, input NewsletterReleaseInput) (map[string]any, error) {
	caller, err := s.callerFor(ctx, session)
	if err != nil {
		return nil, err
	}
	if !rbac.CanPublish(caller.Role) {
		return nil, permissionDenied("Not allowed to publish newsletters")
	}

	details := map[string]any{}
	if strings.TrimSpace(input.Title) == "" {
		details["title"] = "required"
	}
	if input.Month < 1 || input.Month > 12 {
		details["month"] = "must be between 1 and 12"
	}
	if input.Year < 2000 {
		details["year"] = "must be a four-digit year"
	}
	if len(details) > 0 {
		return nil, validationError("Invalid newsletter release", details)
	}

	var pdfURL *string
	if input.PDF != nil {
		if s.objects == nil {
			return nil, unavailable("Object storage not configured", nil)
		}
		key := storage.GlobalIssueKey(input.Year, input.Month, defaultExt(input.PDF.Ext))
		url, err := s.objects.Put(ctx, key, input.PDF.Reader, input.PDF.Size, input.PDF.ContentType)
		if err != nil {
			return nil, unavailable("Upload failed", nil)
		}
		pdfURL = &url
	}

	created, err := s.store.InsertNewsletter(ctx, store.Newsletter{
		Title:       strings.TrimSpace(input.Title),
		Description: strings.TrimSpace(input.Description),
		IssueDate:   time.Date(input.Year, time.Month(input.Month), 1, 0, 0, 0, 0, time.UTC),
		Year:        input.Year,
		Month:       input.Month,
		PDFURL:      pdfURL,
		IsPublished: true,
		CreatedBy:   caller.UserID,
	})
	if err != nil {
		return nil, fromStore(err, "Newsletter not found")
	}

	if s.search != nil {
		s.search.IndexNewsletter(search.NewsletterRecord{
			ID:          created.ID,
			Title:       created.Title,
			Description: created.Description,
			Published:   created.IsPublished,
		})
	}

	return newsletterPayload(created, 0), nil
}

func (s *Service) SetNewsletterPublished(ctx context.Context, session Session, newsletterID string, published bool) (map[string]any, error) {
	caller, err := s.callerFor(ctx, session)
	if err != nil {
		return nil, err
	}
	if !rbac.CanPublish(caller.Role) {
		return nil, permissionDenied("Not allowed to change newsletter publication")
	}

	if err := s.store.SetNewsletterPublished(ctx, newsletterID, published); err != nil {
		return nil, fromStore(err, "Newsletter not found")
	}

	item, err := s.store.GetNewsletter(ctx, newsletterID)
	if err != nil {
		return nil, fromStore(err, "Newsletter not found")
	}
	if s.search != nil {
		s.search.IndexNewsletter(search.NewsletterRecord{
			ID:          item.ID,
			Title:       item.Title,
			Description: item.Description,
			Published:   item.IsPublished,
		})
	}
	return newsletterPayload(item, 0), nil
}

// --- engagement ---

func (s *Service) React(ctx context.Context, session Session, entityType, entityID, reaction string) (map[string]any, error) {
	entityType = strings.ToLower(strings.TrimSpace(entityType))
	reaction = strings.ToLower(strings.TrimSpace(reaction))
	if _, ok := allowedReactionEntities[entityType]; !ok {
		return nil, validationError("entityType must be newsletter or submission", nil)
	}
	if reaction != "like" && reaction != "dislike" {
		return nil, validationError("reaction must be like or dislike", nil)
	}
	if strings.TrimSpace(entityID) == "" {
		return nil, validationError("entityId is required", nil)
	}

	removed, err := s.store.ToggleReaction(ctx, session.UserID, entityType, entityID, reaction)
	if err != nil {
		return nil, fromStore(err, "Entity not found")
	}

	likes, err := s.store.LikeCount(ctx, entityType, entityID)
	if err != nil {
		return nil, fromStore(err, "Entity not found")
	}

	return map[string]any{
		"removed": removed,
		"likes":   likes,
	}, nil
}

func (s *Service) SubmitFeedback(ctx context.Context, userID *string, rating int, review string) (map[string]any, error) {
	if rating < 1 || rating > 5 {
		return nil, validationError("Rating must be between 1 and 5", nil)
	}
	if len(review) > 2000 {
		return nil, validationError("Review must be at most 2000 characters", nil)
	}

	var reviewPtr *string
	if trimmed := strings.TrimSpace(review); trimmed != "" {
		reviewPtr = &trimmed
	}

	created, err := s.store.InsertFeedback(ctx, store.Feedback{
		UserID: userID,
		Rating: rating,
		Review: reviewPtr,
	})
	if err != nil {
		return nil, fromStore(err, "Feedback not found")
	}

	return map[string]any{
		"id":        created.ID,
		"rating":    created.Rating,
		"createdAt": created.CreatedAt,
	}, nil
}

// --- subscriptions ---

func (s *Service) Subscribe(ctx context.Context, input SubscribeInput) (map[string]any, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, validationError("A valid email is required", nil)
	}
	if input.Semester != nil && (*input.Semester < 1 || *input.Semester > 8) {
		return nil, validationError("Semester must be between 1 and 8", nil)
	}

	token := util.NewToken()

	existing, err := s.store.GetSubscriberByEmail(ctx, email)
	switch {
	case errors.Is(err, store.ErrNotFound):
		created, err := s.store.InsertSubscriber(ctx, store.Subscriber{
			Email:        email,
			Name:         strings.TrimSpace(input.Name),
			Phone:        strings.TrimSpace(input.Phone),
			Department:   strings.TrimSpace(input.Department),
			Semester:     input.Semester,
			ConfirmToken: &token,
		})
		if err != nil {
			return nil, fromStore(err, "Subscriber not found")
		}
		s.sendConfirmMail(created.Email, created.Name, token)
	case err != nil:
		return nil, fromStore(err, "Subscriber not found")
	case existing.Confirmed:
		return nil, conflictError("This email is already subscribed", nil)
	default:
		// Re-subscribing before confirmation rotates the token; the old
		// link stops working.
		if err := s.store.RefreshPendingSubscriber(ctx, existing.ID,
			strings.TrimSpace(input.Name), strings.TrimSpace(input.Phone),
			strings.TrimSpace(input.Department), input.Semester, token); err != nil {
			return nil, fromStore(err, "Subscriber not found")
		}
		s.sendConfirmMail(email, strings.TrimSpace(input.Name), token)
	}

	response := map[string]any{
		"message": "Check your inbox to confirm your subscription",
	}
	if !s.SMTPConfigured() {
		response["devConfirmToken"] = token
	}
	return response, nil
}

func (s *Service) ConfirmSubscription(ctx context.Context, token string) (map[string]any, error) {
	if strings.TrimSpace(token) == "" {
		return nil, validationError("Confirmation token is required", nil)
	}

	subscriber, err := s.store.GetSubscriberByToken(ctx, token)
	if err != nil {
		return nil, fromStore(err, "Invalid or expired confirmation token")
	}

	if !subscriber.Confirmed {
		if err := s.store.ConfirmSubscriber(ctx, subscriber.ID); err != nil {
			return nil, fromStore(err, "Invalid or expired confirmation token")
		}
	}

	return map[string]any{
		"message": "Subscription confirmed",
		"email":   subscriber.Email,
	}, nil
}

// SendVerificationMail dispatches the account verification link when SMTP
// is configured; callers fall back to the dev token otherwise.
func (s *Service) SendVerificationMail(email, name, token string) {
	if !s.SMTPConfigured() {
		return
	}
	verifyURL := fmt.Sprintf("%s/verify-email?token=%s", strings.TrimRight(s.cfg.SiteURL, "/"), token)
	go func() {
		if err := s.mail.SendVerificationEmail(email, name, verifyURL); err != nil {
			log.Printf("verification mail to %s failed: %v", email, err)
		}
	}()
}

func (s *Service) SendPasswordResetMail(email, token string) {
	if !s.SMTPConfigured() {
		return
	}
	resetURL := fmt.Sprintf("%s/reset-password?token=%s", strings.TrimRight(s.cfg.SiteURL, "/"), token)
	go func() {
		if err := s.mail.SendPasswordResetEmail(email, "", resetURL); err != nil {
			log.Printf("password reset mail to %s failed: %v", email, err)
		}
	}()
}

func (s *Service) sendConfirmMail(email, name, token string) {
	if !s.SMTPConfigured() {
		return
	}
	confirmURL := fmt.Sprintf("%s/subscribe/confirm?token=%s", strings.TrimRight(s.cfg.SiteURL, "/"), token)
	// Best-effort; the token survives in the row for a retry.
	go func() {
		if err := s.mail.SendSubscriptionConfirmEmail(email, name, confirmURL); err != nil {
			log.Printf("subscription mail to %s failed: %v", email, err)
		}
	}()
}

// --- admin dashboard ---

func (s *Service) SaveNotice(ctx context.Context, session Session, input NoticeInput) (map[string]any, error) {
	caller, err := s.callerFor(ctx, session)
	if err != nil {
		return nil, err
	}
	if !rbac.CanManageNotices(caller.Role) {
		return nil, permissionDenied("Not allowed to manage notices")
	}

	if strings.TrimSpace(input.Title) == "" || strings.TrimSpace(input.Body) == "" {
		return nil, validationError("Title and body are required", nil)
	}

	var expiresAt *time.Time
	if input.ExpiresAt != nil && strings.TrimSpace(*input.ExpiresAt) != "" {
		parsed, err := time.Parse(time.RFC3339, *input.ExpiresAt)
		if err != nil {
			return nil, validationError("expiresAt must be RFC 3339", nil)
		}
		expiresAt = &parsed
	}

	record := store.Notice{
		Title:     strings.TrimSpace(input.Title),
		Body:      strings.TrimSpace(input.Body),
		LinkURL:   input.LinkURL,
		Pinned:    input.Pinned,
		ExpiresAt: expiresAt,
		CreatedBy: caller.UserID,
	}

	var created store.Notice
	if input.ID != nil && strings.TrimSpace(*input.ID) != "" {
		// Updates keep the original publication timestamp.
		record.ID = strings.TrimSpace(*input.ID)
		created, err = s.store.UpdateNotice(ctx, record)
	} else {
		record.PublishedAt = s.now()
		created, err = s.store.InsertNotice(ctx, record)
	}
	if err != nil {
		return nil, fromStore(err, "Notice not found")
	}

	if s.search != nil {
		s.search.IndexNotice(search.NoticeRecord{
			ID:     created.ID,
			Title:  created.Title,
			Body:   created.Body,
			Active: true,
		})
	}

	return noticePayload(created), nil
}

func (s *Service) DeleteNotice(ctx context.Context, session Session, noticeID string) error {
	caller, err := s.callerFor(ctx, session)
	if err != nil {
		return err
	}
	if !rbac.CanManageNotices(caller.Role) {
		return permissionDenied("Not allowed to manage notices")
	}

	if err := s.store.DeleteNotice(ctx, noticeID); err != nil {
		return fromStore(err, "Notice not found")
	}
	if s.search != nil {
		s.search.DeleteNotice(noticeID)
	}
	return nil
}

func (s *Service) UpdateProfile(ctx context.Context, session Session, input ProfileInput) (map[string]any, error) {
	if input.Semester != nil && (*input.Semester < 1 || *input.Semester > 8) {
		return nil, validationError("Semester must be between 1 and 8", nil)
	}
	if input.DepartmentID != nil {
		if _, err := s.store.GetDepartment(ctx, *input.DepartmentID); err != nil {
			return nil, fromStore(err, "Department not found")
		}
	}

	updated, err := s.store.UpdateProfile(ctx, store.Profile{
		UserID:       session.UserID,
		FullName:     strings.TrimSpace(input.FullName),
		Phone:        strings.TrimSpace(input.Phone),
		DepartmentID: input.DepartmentID,
		Semester:     input.Semester,
		AvatarURL:    strings.TrimSpace(input.AvatarURL),
	})
	if err != nil {
		return nil, fromStore(err, "Profile not found")
	}

	return profilePayload(updated), nil
}

func (s *Service) GrantRole(ctx context.Context, session Session, userID, role string) error {
	caller, err := s.callerFor(ctx, session)
	if err != nil {
		return err
	}
	if caller.Role != rbac.RoleAdmin {
		return permissionDenied("Only admins grant roles")
	}
	if !rbac.Valid(role) {
		return validationError("Unknown role", map[string]any{"role": role})
	}
	if _, err := s.store.GetUserByID(ctx, userID); err != nil {
		return fromStore(err, "User not found")
	}
	if err := s.store.GrantRole(ctx, userID, role); err != nil {
		return fromStore(err, "User not found")
	}
	return nil
}

// --- helpers ---

func validateIssueMeta(meta IssueUploadMeta) *DomainError {
	details := map[string]any{}
	if meta.Month < 1 || meta.Month > 12 {
		details["month"] = "must be between 1 and 12"
	}
	if meta.Year < 2000 {
		details["year"] = "must be a four-digit year"
	}
	if strings.TrimSpace(meta.Title) == "" {
		details["title"] = "required"
	}
	if len(details) > 0 {
		return validationError("Invalid issue metadata", details)
	}
	return nil
}

func (s *Service) indexSubmission(submission store.Submission) {
	if s.search == nil {
		return
	}
	s.search.IndexSubmission(search.SubmissionRecord{
		ID:            submission.ID,
		Title:         submission.Title,
		Summary:       submission.Summary,
		Category:      submission.Category,
		Department:    submission.Department,
		SubmitterName: submission.SubmitterName,
		Status:        submission.Status,
	})
}

func defaultExt(ext string) string {
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
	if ext == "" {
		return "pdf"
	}
	return strings.ToLower(ext)
}
