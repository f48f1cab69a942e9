package store

import "time"

type User struct {
	ID                    string
	Email                 string
	DisplayName           string
	PasswordHash          string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type Profile struct {
	ID           string
	UserID       string
	FullName     string
	Phone        string
	DepartmentID *string
	Semester     *int
	AvatarURL    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Department struct {
	ID          string
	Name        string
	ShortName   string
	Slug        string
	Category    string
	Description string
}

type Issue struct {
	ID           string
	Year         int
	Month        int
	Title        string
	GlobalPDFURL *string
	PublishedAt  *time.Time
	CreatedBy    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type DepartmentIssue struct {
	ID           string
	IssueID      string
	DepartmentID string
	Summary      string
	PDFURL       *string
	PublishedAt  *time.Time
	CreatedBy    string
	CreatedAt    time.Time
	// Joined fields for API responses
	DepartmentName      string
	DepartmentShortName string
}

// Newsletter is a standalone release from before the issues model; the
// trending, activity and stats reads still consume it.
type Newsletter struct {
	ID          string
	Title       string
	Description string
	IssueDate   time.Time
	Year        int
	Month       int
	PDFURL      *string
	IsPublished bool
	CreatedBy   string
	CreatedAt   time.Time
}

// NewsletterWithLikes pairs a newsletter with its like count for trending.
type NewsletterWithLikes struct {
	Newsletter
	LikeCount int
}

type Submission struct {
	ID             string
	Title          string
	Summary        string
	Category       string
	Department     string
	Semester       *int
	MediaURL       *string
	ExternalLink   *string
	SubmitterName  string
	SubmitterEmail *string
	Status         string
	Pinned         bool
	ModeratedBy    *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Notice struct {
	ID          string
	Title       string
	Body        string
	LinkURL     *string
	Pinned      bool
	PublishedAt time.Time
	ExpiresAt   *time.Time
	CreatedBy   string
	CreatedAt   time.Time
}

type Reaction struct {
	ID         string
	UserID     string
	EntityType string
	EntityID   string
	Reaction   string
	CreatedAt  time.Time
}

type Feedback struct {
	ID        string
	UserID    *string
	Rating    int
	Review    *string
	CreatedAt time.Time
}

type Subscriber struct {
	ID           string
	Email        string
	Name         string
	Phone        string
	Department   string
	Semester     *int
	Confirmed    bool
	ConfirmToken *string
	CreatedAt    time.Time
}

// Stats are the dashboard counters: published newsletters, approved
// submissions overall and this month, and the mean feedback rating.
type Stats struct {
	PublishedNewsletters  int
	ApprovedSubmissions   int
	ThisMonthSubmissions  int
	AverageFeedbackRating float64
}
