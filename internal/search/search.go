package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultNewsletter ResultType = "newsletter"
	ResultSubmission ResultType = "submission"
	ResultNotice     ResultType = "notice"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type       ResultType `json:"type"`
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Snippet    string     `json:"snippet"`
	Department string     `json:"department,omitempty"`
	Status     string     `json:"status,omitempty"`
}

// Query describes a search request. Unless IncludeHidden is set, only
// published newsletters, approved submissions, and live notices match.
type Query struct {
	Text             string
	FilterType       ResultType // empty = all types
	FilterDepartment string
	Limit            int
	Offset           int
	IncludeHidden    bool
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexNewsletter(n NewsletterRecord) error
	IndexSubmission(s SubmissionRecord) error
	IndexNotice(n NoticeRecord) error
	DeleteSubmission(id string) error
	DeleteNotice(id string) error
}

// NewsletterRecord is the data we index for a newsletter release.
type NewsletterRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Published   bool   `json:"published"`
}

// SubmissionRecord is the data we index for a community submission.
type SubmissionRecord struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Summary       string `json:"summary"`
	Category      string `json:"category"`
	Department    string `json:"department"`
	SubmitterName string `json:"submitterName"`
	Status        string `json:"status"`
}

// NoticeRecord is the data we index for a notice board entry.
type NoticeRecord struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	Active bool   `json:"active"`
}
