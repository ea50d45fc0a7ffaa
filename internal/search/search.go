package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultPlan     ResultType = "plan"
	ResultComment  ResultType = "comment"
	ResultDecision ResultType = "decision"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type       ResultType `json:"type"`
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Snippet    string     `json:"snippet"`
	PlanID     string     `json:"planId"`
	InvestorID string     `json:"investorId,omitempty"`
}

// Query describes a search request. InvestorID scopes hits to one investor's
// plans; it is set for investor callers and empty for review staff.
type Query struct {
	Text       string
	FilterType ResultType // empty = all types
	PlanID     string
	InvestorID string
	Limit      int
	Offset     int
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
	IndexPlan(p PlanRecord) error
	IndexComment(c CommentRecord) error
	IndexDecision(d DecisionRecord) error
	DeletePlan(id string) error
	DeleteComment(id string) error
}

// PlanRecord is the data we index for a plan.
type PlanRecord struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	PlanType     string `json:"planType"`
	Status       string `json:"status"`
	InvestorID   string `json:"investorId"`
	InvestorName string `json:"investorName"`
}

// CommentRecord is the data we index for a review comment.
type CommentRecord struct {
	ID         string `json:"id"`
	Body       string `json:"body"`
	PageTitle  string `json:"pageTitle"`
	PlanID     string `json:"planId"`
	InvestorID string `json:"investorId"`
	Author     string `json:"author"`
	Pass       int    `json:"pass"`
}

// DecisionRecord is the data we index for a decision log entry.
type DecisionRecord struct {
	ID         string `json:"id"`
	Note       string `json:"note"`
	Action     string `json:"action"`
	PlanID     string `json:"planId"`
	InvestorID string `json:"investorId"`
}
