package store

import "time"

type User struct {
	ID                    string
	DisplayName           string
	Email                 string
	PasswordHash          string
	Role                  string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Plan is one investor-submitted localization plan moving through the
// draft → review → approval/resubmission lifecycle.
type Plan struct {
	ID                string
	PlanType          string // PRODUCT or SERVICE
	Title             string
	Status            string
	InvestorID        string
	InvestorName      string
	ReviewPass        int    // counts submissions; 1 = first submission
	LastSubmittedHash string // plan repo commit of the latest submission
	UpdatedBy         string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ReviewComment is one reviewer comment scoped to a wizard step within one
// review pass, with the inputs it flags.
type ReviewComment struct {
	ID        string
	PlanID    string
	Pass      int
	PageTitle string
	Comment   string
	Author    string
	Fields    []FlaggedField
	CreatedAt time.Time
}

// FlaggedField is a single input named by a review comment. RowID is empty
// for singleton inputs and set for inputs inside repeated rows.
type FlaggedField struct {
	ID        int64
	CommentID string
	Section   string
	InputKey  string
	RowID     string
	Label     string
	Value     string
}

// DecisionLogEntry is the immutable record of a lifecycle decision on a
// plan: submitted, sent back, resubmitted, approved, rejected.
type DecisionLogEntry struct {
	ID         int64
	PlanID     string
	Pass       int
	Action     string
	Note       string
	DecidedBy  string
	DecidedAt  time.Time
	CommitHash string
}

// Attachment is one supporting document uploaded with a plan. The bytes
// live in object storage; only the pointer is recorded here.
type Attachment struct {
	ID          string
	PlanID      string
	FileName    string
	ObjectKey   string
	ContentType string
	Size        int64
	UploadedBy  string
	CreatedAt   time.Time
}

// CommitInfo describes one commit in a plan's content repository.
type CommitInfo struct {
	Hash      string
	Message   string
	Author    string
	CreatedAt time.Time
}
