package models

import (
	"time"
)

// IssueCategory classifies what kind of problem was reported.
type IssueCategory string

const (
	CategoryMaintenance IssueCategory = "maintenance"
	CategoryCleanliness IssueCategory = "cleanliness"
	CategorySecurity    IssueCategory = "security"
	CategoryFood        IssueCategory = "food"
	CategoryOther       IssueCategory = "other"
)

// IssuePriority ranks how urgently an issue needs attention.
type IssuePriority string

const (
	PriorityLow    IssuePriority = "low"
	PriorityMedium IssuePriority = "medium"
	PriorityHigh   IssuePriority = "high"
	PriorityUrgent IssuePriority = "urgent"
)

// IssueStatus is the lifecycle state of an issue.
type IssueStatus string

const (
	StatusPending    IssueStatus = "pending"
	StatusInProgress IssueStatus = "in_progress"
	StatusResolved   IssueStatus = "resolved"
	StatusClosed     IssueStatus = "closed"
)

// Issue is a reported hostel-operations problem record.
// Column order matches the issues table schema.
type Issue struct {
	ID               string        `json:"id" db:"id"`
	Title            string        `json:"title" db:"title"`
	Description      string        `json:"description" db:"description"`
	Category         IssueCategory `json:"category" db:"category"`
	Priority         IssuePriority `json:"priority" db:"priority"`
	HostelName       *string       `json:"hostel_name,omitempty" db:"hostel_name"`
	RoomNumber       *string       `json:"room_number,omitempty" db:"room_number"`
	Location         *string       `json:"location,omitempty" db:"location"`
	Status           IssueStatus   `json:"status" db:"status"`
	ReportedBy       string        `json:"reported_by" db:"reported_by"`
	AssignedTo       *string       `json:"assigned_to,omitempty" db:"assigned_to"`
	Notes            string        `json:"notes" db:"notes"`
	ResolvedAt       *time.Time    `json:"resolved_at,omitempty" db:"resolved_at"`
	MergedInto       *string       `json:"merged_into,omitempty" db:"merged_into"`
	DuplicateOfNotes *string       `json:"duplicate_of_notes,omitempty" db:"duplicate_of_notes"`
	CreatedAt        time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at" db:"updated_at"`
}

// IsMerged reports whether this issue has been absorbed into a master
// issue. A merged issue is closed and immutable apart from audit notes.
func (i *Issue) IsMerged() bool {
	return i.MergedInto != nil && *i.MergedInto != ""
}

// CreateIssueRequest is the payload for reporting a new issue.
type CreateIssueRequest struct {
	Title       string  `json:"title" validate:"required,max=200"`
	Description string  `json:"description" validate:"max=5000"`
	Category    string  `json:"category" validate:"required,oneof=maintenance cleanliness security food other"`
	Priority    string  `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	HostelName  *string `json:"hostel_name,omitempty" validate:"omitempty,max=100"`
	RoomNumber  *string `json:"room_number,omitempty" validate:"omitempty,max=20"`
	Location    *string `json:"location,omitempty" validate:"omitempty,max=200"`
}

// UpdateIssueStatusRequest is the payload for a status transition.
type UpdateIssueStatusRequest struct {
	Status     string  `json:"status" validate:"required,oneof=pending in_progress resolved closed"`
	AssignedTo *string `json:"assigned_to,omitempty"`
}

// AppendNoteRequest adds an entry to an issue's append-only note log.
type AppendNoteRequest struct {
	Note string `json:"note" validate:"required,max=2000"`
}

// IssueFilter narrows issue listings.
type IssueFilter struct {
	Category   *IssueCategory
	Status     *IssueStatus
	HostelName *string
}

// IssueListResponse is a paginated issue listing.
type IssueListResponse struct {
	Items      []Issue `json:"items"`
	TotalCount int     `json:"total_count"`
	Page       int     `json:"page"`
	PageSize   int     `json:"page_size"`
}

// CandidateQuery selects the pool of issues considered for duplicate
// scoring against a target: same category, not merged, not the target.
type CandidateQuery struct {
	Category  IssueCategory
	ExcludeID string
	Since     *time.Time // optional creation-time floor to bound the pool
}
