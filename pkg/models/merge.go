package models

// DuplicateCandidate pairs a candidate issue with its similarity score
// against the target issue.
type DuplicateCandidate struct {
	Issue Issue   `json:"issue"`
	Score float64 `json:"score"`
}

// DuplicateListResponse is the ranked result of a duplicate search.
type DuplicateListResponse struct {
	IssueID    string               `json:"issue_id"`
	Candidates []DuplicateCandidate `json:"candidates"`
	Limit      int                  `json:"limit"`
}

// MergeIssuesRequest asks for duplicateIDs to be merged into the master
// issue. The duplicate list must be non-empty, free of repeats, and must
// not contain the master itself.
type MergeIssuesRequest struct {
	MasterIssueID     string   `json:"master_issue_id" validate:"required"`
	DuplicateIssueIDs []string `json:"duplicate_issue_ids" validate:"required,min=1,unique,dive,required"`
	MergeNotes        string   `json:"merge_notes,omitempty" validate:"max=2000"`
}

// MergeResult summarizes a committed merge operation.
type MergeResult struct {
	MergedCount    int      `json:"merged_count"`
	MasterIssue    *Issue   `json:"master_issue"`
	MergedIssueIDs []string `json:"merged_issue_ids"`
}

// RequestMetadata carries caller context recorded in the audit trail.
type RequestMetadata struct {
	RequestID string `json:"request_id,omitempty"`
	RemoteIP  string `json:"remote_ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}
