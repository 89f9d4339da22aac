package models

import (
	"encoding/json"
	"time"

	"github.com/lib/pq"
)

// AuditAction identifies the operation an audit entry records.
type AuditAction string

const (
	AuditActionIssueMerge AuditAction = "issue.merge"
)

// AuditEntry is one immutable record of a merge operation: who did it,
// which issue absorbed which duplicates, and the request it came from.
type AuditEntry struct {
	ID                string          `json:"id" db:"id"`
	Action            AuditAction     `json:"action" db:"action"`
	ActorID           string          `json:"actor_id" db:"actor_id"`
	MasterIssueID     string          `json:"master_issue_id" db:"master_issue_id"`
	DuplicateIssueIDs pq.StringArray  `json:"duplicate_issue_ids" db:"duplicate_issue_ids"`
	MergeNotes        *string         `json:"merge_notes,omitempty" db:"merge_notes"`
	Metadata          json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
}
