package models

import "time"

// NotificationType represents the kind of notification.
type NotificationType string

const (
	NotificationIssueMerged NotificationType = "issue_merged"
)

// Notification is an in-app notification row for a user. Delivery
// beyond storage (email, push) is handled outside this service.
type Notification struct {
	ID            string           `json:"id" db:"id"`
	UserID        string           `json:"user_id" db:"user_id"`
	Type          NotificationType `json:"type" db:"type"`
	Title         string           `json:"title" db:"title"`
	Message       string           `json:"message" db:"message"`
	ReferenceID   *string          `json:"reference_id,omitempty" db:"reference_id"`
	ReferenceType string           `json:"reference_type" db:"reference_type"`
	Read          bool             `json:"read" db:"read"`
	CreatedAt     time.Time        `json:"created_at" db:"created_at"`
}
