package kafka

import (
	"context"
	"encoding/json"

	"github.com/hostelops/warden/pkg/models"
)

// Publisher is the producer surface the emitter depends on.
type Publisher interface {
	PublishIssueEvent(ctx context.Context, event *IssueEvent) error
}

// Emitter translates issue lifecycle changes into events.
type Emitter struct {
	publisher Publisher
}

// NewEmitter creates an Emitter backed by the given publisher.
func NewEmitter(publisher Publisher) *Emitter {
	return &Emitter{publisher: publisher}
}

// EmitIssueCreated publishes an issue.created event carrying the full issue.
func (e *Emitter) EmitIssueCreated(ctx context.Context, issue *models.Issue) error {
	data, err := json.Marshal(issue)
	if err != nil {
		return err
	}
	return e.publisher.PublishIssueEvent(ctx, &IssueEvent{
		EventType: EventIssueCreated,
		IssueID:   issue.ID,
		Category:  string(issue.Category),
		Status:    string(issue.Status),
		ActorID:   issue.ReportedBy,
		Data:      data,
	})
}

// EmitIssueStatusChanged publishes an issue.status_changed event.
func (e *Emitter) EmitIssueStatusChanged(ctx context.Context, issue *models.Issue, actorID string) error {
	return e.publisher.PublishIssueEvent(ctx, &IssueEvent{
		EventType: EventIssueStatusChanged,
		IssueID:   issue.ID,
		Category:  string(issue.Category),
		Status:    string(issue.Status),
		ActorID:   actorID,
	})
}

// EmitIssuesMerged publishes an issue.merged event keyed by the master issue.
func (e *Emitter) EmitIssuesMerged(ctx context.Context, masterID string, duplicateIDs []string, actorID string) error {
	return e.publisher.PublishIssueEvent(ctx, &IssueEvent{
		EventType:      EventIssuesMerged,
		IssueID:        masterID,
		ActorID:        actorID,
		MergedIssueIDs: duplicateIDs,
	})
}
