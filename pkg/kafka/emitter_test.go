package kafka

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostelops/warden/pkg/models"
)

type capturePublisher struct {
	events []*IssueEvent
}

func (c *capturePublisher) PublishIssueEvent(_ context.Context, event *IssueEvent) error {
	c.events = append(c.events, event)
	return nil
}

func TestEmitter_EmitIssueCreated(t *testing.T) {
	publisher := &capturePublisher{}
	emitter := NewEmitter(publisher)

	issue := &models.Issue{
		ID:         "issue-1",
		Title:      "Leaking tap in room 204",
		Category:   models.CategoryMaintenance,
		Status:     models.StatusPending,
		ReportedBy: "alice",
	}

	require.NoError(t, emitter.EmitIssueCreated(context.Background(), issue))
	require.Len(t, publisher.events, 1)

	event := publisher.events[0]
	assert.Equal(t, EventIssueCreated, event.EventType)
	assert.Equal(t, "issue-1", event.IssueID)
	assert.Equal(t, "maintenance", event.Category)
	assert.Equal(t, "alice", event.ActorID)

	var payload models.Issue
	require.NoError(t, json.Unmarshal(event.Data, &payload))
	assert.Equal(t, issue.Title, payload.Title)
}

func TestEmitter_EmitIssueStatusChanged(t *testing.T) {
	publisher := &capturePublisher{}
	emitter := NewEmitter(publisher)

	issue := &models.Issue{
		ID:       "issue-1",
		Category: models.CategoryFood,
		Status:   models.StatusResolved,
	}

	require.NoError(t, emitter.EmitIssueStatusChanged(context.Background(), issue, "staff-1"))
	require.Len(t, publisher.events, 1)

	event := publisher.events[0]
	assert.Equal(t, EventIssueStatusChanged, event.EventType)
	assert.Equal(t, "resolved", event.Status)
	assert.Equal(t, "staff-1", event.ActorID)
	assert.Nil(t, event.Data)
}

func TestEmitter_EmitIssuesMerged(t *testing.T) {
	publisher := &capturePublisher{}
	emitter := NewEmitter(publisher)

	require.NoError(t, emitter.EmitIssuesMerged(context.Background(), "master", []string{"dup-1", "dup-2"}, "admin"))
	require.Len(t, publisher.events, 1)

	event := publisher.events[0]
	assert.Equal(t, EventIssuesMerged, event.EventType)
	assert.Equal(t, "master", event.IssueID)
	assert.Equal(t, []string{"dup-1", "dup-2"}, event.MergedIssueIDs)
	assert.Equal(t, "admin", event.ActorID)
}
