package merging

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostelops/warden/pkg/database"
	"github.com/hostelops/warden/pkg/models"
)

// fakeTx satisfies database.Tx; reads and writes never touch it directly.
type fakeTx struct {
	committed  bool
	rolledBack bool
	commitErr  error
}

func (t *fakeTx) IsOpen() bool { return !t.committed && !t.rolledBack }

func (t *fakeTx) Commit(context.Context) error {
	if t.commitErr != nil {
		return t.commitErr
	}
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	if t.IsOpen() {
		t.rolledBack = true
	}
	return nil
}

func (t *fakeTx) ExecContext(context.Context, string, ...any) (sql.Result, error) {
	return nil, nil
}
func (t *fakeTx) GetContext(context.Context, any, string, ...any) error    { return nil }
func (t *fakeTx) SelectContext(context.Context, any, string, ...any) error { return nil }

// fakeStore stages merge writes and applies them only on commit, so
// tests can assert nothing leaks out of a failed merge.
type fakeStore struct {
	issues map[string]*models.Issue
	tx     *fakeTx

	staged []func()

	beginErr  error
	closeErr  error
	appendErr error

	closedAffected *int64 // overrides the natural affected count
}

func newFakeStore(issues ...*models.Issue) *fakeStore {
	s := &fakeStore{issues: map[string]*models.Issue{}, tx: &fakeTx{}}
	for _, issue := range issues {
		s.issues[issue.ID] = issue
	}
	return s
}

func (s *fakeStore) GetTx(ctx context.Context, _ *sql.TxOptions) (context.Context, database.Tx, error) {
	if s.beginErr != nil {
		return ctx, nil, s.beginErr
	}
	return ctx, s.tx, nil
}

func (s *fakeStore) GetByID(_ context.Context, id string) (*models.Issue, error) {
	issue, ok := s.issues[id]
	if !ok {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "issue not found")
	}
	copied := *issue
	return &copied, nil
}

func (s *fakeStore) GetByIDs(_ context.Context, ids []string) ([]models.Issue, error) {
	var found []models.Issue
	for _, id := range ids {
		if issue, ok := s.issues[id]; ok {
			found = append(found, *issue)
		}
	}
	return found, nil
}

func (s *fakeStore) CloseDuplicates(_ context.Context, masterID string, duplicateIDs []string, annotation string, resolvedAt time.Time) (int64, error) {
	if s.closeErr != nil {
		return 0, s.closeErr
	}
	var affected int64
	for _, id := range duplicateIDs {
		issue, ok := s.issues[id]
		if !ok || issue.IsMerged() {
			continue
		}
		affected++
		id := id
		s.staged = append(s.staged, func() {
			target := s.issues[id]
			target.Status = models.StatusClosed
			target.MergedInto = &masterID
			target.DuplicateOfNotes = &annotation
			if target.Notes != "" {
				target.Notes += "\n"
			}
			target.Notes += annotation
			if target.ResolvedAt == nil {
				target.ResolvedAt = &resolvedAt
			}
		})
	}
	if s.closedAffected != nil {
		return *s.closedAffected, nil
	}
	return affected, nil
}

func (s *fakeStore) AppendNote(_ context.Context, issueID, note string) (*models.Issue, error) {
	if s.appendErr != nil {
		return nil, s.appendErr
	}
	s.staged = append(s.staged, func() {
		issue := s.issues[issueID]
		if issue.Notes != "" {
			issue.Notes += "\n"
		}
		issue.Notes += note
	})
	updated := *s.issues[issueID]
	if updated.Notes != "" {
		updated.Notes += "\n"
	}
	updated.Notes += note
	return &updated, nil
}

// apply flushes staged writes, mimicking a committed transaction.
func (s *fakeStore) apply() {
	for _, write := range s.staged {
		write()
	}
	s.staged = nil
}

type fakeAuditor struct {
	entries []*models.AuditEntry
	err     error
}

func (a *fakeAuditor) Record(_ context.Context, entry *models.AuditEntry) error {
	if a.err != nil {
		return a.err
	}
	a.entries = append(a.entries, entry)
	return nil
}

type fakeNotifier struct {
	notifications []models.Notification
}

func (n *fakeNotifier) NotifyMany(_ context.Context, notifications []models.Notification) error {
	n.notifications = append(n.notifications, notifications...)
	return nil
}

type fakeEmitter struct {
	masterID     string
	duplicateIDs []string
	calls        int
}

func (e *fakeEmitter) EmitIssuesMerged(_ context.Context, masterID string, duplicateIDs []string, _ string) error {
	e.calls++
	e.masterID = masterID
	e.duplicateIDs = duplicateIDs
	return nil
}

type fakeInvalidator struct {
	issueIDs []string
}

func (i *fakeInvalidator) InvalidateDuplicates(_ context.Context, issueIDs ...string) {
	i.issueIDs = append(i.issueIDs, issueIDs...)
}

type fakeMetrics struct {
	mergedCount int
}

func (m *fakeMetrics) ObserveMerge(count int) { m.mergedCount += count }

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func issueFixture(id, title, reportedBy string) *models.Issue {
	return &models.Issue{
		ID:         id,
		Title:      title,
		Category:   models.CategoryMaintenance,
		Priority:   models.PriorityMedium,
		Status:     models.StatusPending,
		ReportedBy: reportedBy,
		CreatedAt:  time.Now(),
	}
}

func assertStatus(t *testing.T, err error, status int) {
	t.Helper()
	require.Error(t, err)
	require.True(t, httperror.IsHTTPError(err))
	assert.Equal(t, status, httperror.GetStatusCode(err))
}

func TestExecutor_Merge_Success(t *testing.T) {
	master := issueFixture("master", "Leaking tap in room 204", "alice")
	dup1 := issueFixture("dup-1", "Tap leaking, room 204", "bob")
	dup2 := issueFixture("dup-2", "Water dripping in 204", "carol")

	store := newFakeStore(master, dup1, dup2)
	auditor := &fakeAuditor{}
	notifier := &fakeNotifier{}
	emitter := &fakeEmitter{}
	invalidator := &fakeInvalidator{}
	metrics := &fakeMetrics{}

	executor := NewExecutor(store, auditor, notifier, emitter, invalidator, metrics, testLogger())

	req := &models.MergeIssuesRequest{
		MasterIssueID:     "master",
		DuplicateIssueIDs: []string{"dup-1", "dup-2"},
		MergeNotes:        "same leak reported three times",
	}

	result, err := executor.Merge(context.Background(), req, models.RequestMetadata{RequestID: "req-1"})
	require.NoError(t, err)
	store.apply()

	assert.Equal(t, 2, result.MergedCount)
	assert.Equal(t, []string{"dup-1", "dup-2"}, result.MergedIssueIDs)
	require.NotNil(t, result.MasterIssue)
	assert.Contains(t, result.MasterIssue.Notes, "Merged 2 duplicate issue(s)")
	assert.Contains(t, result.MasterIssue.Notes, "same leak reported three times")

	assert.True(t, store.tx.committed)
	assert.False(t, store.tx.rolledBack)

	for _, id := range []string{"dup-1", "dup-2"} {
		merged := store.issues[id]
		assert.Equal(t, models.StatusClosed, merged.Status)
		require.NotNil(t, merged.MergedInto)
		assert.Equal(t, "master", *merged.MergedInto)
		require.NotNil(t, merged.DuplicateOfNotes)
		assert.Contains(t, *merged.DuplicateOfNotes, "Merged into issue master")
		assert.Contains(t, merged.Notes, "Merged into issue master")
		assert.NotNil(t, merged.ResolvedAt)
	}

	require.Len(t, auditor.entries, 1)
	entry := auditor.entries[0]
	assert.Equal(t, models.AuditActionIssueMerge, entry.Action)
	assert.Equal(t, "master", entry.MasterIssueID)
	assert.Equal(t, []string{"dup-1", "dup-2"}, []string(entry.DuplicateIssueIDs))

	assert.Len(t, notifier.notifications, 2)
	assert.Equal(t, 1, emitter.calls)
	assert.Equal(t, "master", emitter.masterID)
	assert.ElementsMatch(t, []string{"master", "dup-1", "dup-2"}, invalidator.issueIDs)
	assert.Equal(t, 2, metrics.mergedCount)
}

func TestExecutor_Merge_EmptyDuplicateSet(t *testing.T) {
	store := newFakeStore(issueFixture("master", "Anything", "alice"))
	auditor := &fakeAuditor{}
	emitter := &fakeEmitter{}
	executor := NewExecutor(store, auditor, nil, emitter, nil, nil, testLogger())

	req := &models.MergeIssuesRequest{
		MasterIssueID:     "master",
		DuplicateIssueIDs: nil,
	}

	_, err := executor.Merge(context.Background(), req, models.RequestMetadata{})
	assertStatus(t, err, http.StatusBadRequest)

	assert.False(t, store.tx.committed)
	assert.Empty(t, store.issues["master"].Notes)
	assert.Empty(t, auditor.entries)
	assert.Equal(t, 0, emitter.calls)
}

func TestExecutor_Merge_PreservesExistingResolution(t *testing.T) {
	resolvedAt := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	dup := issueFixture("dup-1", "Tap leaking, room 204", "bob")
	dup.Status = models.StatusResolved
	dup.ResolvedAt = &resolvedAt
	dup.Notes = "plumber visited"

	store := newFakeStore(issueFixture("master", "Leaking tap in room 204", "alice"), dup)
	executor := NewExecutor(store, nil, nil, nil, nil, nil, testLogger())

	req := &models.MergeIssuesRequest{
		MasterIssueID:     "master",
		DuplicateIssueIDs: []string{"dup-1"},
	}

	_, err := executor.Merge(context.Background(), req, models.RequestMetadata{})
	require.NoError(t, err)
	store.apply()

	merged := store.issues["dup-1"]
	require.NotNil(t, merged.ResolvedAt)
	assert.Equal(t, resolvedAt, *merged.ResolvedAt)
	assert.True(t, strings.HasPrefix(merged.Notes, "plumber visited\n"))
	assert.Contains(t, merged.Notes, "Merged into issue master")
}

func TestExecutor_Merge_MasterInDuplicates(t *testing.T) {
	store := newFakeStore(issueFixture("master", "Anything", "alice"))
	executor := NewExecutor(store, nil, nil, nil, nil, nil, testLogger())

	req := &models.MergeIssuesRequest{
		MasterIssueID:     "master",
		DuplicateIssueIDs: []string{"master"},
	}

	_, err := executor.Merge(context.Background(), req, models.RequestMetadata{})
	assertStatus(t, err, http.StatusBadRequest)
}

func TestExecutor_Merge_RepeatedDuplicateID(t *testing.T) {
	store := newFakeStore(
		issueFixture("master", "Anything", "alice"),
		issueFixture("dup-1", "Anything", "bob"),
	)
	executor := NewExecutor(store, nil, nil, nil, nil, nil, testLogger())

	req := &models.MergeIssuesRequest{
		MasterIssueID:     "master",
		DuplicateIssueIDs: []string{"dup-1", "dup-1"},
	}

	_, err := executor.Merge(context.Background(), req, models.RequestMetadata{})
	assertStatus(t, err, http.StatusBadRequest)
	assert.Nil(t, store.issues["dup-1"].MergedInto)
}

func TestExecutor_Merge_MasterNotFound(t *testing.T) {
	store := newFakeStore(issueFixture("dup-1", "Anything", "bob"))
	executor := NewExecutor(store, nil, nil, nil, nil, nil, testLogger())

	req := &models.MergeIssuesRequest{
		MasterIssueID:     "missing",
		DuplicateIssueIDs: []string{"dup-1"},
	}

	_, err := executor.Merge(context.Background(), req, models.RequestMetadata{})
	assertStatus(t, err, http.StatusNotFound)
	assert.True(t, store.tx.rolledBack)
}

func TestExecutor_Merge_MasterAlreadyMerged(t *testing.T) {
	other := "other"
	master := issueFixture("master", "Old report", "alice")
	master.MergedInto = &other

	store := newFakeStore(master, issueFixture("dup-1", "Report", "bob"))
	executor := NewExecutor(store, nil, nil, nil, nil, nil, testLogger())

	req := &models.MergeIssuesRequest{
		MasterIssueID:     "master",
		DuplicateIssueIDs: []string{"dup-1"},
	}

	_, err := executor.Merge(context.Background(), req, models.RequestMetadata{})
	assertStatus(t, err, http.StatusConflict)
}

func TestExecutor_Merge_MissingDuplicateAbortsAll(t *testing.T) {
	master := issueFixture("master", "Leaking tap", "alice")
	dup1 := issueFixture("dup-1", "Tap leak", "bob")

	store := newFakeStore(master, dup1)
	executor := NewExecutor(store, nil, nil, nil, nil, nil, testLogger())

	req := &models.MergeIssuesRequest{
		MasterIssueID:     "master",
		DuplicateIssueIDs: []string{"dup-1", "ghost"},
	}

	_, err := executor.Merge(context.Background(), req, models.RequestMetadata{})
	assertStatus(t, err, http.StatusNotFound)
	assert.Contains(t, err.Error(), "ghost")

	store.apply()
	assert.Nil(t, store.issues["dup-1"].MergedInto, "no partial merge on failure")
	assert.False(t, store.tx.committed)
	assert.True(t, store.tx.rolledBack)
}

func TestExecutor_Merge_AlreadyMergedDuplicateAborts(t *testing.T) {
	elsewhere := "elsewhere"
	master := issueFixture("master", "Leaking tap", "alice")
	dup1 := issueFixture("dup-1", "Tap leak", "bob")
	dup2 := issueFixture("dup-2", "Leak again", "carol")
	dup2.MergedInto = &elsewhere

	store := newFakeStore(master, dup1, dup2)
	executor := NewExecutor(store, nil, nil, nil, nil, nil, testLogger())

	req := &models.MergeIssuesRequest{
		MasterIssueID:     "master",
		DuplicateIssueIDs: []string{"dup-1", "dup-2"},
	}

	_, err := executor.Merge(context.Background(), req, models.RequestMetadata{})
	assertStatus(t, err, http.StatusConflict)
	assert.True(t, store.tx.rolledBack)
}

func TestExecutor_Merge_ConcurrentMergeDetected(t *testing.T) {
	master := issueFixture("master", "Leaking tap", "alice")
	dup1 := issueFixture("dup-1", "Tap leak", "bob")

	store := newFakeStore(master, dup1)
	affected := int64(0) // the row was merged out from under us
	store.closedAffected = &affected

	executor := NewExecutor(store, nil, nil, nil, nil, nil, testLogger())

	req := &models.MergeIssuesRequest{
		MasterIssueID:     "master",
		DuplicateIssueIDs: []string{"dup-1"},
	}

	_, err := executor.Merge(context.Background(), req, models.RequestMetadata{})
	assertStatus(t, err, http.StatusConflict)
	assert.True(t, store.tx.rolledBack)
	assert.False(t, store.tx.committed)
}

func TestExecutor_Merge_AppendNoteFailureRollsBack(t *testing.T) {
	master := issueFixture("master", "Leaking tap", "alice")
	dup1 := issueFixture("dup-1", "Tap leak", "bob")

	store := newFakeStore(master, dup1)
	store.appendErr = httperror.NewHTTPError(http.StatusInternalServerError, "failed to append note")

	auditor := &fakeAuditor{}
	executor := NewExecutor(store, auditor, nil, nil, nil, nil, testLogger())

	req := &models.MergeIssuesRequest{
		MasterIssueID:     "master",
		DuplicateIssueIDs: []string{"dup-1"},
	}

	_, err := executor.Merge(context.Background(), req, models.RequestMetadata{})
	assertStatus(t, err, http.StatusInternalServerError)
	assert.True(t, store.tx.rolledBack)
	assert.Empty(t, auditor.entries, "no audit entry for a failed merge")
}

func TestExecutor_Merge_CommitFailure(t *testing.T) {
	master := issueFixture("master", "Leaking tap", "alice")
	dup1 := issueFixture("dup-1", "Tap leak", "bob")

	store := newFakeStore(master, dup1)
	store.tx.commitErr = errors.New("deadlock detected")

	emitter := &fakeEmitter{}
	executor := NewExecutor(store, nil, nil, emitter, nil, nil, testLogger())

	req := &models.MergeIssuesRequest{
		MasterIssueID:     "master",
		DuplicateIssueIDs: []string{"dup-1"},
	}

	_, err := executor.Merge(context.Background(), req, models.RequestMetadata{})
	assertStatus(t, err, http.StatusInternalServerError)
	assert.Equal(t, 0, emitter.calls, "no events for an uncommitted merge")
}

func TestExecutor_Merge_NotificationsSkipActorAndDedupe(t *testing.T) {
	master := issueFixture("master", "Leaking tap", "alice")
	dup1 := issueFixture("dup-1", "Tap leak", "bob")
	dup2 := issueFixture("dup-2", "Leak again", "bob")   // same reporter as dup-1
	dup3 := issueFixture("dup-3", "Still leaking", "eve") // eve is the actor

	notifications := mergeNotifications(master, []models.Issue{*dup1, *dup2, *dup3}, "eve")

	require.Len(t, notifications, 1)
	assert.Equal(t, "bob", notifications[0].UserID)
	assert.Equal(t, models.NotificationIssueMerged, notifications[0].Type)
	require.NotNil(t, notifications[0].ReferenceID)
	assert.Equal(t, "master", *notifications[0].ReferenceID)
}

func TestExecutor_Merge_SideEffectFailureDoesNotFailMerge(t *testing.T) {
	master := issueFixture("master", "Leaking tap", "alice")
	dup1 := issueFixture("dup-1", "Tap leak", "bob")

	store := newFakeStore(master, dup1)
	auditor := &fakeAuditor{err: errors.New("audit table unavailable")}
	executor := NewExecutor(store, auditor, nil, nil, nil, nil, testLogger())

	req := &models.MergeIssuesRequest{
		MasterIssueID:     "master",
		DuplicateIssueIDs: []string{"dup-1"},
	}

	result, err := executor.Merge(context.Background(), req, models.RequestMetadata{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.MergedCount)
	assert.True(t, store.tx.committed)
}

func TestMergeAnnotation(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	plain := mergeAnnotation("master-1", "admin", "", at)
	assert.Equal(t, "Merged into issue master-1 by admin at 2026-03-14T09:30:00Z", plain)

	noted := mergeAnnotation("master-1", "admin", "same leak", at)
	assert.True(t, strings.HasSuffix(noted, ": same leak"))
}
