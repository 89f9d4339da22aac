package issue

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostelops/warden/pkg/database"
	"github.com/hostelops/warden/pkg/models"
)

// queryRecorder satisfies database.DB and captures the SQL each
// repository method builds, so query shape can be asserted without a
// live database.
type queryRecorder struct {
	query string
	args  []any
}

func (r *queryRecorder) BeginTxx(context.Context, *sql.TxOptions) (*sqlx.Tx, error) {
	return nil, nil
}
func (r *queryRecorder) Close() error { return nil }

func (r *queryRecorder) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	r.query = query
	r.args = args
	return fakeResult{}, nil
}

func (r *queryRecorder) GetContext(_ context.Context, _ any, query string, args ...any) error {
	r.query = query
	r.args = args
	return nil
}

func (r *queryRecorder) SelectContext(_ context.Context, _ any, query string, args ...any) error {
	r.query = query
	r.args = args
	return nil
}

func (r *queryRecorder) Ping() error { return nil }

func (r *queryRecorder) PingContext(context.Context) error { return nil }

func (r *queryRecorder) SetConnMaxLifetime(time.Duration) {}

func (r *queryRecorder) SetMaxIdleConns(int) {}

func (r *queryRecorder) SetMaxOpenConns(int) {}

func (r *queryRecorder) Unsafe() *sqlx.DB { return nil }

func (r *queryRecorder) GetTx(ctx context.Context, _ *sql.TxOptions) (context.Context, database.Tx, error) {
	return ctx, nil, nil
}

type fakeResult struct{}

func (fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (fakeResult) RowsAffected() (int64, error) { return 0, nil }

func newRecordedRepository() (*Repository, *queryRecorder) {
	recorder := &queryRecorder{}
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewRepository(recorder, logger), recorder
}

func TestListCandidates_PoolFilters(t *testing.T) {
	repo, recorder := newRecordedRepository()

	_, err := repo.ListCandidates(context.Background(), models.CandidateQuery{
		Category:  models.CategoryMaintenance,
		ExcludeID: "target-1",
	})
	require.NoError(t, err)

	idx := strings.Index(recorder.query, "WHERE")
	require.GreaterOrEqual(t, idx, 0)
	where := recorder.query[idx:]

	assert.Contains(t, where, "category =")
	assert.Contains(t, where, "id <>")
	assert.Contains(t, where, "merged_into IS NULL")
	// Closed issues stay in the pool; only merged ones are excluded.
	assert.NotContains(t, where, "status")
	assert.NotContains(t, where, "created_at >=")
}

func TestListCandidates_SinceNarrowsPool(t *testing.T) {
	repo, recorder := newRecordedRepository()

	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := repo.ListCandidates(context.Background(), models.CandidateQuery{
		Category:  models.CategoryMaintenance,
		ExcludeID: "target-1",
		Since:     &since,
	})
	require.NoError(t, err)

	assert.Contains(t, recorder.query, "created_at >=")
	assert.Contains(t, recorder.args, since)
}

func TestCloseDuplicates_WriteSemantics(t *testing.T) {
	repo, recorder := newRecordedRepository()

	_, err := repo.CloseDuplicates(context.Background(), "master-1", []string{"dup-1"}, "annotation", time.Now().UTC())
	require.NoError(t, err)

	// An existing resolution timestamp survives the merge.
	assert.Contains(t, recorder.query, "resolved_at = COALESCE(resolved_at, $5)")
	// The annotation lands in both the rationale field and the note log.
	assert.Contains(t, recorder.query, "duplicate_of_notes = $4")
	assert.Contains(t, recorder.query, `notes = CASE WHEN notes = '' THEN $4 ELSE notes || E'\n' || $4 END`)
	assert.Contains(t, recorder.query, "merged_into IS NULL")
}
