package matching

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/hostelops/warden/pkg/metrics"
	"github.com/hostelops/warden/pkg/models"
	"github.com/hostelops/warden/pkg/tracing"
)

// Reader is the issue lookup surface the finder depends on. Errors
// carry their HTTP status; a missing issue is a 404, not a nil result.
type Reader interface {
	GetByID(ctx context.Context, id string) (*models.Issue, error)
	ListCandidates(ctx context.Context, query models.CandidateQuery) ([]models.Issue, error)
}

// ResultCache stores ranked duplicate results keyed by issue and limit.
// Misses and cache failures are both reported as a false hit; the
// finder never fails a request over a cache problem.
type ResultCache interface {
	GetDuplicates(ctx context.Context, issueID string, limit int) (*models.DuplicateListResponse, bool)
	SetDuplicates(ctx context.Context, result *models.DuplicateListResponse)
}

// FinderConfig bounds the duplicate search.
type FinderConfig struct {
	DefaultLimit  int           // candidates returned when the caller gives no limit
	MaxLimit      int           // hard ceiling on the caller's limit
	MinScore      float64       // candidates scoring below this are dropped
	CandidateSpan time.Duration // how far back to pull candidates; 0 means unbounded
}

// DefaultFinderConfig returns the standard search bounds.
func DefaultFinderConfig() FinderConfig {
	return FinderConfig{
		DefaultLimit: 5,
		MaxLimit:     50,
		MinScore:     0.0,
	}
}

// Finder ranks potential duplicates of a target issue.
type Finder struct {
	reader Reader
	scorer *Scorer
	cache  ResultCache
	config FinderConfig
	logger ectologger.Logger
}

// NewFinder creates a Finder. cache may be nil to disable result caching.
func NewFinder(reader Reader, scorer *Scorer, cache ResultCache, config FinderConfig, logger ectologger.Logger) *Finder {
	if config.DefaultLimit <= 0 {
		config.DefaultLimit = DefaultFinderConfig().DefaultLimit
	}
	if config.MaxLimit <= 0 {
		config.MaxLimit = DefaultFinderConfig().MaxLimit
	}
	return &Finder{
		reader: reader,
		scorer: scorer,
		cache:  cache,
		config: config,
		logger: logger,
	}
}

// FindDuplicates scores every unmerged issue in the target's category
// and returns the top candidates in descending score order. A limit of 0
// applies the configured default; limits above the ceiling are clamped.
// Merged issues are excluded from the candidate pool, and a merged
// target is rejected outright.
func (f *Finder) FindDuplicates(ctx context.Context, issueID string, limit int) (*models.DuplicateListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Finder.FindDuplicates")
	defer span.End()

	start := time.Now()

	if limit <= 0 {
		limit = f.config.DefaultLimit
	}
	if limit > f.config.MaxLimit {
		limit = f.config.MaxLimit
	}

	if f.cache != nil {
		if cached, ok := f.cache.GetDuplicates(ctx, issueID, limit); ok {
			metrics.RecordDuplicateSearch("hit", time.Since(start).Seconds())
			return cached, nil
		}
	}

	target, err := f.reader.GetByID(ctx, issueID)
	if err != nil {
		return nil, err
	}

	if target.IsMerged() {
		return nil, httperror.NewHTTPError(http.StatusConflict, "issue has been merged into another issue")
	}

	query := models.CandidateQuery{
		Category:  target.Category,
		ExcludeID: target.ID,
	}
	if f.config.CandidateSpan > 0 {
		since := target.CreatedAt.Add(-f.config.CandidateSpan)
		query.Since = &since
	}

	pool, err := f.reader.ListCandidates(ctx, query)
	if err != nil {
		return nil, err
	}

	candidates := make([]models.DuplicateCandidate, 0, len(pool))
	for i := range pool {
		score := f.scorer.Score(target, &pool[i])
		if score < f.config.MinScore {
			continue
		}
		candidates = append(candidates, models.DuplicateCandidate{
			Issue: pool[i],
			Score: score,
		})
	}

	// Highest score first; newer issue wins a tie so the freshest
	// report surfaces when scores are equal.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Issue.CreatedAt.After(candidates[j].Issue.CreatedAt)
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	result := &models.DuplicateListResponse{
		IssueID:    target.ID,
		Candidates: candidates,
		Limit:      limit,
	}

	if f.cache != nil {
		f.cache.SetDuplicates(ctx, result)
	}

	f.logger.WithContext(ctx).WithFields(map[string]any{
		"issue_id":   issueID,
		"pool_size":  len(pool),
		"candidates": len(candidates),
	}).Debug("Scored duplicate candidates")

	metrics.RecordDuplicateSearch("miss", time.Since(start).Seconds())
	metrics.RecordCandidatesScored(len(pool))

	return result, nil
}
