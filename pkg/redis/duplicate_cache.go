package redis

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/redis/go-redis/v9"

	"github.com/hostelops/warden/pkg/models"
)

const duplicateKeyPrefix = "warden:duplicates:"

// DuplicateCache stores ranked duplicate search results. Each issue
// maps to one hash keyed by limit, so invalidation drops every cached
// limit for the issue with a single DEL. Cache failures are logged and
// swallowed; a broken cache degrades to a slower search, never an error.
type DuplicateCache struct {
	client *Client
	ttl    time.Duration
	logger ectologger.Logger
}

// NewDuplicateCache creates a DuplicateCache with the given entry TTL.
func NewDuplicateCache(client *Client, ttl time.Duration, logger ectologger.Logger) *DuplicateCache {
	return &DuplicateCache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// GetDuplicates returns the cached result for the issue and limit, if present.
func (c *DuplicateCache) GetDuplicates(ctx context.Context, issueID string, limit int) (*models.DuplicateListResponse, bool) {
	raw, err := c.client.Redis().HGet(ctx, duplicateKey(issueID), strconv.Itoa(limit)).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"issue_id": issueID,
			}).Warn("failed to read duplicate cache")
		}
		return nil, false
	}

	var result models.DuplicateListResponse
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		c.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"issue_id": issueID,
		}).Warn("failed to decode cached duplicate result")
		return nil, false
	}

	return &result, true
}

// SetDuplicates caches a search result under its issue and limit.
func (c *DuplicateCache) SetDuplicates(ctx context.Context, result *models.DuplicateListResponse) {
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).Warn("failed to encode duplicate result for cache")
		return
	}

	key := duplicateKey(result.IssueID)
	pipe := c.client.Redis().TxPipeline()
	pipe.HSet(ctx, key, strconv.Itoa(result.Limit), data)
	pipe.Expire(ctx, key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"issue_id": result.IssueID,
		}).Warn("failed to write duplicate cache")
	}
}

// InvalidateDuplicates drops all cached results for the given issues.
func (c *DuplicateCache) InvalidateDuplicates(ctx context.Context, issueIDs ...string) {
	if len(issueIDs) == 0 {
		return
	}

	keys := make([]string, len(issueIDs))
	for i, id := range issueIDs {
		keys[i] = duplicateKey(id)
	}

	if err := c.client.Redis().Del(ctx, keys...).Err(); err != nil {
		c.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"issue_count": len(issueIDs),
		}).Warn("failed to invalidate duplicate cache")
	}
}

func duplicateKey(issueID string) string {
	return duplicateKeyPrefix + issueID
}
