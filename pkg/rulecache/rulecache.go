// Package rulecache keeps the active rules of each workspace trigger in Redis.
package rulecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/agencyops/taskflow/pkg/models"
	"github.com/agencyops/taskflow/pkg/persistence"
	redis "github.com/redis/go-redis/v9"
)

const (
	DefaultTTL       = 5 * time.Minute
	DefaultKeyPrefix = "taskflow:rules"
)

// Repository is a read-through cache in front of a persistence.RuleRepository.
// Redis failures degrade to the underlying repository.
type Repository struct {
	next   persistence.RuleRepository
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

func New(client redis.UniversalClient, next persistence.RuleRepository, ttl time.Duration, logger *slog.Logger) *Repository {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Repository{
		next:   next,
		client: client,
		ttl:    ttl,
		prefix: DefaultKeyPrefix,
		logger: logger.With("module", "rulecache"),
	}
}

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	err = client.Ping(ctx).Err()
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

func (r *Repository) generationKey(workspaceID string) string {
	return r.prefix + ":" + workspaceID + ":gen"
}

func (r *Repository) key(workspaceID string, trigger models.TriggerEventType, generation int64) string {
	return r.prefix + ":" + workspaceID + ":" + string(trigger) + ":" + strconv.FormatInt(generation, 10)
}

// generation returns the workspace's current cache generation. Every save bumps it, so
// a fill that read the repository before the save lands under a key nobody reads again.
func (r *Repository) generation(ctx context.Context, workspaceID string) (int64, error) {
	generation, err := r.client.Get(ctx, r.generationKey(workspaceID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}

	return generation, err
}

// Save writes through and moves the rule's workspace to a new cache generation,
// since an update may change the rule's trigger or activity.
func (r *Repository) Save(ctx context.Context, rule *models.AutomationRule) error {
	err := r.next.Save(ctx, rule)
	if err != nil {
		return err
	}

	r.Invalidate(ctx, rule.WorkspaceID)

	return nil
}

func (r *Repository) GetByID(ctx context.Context, workspaceID, id string) (*models.AutomationRule, error) {
	return r.next.GetByID(ctx, workspaceID, id)
}

func (r *Repository) List(ctx context.Context, workspaceID string) ([]*models.AutomationRule, error) {
	return r.next.List(ctx, workspaceID)
}

func (r *Repository) ListActive(ctx context.Context, workspaceID string, trigger models.TriggerEventType) ([]*models.AutomationRule, error) {
	generation, err := r.generation(ctx, workspaceID)
	if err != nil {
		r.logger.WarnContext(ctx, "rule cache generation read failed", "workspace_id", workspaceID, "error", err)

		return r.next.ListActive(ctx, workspaceID, trigger)
	}

	key := r.key(workspaceID, trigger, generation)

	payload, err := r.client.Get(ctx, key).Bytes()

	switch {
	case err == nil:
		var rules []*models.AutomationRule

		err = json.Unmarshal(payload, &rules)
		if err == nil {
			return rules, nil
		}

		r.logger.WarnContext(ctx, "discarding undecodable cache entry", "key", key, "error", err)
	case errors.Is(err, redis.Nil):
	default:
		r.logger.WarnContext(ctx, "rule cache read failed", "key", key, "error", err)
	}

	rules, err := r.next.ListActive(ctx, workspaceID, trigger)
	if err != nil {
		return nil, err
	}

	payload, err = json.Marshal(rules)
	if err != nil {
		return rules, nil
	}

	err = r.client.Set(ctx, key, payload, r.ttl).Err()
	if err != nil {
		r.logger.WarnContext(ctx, "rule cache write failed", "key", key, "error", err)
	}

	return rules, nil
}

// Invalidate bumps the workspace generation. Entries of older generations are never read
// again and expire with their TTL.
func (r *Repository) Invalidate(ctx context.Context, workspaceID string) {
	err := r.client.Incr(ctx, r.generationKey(workspaceID)).Err()
	if err != nil {
		r.logger.WarnContext(ctx, "rule cache invalidation failed", "workspace_id", workspaceID, "error", err)
	}
}
