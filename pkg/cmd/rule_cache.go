package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/agencyops/taskflow/pkg/persistence"
	"github.com/agencyops/taskflow/pkg/rulecache"
)

// NewRuleRepository puts a Redis cache in front of repo when redisURL is set.
func NewRuleRepository(
	ctx context.Context,
	logger *slog.Logger,
	repo persistence.RuleRepository,
	redisURL string,
	ttl time.Duration,
) (persistence.RuleRepository, func(), error) {
	if redisURL == "" {
		return repo, func() {}, nil
	}

	client, err := rulecache.Connect(ctx, redisURL)
	if err != nil {
		return nil, nil, err
	}

	logger.InfoContext(ctx, "Rule cache enabled", "ttl", ttl)

	return rulecache.New(client, repo, ttl, logger), func() { _ = client.Close() }, nil
}
