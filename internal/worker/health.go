package worker

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/arvancloud/codearena/internal/blob"
	"github.com/arvancloud/codearena/internal/runtime/docker"
	"github.com/arvancloud/codearena/internal/store"
)

// HealthChecker aggregates the liveness/readiness checks spec.md §4.5
// requires: Redis ping, DB SELECT 1, and Runtime ping for health;
// readiness additionally requires the blob store be reachable.
type HealthChecker struct {
	redis     *redis.Client
	db        *store.DB
	runtime   *docker.Client
	blobStore blob.Store
}

// NewHealthChecker wires the four dependencies health/readiness probe.
func NewHealthChecker(redis *redis.Client, db *store.DB, rt *docker.Client, bs blob.Store) *HealthChecker {
	return &HealthChecker{redis: redis, db: db, runtime: rt, blobStore: bs}
}

// Health reports liveness: Redis, DB, and Docker must all respond.
func (h *HealthChecker) Health(ctx context.Context) error {
	if err := h.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis unreachable: %w", err)
	}
	if err := h.db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}
	if err := h.runtime.Ping(ctx); err != nil {
		return fmt.Errorf("runtime unreachable: %w", err)
	}
	return nil
}

// Ready reports readiness: liveness plus the blob store.
func (h *HealthChecker) Ready(ctx context.Context) error {
	if err := h.Health(ctx); err != nil {
		return err
	}
	probeKey := "health/probe"
	if _, err := h.blobStore.Get(ctx, probeKey); err != nil && err != blob.ErrNotFound {
		return fmt.Errorf("blob store unreachable: %w", err)
	}
	return nil
}
