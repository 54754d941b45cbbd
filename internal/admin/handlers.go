// Package admin is the operator-facing surface the sweeper and
// dead-letter queue need: an endpoint to inspect jobs that exhausted
// retries, guarded by a shared secret rather than the Intake API's
// per-user auth since only operators reach it.
package admin

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/arvancloud/codearena/internal/apierr"
	"github.com/arvancloud/codearena/internal/queue/redisqueue"
)

const maxDLQLimit = 200

// Config names the shared secret and optional IP allow-list that gate
// the admin surface.
type Config struct {
	Token    string
	AllowIPs []string
}

// Handlers wires the admin endpoints.
type Handlers struct {
	queue     *redisqueue.Queue
	logger    *zap.Logger
	cfg       Config
	tokenHash []byte
}

// New builds Handlers for one pool's dead-letter queue. The configured
// token is hashed once at startup; the header comparison on every
// request then goes through bcrypt rather than a raw byte compare.
func New(queue *redisqueue.Queue, logger *zap.Logger, cfg Config) *Handlers {
	h := &Handlers{queue: queue, logger: logger, cfg: cfg}
	if cfg.Token != "" {
		if hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Token), bcrypt.DefaultCost); err == nil {
			h.tokenHash = hash
		} else {
			logger.Error("failed to hash admin token, DLQ endpoint will reject all requests", zap.Error(err))
		}
	}
	return h
}

// RequireToken enforces the shared-secret header and, if configured,
// an IP allow-list, ahead of every admin route.
func (h *Handlers) RequireToken(c *fiber.Ctx) error {
	if len(h.cfg.AllowIPs) > 0 && !ipAllowed(c.IP(), h.cfg.AllowIPs) {
		return writeAdminErr(c, apierr.New(apierr.Forbidden, "source IP not permitted"))
	}

	given := c.Get("X-DLQ-Admin-Token")
	if len(h.tokenHash) == 0 || bcrypt.CompareHashAndPassword(h.tokenHash, []byte(given)) != nil {
		return writeAdminErr(c, apierr.New(apierr.Unauthorized, "missing or invalid admin token"))
	}
	return c.Next()
}

func ipAllowed(ip string, allow []string) bool {
	for _, a := range allow {
		if strings.TrimSpace(a) == ip {
			return true
		}
	}
	return false
}

// ListDLQ handles GET /admin/dlq, returning up to limit (default 50,
// capped at 200) dead-letter entries for the pool this Handlers was
// built for.
func (h *Handlers) ListDLQ(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit <= 0 {
		limit = 50
	}
	if limit > maxDLQLimit {
		limit = maxDLQLimit
	}

	entries, err := h.queue.ListDeadLetters(c.Context(), int64(limit))
	if err != nil {
		h.logger.Error("failed to list dead letters", zap.Error(err))
		return writeAdminErr(c, apierr.Wrap(apierr.UnknownError, "failed to list dead letters", err))
	}

	out := make([]fiber.Map, 0, len(entries))
	for _, e := range entries {
		out = append(out, fiber.Map{
			"id":     e.ID,
			"values": e.Values,
		})
	}
	return c.JSON(fiber.Map{"count": len(out), "entries": out})
}

func writeAdminErr(c *fiber.Ctx, err *apierr.Error) error {
	return c.Status(err.HTTPStatus()).JSON(fiber.Map{"success": false, "error": string(err.Code)})
}
