// Package presence tracks which users are online. Each heartbeat stores the
// user in a Redis sorted set scored by the heartbeat time; anyone whose last
// heartbeat is older than the TTL counts as offline and is pruned lazily.
package presence

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"agency-chat/internal/clock"
	myMiddleware "agency-chat/internal/middleware"

	"github.com/redis/go-redis/v9"
)

const onlineKey = "presence:online"

type Tracker struct {
	redis *redis.Client
	ttl   time.Duration
	clock clock.Clock
}

func NewTracker(rdb *redis.Client, ttl time.Duration, clk clock.Clock) *Tracker {
	return &Tracker{redis: rdb, ttl: ttl, clock: clk}
}

// Touch records a heartbeat for the user.
func (t *Tracker) Touch(ctx context.Context, userID string) error {
	now := t.clock.Now()
	return t.redis.ZAdd(ctx, onlineKey, redis.Z{Score: float64(now.UnixMilli()), Member: userID}).Err()
}

// Leave removes the user immediately.
func (t *Tracker) Leave(ctx context.Context, userID string) error {
	return t.redis.ZRem(ctx, onlineKey, userID).Err()
}

// Online returns the ids of users with a heartbeat inside the TTL window.
func (t *Tracker) Online(ctx context.Context) ([]string, error) {
	cutoff := strconv.FormatInt(t.clock.Now().Add(-t.ttl).UnixMilli(), 10)

	pipe := t.redis.TxPipeline()
	pipe.ZRemRangeByScore(ctx, onlineKey, "-inf", "("+cutoff)
	ids := pipe.ZRangeByScore(ctx, onlineKey, &redis.ZRangeBy{Min: cutoff, Max: "+inf"})
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	return ids.Val(), nil
}

type Handler struct {
	tracker *Tracker
}

func NewHandler(t *Tracker) *Handler {
	return &Handler{tracker: t}
}

// Heartbeat handles POST /api/presence.
func (h *Handler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	actor, ok := myMiddleware.ActorFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if err := h.tracker.Touch(r.Context(), actor.ID); err != nil {
		http.Error(w, "presence unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Leave handles DELETE /api/presence.
func (h *Handler) Leave(w http.ResponseWriter, r *http.Request) {
	actor, ok := myMiddleware.ActorFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if err := h.tracker.Leave(r.Context(), actor.ID); err != nil {
		http.Error(w, "presence unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// List handles GET /api/presence.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ids, err := h.tracker.Online(r.Context())
	if err != nil {
		http.Error(w, "presence unavailable", http.StatusServiceUnavailable)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ids)
}
