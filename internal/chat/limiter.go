package chat

import (
	"net/http"
	"sync"

	myMiddleware "agency-chat/internal/middleware"

	"golang.org/x/time/rate"
)

// Limiter hands out one token bucket per actor.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func NewLimiter(perSecond float64, burst int) *Limiter {
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

func (l *Limiter) Allow(actorID string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[actorID]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[actorID] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// Middleware rejects requests from actors who exceeded their budget.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := myMiddleware.ActorFrom(r.Context())
		if ok && !l.Allow(actor.ID) {
			http.Error(w, "Too many messages", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
