package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Vasu1712/buddychat/internal/api/respond"
	"github.com/Vasu1712/buddychat/internal/apperrors"
	"github.com/Vasu1712/buddychat/internal/auth"
)

const visitorTTL = 5 * time.Minute

// UserRateLimiter throttles requests per authenticated user.
type UserRateLimiter struct {
	visitors sync.Map
	rps      rate.Limit
	burst    int
	log      *zap.SugaredLogger
	now      func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	mu       sync.Mutex
	lastSeen time.Time
}

func NewUserRateLimiter(perMinute, burst int, log *zap.SugaredLogger) *UserRateLimiter {
	return &UserRateLimiter{
		rps:   rate.Limit(float64(perMinute) / 60.0),
		burst: burst,
		log:   log,
		now:   time.Now,
	}
}

func (l *UserRateLimiter) limiter(userID string) *rate.Limiter {
	now := l.now()
	v, _ := l.visitors.LoadOrStore(userID, &visitor{limiter: rate.NewLimiter(l.rps, l.burst)})
	vi := v.(*visitor)
	vi.mu.Lock()
	vi.lastSeen = now
	vi.mu.Unlock()
	return vi.limiter
}

// Allow reports whether userID may make another request now.
func (l *UserRateLimiter) Allow(userID string) bool {
	return l.limiter(userID).AllowN(l.now(), 1)
}

// Cleanup forgets users idle for longer than visitorTTL, once a minute,
// until ctx ends.
func (l *UserRateLimiter) Cleanup(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *UserRateLimiter) sweep() {
	cutoff := l.now().Add(-visitorTTL)
	l.visitors.Range(func(k, v any) bool {
		vi := v.(*visitor)
		vi.mu.Lock()
		idle := vi.lastSeen.Before(cutoff)
		vi.mu.Unlock()
		if idle {
			l.visitors.Delete(k)
		}
		return true
	})
}

// Handler rejects requests over the limit with 429. It must run after Auth.
func (l *UserRateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := auth.UserID(r.Context())
		if err != nil {
			respond.Error(w, err)
			return
		}
		if !l.Allow(userID) {
			l.log.Warnw("rate limit exceeded", "user", userID, "path", r.URL.Path)
			respond.Error(w, apperrors.New(apperrors.CodeRateLimited, "rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
