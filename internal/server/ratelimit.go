package server

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/54b3r/pdfqa/internal/logging"
)

// Per-client defaults for POST /api/ask when Config leaves them at zero.
// Every question costs an embedding and a generation call.
const (
	defaultRateLimit = 10
	defaultRateBurst = 20
)

// Idle clients are forgotten after askClientIdle; the map is swept at most
// once per askSweepEvery.
const (
	askClientIdle = 5 * time.Minute
	askSweepEvery = time.Minute
)

// askBucket is one client's token bucket.
type askBucket struct {
	tokens *rate.Limiter
	seen   time.Time
}

// askLimiter hands out /api/ask tokens per client IP.
type askLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*askBucket
	limit     rate.Limit
	burst     int
	now       func() time.Time
	lastSweep time.Time
}

func newAskLimiter(perSecond float64, burst int) *askLimiter {
	return &askLimiter{
		buckets: make(map[string]*askBucket),
		limit:   rate.Limit(perSecond),
		burst:   burst,
		now:     time.Now,
	}
}

// take spends one token of client's bucket. When none is left it reports
// how long until the next one is available.
func (l *askLimiter) take(client string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	t := l.now()
	if t.Sub(l.lastSweep) >= askSweepEvery {
		l.sweep(t)
	}

	b, ok := l.buckets[client]
	if !ok {
		b = &askBucket{tokens: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[client] = b
	}
	b.seen = t

	res := b.tokens.ReserveN(t, 1)
	if !res.OK() {
		return false, time.Duration(math.MaxInt64)
	}
	if wait := res.DelayFrom(t); wait > 0 {
		res.CancelAt(t)
		return false, wait
	}
	return true, 0
}

// sweep drops buckets idle since before t-askClientIdle. Callers hold mu.
func (l *askLimiter) sweep(t time.Time) {
	cutoff := t.Add(-askClientIdle)
	for client, b := range l.buckets {
		if b.seen.Before(cutoff) {
			delete(l.buckets, client)
		}
	}
	l.lastSweep = t
}

// clients returns the number of tracked clients.
func (l *askLimiter) clients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// throttleAsk rejects questions from clients that ran out of tokens with
// 429, a Retry-After header and the usual JSON error body.
func (s *Server) throttleAsk(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := clientIP(r)
		ok, wait := s.limiter.take(client)
		if ok {
			next.ServeHTTP(w, r)
			return
		}

		s.metrics.askThrottledTotal.Inc()
		logging.FromContext(r.Context()).Warn("ask throttled",
			slog.String("client", client),
			slog.Duration("retry_in", wait),
		)
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
		writeError(w, http.StatusTooManyRequests, "too many questions, retry later")
	})
}

// retryAfterSeconds rounds wait up to whole seconds, at least 1 and at most
// an hour.
func retryAfterSeconds(wait time.Duration) int {
	if wait > time.Hour {
		return int(time.Hour / time.Second)
	}
	secs := int((wait + time.Second - 1) / time.Second)
	return max(secs, 1)
}

// clientIP is the host part of RemoteAddr. X-Forwarded-For is ignored.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
