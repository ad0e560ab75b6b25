// Package guards wraps the broker order boundary with last-line safety
// checks: a per-minute rate cap, a duplicate-suppression window and a
// circuit breaker. These sit below the risk ledger's policy gates and
// protect against bugs and broker flapping rather than bad trades.
package guards

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sagnikdas/algowala/internal/broker"
	"github.com/sagnikdas/algowala/internal/metrics"
)

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerHalfOpen
	breakerOpen
)

// Suppression errors; callers treat them like any other placement failure.
var (
	ErrRateLimited = errors.New("guards: per-minute order cap hit")
	ErrDuplicate   = errors.New("guards: duplicate order suppressed")
	ErrBreakerOpen = errors.New("guards: circuit breaker open")
)

// SafeGateway decorates an OrderGateway with rate limiting, duplicate
// suppression and a circuit breaker.
type SafeGateway struct {
	inner   broker.OrderGateway
	log     *zap.Logger
	metrics *metrics.Metrics

	mu           sync.Mutex
	orderTimes   []time.Time
	perMinuteCap int

	dupWindow time.Duration
	recent    map[string]time.Time

	state      breakerState
	failStreak int
	threshold  int
	cooldown   time.Duration
	openedAt   time.Time
}

// NewSafeGateway wraps inner. A perMinuteCap of zero disables the rate cap.
func NewSafeGateway(inner broker.OrderGateway, perMinuteCap int, dupWindow time.Duration,
	breakerThreshold int, breakerCooldown time.Duration, m *metrics.Metrics, log *zap.Logger) *SafeGateway {
	if breakerThreshold < 1 {
		breakerThreshold = 3
	}
	return &SafeGateway{
		inner:        inner,
		log:          log,
		metrics:      m,
		perMinuteCap: perMinuteCap,
		dupWindow:    dupWindow,
		recent:       map[string]time.Time{},
		threshold:    breakerThreshold,
		cooldown:     breakerCooldown,
	}
}

// PlaceOrder applies the safety gates, then delegates to the wrapped
// gateway. There is no retry here: a failed placement is surfaced and the
// next scheduled tick decides again from fresh state.
func (g *SafeGateway) PlaceOrder(ctx context.Context, req broker.OrderRequest) (string, error) {
	now := time.Now()
	g.metrics.OrdersAttempted.Inc()

	key := orderKey(req)
	if err := g.admit(now, key); err != nil {
		g.metrics.OrdersSuppressed.Inc()
		g.log.Warn("order suppressed",
			zap.String("symbol", req.Symbol),
			zap.String("direction", string(req.Direction)),
			zap.Error(err))
		return "", err
	}

	orderID, err := g.inner.PlaceOrder(ctx, req)
	if err != nil {
		g.noteFailure(now)
		g.metrics.OrdersFailed.Inc()
		return "", err
	}
	g.noteSuccess(now, key)
	g.metrics.OrdersPlaced.Inc()
	return orderID, nil
}

func orderKey(req broker.OrderRequest) string {
	h := sha256.Sum256([]byte(req.InstrumentID + string(req.Direction) + strconv.Itoa(req.Quantity)))
	return hex.EncodeToString(h[:8])
}

func (g *SafeGateway) admit(now time.Time, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case breakerOpen:
		if now.Sub(g.openedAt) < g.cooldown {
			return ErrBreakerOpen
		}
		// Cooldown elapsed: allow one probe.
		g.state = breakerHalfOpen
		g.metrics.BreakerState.Set(1)
	case breakerHalfOpen:
		return ErrBreakerOpen
	}

	// The window is per order key: an order for a different instrument in
	// between must not reopen the window for the first one.
	for k, at := range g.recent {
		if now.Sub(at) >= g.dupWindow {
			delete(g.recent, k)
		}
	}
	if _, seen := g.recent[key]; seen {
		return ErrDuplicate
	}

	oneMinAgo := now.Add(-time.Minute)
	kept := g.orderTimes[:0]
	for _, t := range g.orderTimes {
		if t.After(oneMinAgo) {
			kept = append(kept, t)
		}
	}
	g.orderTimes = kept
	if g.perMinuteCap > 0 && len(g.orderTimes) >= g.perMinuteCap {
		return ErrRateLimited
	}
	return nil
}

func (g *SafeGateway) noteSuccess(now time.Time, key string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.orderTimes = append(g.orderTimes, now)
	g.recent[key] = now

	if g.state != breakerClosed {
		g.log.Info("circuit breaker closed after successful probe")
	}
	g.state = breakerClosed
	g.failStreak = 0
	g.metrics.BreakerState.Set(0)
}

func (g *SafeGateway) noteFailure(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case breakerClosed:
		g.failStreak++
		if g.failStreak >= g.threshold {
			g.state = breakerOpen
			g.openedAt = now
			g.metrics.BreakerState.Set(2)
			g.log.Warn("circuit breaker opened", zap.Int("failures", g.failStreak))
		}
	case breakerHalfOpen:
		// Failed probe: reopen immediately.
		g.state = breakerOpen
		g.openedAt = now
		g.metrics.BreakerState.Set(2)
	}
}
