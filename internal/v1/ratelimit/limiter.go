// Package ratelimit gates inbound TCP connections per client IP. Backed by
// an in-memory store, or by Redis when available so limits hold across
// replicas. The gate fails open: a broken store never blocks connections.
package ratelimit

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"

	"github.com/parlorchat/parlor/internal/v1/logging"
	"github.com/parlorchat/parlor/internal/v1/metrics"
)

// ConnGate limits connection attempts per IP.
type ConnGate struct {
	limiter *limiter.Limiter
}

// NewConnGate builds a gate from a formatted rate like "30-M". A nil Redis
// client selects the in-memory store.
func NewConnGate(formatted string, client *goredis.Client) (*ConnGate, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, fmt.Errorf("parsing rate %q: %w", formatted, err)
	}

	var store limiter.Store
	if client != nil {
		store, err = sredis.NewStoreWithOptions(client, limiter.StoreOptions{
			Prefix: "parlor:connlimit",
		})
		if err != nil {
			return nil, fmt.Errorf("creating redis limiter store: %w", err)
		}
	} else {
		store = memory.NewStore()
	}

	return &ConnGate{limiter: limiter.New(store, rate)}, nil
}

// Allow reports whether a connection from ip may proceed. Store errors fail
// open so a degraded limiter never takes the chat server down with it.
func (g *ConnGate) Allow(ctx context.Context, ip string) bool {
	if g == nil || g.limiter == nil {
		return true
	}
	res, err := g.limiter.Get(ctx, ip)
	if err != nil {
		logging.Warn(ctx, "rate limiter store error, failing open",
			zap.String("ip", ip),
			zap.Error(err))
		return true
	}
	if res.Reached {
		metrics.ConnectionsThrottled.Inc()
		return false
	}
	return true
}
