// Package events publishes chat lifecycle and moderation events to a Redis
// channel for external consumers. Publishing is best-effort: a nil publisher
// is a no-op, and a circuit breaker sheds load when Redis is down so chat
// traffic never blocks on it.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/parlorchat/parlor/internal/v1/logging"
	"github.com/parlorchat/parlor/internal/v1/metrics"
)

// Channel is the Redis pub/sub channel for server events.
const Channel = "parlor:events"

// Event types published by the server.
const (
	TypeLogin         = "login"
	TypeLogout        = "logout"
	TypeRoomCreated   = "room_created"
	TypeRoomDeleted   = "room_deleted"
	TypeRoomRenamed   = "room_renamed"
	TypeJoin          = "join"
	TypeLeave         = "leave"
	TypeKick          = "kick"
	TypeBan           = "ban"
	TypeUnban         = "unban"
	TypeMute          = "mute"
	TypeUnmute        = "unmute"
	TypeOwnerTransfer = "owner_transfer"
	TypeTimeout       = "timeout"
)

// Event is the wire payload published to the channel.
type Event struct {
	Type   string `json:"type"`
	Room   string `json:"room,omitempty"`
	Actor  string `json:"actor,omitempty"`
	Target string `json:"target,omitempty"`
	Detail string `json:"detail,omitempty"`
	Time   int64  `json:"time"`
}

// Publisher wraps the Redis client with a circuit breaker. A nil Publisher
// is safe to use and drops everything.
type Publisher struct {
	client *redis.Client
	cb     *gobreaker.CircuitBreaker
}

// New connects to Redis and returns a publisher. The connection is verified
// with a short ping; failure is returned so the caller can decide to run
// without events.
func New(ctx context.Context, addr, password string) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis-events",
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn(context.Background(), "events circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			metrics.CircuitBreakerState.WithLabelValues("redis").Set(breakerStateValue(to))
		},
	})

	return &Publisher{client: client, cb: cb}, nil
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}

// Publish sends an event; failures are logged and swallowed.
func (p *Publisher) Publish(ctx context.Context, ev Event) {
	if p == nil || p.client == nil {
		return
	}
	if ev.Time == 0 {
		ev.Time = time.Now().Unix()
	}

	_, err := p.cb.Execute(func() (interface{}, error) {
		payload, err := json.Marshal(ev)
		if err != nil {
			return nil, err
		}
		pubCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return nil, p.client.Publish(pubCtx, Channel, payload).Err()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
			return
		}
		logging.Warn(ctx, "event publish failed",
			zap.String("event_type", ev.Type),
			zap.Error(err))
	}
}

// Ping reports Redis health for the readiness endpoint.
func (p *Publisher) Ping(ctx context.Context) error {
	if p == nil || p.client == nil {
		return errors.New("events publisher not configured")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.client.Ping(pingCtx).Err()
}

// Close releases the Redis connection.
func (p *Publisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}
