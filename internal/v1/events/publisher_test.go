package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPublisher(t *testing.T) (*Publisher, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	p, err := New(context.Background(), mr.Addr(), "")
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p, mr
}

func TestNewVerifiesConnection(t *testing.T) {
	_, err := New(context.Background(), "127.0.0.1:1", "")
	assert.Error(t, err)
}

func TestPublishDeliversToChannel(t *testing.T) {
	p, mr := newTestPublisher(t)

	sub := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer sub.Close()
	ps := sub.Subscribe(context.Background(), Channel)
	defer ps.Close()
	_, err := ps.Receive(context.Background())
	require.NoError(t, err)

	p.Publish(context.Background(), Event{
		Type:   TypeKick,
		Room:   "den",
		Actor:  "alice",
		Target: "bob",
		Detail: "spam",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, err := ps.ReceiveMessage(ctx)
	require.NoError(t, err)

	var ev Event
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &ev))
	assert.Equal(t, TypeKick, ev.Type)
	assert.Equal(t, "den", ev.Room)
	assert.Equal(t, "alice", ev.Actor)
	assert.Equal(t, "bob", ev.Target)
	assert.NotZero(t, ev.Time, "publish stamps the event")
}

func TestNilPublisherIsSafe(t *testing.T) {
	var p *Publisher
	assert.NotPanics(t, func() {
		p.Publish(context.Background(), Event{Type: TypeLogin})
	})
	assert.Error(t, p.Ping(context.Background()))
	assert.NoError(t, p.Close())
}

func TestPublishSurvivesRedisOutage(t *testing.T) {
	p, mr := newTestPublisher(t)
	mr.Close()

	// repeated failures trip the breaker; none of them block or panic
	for i := 0; i < 10; i++ {
		assert.NotPanics(t, func() {
			p.Publish(context.Background(), Event{Type: TypeLogin, Actor: "alice"})
		})
	}
}

func TestPing(t *testing.T) {
	p, mr := newTestPublisher(t)
	assert.NoError(t, p.Ping(context.Background()))

	mr.Close()
	assert.Error(t, p.Ping(context.Background()))
}
