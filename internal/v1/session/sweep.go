package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/parlorchat/parlor/internal/v1/events"
	"github.com/parlorchat/parlor/internal/v1/logging"
	"github.com/parlorchat/parlor/internal/v1/metrics"
	"github.com/parlorchat/parlor/internal/v1/protocol"
	"github.com/parlorchat/parlor/internal/v1/types"
)

// RunSweeper periodically returns idle room sessions to the lobby. Rooms
// with a zero session timeout never expire their members.
func (h *Hub) RunSweeper(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.sweepIdle(ctx)
		}
	}
}

func (h *Hub) sweepIdle(ctx context.Context) {
	now := time.Now()
	for _, c := range h.clientsSnapshot() {
		st := c.State()
		if st.Phase != PhaseInRoom {
			continue
		}
		r, ok := h.registry.Get(st.Room)
		if !ok {
			continue
		}
		var timeout uint32
		r.WithRead(func(d *types.Room) {
			timeout = d.SessionTimeout
		})
		if timeout == 0 {
			continue
		}
		idle := now.Sub(st.InactiveSince)
		if idle < time.Duration(timeout)*time.Second {
			continue
		}

		roomName := r.Name()
		h.leaveRoom(ctx, c, r, protocol.Yellow("You have been returned to the lobby due to inactivity"))
		metrics.TimeoutsSwept.Inc()
		logging.Info(ctx, "idle session swept",
			zap.String("username", st.Username),
			zap.String("room", roomName),
			zap.Duration("idle", idle))
		h.publish(ctx, events.Event{Type: events.TypeTimeout, Room: roomName, Actor: st.Username})
	}
}
