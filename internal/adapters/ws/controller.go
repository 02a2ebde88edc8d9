// Package ws is the server end of the persistent duplex connection: one
// goroutine pair per client, envelope dispatch to the relay and room hub.
package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/quickchat/signaling/internal/config"
	"github.com/quickchat/signaling/internal/domain"
	"github.com/quickchat/signaling/internal/groups"
	"github.com/quickchat/signaling/internal/presence"
	"github.com/quickchat/signaling/internal/relay"
	"github.com/quickchat/signaling/internal/rooms"
	"github.com/quickchat/signaling/internal/wire"
)

type Controller struct {
	Registry *presence.Registry
	Rooms    *rooms.Hub
	Groups   groups.Service
	Relay    *relay.Relay
	Cfg      *config.Config
}

func NewController(reg *presence.Registry, hub *rooms.Hub, svc groups.Service, rl *relay.Relay, cfg *config.Config) *Controller {
	return &Controller{Registry: reg, Rooms: hub, Groups: svc, Relay: rl, Cfg: cfg}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the request and runs the connection until it drops. The
// user identifier arrives as connection metadata; without it the connection
// is served but never registered, so it receives no targeted traffic.
func (ctl *Controller) Handle(ctx context.Context, c *gin.Context) {
	uid := domain.UserID(c.Query("userId"))

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("upgrade")
		return
	}
	ws.SetReadLimit(ctl.Cfg.ReadLimit)
	if ctl.Cfg.PongWait > 0 {
		// Keepalive: a connection that stops answering pings is reaped by
		// the read deadline instead of lingering until TCP gives up.
		_ = ws.SetReadDeadline(time.Now().Add(ctl.Cfg.PongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(ctl.Cfg.PongWait))
		})
	}

	conn := newConn(ws, ctl.Cfg.SendBuffer)
	ctx, cancel := context.WithCancel(ctx)

	if err := uid.Validate(); err != nil {
		log.Warn().Str("module", "ws").Err(err).Msg("anonymous connection, not registered")
		uid = ""
	} else {
		log.Info().Str("module", "ws").Str("user", string(uid)).Msg("connected")
		ctl.Registry.Register(uid, conn)
		ctl.autoJoin(ctx, uid, conn)
	}

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, uid, conn)
}

// autoJoin mirrors the user's group memberships into broadcast scopes. A
// lookup failure degrades to zero scopes, it never fails the connection.
func (ctl *Controller) autoJoin(ctx context.Context, uid domain.UserID, conn *wsConn) {
	ctx, cancel := context.WithTimeout(ctx, ctl.Cfg.GroupTimeout)
	go func() {
		defer cancel()
		gids, err := ctl.Groups.GroupsOf(ctx, uid)
		if err != nil {
			log.Error().Err(err).Str("module", "ws").Str("user", string(uid)).Msg("membership lookup failed, zero scopes")
			return
		}
		for _, gid := range gids {
			ctl.Rooms.Join(gid, uid, conn)
		}
	}()
}

func (ctl *Controller) writePump(ctx context.Context, c *wsConn) {
	var ping <-chan time.Time
	if ctl.Cfg.PingPeriod > 0 {
		ticker := time.NewTicker(ctl.Cfg.PingPeriod)
		defer ticker.Stop()
		ping = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping:
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.Cfg.WriteTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Warn().Err(err).Str("module", "ws").Msg("writePump ping error")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.Cfg.WriteTimeout)); err != nil {
				log.Error().Err(err).Str("module", "ws").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "ws").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, uid domain.UserID, c *wsConn) {
	defer func() {
		log.Info().Str("module", "ws").Str("user", string(uid)).Msg("disconnected")
		if uid != "" {
			ctl.Registry.Release(uid, c)
			ctl.Rooms.LeaveAll(uid)
		}
		cancel()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				return
			}
			ctl.dispatch(uid, c, data)
		}
	}
}

func (ctl *Controller) dispatch(uid domain.UserID, c *wsConn, data []byte) {
	env, err := wire.Decode(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "ws").Str("user", string(uid)).Msg("bad envelope, dropped")
		return
	}

	switch {
	case wire.CallEvents[env.Event]:
		if uid == "" {
			log.Warn().Str("module", "ws").Str("event", string(env.Event)).Msg("call event from anonymous connection, dropped")
			return
		}
		ctl.Relay.Forward(uid, env, c)
	case env.Event == wire.EventJoinRoom:
		if uid == "" {
			return
		}
		ctl.Rooms.Join(env.GroupID, uid, c)
	case env.Event == wire.EventLeaveRoom:
		if uid == "" {
			return
		}
		ctl.Rooms.Leave(env.GroupID, uid)
	default:
		log.Warn().Str("module", "ws").Str("event", string(env.Event)).Msg("unexpected client event")
	}
}
