// Package client is the connection side of the duplex signaling link: it
// dials the server with the user identifier as connection metadata, feeds
// incoming envelopes to the call session and presence/chat callbacks, and
// serves as the session's emitter.
package client

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/quickchat/signaling/internal/call"
	"github.com/quickchat/signaling/internal/domain"
	"github.com/quickchat/signaling/internal/wire"
)

// Handlers are optional observers for server-originated events.
type Handlers struct {
	OnPresence    func([]domain.UserID)
	OnMessage     func(domain.ChatMessage)
	OnUnreachable func(domain.UserID)
	OnProfile     func(domain.User)
}

type Client struct {
	userID domain.UserID
	conn   *websocket.Conn

	writeMu sync.Mutex

	sessionMu sync.RWMutex
	session   *call.Session

	handlers Handlers
}

// Dial connects to the signaling server. baseURL is the ws endpoint, e.g.
// ws://host:8080/api/ws; the user identifier travels as a query parameter.
func Dial(ctx context.Context, baseURL string, uid domain.UserID, handlers Handlers) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	q.Set("userId", string(uid))
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial signaling: %w", err)
	}
	log.Info().Str("module", "client").Str("user", string(uid)).Str("url", u.String()).Msg("connected")
	return &Client{userID: uid, conn: conn, handlers: handlers}, nil
}

// BindSession attaches the call session that consumes relay traffic. The
// session's emitter is typically this client, so binding happens after
// construction.
func (c *Client) BindSession(s *call.Session) {
	c.sessionMu.Lock()
	c.session = s
	c.sessionMu.Unlock()
}

// Emit implements call.Emitter.
func (c *Client) Emit(env wire.Envelope) error {
	frame, err := wire.Encode(env)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

// JoinRoom opts into a group broadcast scope at runtime.
func (c *Client) JoinRoom(gid domain.GroupID) error {
	return c.Emit(wire.Envelope{Event: wire.EventJoinRoom, GroupID: gid})
}

// LeaveRoom opts out of a group broadcast scope.
func (c *Client) LeaveRoom(gid domain.GroupID) error {
	return c.Emit(wire.Envelope{Event: wire.EventLeaveRoom, GroupID: gid})
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Run reads envelopes until the connection drops or ctx is canceled.
func (c *Client) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = c.conn.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read signaling: %w", err)
		}
		c.dispatch(ctx, data)
	}
}

func (c *Client) dispatch(ctx context.Context, data []byte) {
	env, err := wire.Decode(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "client").Msg("bad envelope from server")
		return
	}

	switch env.Event {
	case wire.EventPresenceSnapshot:
		if c.handlers.OnPresence != nil {
			c.handlers.OnPresence(env.Users)
		}
	case wire.EventNewMessage:
		if c.handlers.OnMessage != nil && env.Msg != nil {
			c.handlers.OnMessage(*env.Msg)
		}
	case wire.EventProfileUpdated:
		if c.handlers.OnProfile != nil && env.User != nil {
			c.handlers.OnProfile(*env.User)
		}
	case wire.EventUserUnreachable:
		if c.handlers.OnUnreachable != nil {
			c.handlers.OnUnreachable(env.UserID)
		}
		c.toSession(ctx, env)
	default:
		if wire.CallEvents[env.Event] {
			c.toSession(ctx, env)
			return
		}
		log.Debug().Str("module", "client").Str("event", string(env.Event)).Msg("unhandled event")
	}
}

func (c *Client) toSession(ctx context.Context, env wire.Envelope) {
	c.sessionMu.RLock()
	s := c.session
	c.sessionMu.RUnlock()
	if s == nil {
		return
	}
	if err := s.HandleEnvelope(ctx, env); err != nil {
		log.Warn().Err(err).Str("module", "client").Str("event", string(env.Event)).Msg("call event failed")
	}
}
