package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/quickchat/signaling/internal/adapters/ws"
	"github.com/quickchat/signaling/internal/chat"
	"github.com/quickchat/signaling/internal/config"
	"github.com/quickchat/signaling/internal/domain"
	"github.com/quickchat/signaling/internal/presence"
	"github.com/quickchat/signaling/internal/rooms"
)

// ClientTokenMiddleware tags every browser with a stable token cookie. The
// token identifies the device, not the user; the user id still arrives as
// connection metadata on the websocket.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, ctl *ws.Controller, reg *presence.Registry, hub *rooms.Hub, del *chat.Deliverer) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("QuickChatSessions", store))
	r.Use(ClientTokenMiddleware())

	api := r.Group("/api")

	api.GET("/ws", func(c *gin.Context) {
		log.Info().Str("module", "httpapi").Str("ct", c.GetString("client_token")).Msg("ws endpoint hit")
		ctl.Handle(ctx, c)
	})

	api.GET("/presence", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"online": reg.Snapshot()})
	})

	api.GET("/rooms/:groupId/members", func(c *gin.Context) {
		gid := domain.GroupID(c.Param("groupId"))
		c.JSON(http.StatusOK, gin.H{"group": gid, "members": hub.Members(gid)})
	})

	// Internal surface for the REST collaborator: it persists first, then
	// hands the message here for push delivery.
	internal := api.Group("/internal")

	internal.POST("/messages", func(c *gin.Context) {
		var msg domain.ChatMessage
		if err := c.ShouldBindJSON(&msg); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if msg.GroupID != "" {
			res := del.DeliverGroup(msg)
			c.JSON(http.StatusOK, gin.H{"sentTo": res.SentTo, "dropped": res.Dropped})
			return
		}
		c.JSON(http.StatusOK, gin.H{"delivered": del.DeliverDirect(msg)})
	})

	internal.POST("/profile-updated", func(c *gin.Context) {
		var user domain.User
		if err := c.ShouldBindJSON(&user); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		del.BroadcastProfileUpdate(user)
		c.Status(http.StatusNoContent)
	})

	return r
}
