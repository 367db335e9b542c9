// Package httpapi exposes the two inbound surfaces of the signaling
// core: the handshake endpoint and the persistent channel upgrade,
// plus a small operational read-only surface.
package httpapi

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/roomly/signaling/internal/adapters/ws"
	"github.com/roomly/signaling/internal/config"
	"github.com/roomly/signaling/internal/directory"
	"github.com/roomly/signaling/internal/domain"
	"github.com/roomly/signaling/internal/protocol"
	"github.com/roomly/signaling/internal/registry"
	"github.com/roomly/signaling/internal/relay"
)

const (
	sessionSIDKey      = "signal_sid"
	sessionIdentityKey = "uid"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

var connectFrame = protocol.MustEncode(protocol.Connect())

type Server struct {
	Config   *config.Config
	Registry *registry.Registry
	Relay    *relay.Router
	Profiles directory.Profiles
}

// IdentityMiddleware resolves the external identity from the outer
// session. In the deployed system the booking application has already
// authenticated and stored it; a missing identity gets a guest one so
// the relay stays usable standalone.
func IdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessions.Default(c)
		identity, _ := sess.Get(sessionIdentityKey).(string)
		if identity == "" {
			identity = "guest-" + uuid.NewString()
			sess.Set(sessionIdentityKey, identity)
			if err := sess.Save(); err != nil {
				log.Error().Str("module", "httpapi").Err(err).Msg("save session")
			}
		}
		c.Set("identity", identity)
		c.Next()
	}
}

func SetupRouter(cfg *config.Config, srv *Server) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	// gorilla/sessions defaults to Secure+SameSite=None, which no
	// browser or jar will return over plain HTTP; set the cookie policy
	// explicitly so the handshake binding survives the channel open.
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   3600 * 24 * 7,
		Secure:   cfg.SecureCookies,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions("RoomlySession", store))
	r.Use(IdentityMiddleware())

	api := r.Group("/signal")
	api.GET("/handshake", srv.handleHandshake)
	api.GET("/ws/:sid", srv.handleChannel)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/stats", func(c *gin.Context) {
		rooms, conns := srv.Registry.Counts()
		c.JSON(http.StatusOK, gin.H{"rooms": rooms, "connections": conns})
	})

	return r
}

// handleHandshake mints a connection identity, binds it to the outer
// session and announces the negotiated channel parameters.
func (s *Server) handleHandshake(c *gin.Context) {
	sid := uuid.NewString()
	sess := sessions.Default(c)
	sess.Set(sessionSIDKey, sid)
	if err := sess.Save(); err != nil {
		log.Error().Str("module", "httpapi").Err(err).Msg("bind session id")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "handshake failed"})
		return
	}
	log.Info().Str("module", "httpapi").Str("sid", sid).Str("identity", c.GetString("identity")).Msg("handshake issued")

	c.JSON(http.StatusOK, gin.H{
		"sessionId":        sid,
		"heartbeatTimeout": int(s.Config.HeartbeatTimeout.Seconds()),
		"closeTimeout":     int(s.Config.CloseTimeout.Seconds()),
		"transports":       []string{"websocket"},
	})
}

// handleChannel upgrades the persistent channel. The path sid must be
// the one issued at handshake for this same session; anything else gets
// a disconnect envelope and an immediate close.
func (s *Server) handleChannel(c *gin.Context) {
	sid := c.Param("sid")
	sess := sessions.Default(c)
	bound, _ := sess.Get(sessionSIDKey).(string)
	identity := domain.Identity(c.GetString("identity"))

	wsc, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Str("module", "httpapi").Err(err).Msg("ws upgrade")
		return
	}

	if sid == "" || bound == "" || sid != bound {
		log.Warn().Str("module", "httpapi").Str("sid", sid).Str("bound", bound).Msg("channel sid does not match handshake")
		_ = wsc.WriteMessage(websocket.TextMessage, protocol.MustEncode(protocol.Disconnect()))
		_ = wsc.Close()
		return
	}

	conn := ws.NewConn(sid, wsc, ws.Options{
		SendBuffer:  s.Config.SendBuffer,
		ReadLimit:   s.Config.ReadLimit,
		IdleTimeout: s.Config.CloseTimeout,
	})
	s.Registry.Register(sid, conn, identity, s.Profiles.Locale(identity))

	if err := conn.TrySend(connectFrame); err != nil {
		log.Error().Str("module", "httpapi").Str("sid", sid).Err(err).Msg("send connect")
	}
	go conn.WritePump()
	go conn.ReadPump(
		func(raw []byte) { s.Relay.HandleFrame(sid, raw) },
		// a reconnect with the same sid evicts this conn; its dying pump
		// must not tear down the replacement entry
		func() { s.Relay.DropIfCurrent(sid, conn) },
	)
}
