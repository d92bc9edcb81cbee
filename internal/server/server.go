// Package server exposes a read-only HTTP status surface over the RTCP
// transport: health, metrics, and the channel table.
package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/danmuck/rtcpctl/internal/observability"
	"github.com/danmuck/rtcpctl/internal/transport"
)

type StatusServer struct {
	name     string
	addr     string
	appeared time.Time

	transport *transport.TCPTransport
	router    *gin.Engine
}

func New(name, addr string, t *transport.TCPTransport, corsOrigins []string) *StatusServer {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	if len(corsOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: corsOrigins,
			AllowMethods: []string{"GET"},
			AllowHeaders: []string{"Origin", "Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &StatusServer{
		name:      name,
		addr:      addr,
		appeared:  time.Now(),
		transport: t,
		router:    r,
	}
	s.registerRoutes()
	return s
}

func (s *StatusServer) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"uptime":    time.Since(s.appeared).String(),
			"component": s.name,
		})
	})

	s.router.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"ready":     true,
			"uptime":    time.Since(s.appeared).String(),
			"component": s.name,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/channels", func(c *gin.Context) {
		chans := s.transport.Channels()
		out := make([]gin.H, 0, len(chans))
		for _, ch := range chans {
			out = append(out, gin.H{
				"remote":                ch.RemoteAddr().String(),
				"status":                ch.Status().String(),
				"locator":               ch.Locator().String(),
				"logical_ports":         ch.LogicalPorts(),
				"pending_logical_ports": ch.PendingLogicalPorts(),
			})
		}
		c.JSON(http.StatusOK, gin.H{"channels": out})
	})
}

// Handler exposes the route tree for embedding and tests.
func (s *StatusServer) Handler() http.Handler { return s.router }

// Run serves until the listener fails. Blocking; callers run it in a
// goroutine.
func (s *StatusServer) Run() error {
	return s.router.Run(s.addr)
}
