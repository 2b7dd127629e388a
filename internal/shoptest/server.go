// Package shoptest provides a scriptable in-process shop server for
// integration tests and local development. It speaks the same wire
// protocol the real shop server does: the session endpoints under
// /api/v1 and the SSE push stream, behind the usual middleware stack.
package shoptest

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const eventsPath = "/api/v1/events"

// scripted is one canned endpoint response.
type scripted struct {
	code int
	body any
}

// Server is a fake shop server. Script each endpoint with the Set
// methods, push SSE frames with PushEvent, and point the client at
// URL().
type Server struct {
	Engine *gin.Engine

	mu      sync.Mutex
	verify  scripted
	refresh scripted
	logout  scripted
	sync    scripted
	calls   map[string]int

	events chan sse.Event

	httpSrv *httptest.Server
}

// New starts a fake shop server with every endpoint scripted to a bare
// success. Callers own Close.
func New() *Server {
	gin.SetMode(gin.TestMode)
	s := &Server{
		calls:   map[string]int{},
		events:  make(chan sse.Event, 16),
		verify:  scripted{code: http.StatusOK, body: gin.H{"status": "success"}},
		refresh: scripted{code: http.StatusOK, body: gin.H{"status": "success"}},
		logout:  scripted{code: http.StatusOK, body: gin.H{"status": "success"}},
		sync:    scripted{code: http.StatusOK, body: gin.H{"status": "success"}},
	}

	r := gin.New()
	r.Use(otelgin.Middleware("shoptest"))
	// The push stream must not be buffered by compression.
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{eventsPath})))

	api := r.Group("/api/v1")
	{
		api.POST("/session/verify", s.respond("verify", &s.verify))
		api.POST("/session/refresh", s.respond("refresh", &s.refresh))
		api.POST("/session/logout", s.respond("logout", &s.logout))
		api.POST("/cart/sync", s.respond("sync", &s.sync))
		api.GET("/events", s.stream)
	}

	s.Engine = r
	s.httpSrv = httptest.NewServer(r)
	return s
}

// URL returns the server's base URL.
func (s *Server) URL() string { return s.httpSrv.URL }

// Close shuts the server down.
func (s *Server) Close() { s.httpSrv.Close() }

// SetVerify scripts the session-verification endpoint.
func (s *Server) SetVerify(code int, body any) { s.set(&s.verify, code, body) }

// SetRefresh scripts the token-refresh endpoint.
func (s *Server) SetRefresh(code int, body any) { s.set(&s.refresh, code, body) }

// SetLogout scripts the revocation endpoint.
func (s *Server) SetLogout(code int, body any) { s.set(&s.logout, code, body) }

// SetGuestSync scripts the guest cart sync endpoint.
func (s *Server) SetGuestSync(code int, body any) { s.set(&s.sync, code, body) }

// Calls reports how many times the named endpoint was hit.
func (s *Server) Calls(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

// PushEvent queues one SSE frame for delivery to the connected stream.
func (s *Server) PushEvent(ev sse.Event) { s.events <- ev }

func (s *Server) set(target *scripted, code int, body any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	*target = scripted{code: code, body: body}
}

func (s *Server) respond(name string, target *scripted) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.mu.Lock()
		s.calls[name]++
		resp := *target
		s.mu.Unlock()

		if resp.body == nil {
			c.Status(resp.code)
			return
		}
		c.JSON(resp.code, resp.body)
	}
}

// stream serves the SSE push endpoint: frames queued via PushEvent are
// written until the client goes away.
func (s *Server) stream(c *gin.Context) {
	c.Header("Content-Type", sse.ContentType)
	c.Header("Cache-Control", "no-cache")

	c.Stream(func(w io.Writer) bool {
		select {
		case ev := <-s.events:
			_ = sse.Encode(w, ev)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
