package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ptgott/one-paste/html"
	"github.com/ptgott/one-paste/paste"
	"github.com/ptgott/one-paste/plugin"
	"github.com/ptgott/one-paste/userconfig"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// How long in-flight requests get to finish after a shutdown starts
const shutdownGrace = 10 * time.Second

// requestIDHeader carries the ID each request is logged under
const requestIDHeader = "X-Request-ID"

// Deps is everything the HTTP handlers need. It is built once in main and
// shared, read-only, by every request.
type Deps struct {
	Server userconfig.Server
	Store  *paste.Store
	Pages  *html.Renderer
	Assets *plugin.Manager
	// Clock used to describe how long a paste has left. Defaults to
	// time.Now.
	Now func() time.Time
}

// NewRouter registers the paste routes on a new gin engine.
func NewRouter(d *Deps) *gin.Engine {
	if d.Now == nil {
		d.Now = time.Now
	}
	h := &handlers{deps: d}

	r := gin.New()
	r.Use(requestLogger(), gin.Recovery())

	r.GET("/", h.index)
	r.POST("/", h.create)
	r.GET("/new", h.editor)
	r.GET("/raw/:id", h.raw)
	r.GET("/download/:id", h.download)
	r.GET("/static/*resource", h.static)
	r.GET("/:id", h.view)
	r.DELETE("/:id", h.remove)

	return r
}

// requestLogger tags every request with an ID, reusing the caller's if it
// sent one, and logs it once it's been handled.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)

		start := time.Now()
		c.Next()

		ev := log.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			ev = log.Error()
		}
		ev.Str("requestID", id).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("handled a request")
	}
}

// BaseURL is the URL pastes are linked under, e.g., "http://localhost:8000".
// The port is left out when it's the scheme's default.
func BaseURL(s userconfig.Server) string {
	scheme := "http"
	if s.TLSCert != "" && s.TLSKey != "" {
		scheme = "https"
	}

	host := s.Address
	if s.Port != 80 && s.Port != 443 {
		host = net.JoinHostPort(s.Address, strconv.Itoa(s.Port))
	}

	return fmt.Sprintf("%v://%v%v", scheme, host, s.URIPrefix)
}

// Serve listens on the configured address until ctx is done, then shuts the
// server down gracefully.
func Serve(ctx context.Context, d *Deps) error {
	srv := &http.Server{
		Addr:              net.JoinHostPort(d.Server.Address, strconv.Itoa(d.Server.Port)),
		Handler:           NewRouter(d),
		IdleTimeout:       d.Server.KeepAlive,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("address", srv.Addr).
			Str("url", BaseURL(d.Server)).
			Msg("listening for requests")
		if d.Server.TLSCert != "" && d.Server.TLSKey != "" {
			errCh <- srv.ListenAndServeTLS(d.Server.TLSCert, d.Server.TLSKey)
			return
		}
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("the server stopped unexpectedly: %v", err)
	case <-ctx.Done():
		log.Info().Msg("shutting down the server")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			return fmt.Errorf("can't shut down the server: %v", err)
		}
		return nil
	}
}
