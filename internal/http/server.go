package http

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v9"
	"moff.io/walletconnect/internal/config"
	"moff.io/walletconnect/internal/walletconnect"
	"moff.io/walletconnect/internal/walletconnect/session"
	"moff.io/walletconnect/internal/walletconnect/uri"
	"moff.io/walletconnect/pkg/errors"
	"moff.io/walletconnect/pkg/log"
	"moff.io/walletconnect/pkg/log/middleware"
)

const (
	defaultQRSize = 256
	maxQRSize     = 1024
)

// SessionSource is the part of the wallet connect client the status server reads.
type SessionSource interface {
	URI() *uri.URI
	State() walletconnect.State
	Session() session.Snapshot
}

type Server struct {
	source    SessionSource
	limiter   *redis_rate.Limiter
	perMinute int
	listen    string
	router    *gin.Engine
}

type Option func(*Server)

// WithRateLimit limits each remote address to perMinute requests, counted in redis.
func WithRateLimit(limiter *redis_rate.Limiter, perMinute int) Option {
	return func(s *Server) {
		s.limiter = limiter
		s.perMinute = perMinute
	}
}

// NewServer exposes the pairing URI, its QR code and the session state of source.
func NewServer(source SessionSource, opts ...Option) *Server {
	s := &Server{source: source}
	for _, opt := range opts {
		opt(s)
	}
	router := gin.New()
	router.Use(middleware.RecoveredHTTPLog(), middleware.TimeoutHTTP(10*time.Second))
	router.Use(s.rateLimit)
	router.GET("/hello", func(ctx *gin.Context) {
		ctx.JSONP(http.StatusOK, map[string]interface{}{
			"hello": "world",
		})
	})
	group := router.Group("/walletconnect")
	group.GET("/uri", s.getURI)
	group.GET("/qr", s.getQRCode)
	group.GET("/session", s.getSession)
	s.router = router
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Apply reads the listen address and the per-address request budget.
func (s *Server) Apply(cfg *config.Configuration) {
	s.listen = cfg.HTTP.Listen
	if cfg.HTTP.RequestsPerMinute > 0 {
		s.perMinute = cfg.HTTP.RequestsPerMinute
	}
}

// Start serves in the background until ctx is done. Without a listen address it does nothing.
func (s *Server) Start(ctx context.Context) {
	if s.listen == "" {
		return
	}
	go func() {
		if err := s.Run(ctx, s.listen); err != nil {
			log.Error(err)
		}
	}()
}

// Run serves on listen until ctx is done.
func (s *Server) Run(ctx context.Context, listen string) error {
	srv := &http.Server{Addr: listen, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		log.Infof("status server listening on %v", listen)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return errors.Wrap(err, "status server")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) rateLimit(ctx *gin.Context) {
	if s.limiter == nil || s.perMinute <= 0 {
		ctx.Next()
		return
	}
	res, err := s.limiter.Allow(ctx.Request.Context(), "walletconnect:http:"+ctx.ClientIP(), redis_rate.PerMinute(s.perMinute))
	if err != nil {
		// fail open: the status pages stay up without redis
		log.Warnf("status server rate limit: %v", err)
		ctx.Next()
		return
	}
	ctx.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	if res.Allowed == 0 {
		ctx.Header("Retry-After", strconv.Itoa(int(res.RetryAfter/time.Second)+1))
		ctx.AbortWithStatusJSON(http.StatusTooManyRequests, map[string]interface{}{
			"code": 4290,
			"msg":  "too many requests",
		})
		return
	}
	ctx.Next()
}

// The pairing URI carries the session key, so it is only served before the wallet connects.
func (s *Server) pairable(ctx *gin.Context) bool {
	if s.source.State() == walletconnect.Connected {
		ctx.JSONP(http.StatusConflict, map[string]interface{}{
			"code": 4090,
			"msg":  "session already connected",
		})
		return false
	}
	return true
}

func (s *Server) getURI(ctx *gin.Context) {
	if !s.pairable(ctx) {
		return
	}
	ctx.JSONP(http.StatusOK, map[string]interface{}{
		"code":  0,
		"uri":   s.source.URI().Encode(),
		"state": s.source.State().String(),
	})
}

func (s *Server) getQRCode(ctx *gin.Context) {
	if !s.pairable(ctx) {
		return
	}
	size := defaultQRSize
	if raw := ctx.Query("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxQRSize {
			ctx.JSONP(http.StatusBadRequest, map[string]interface{}{
				"code": 4000,
				"msg":  fmt.Sprintf("size must be between 1 and %d", maxQRSize),
			})
			return
		}
		size = n
	}
	png, err := s.source.URI().QRCode(size)
	if err != nil {
		log.Error(errors.WrapAndReport(err, "render qr code"))
		ctx.JSONP(http.StatusInternalServerError, map[string]interface{}{
			"code": 5000,
			"msg":  "render qr code",
		})
		return
	}
	ctx.Data(http.StatusOK, "image/png", png)
}

func (s *Server) getSession(ctx *gin.Context) {
	ctx.JSONP(http.StatusOK, map[string]interface{}{
		"code":    0,
		"state":   s.source.State().String(),
		"session": s.source.Session(),
	})
}
