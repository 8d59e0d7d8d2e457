package api

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/busyness-collector/internal/config"
	"github.com/busyness-collector/internal/metrics"
	"github.com/busyness-collector/internal/pool"
	"github.com/busyness-collector/internal/snapshot"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// PoolStatter exposes proxy pool counters.
type PoolStatter interface {
	Stats() pool.Stats
}

// RunTrigger queues collection runs.
type RunTrigger interface {
	Trigger() bool
	Running() bool
	Scheduled() bool
}

type Server struct {
	config      *config.Config
	snapshot    *snapshot.Manager
	metrics     *metrics.Collector
	pool        PoolStatter
	runs        RunTrigger
	router      *gin.Engine
	httpServer  *http.Server
	limiter     *ipLimiter
	apiKey      string
}

// ipLimiter hands out one token bucket per client address.
type ipLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	every   rate.Limit
	burst   int
}

func newIPLimiter(perMinute int) *ipLimiter {
	return &ipLimiter{
		buckets: make(map[string]*rate.Limiter),
		every:   rate.Limit(float64(perMinute) / 60.0),
		burst:   max(perMinute/10, 1),
	}
}

func (l *ipLimiter) forIP(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[ip]
	if !ok {
		b = rate.NewLimiter(l.every, l.burst)
		l.buckets[ip] = b
	}
	return b
}

func NewServer(cfg *config.Config, snap *snapshot.Manager, metricsCollector *metrics.Collector,
	poolStats PoolStatter, runs RunTrigger) *Server {

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		config:      cfg,
		snapshot:    snap,
		metrics:     metricsCollector,
		pool:        poolStats,
		runs:        runs,
		router:      router,
		limiter:     newIPLimiter(cfg.API.RateLimitPerMinute),
		apiKey:      os.Getenv(cfg.API.APIKeyEnv),
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(s.loggingMiddleware())
	s.router.Use(s.metricsMiddleware())

	s.router.GET("/health", s.handleHealth)

	if s.config.Metrics.Enabled {
		s.router.GET(s.config.Metrics.Endpoint, gin.WrapH(promhttp.Handler()))
	}

	protected := s.router.Group("/")
	if s.config.API.EnableAPIKeyAuth {
		protected.Use(s.authMiddleware())
	}
	if s.config.API.EnableIPRateLimit {
		protected.Use(s.rateLimitMiddleware())
	}

	protected.GET("/stat", s.handleStat)
	protected.GET("/report", s.handleReport)
	protected.POST("/refresh", s.handleRefresh)
}

// Start serves until Shutdown; it returns http.ErrServerClosed then.
func (s *Server) Start() error {
	log.Infof("Status API listening on %s", s.config.API.Addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Info("Stopping status API")
	return s.httpServer.Shutdown(ctx)
}

func abortWith(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.WithFields(log.Fields{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"ip":          c.ClientIP(),
		}).Debug("API request")
	}
}

func (s *Server) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		s.metrics.RecordAPIRequest(c.Request.Method, route, status)
		s.metrics.RecordAPIDuration(c.Request.Method, route, time.Since(start).Seconds())
	}
}

// authMiddleware accepts the key from the X-Api-Key header or the "key"
// query parameter. An unset key disables the check.
func (s *Server) authMiddleware() gin.HandlerFunc {
	if s.apiKey == "" {
		log.Warnf("%s is empty, API key auth disabled", s.config.API.APIKeyEnv)
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		key := c.GetHeader("X-Api-Key")
		if key == "" {
			key = c.Query("key")
		}
		if key != s.apiKey {
			abortWith(c, http.StatusUnauthorized, "invalid or missing API key")
			return
		}
		c.Next()
	}
}

func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.forIP(c.ClientIP()).Allow() {
			abortWith(c, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		c.Next()
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (s *Server) handleStat(c *gin.Context) {
	response := gin.H{
		"pool":      s.pool.Stats(),
		"running":   s.runs.Running(),
		"scheduled": s.runs.Scheduled(),
		"runs":      s.snapshot.Runs(),
	}

	if run := s.snapshot.Get(); run != nil {
		response["last_run"] = gin.H{
			"id":                 run.ID,
			"started_at":         run.StartedAt.Format(time.RFC3339),
			"finished_at":        run.FinishedAt.Format(time.RFC3339),
			"exit_code":          run.ExitCode,
			"total_locations":    run.Report.TotalLocations,
			"successful_scrapes": run.Report.SuccessfulScrapes,
		}
	}

	c.JSON(http.StatusOK, response)
}

func (s *Server) handleReport(c *gin.Context) {
	run := s.snapshot.Get()
	if run == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no run has finished yet"})
		return
	}

	c.Header("X-Run-Id", run.ID)
	c.JSON(http.StatusOK, run.Report)
}

func (s *Server) handleRefresh(c *gin.Context) {
	if !s.runs.Scheduled() {
		c.JSON(http.StatusConflict, gin.H{"error": "no scheduled loop is running"})
		return
	}
	if !s.runs.Trigger() {
		c.JSON(http.StatusConflict, gin.H{"error": "a run is already queued"})
		return
	}

	log.Info("Run requested via API")
	c.JSON(http.StatusAccepted, gin.H{"queued": true, "running": s.runs.Running()})
}
