package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"regatta-live/src/logger"
	"regatta-live/src/metrics"
	"regatta-live/src/models"
	"regatta-live/src/race"
	"regatta-live/src/replay"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// -----------------------------------------------------------------------------
// APIServer
// -----------------------------------------------------------------------------

type APIServer struct {
	Config *models.MConfig
	Logger *logger.Logger
	engine *gin.Engine
	http   *http.Server

	registry *race.Registry
	replay   *replay.Engine

	// nil when ingest is not throttled
	limiter *rate.Limiter
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewAPIServer(cfg *models.MConfig, logger *logger.Logger, registry *race.Registry, replayEngine *replay.Engine) *APIServer {
	// Set Gin mode
	if !strings.EqualFold(cfg.LogLevel, "DEBUG") {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &APIServer{
		Config:   cfg,
		Logger:   logger,
		engine:   gin.New(),
		registry: registry,
		replay:   replayEngine,
	}
	s.engine.Use(gin.Recovery())

	if cfg.Ingest.RatePerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.Ingest.RatePerSecond), cfg.Ingest.Burst)
	}

	// Add CORS Middleware
	s.engine.Use(func(c *gin.Context) {
		if origin := c.Request.Header.Get("Origin"); origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, "+ingestKeyHeader)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// setup web routes
	s.setupRoutes()
	return s
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *APIServer) setupRoutes() {
	api := s.engine.Group("/api")
	api.GET("/health", s.getHealth)
	api.POST("/ingest", s.authorize, s.throttle, s.postIngest)

	races := api.Group("/races")
	races.GET("", s.listRaces)
	races.POST("/:raceId/join", s.authorize, s.postJoin)
	races.GET("/:raceId/snapshot", s.getSnapshot)
	races.GET("/:raceId/replay", s.getReplay)

	// Prometheus scrape endpoint
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// WebSocket endpoint
	s.engine.GET("/ws/races/:raceId", s.handleWebSocket)
}

// Handler exposes the router, mainly for httptest.
func (s *APIServer) Handler() http.Handler {
	return s.engine
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

func (s *APIServer) Start() error {
	addr := fmt.Sprintf("%s:%d", s.Config.Host, s.Config.Port)
	s.Logger.Info("Starting server on %s", addr)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------

func (s *APIServer) Stop() error {
	if s.http == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.http.Shutdown(ctx)
}

// -----------------------------------------------------------------------------
// Route Handlers
// -----------------------------------------------------------------------------

func (s *APIServer) getHealth(c *gin.Context) {
	races, err := s.registry.ListRaces(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"races":  len(races),
		"time":   time.Now().UnixMilli(),
	})
}

// -----------------------------------------------------------------------------

func (s *APIServer) postIngest(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		metrics.UpdatesRejected.WithLabelValues("malformed").Inc()
		rejectInvalid(c, err)
		return
	}

	ack, err := s.registry.Update(c.Request.Context(), req.record())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ack)
}

// -----------------------------------------------------------------------------

func (s *APIServer) postJoin(c *gin.Context) {
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		rejectInvalid(c, err)
		return
	}

	ack, err := s.registry.Join(c.Request.Context(), c.Param("raceId"), req.BoatID, req.DisplayName, req.Nation)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ack)
}

// -----------------------------------------------------------------------------

func (s *APIServer) listRaces(c *gin.Context) {
	races, err := s.registry.ListRaces(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"races": races})
}

// -----------------------------------------------------------------------------

func (s *APIServer) getSnapshot(c *gin.Context) {
	view, err := s.registry.Snapshot(c.Request.Context(), c.Param("raceId"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// -----------------------------------------------------------------------------

func (s *APIServer) getReplay(c *gin.Context) {
	q, err := parseReplayQuery(c)
	if err != nil {
		s.writeError(c, err)
		return
	}

	result, err := s.replay.Replay(c.Request.Context(), q)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
