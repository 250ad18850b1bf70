package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"prepmind/internal/ai"
	"prepmind/internal/ai/keyring"
	"prepmind/internal/guidance"
	"prepmind/internal/metrics"
	"prepmind/internal/queue"
	"prepmind/internal/storage"
)

type Server struct {
	engine      *gin.Engine
	guidance    *guidance.Service
	descriptors []ai.Descriptor
	keys        *keyring.Ring
	store       *storage.Store
	tokenCache  *queue.TokenCache
	rateLimiter *queue.RateLimiter
	logger      zerolog.Logger
	metrics     *metrics.Metrics
	healthPath  string
	metricsPath string
}

type Config struct {
	Guidance    *guidance.Service
	Descriptors []ai.Descriptor
	Keys        *keyring.Ring
	Store       *storage.Store
	TokenCache  *queue.TokenCache
	RateLimiter *queue.RateLimiter
	Logger      zerolog.Logger
	Metrics     *metrics.Metrics
	HealthPath  string
	MetricsPath string
}

func New(cfg Config) *Server {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global()
	}
	if cfg.HealthPath == "" {
		cfg.HealthPath = "/healthz"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}

	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		engine:      gin.New(),
		guidance:    cfg.Guidance,
		descriptors: cfg.Descriptors,
		keys:        cfg.Keys,
		store:       cfg.Store,
		tokenCache:  cfg.TokenCache,
		rateLimiter: cfg.RateLimiter,
		logger:      cfg.Logger,
		metrics:     m,
		healthPath:  cfg.HealthPath,
		metricsPath: cfg.MetricsPath,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.Use(gin.Recovery())

	s.engine.GET(s.healthPath, func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	s.engine.GET(s.metricsPath, gin.WrapH(promhttp.Handler()))

	api := s.engine.Group("/api/v1")
	api.Use(s.authMiddleware(), s.rateLimitMiddleware())
	{
		api.POST("/guidance", s.handleGuidance)
		api.GET("/providers", s.handleProviders)
		api.GET("/keys/status", s.handleKeyStatus)
		api.GET("/usage/recent", s.handleRecentUsage)
	}
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) handleProviders(c *gin.Context) {
	type providerInfo struct {
		Name     string `json:"name"`
		Priority int    `json:"priority"`
		Model    string `json:"model"`
		Images   bool   `json:"images"`
		PDFs     bool   `json:"pdfs"`
		History  bool   `json:"history"`
	}
	out := make([]providerInfo, 0, len(s.descriptors))
	for _, d := range s.descriptors {
		out = append(out, providerInfo{
			Name:     d.Name,
			Priority: d.Priority,
			Model:    d.Model,
			Images:   d.Capabilities.Images,
			PDFs:     d.Capabilities.PDFs,
			History:  d.Capabilities.History,
		})
	}
	c.JSON(http.StatusOK, gin.H{"providers": out})
}

func (s *Server) handleKeyStatus(c *gin.Context) {
	if s.keys == nil {
		c.JSON(http.StatusOK, gin.H{"rotation": false, "keys": []keyring.KeyStatus{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rotation": true, "keys": s.keys.Snapshot(time.Now())})
}

func (s *Server) handleRecentUsage(c *gin.Context) {
	recs, err := s.store.RecentGuidanceRecords(c.Request.Context(), 50)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load recent usage")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load usage"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"usage": recs})
}
