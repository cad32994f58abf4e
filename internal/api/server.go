package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"uptime-sentry/internal/config"
	"uptime-sentry/internal/metrics"
	"uptime-sentry/internal/monitor"
)

// Server exposes the monitor service over REST.
type Server struct {
	cfg     *config.Config
	service *monitor.Service
	router  *gin.Engine
	srv     *http.Server
}

func NewServer(cfg *config.Config, service *monitor.Service, m *metrics.Metrics) *Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.Logger())
	router.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "X-Owner-ID"},
		ExposeHeaders: []string{"Content-Length"},
	}))

	s := &Server{
		cfg:     cfg,
		service: service,
		router:  router,
	}
	s.setupRoutes(m)

	s.srv = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}
	return s
}

func (s *Server) Start() error {
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Router returns the gin engine, used by handler tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupRoutes(m *metrics.Metrics) {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))

	v1 := s.router.Group("/api/v1")
	monitors := v1.Group("/monitors")
	{
		monitors.POST("", s.createMonitor)
		monitors.GET("", s.listMonitors)
		monitors.GET("/summary", s.getSummary)
		monitors.GET("/incidents/active", s.getActiveIncidents)
		monitors.POST("/bulk", s.bulkUpdate)
		monitors.GET("/:id", s.getMonitor)
		monitors.PUT("/:id", s.updateMonitor)
		monitors.DELETE("/:id", s.deleteMonitor)
		monitors.POST("/:id/check", s.triggerCheck)
		monitors.GET("/:id/checks", s.getChecks)
		monitors.GET("/:id/incidents", s.getIncidents)
		monitors.GET("/:id/stats", s.getStats)
		monitors.GET("/:id/anomalies", s.getAnomalies)
		monitors.GET("/:id/ssl", s.getSSLInfo)
		monitors.GET("/:id/export", s.exportData)
	}
}

// ownerID resolves the caller's identity. The identity provider is
// opaque to the core; all it contributes is this stable id.
func ownerID(c *gin.Context) string {
	if id := c.GetHeader("X-Owner-ID"); id != "" {
		return id
	}
	return "default"
}

func (s *Server) createMonitor(c *gin.Context) {
	var input monitor.CreateMonitorInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if input.OwnerID == "" {
		input.OwnerID = ownerID(c)
	}

	m, err := s.service.CreateMonitor(c.Request.Context(), input)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (s *Server) listMonitors(c *gin.Context) {
	list, err := s.service.GetAllMonitors(c.Request.Context(), ownerID(c))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) getMonitor(c *gin.Context) {
	m, err := s.service.GetMonitor(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (s *Server) updateMonitor(c *gin.Context) {
	var patch monitor.UpdateMonitorInput
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	m, err := s.service.UpdateMonitor(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (s *Server) deleteMonitor(c *gin.Context) {
	if err := s.service.DeleteMonitor(c.Request.Context(), c.Param("id")); err != nil {
		s.renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) triggerCheck(c *gin.Context) {
	result, err := s.service.TriggerCheck(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) getChecks(c *gin.Context) {
	limit := queryInt(c, "limit", 0)
	results, err := s.service.GetMonitorChecks(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

func (s *Server) getIncidents(c *gin.Context) {
	limit := queryInt(c, "limit", 0)
	incidents, err := s.service.GetMonitorIncidents(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, incidents)
}

func (s *Server) getStats(c *gin.Context) {
	st, err := s.service.GetMonitorStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) getAnomalies(c *gin.Context) {
	anomalies, err := s.service.GetLatencyAnomalies(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, anomalies)
}

func (s *Server) getSSLInfo(c *gin.Context) {
	info, err := s.service.GetSSLInfo(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) getActiveIncidents(c *gin.Context) {
	conditions, err := s.service.GetActiveIncidents(c.Request.Context(), ownerID(c))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, conditions)
}

func (s *Server) getSummary(c *gin.Context) {
	summary, err := s.service.GetSummary(c.Request.Context(), ownerID(c))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

type bulkRequest struct {
	IDs    []string `json:"ids" binding:"required"`
	Action string   `json:"action" binding:"required"`
}

func (s *Server) bulkUpdate(c *gin.Context) {
	var req bulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.service.BulkUpdate(c.Request.Context(), req.IDs, monitor.BulkAction(req.Action))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) exportData(c *gin.Context) {
	format := monitor.ExportFormat(c.DefaultQuery("format", "json"))
	data, err := s.service.ExportData(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		s.renderError(c, err)
		return
	}

	switch format {
	case monitor.ExportCSV:
		c.Header("Content-Disposition", "attachment; filename=checks.csv")
		c.Data(http.StatusOK, "text/csv", data)
	default:
		c.Data(http.StatusOK, "application/json", data)
	}
}

func (s *Server) renderError(c *gin.Context, err error) {
	switch {
	case monitor.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": "monitor not found"})
	case monitor.IsInvalidURL(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid url"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
