// Package api exposes the evaluation pipeline over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/vision-rehab-cdss-server/internal/config"
	"github.com/vision-rehab-cdss-server/internal/domain"
	"github.com/vision-rehab-cdss-server/internal/middleware"
	"github.com/vision-rehab-cdss-server/internal/normalizer"
	"github.com/vision-rehab-cdss-server/internal/service"
)

// Server represents the HTTP server
type Server struct {
	cfg       *config.Config
	logger    *logrus.Logger
	evaluator *service.Evaluator
	router    *gin.Engine
	server    *http.Server
}

// NewServer creates a new HTTP server instance
func NewServer(cfg *config.Config, logger *logrus.Logger, evaluator *service.Evaluator) *Server {
	// Set Gin mode based on environment
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestID())
	router.Use(middleware.RateLimit(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst))

	server := &Server{
		cfg:       cfg,
		logger:    logger,
		evaluator: evaluator,
		router:    router,
	}

	server.setupRoutes()

	return server
}

// Start starts the HTTP server and blocks until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/evaluate", s.handleEvaluate)
		v1.POST("/outcomes", s.handleLogOutcome)
		v1.GET("/patients/:id/history", s.handlePatientHistory)
		v1.GET("/patients/:id/summary", s.handlePatientSummary)
		v1.GET("/rules", s.handleListRules)
	}
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
		"version":   "1.0.0",
	})
}

// evaluateRequest accepts either a FHIR bundle or a flat manual record.
type evaluateRequest struct {
	Bundle   *normalizer.Bundle       `json:"bundle,omitempty"`
	Manual   *normalizer.ManualRecord `json:"manual,omitempty"`
	Language domain.Language          `json:"language,omitempty"`
}

func (s *Server) handleEvaluate(c *gin.Context) {
	var req evaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	if (req.Bundle == nil) == (req.Manual == nil) {
		s.badRequest(c, "exactly one of 'bundle' or 'manual' is required")
		return
	}

	lang := req.Language
	if lang == "" {
		lang = domain.LanguageArabic
	}
	if !lang.IsValid() {
		s.badRequest(c, fmt.Sprintf("unsupported language: %q", lang))
		return
	}

	var result *service.Result
	var err error
	if req.Bundle != nil {
		result, err = s.evaluator.EvaluateFHIR(c.Request.Context(), req.Bundle, lang)
	} else {
		result, err = s.evaluator.EvaluateManual(c.Request.Context(), req.Manual, lang)
	}
	if err != nil {
		s.internalError(c, err)
		return
	}

	// Guardrail rejection is a valid response, not an HTTP error.
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleLogOutcome(c *gin.Context) {
	var record domain.OutcomeRecord
	if err := c.ShouldBindJSON(&record); err != nil {
		s.badRequest(c, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	if err := s.evaluator.LogOutcome(c.Request.Context(), &record); err != nil {
		if errors.Is(err, domain.ErrPatientIDRequired) || errors.Is(err, domain.ErrTechniqueIDRequired) {
			s.badRequest(c, err.Error())
			return
		}
		s.internalError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status":       "logged",
		"patient_id":   record.PatientID,
		"technique_id": record.TechniqueID,
		"success":      record.Success,
	})
}

func (s *Server) handlePatientHistory(c *gin.Context) {
	history, err := s.evaluator.PatientHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.internalError(c, err)
		return
	}
	if history == nil {
		history = []*domain.OutcomeRecord{}
	}

	c.JSON(http.StatusOK, gin.H{
		"patient_id": c.Param("id"),
		"outcomes":   history,
		"count":      len(history),
	})
}

func (s *Server) handlePatientSummary(c *gin.Context) {
	summary, err := s.evaluator.PatientSummary(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (s *Server) handleListRules(c *gin.Context) {
	rules := s.evaluator.Rules()
	c.JSON(http.StatusOK, gin.H{
		"rules": rules,
		"count": len(rules),
	})
}

func (s *Server) badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":      message,
		"request_id": c.GetString("request_id"),
	})
}

func (s *Server) internalError(c *gin.Context, err error) {
	s.logger.WithError(err).Error("Request failed")
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":      "internal error",
		"request_id": c.GetString("request_id"),
	})
}
