// Package server exposes the orchestrator over HTTP.
package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/thawn/neurips-abstracts-sub001/internal/rag"
)

type Server struct {
	Orchestrator *rag.Orchestrator
	Log          *zap.Logger
}

func NewServer(orchestrator *rag.Orchestrator, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		Orchestrator: orchestrator,
		Log:          log,
	}
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.POST("/ask", s.Ask)
	r.GET("/facets", s.Facets)
	r.POST("/sessions/:id/reset", s.ResetSession)
	r.GET("/sessions/:id/export", s.ExportSession)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}

type AskRequest struct {
	SessionID string              `json:"session_id" binding:"required"`
	Question  string              `json:"question"`
	Selection map[string][]string `json:"selection"`
	NResults  int                 `json:"n_results"`
}

type AskResponse struct {
	Answer       string   `json:"answer"`
	GroundingIDs []string `json:"grounding_ids"`
}

func (s *Server) Ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	answer, err := s.Orchestrator.Ask(c.Request.Context(), req.SessionID, req.Question, req.Selection, req.NResults)
	if err != nil {
		s.Log.Warn("ask failed", zap.String("session_id", req.SessionID), zap.Error(err))
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	// GroundingIDs is empty but present when no papers matched; that case
	// is a successful answer, not a failure.
	c.JSON(http.StatusOK, AskResponse{
		Answer:       answer.Text,
		GroundingIDs: answer.GroundingIDs,
	})
}

func (s *Server) Facets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"facets": s.Orchestrator.Facets()})
}

func (s *Server) ResetSession(c *gin.Context) {
	s.Orchestrator.Reset(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

func (s *Server) ExportSession(c *gin.Context) {
	turns := s.Orchestrator.Export(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{
		"session_id": c.Param("id"),
		"turns":      turns,
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, rag.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, rag.ErrGenerationTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, rag.ErrRetrievalUnavailable), errors.Is(err, rag.ErrGenerationUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
