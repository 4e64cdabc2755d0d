// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package server exposes the serve-time HTTP API consumed by the
// client: fetch today's bite, generate it on demand, and save answers.
// Pipeline internals never surface to clients; a missing bite is a
// normal 404, not an error condition.
package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/strokecovery/bites-engine/internal/bites"
	"github.com/strokecovery/bites-engine/internal/knowledge"
	"github.com/strokecovery/bites-engine/pkg/types"
)

// Server holds the API's dependencies.
type Server struct {
	store *knowledge.Store
	bites *bites.Service
	log   *zap.Logger
	today func() string
}

// New wires the API. todayFn returns the current date as YYYY-MM-DD;
// tests substitute a fixed date.
func New(store *knowledge.Store, svc *bites.Service, log *zap.Logger, todayFn func() string) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{store: store, bites: svc, log: log, today: todayFn}
}

// Router builds the gin engine with all routes attached.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLog())

	r.GET("/healthz", s.health)

	api := r.Group("/api")
	{
		api.GET("/bites/today", s.todayBite)
		api.POST("/bites/generate", s.generateBite)
		api.POST("/bites/answers", s.saveAnswers)
	}
	return r
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		s.log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()))
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// todayBite returns the stored bite for today, or 404 with
// {"error":"not_generated"} when none exists yet. The client treats
// the 404 as a cue to call generate, not as a failure.
func (s *Server) todayBite(c *gin.Context) {
	patientID := c.Query("patient_id")
	if patientID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "patient_id is required"})
		return
	}

	bite, err := s.store.GetBite(c.Request.Context(), patientID, s.today())
	if err != nil {
		if errors.Is(err, knowledge.ErrNotGenerated) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_generated"})
			return
		}
		s.log.Error("loading today's bite", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	c.JSON(http.StatusOK, bite)
}

type generateRequest struct {
	PatientID       string `json:"patient_id" binding:"required"`
	StrokeType      string `json:"stroke_type"`
	DaysSinceStroke int    `json:"days_since_stroke"`
}

// generateBite is the idempotent create-or-fetch for today's bite.
func (s *Server) generateBite(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	profile := types.PatientProfile{
		PatientID:       req.PatientID,
		StrokeType:      req.StrokeType,
		DaysSinceStroke: req.DaysSinceStroke,
	}

	bite, err := s.bites.GetOrCreateBite(c.Request.Context(), profile, s.today())
	if err != nil {
		s.log.Error("generating bite",
			zap.String("patient_id", req.PatientID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	c.JSON(http.StatusOK, bite)
}

type answersRequest struct {
	BiteID    string `json:"bite_id" binding:"required"`
	PatientID string `json:"patient_id" binding:"required"`
	Answers   []struct {
		CardID        string `json:"card_id" binding:"required"`
		SelectedKey   string `json:"selected_key" binding:"required"`
		QuestionText  string `json:"question_text"`
		SelectedLabel string `json:"selected_label"`
	} `json:"answers" binding:"required"`
}

// saveAnswers appends question answers for a bite the patient owns.
func (s *Server) saveAnswers(c *gin.Context) {
	var req answersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	answers := make([]types.Answer, len(req.Answers))
	for i, a := range req.Answers {
		answers[i] = types.Answer{
			ID:            uuid.NewString(),
			CardID:        a.CardID,
			SelectedKey:   a.SelectedKey,
			QuestionText:  a.QuestionText,
			SelectedLabel: a.SelectedLabel,
		}
	}

	if err := s.store.InsertAnswers(c.Request.Context(), req.BiteID, req.PatientID, answers); err != nil {
		s.log.Warn("saving answers rejected",
			zap.String("bite_id", req.BiteID), zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"saved": len(answers)})
}
