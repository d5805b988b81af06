package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/shiftregister-vg/deltapad/pkg/delta"
	"github.com/shiftregister-vg/deltapad/pkg/logger"
	"github.com/shiftregister-vg/deltapad/pkg/ot"
)

type changeRequest struct {
	ID       string       `json:"id"`
	ClientID string       `json:"clientId"`
	Revision int64        `json:"revision"`
	Delta    *delta.Delta `json:"delta"`
}

type pairRequest struct {
	A        *delta.Delta `json:"a"`
	B        *delta.Delta `json:"b"`
	Priority bool         `json:"priority"`
}

type invertRequest struct {
	Delta *delta.Delta `json:"delta"`
	Base  *delta.Delta `json:"base"`
}

// Handler builds the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/healthz", s.handleHealth)
	r.GET("/ws", s.handleWebSocket)

	docs := r.Group("/api/docs")
	docs.GET("/:id", s.handleGetDocument)
	docs.DELETE("/:id", s.handleDeleteDocument)
	docs.GET("/:id/changes", s.handleGetChanges)
	docs.POST("/:id/changes", s.handlePostChange)
	docs.POST("/:id/undo/:change", s.handleUndo)

	ops := r.Group("/api/delta")
	ops.POST("/compose", handleCompose)
	ops.POST("/transform", handleTransform)
	ops.POST("/diff", s.handleDiff)
	ops.POST("/invert", handleInvert)

	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}

// statusFor maps errors from the document layer to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ot.ErrInvalidRevision),
		errors.Is(err, ot.ErrLengthMismatch),
		errors.Is(err, delta.ErrMalformedOp),
		errors.Is(err, delta.ErrNotDocument):
		return http.StatusBadRequest
	case errors.Is(err, ot.ErrUnknownChange):
		return http.StatusNotFound
	case errors.Is(err, ot.ErrDuplicateChange):
		return http.StatusConflict
	case errors.Is(err, ot.ErrRevisionTooOld):
		return http.StatusGone
	case errors.Is(err, errHubClosed), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func abortWithError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "path", c.Request.URL.Path, "error", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.store != nil {
		if err := s.store.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleGetDocument(c *gin.Context) {
	h, err := s.Hub(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	contents, revision := h.document().Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"id":       h.id,
		"revision": revision,
		"contents": contents,
	})
}

func (s *Server) handleDeleteDocument(c *gin.Context) {
	if err := s.DeleteDocument(c.Request.Context(), c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleGetChanges(c *gin.Context) {
	since, err := strconv.ParseInt(c.DefaultQuery("since", "0"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "since must be a revision number"})
		return
	}
	h, err := s.Hub(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	changes, err := h.document().Since(since)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if changes == nil {
		changes = []ot.Change{}
	}
	c.JSON(http.StatusOK, gin.H{"changes": changes})
}

func (s *Server) handlePostChange(c *gin.Context) {
	var req changeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Delta == nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "delta is required"})
		return
	}
	h, err := s.Hub(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	applied, err := h.Submit(c.Request.Context(), ot.Change{
		ID:       req.ID,
		ClientID: req.ClientID,
		Revision: req.Revision,
		Delta:    req.Delta,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, applied)
}

func (s *Server) handleUndo(c *gin.Context) {
	h, err := s.Hub(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	applied, err := h.Undo(c.Request.Context(), c.Param("change"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, applied)
}

func bindPair(c *gin.Context) (pairRequest, bool) {
	var req pairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return req, false
	}
	if req.A == nil || req.B == nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "a and b are required"})
		return req, false
	}
	return req, true
}

func handleCompose(c *gin.Context) {
	req, ok := bindPair(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"delta": req.A.Compose(req.B)})
}

func handleTransform(c *gin.Context) {
	req, ok := bindPair(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"delta": req.A.Transform(req.B, req.Priority)})
}

func (s *Server) handleDiff(c *gin.Context) {
	req, ok := bindPair(c)
	if !ok {
		return
	}
	diff, err := req.A.Diff(req.B, delta.WithDiffTimeout(s.cfg.Diff.Timeout))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"delta": diff})
}

func handleInvert(c *gin.Context) {
	var req invertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Delta == nil || req.Base == nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "delta and base are required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"delta": req.Delta.Invert(req.Base)})
}
