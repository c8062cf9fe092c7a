package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/CoReason-AI/coreason-signal/internal/model"
)

// statusClientClosedRequest marks requests whose caller went away before a
// decision. No body is written.
const statusClientClosedRequest = 499

func abort(c *gin.Context, code int, detail string) {
	c.AbortWithStatusJSON(code, gin.H{"detail": detail})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

// handleStatus reports the state of the gateway.
func (s *Server) handleStatus(c *gin.Context) {
	if s.cfg.Engine == nil || s.cfg.Store == nil {
		abort(c, http.StatusServiceUnavailable, "Gateway not ready")
		return
	}
	body := gin.H{
		"device_id":          s.cfg.Device.ID,
		"status":             "active",
		"reflex_timeout_ms":  s.cfg.Engine.Timeout().Milliseconds(),
		"pending_decisions":  s.cfg.Engine.Pending(),
		"sop_count":          s.cfg.Store.Count(),
		"allowed_reflexes":   s.cfg.Device.AllowedReflexes,
		"stream_subscribers": 0,
	}
	if s.cfg.Hub != nil {
		body["stream_subscribers"] = s.cfg.Hub.Subscribers()
	}
	if s.cfg.Stats != nil {
		body["pipeline"] = s.cfg.Stats()
	}
	c.JSON(http.StatusOK, body)
}

// handleEvent decides one event and returns the reflex, or null.
func (s *Server) handleEvent(c *gin.Context) {
	var ev model.LogEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	if s.cfg.Engine == nil {
		abort(c, http.StatusServiceUnavailable, "Reflex engine not available")
		return
	}

	reflex, err := s.cfg.Engine.Decide(c.Request.Context(), ev)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		slog.Debug("caller left before a decision", "event_id", ev.ID, "error", err)
		c.AbortWithStatus(statusClientClosedRequest)
		return
	}
	if err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	if reflex != nil && s.cfg.Dispatch != nil {
		r := reflex.Clone()
		if r.Timestamp.IsZero() {
			r.Timestamp = time.Now()
		}
		if err := s.cfg.Dispatch.Write(c.Request.Context(), r); err != nil {
			slog.Error("reflex dispatch failed", "event_id", ev.ID, "error", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"event_id": ev.ID, "reflex": reflex})
}

// handleTrigger executes an operator-supplied reflex.
func (s *Server) handleTrigger(c *gin.Context) {
	var reflex model.AgentReflex
	if err := c.ShouldBindJSON(&reflex); err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := reflex.Validate(); err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	if s.cfg.Engine == nil {
		abort(c, http.StatusServiceUnavailable, "Reflex engine not available")
		return
	}
	if !s.cfg.Device.Allows(reflex.Action) {
		abort(c, http.StatusForbidden, "action "+string(reflex.Action)+" is not allowed on "+s.cfg.Device.ID)
		return
	}

	if err := s.cfg.Engine.Trigger(reflex); err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	slog.Info("manual reflex triggered", "action", reflex.Action, "remote", c.ClientIP())
	c.JSON(http.StatusOK, gin.H{"status": "triggered", "reflex": reflex})
}

// handleIngest adds SOP documents, upserting by id.
func (s *Server) handleIngest(c *gin.Context) {
	var docs []model.SOPDocument
	if err := c.ShouldBindJSON(&docs); err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	if s.cfg.Store == nil {
		abort(c, http.StatusServiceUnavailable, "SOP store not available")
		return
	}
	if err := s.cfg.Store.Add(c.Request.Context(), docs); err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ingested", "count": len(docs), "total": s.cfg.Store.Count()})
}
