// Package server provides the WarpDeck Gin-based dashboard API: snapshot,
// actions, toast and log endpoints, plus websocket and SSE push.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vesaa/warpdeck/internal/confirm"
	"github.com/vesaa/warpdeck/internal/dispatcher"
	"github.com/vesaa/warpdeck/internal/models"
	"github.com/vesaa/warpdeck/internal/notify"
)

// Snapshots is the read side of the view-model store.
type Snapshots interface {
	Snapshot() (models.Snapshot, bool)
	ChangeCh() <-chan struct{}
}

// Syncer runs a reconciliation cycle on demand.
type Syncer interface {
	Reconcile(ctx context.Context) models.Snapshot
}

// Actions dispatches operator commands.
type Actions interface {
	Dispatch(ctx context.Context, req dispatcher.Request, c dispatcher.Confirmer) dispatcher.Outcome
}

// LogFeed is the log ring and its live feed.
type LogFeed interface {
	Lines() []string
	Clear()
	Connected() bool
	Subscribe() (<-chan string, func())
}

// Toasts exposes the current outcome toast.
type Toasts interface {
	Current() (notify.Toast, bool)
	Subscribe() (<-chan notify.Toast, func())
}

// History reads the action journal.
type History interface {
	Recent(ctx context.Context, limit int) ([]models.ActionRecord, error)
}

// Deps are the collaborators the API serves. History may be nil.
type Deps struct {
	Snapshots Snapshots
	Syncer    Syncer
	Actions   Actions
	Logs      LogFeed
	Toasts    Toasts
	History   History
	Tickets   *confirm.Tickets
}

// Server holds the dashboard handlers.
type Server struct {
	Deps
	hub *Hub
	log *slog.Logger
}

// New creates a Server.
func New(d Deps) *Server {
	return &Server{
		Deps: d,
		hub:  NewHub(d.Snapshots, d.Toasts),
		log:  slog.With("component", "Web"),
	}
}

// Hub returns the websocket hub; run it with Hub().Run(ctx).
func (s *Server) Hub() *Hub { return s.hub }

// RegisterRoutes wires up the dashboard API on the given engine.
//
//	/api/v1/*   JSON API
//	/ws         websocket push
//	/healthz    liveness, /readyz readiness (first cycle done)
func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	})
	r.GET("/readyz", s.handleReady)
	r.GET("/ws", func(c *gin.Context) { s.hub.ServeWS(c.Writer, c.Request) })

	api := r.Group("/api/v1", noStore())
	{
		api.GET("/snapshot", s.handleSnapshot)
		api.POST("/reconcile", s.handleReconcile)

		api.GET("/actions", s.handleActionList)
		api.GET("/actions/history", s.handleHistory)
		api.POST("/actions/:name", s.handleAction)

		api.GET("/toast", s.handleToast)

		api.GET("/logs", s.handleLogs)
		api.DELETE("/logs", s.handleLogsClear)
		api.GET("/logs/stream", s.handleLogStream)
	}
}

// RequestLogger logs every request at debug level, failures at warn.
func RequestLogger() gin.HandlerFunc {
	log := slog.With("component", "HTTP")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		attrs := []any{"method", c.Request.Method, "path", c.Request.URL.Path, "status", status, "took", time.Since(start).String()}
		if status >= http.StatusInternalServerError {
			log.Warn("request failed", attrs...)
			return
		}
		log.Debug("request", attrs...)
	}
}

func noStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}

// ── Handlers ──────────────────────────────────────────────────────────────────

func (s *Server) handleReady(c *gin.Context) {
	if _, ready := s.Snapshots.Snapshot(); !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// handleSnapshot returns the latest view model.
//
//	GET /api/v1/snapshot
func (s *Server) handleSnapshot(c *gin.Context) {
	snap, ready := s.Snapshots.Snapshot()
	if !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no reconciliation cycle has completed yet"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// handleReconcile runs one cycle and returns its snapshot.
//
//	POST /api/v1/reconcile
func (s *Server) handleReconcile(c *gin.Context) {
	c.JSON(http.StatusOK, s.Syncer.Reconcile(c.Request.Context()))
}

func (s *Server) handleActionList(c *gin.Context) {
	type entry struct {
		Name    dispatcher.Action `json:"name"`
		Confirm bool              `json:"confirm"`
	}
	var out []entry
	for _, a := range dispatcher.Actions() {
		out = append(out, entry{Name: a, Confirm: dispatcher.NeedsConfirmation(a)})
	}
	c.JSON(http.StatusOK, out)
}

// handleAction dispatches one operator command.
//
//	POST /api/v1/actions/:name
//	Body: { "code"?, "email"?, "path"?, "confirm_token"? }
//
// Destructive actions without a valid ticket answer 409 with a fresh
// ticket; re-POST with it to proceed.
func (s *Server) handleAction(c *gin.Context) {
	action, err := dispatcher.Parse(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	var body struct {
		Code         string `json:"code"`
		Email        string `json:"email"`
		Path         string `json:"path"`
		ConfirmToken string `json:"confirm_token"`
	}
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	conf := newTicketConfirmer(s.Tickets, confirmationToken(c, body.ConfirmToken))
	req := dispatcher.Request{Action: action, Code: body.Code, Email: body.Email, Path: body.Path}
	// the action runs to completion even if the browser goes away
	out := s.Actions.Dispatch(context.WithoutCancel(c.Request.Context()), req, conf)

	switch out.Status {
	case models.OutcomeDeclined:
		s.requireConfirmation(c, action, conf)
	case models.OutcomeRejected:
		c.JSON(http.StatusUnprocessableEntity, out)
	default:
		c.JSON(http.StatusOK, out)
	}
}

// handleHistory lists recent journal entries, newest first.
//
//	GET /api/v1/actions/history?limit=50
func (s *Server) handleHistory(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}
	if limit > 500 {
		limit = 500
	}
	if s.History == nil {
		c.JSON(http.StatusOK, []models.ActionRecord{})
		return
	}
	recs, err := s.History.Recent(c.Request.Context(), limit)
	if err != nil {
		s.log.Error("reading journal", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "journal unavailable"})
		return
	}
	c.JSON(http.StatusOK, recs)
}

// handleToast returns the visible toast, or 204 when there is none.
func (s *Server) handleToast(c *gin.Context) {
	t, ok := s.Toasts.Current()
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) handleLogs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"lines": s.Logs.Lines(), "connected": s.Logs.Connected()})
}

// handleLogsClear empties the ring; the live feed keeps running.
func (s *Server) handleLogsClear(c *gin.Context) {
	s.Logs.Clear()
	c.Status(http.StatusNoContent)
}

// handleLogStream relays new log lines as server-sent events.
//
//	GET /api/v1/logs/stream
func (s *Server) handleLogStream(c *gin.Context) {
	lines, release := s.Logs.Subscribe()
	defer release()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case line, ok := <-lines:
			if !ok {
				return false
			}
			c.SSEvent("message", line)
			return true
		}
	})
}
