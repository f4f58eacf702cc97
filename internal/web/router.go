// Package web is the admin HTTP surface: manual and scheduled sends, user
// management and the delivery audit log. Session handling lives in front of
// this service; it trusts the acting user id supplied by that layer and
// enforces only the admin-role gate.
package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Areeb3176/schedule-agent/internal/auth"
	"github.com/Areeb3176/schedule-agent/internal/domain"
	"github.com/Areeb3176/schedule-agent/internal/fanout"
	"github.com/Areeb3176/schedule-agent/internal/scheduler"
	"github.com/Areeb3176/schedule-agent/internal/store"
	"github.com/Areeb3176/schedule-agent/internal/token"
)

// Server holds the handlers' collaborators.
type Server struct {
	repo      store.Repo
	orch      *fanout.Orchestrator
	sched     *scheduler.Scheduler
	grants    *auth.Service
	refresher *token.Refresher
	loc       *time.Location
	log       *zap.Logger
}

// New creates the admin API server.
func New(repo store.Repo, orch *fanout.Orchestrator, sched *scheduler.Scheduler, grants *auth.Service, refresher *token.Refresher, loc *time.Location, log *zap.Logger) *Server {
	return &Server{
		repo:      repo,
		orch:      orch,
		sched:     sched,
		grants:    grants,
		refresher: refresher,
		loc:       loc,
		log:       log,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	// Called by the external OAuth layer after a successful exchange.
	r.POST("/api/grants", s.handleGrant)

	api := r.Group("/api", s.requireAdmin)
	{
		api.POST("/send", s.handleSend)

		api.GET("/users", s.handleListUsers)
		api.PUT("/users/:id/preferences", s.handleSetPreferences)
		api.DELETE("/users/:id", s.handleDeleteUser)
		api.GET("/users/:id/token", s.handleTokenCheck)

		api.POST("/jobs", s.handleScheduleJob)
		api.GET("/jobs", s.handleListJobs)
		api.POST("/jobs/:id/cancel", s.handleCancelJob)
		api.POST("/jobs/clear", s.handleClearJobs)

		api.GET("/logs", s.handleListLogs)
		api.GET("/logs/stats", s.handleLogStats)
		api.GET("/logs/export", s.handleExportLogs)
	}

	return r
}

// requireAdmin resolves the acting user from the X-User-ID header (set by
// the session layer in front) and rejects non-admins.
func (s *Server) requireAdmin(c *gin.Context) {
	idStr := c.GetHeader("X-User-ID")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing acting user"})
		return
	}
	user, err := s.repo.GetUser(c.Request.Context(), id)
	if err != nil || !user.IsAdmin() {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
		return
	}
	c.Set("actingUser", user)
	c.Next()
}

func actingUser(c *gin.Context) *domain.User {
	if v, ok := c.Get("actingUser"); ok {
		if u, ok := v.(*domain.User); ok {
			return u
		}
	}
	return nil
}
