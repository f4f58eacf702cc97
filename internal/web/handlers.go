package web

import (
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Areeb3176/schedule-agent/internal/domain"
	"github.com/Areeb3176/schedule-agent/internal/fanout"
)

type grantRequest struct {
	Email        string `json:"email" binding:"required"`
	Name         string `json:"name"`
	AccessToken  string `json:"access_token" binding:"required"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

func (s *Server) handleGrant(c *gin.Context) {
	var req grantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := s.grants.HandleGrant(c.Request.Context(),
		req.Email, req.Name, req.AccessToken, req.RefreshToken, req.ExpiresIn)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id": user.ID,
		"email":   user.Email,
		"role":    user.Role,
	})
}

type sendRequest struct {
	UserIDs       []int64 `json:"user_ids"`
	BroadcastFrom int64   `json:"broadcast_from"`
	IncludeAdmins bool    `json:"include_admins"`
	FetchDays     int     `json:"fetch_days"`
}

func (s *Server) handleSend(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.FetchDays != 0 {
		if err := domain.ValidateWindow(req.FetchDays); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	res, err := s.orch.Run(c.Request.Context(), fanout.Params{
		UserIDs:       req.UserIDs,
		BroadcastFrom: req.BroadcastFrom,
		IncludeAdmins: req.IncludeAdmins,
		WindowDays:    req.FetchDays,
	})
	if err != nil {
		s.log.Error("manual send failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleListUsers(c *gin.Context) {
	users, err := s.repo.ListUsers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]gin.H, 0, len(users))
	for _, u := range users {
		tokenValid := false
		if cred, err := s.repo.GetCredential(c.Request.Context(), u.ID); err == nil {
			tokenValid = !cred.Expired(time.Now())
		}
		out = append(out, gin.H{
			"id":          u.ID,
			"email":       u.Email,
			"name":        u.Name,
			"is_admin":    u.IsAdmin(),
			"fetch_days":  u.Window(),
			"token_valid": tokenValid,
		})
	}
	c.JSON(http.StatusOK, gin.H{"users": out, "total": len(out)})
}

type preferencesRequest struct {
	FetchDays int `json:"fetch_days" binding:"required"`
}

func (s *Server) handleSetPreferences(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	var req preferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.repo.SetFetchDays(c.Request.Context(), id, req.FetchDays); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrInvalidWindow) {
			status = http.StatusBadRequest
		} else if errors.Is(err, domain.ErrNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("fetch days saved: %d", req.FetchDays)})
}

func (s *Server) handleDeleteUser(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	if err := s.repo.DeleteUser(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// handleTokenCheck exercises the refresher for one user so an admin can see
// whether a grant is still usable.
func (s *Server) handleTokenCheck(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	if _, err := s.refresher.GetValidCredential(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusOK, gin.H{"valid": false, "reason": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

type scheduleRequest struct {
	// Local wall time in the reference timezone, "2006-01-02T15:04".
	Datetime  string  `json:"datetime" binding:"required"`
	UserIDs   []int64 `json:"user_ids"`
	FetchDays int     `json:"fetch_days"`
}

func (s *Server) handleScheduleJob(c *gin.Context) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.FetchDays == 0 {
		req.FetchDays = domain.DefaultFetchDays
	}

	var createdBy int64
	if u := actingUser(c); u != nil {
		createdBy = u.ID
	}

	job, err := s.sched.Schedule(c.Request.Context(), req.Datetime, req.UserIDs, req.FetchDays, createdBy)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrPastTime) || errors.Is(err, domain.ErrInvalidWindow) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job_id":       job.ID,
		"scheduled_at": job.FireAt.In(s.loc).Format("2006-01-02 15:04"),
	})
}

func (s *Server) handleListJobs(c *gin.Context) {
	jobs, err := s.sched.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]gin.H, 0, len(jobs))
	pending := 0
	for _, j := range jobs {
		if j.Status == domain.JobPending {
			pending++
		}
		recipients := "all users"
		if len(j.UserIDs) > 0 {
			recipients = strconv.Itoa(len(j.UserIDs)) + " selected"
		}
		out = append(out, gin.H{
			"job_id":     j.ID,
			"fire_at":    j.FireAt.In(s.loc).Format("2006-01-02 15:04"),
			"status":     j.Status,
			"recipients": recipients,
			"fetch_days": j.FetchDays,
			"created_by": j.CreatedBy,
		})
	}
	c.JSON(http.StatusOK, gin.H{"jobs": out, "pending": pending})
}

func (s *Server) handleCancelJob(c *gin.Context) {
	changed, err := s.sched.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	// Cancelling an already-terminal job is an idempotent success.
	c.JSON(http.StatusOK, gin.H{"cancelled": changed})
}

func (s *Server) handleClearJobs(c *gin.Context) {
	n, err := s.sched.ClearFinished(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleared": n})
}

// logFilterFromQuery parses optional start/end dates (local, YYYY-MM-DD)
// and a row limit.
func (s *Server) logFilterFromQuery(c *gin.Context, defaultLimit int) (domain.LogFilter, error) {
	f := domain.LogFilter{Limit: defaultLimit}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return f, fmt.Errorf("invalid limit %q", v)
		}
		f.Limit = n
	}
	if v := c.Query("start"); v != "" {
		t, err := time.ParseInLocation("2006-01-02", v, s.loc)
		if err != nil {
			return f, fmt.Errorf("invalid start date %q", v)
		}
		f.Start = &t
	}
	if v := c.Query("end"); v != "" {
		t, err := time.ParseInLocation("2006-01-02", v, s.loc)
		if err != nil {
			return f, fmt.Errorf("invalid end date %q", v)
		}
		// Include the whole end day.
		e := t.AddDate(0, 0, 1).Add(-time.Second)
		f.End = &e
	}
	return f, nil
}

func (s *Server) handleListLogs(c *gin.Context) {
	f, err := s.logFilterFromQuery(c, 500)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	logs, err := s.repo.ListDeliveryRecords(c.Request.Context(), f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]gin.H, 0, len(logs))
	for _, l := range logs {
		out = append(out, gin.H{
			"id":           l.ID,
			"user_name":    l.UserName,
			"user_email":   l.UserEmail,
			"subject":      l.Subject,
			"status":       l.Status,
			"error":        l.Error,
			"events_count": l.EventsCount,
			"fetch_days":   l.FetchDays,
			"sent_at":      l.SentAt.In(s.loc).Format("2006-01-02 15:04:05"),
		})
	}
	c.JSON(http.StatusOK, gin.H{"logs": out, "total": len(out)})
}

func (s *Server) handleLogStats(c *gin.Context) {
	f, err := s.logFilterFromQuery(c, 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	stats, err := s.repo.DeliveryStats(c.Request.Context(), f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total":   stats.Total,
		"success": stats.Success,
		"failed":  stats.Failed,
	})
}

func (s *Server) handleExportLogs(c *gin.Context) {
	f, err := s.logFilterFromQuery(c, 5000)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	logs, err := s.repo.ListDeliveryRecords(c.Request.Context(), f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	filename := "email_logs_" + time.Now().In(s.loc).Format("20060102_150405") + ".csv"
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Header("Content-Type", "text/csv")

	w := csv.NewWriter(c.Writer)
	_ = w.Write([]string{"ID", "Date", "Time", "User Name", "Email", "Subject", "Status", "Events", "Days", "Error"})
	for _, l := range logs {
		local := l.SentAt.In(s.loc)
		_ = w.Write([]string{
			l.ID,
			local.Format("2006-01-02"),
			local.Format("15:04:05"),
			l.UserName,
			l.UserEmail,
			l.Subject,
			l.Status,
			strconv.Itoa(l.EventsCount),
			strconv.Itoa(l.FetchDays),
			l.Error,
		})
	}
	w.Flush()
}
