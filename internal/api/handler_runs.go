package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"hourmeter-backend/internal/accrual"
	"hourmeter-backend/internal/parse"
)

const maxRunsLimit = 500

// ListRuns handles GET /api/runs?limit=N.
func (h *Handler) ListRuns(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxRunsLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
			return
		}
		limit = n
	}
	runs, err := h.store.ListRuns(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, runs)
}

type triggerRunRequest struct {
	// Day replays a weekday. Without At the run is dated on the latest such
	// day; with At it must name At's weekday.
	Day string `json:"day"`
	// At is the run timestamp; it defaults to the current time.
	At *time.Time `json:"at"`
}

// TriggerRun handles POST /api/runs. It runs the daily accrual immediately
// and returns the report.
func (h *Handler) TriggerRun(c *gin.Context) {
	if h.runner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "accrual is not enabled"})
		return
	}

	var req triggerRunRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	now := h.clock().In(h.loc)
	if req.At != nil {
		now = req.At.In(h.loc)
	}
	if req.Day != "" {
		d, err := parse.Weekday(req.Day)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.At != nil && d != now.Weekday() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "day " + d.String() + " does not match at, which is a " + now.Weekday().String()})
			return
		}
		now = accrual.LatestOn(now, d)
	}

	// The run finishes even if the client goes away.
	ctx := context.WithoutCancel(c.Request.Context())
	report, err := h.runner.RunDailyAccrual(ctx, now.Weekday(), now)
	if errors.Is(err, accrual.ErrWeekdayMismatch) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "report": report})
		return
	}
	c.JSON(http.StatusOK, report)
}
