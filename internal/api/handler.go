package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"

	"hourmeter-backend/internal/accrual"
	"hourmeter-backend/internal/logger"
	"hourmeter-backend/internal/maintenance"
	"hourmeter-backend/internal/store"
	"hourmeter-backend/internal/usage"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store   store.Store
	runner  accrual.DailyRunner
	webpush *webpush.Options
	loc     *time.Location
	clock   func() time.Time
}

// NewHandler creates a new API handler. loc is the timezone manual runs
// derive their weekday in.
func NewHandler(s store.Store, runner accrual.DailyRunner, webpushOptions *webpush.Options, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		store:   s,
		runner:  runner,
		webpush: webpushOptions,
		loc:     loc,
		clock:   time.Now,
	}
}

// writeError maps domain and store errors onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	var (
		alarmErr    *maintenance.ValidationError
		scheduleErr *usage.ValidationError
	)
	switch {
	case errors.As(err, &alarmErr), errors.As(err, &scheduleErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, maintenance.ErrMachineNotFound),
		errors.Is(err, maintenance.ErrAlarmNotFound),
		errors.Is(err, store.ErrSubscriptionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, maintenance.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "machine was modified concurrently, retry the request"})
	default:
		logger.ErrorKV(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func int64Param(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || v <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return v, true
}
