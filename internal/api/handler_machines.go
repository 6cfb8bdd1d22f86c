package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"hourmeter-backend/internal/maintenance"
	"hourmeter-backend/internal/parse"
	"hourmeter-backend/internal/usage"
)

type scheduleRequest struct {
	DailyHours float64 `json:"daily_hours"`
	// OperatingDays items are day names or ranges such as "mon-fri".
	OperatingDays []string `json:"operating_days"`
}

func (r scheduleRequest) schedule() (usage.Schedule, error) {
	var days []time.Weekday
	for _, item := range r.OperatingDays {
		parsed, err := parse.Weekdays(item)
		if err != nil {
			return usage.Schedule{}, &usage.ValidationError{Field: "operatingDays", Reason: err.Error()}
		}
		days = append(days, parsed...)
	}
	return usage.New(r.DailyHours, days)
}

type createMachineRequest struct {
	Name     string          `json:"name" binding:"required"`
	Schedule scheduleRequest `json:"schedule"`
}

// ListMachines handles GET /api/machines.
func (h *Handler) ListMachines(c *gin.Context) {
	machines, err := h.store.ListMachines(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	resp := make([]machineResponse, 0, len(machines))
	for _, m := range machines {
		resp = append(resp, newMachineResponse(m))
	}
	c.JSON(http.StatusOK, resp)
}

// GetMachine handles GET /api/machines/:id.
func (h *Handler) GetMachine(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	m, err := h.store.GetMachine(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newMachineResponse(m))
}

// CreateMachine handles POST /api/machines.
func (h *Handler) CreateMachine(c *gin.Context) {
	var req createMachineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	schedule, err := req.Schedule.schedule()
	if err != nil {
		writeError(c, err)
		return
	}
	m, err := h.store.CreateMachine(c.Request.Context(), req.Name, schedule)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newMachineResponse(m))
}

// PutSchedule handles PUT /api/machines/:id/schedule. Sending the current
// schedule again changes nothing.
func (h *Handler) PutSchedule(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	schedule, err := req.schedule()
	if err != nil {
		writeError(c, err)
		return
	}

	m, err := h.store.UpdateMachine(c.Request.Context(), id, func(m *maintenance.Machine) (bool, error) {
		return m.ReplaceSchedule(schedule)
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newMachineResponse(m))
}

// SetMachineActive returns the handler for the machine deactivate and reactivate routes.
func (h *Handler) SetMachineActive(active bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := int64Param(c, "id")
		if !ok {
			return
		}
		m, err := h.store.UpdateMachine(c.Request.Context(), id, func(m *maintenance.Machine) (bool, error) {
			if m.IsActive() == active {
				return false, nil
			}
			if active {
				m.Reactivate()
			} else {
				m.Deactivate()
			}
			return true, nil
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, newMachineResponse(m))
	}
}
