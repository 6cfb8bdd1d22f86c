package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"hourmeter-backend/internal/maintenance"
)

type alarmRequest struct {
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	IntervalHours float64  `json:"interval_hours"`
	RelatedParts  []string `json:"related_parts"`
}

// AddAlarm handles POST /api/machines/:id/alarms.
func (h *Handler) AddAlarm(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	var req alarmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	_, err := h.store.AddAlarm(c.Request.Context(), id, maintenance.Definition{
		Title:         req.Title,
		Description:   req.Description,
		IntervalHours: req.IntervalHours,
		RelatedParts:  req.RelatedParts,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	m, err := h.store.GetMachine(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newMachineResponse(m))
}

// SetAlarmActive returns the handler for the alarm deactivate and reactivate
// routes. Trigger history is kept either way.
func (h *Handler) SetAlarmActive(active bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := int64Param(c, "id")
		if !ok {
			return
		}
		alarmID, ok := int64Param(c, "alarm_id")
		if !ok {
			return
		}

		m, err := h.store.UpdateMachine(c.Request.Context(), id, func(m *maintenance.Machine) (bool, error) {
			a, err := m.Alarm(alarmID)
			if err != nil {
				return false, err
			}
			if a.IsActive() == active {
				return false, nil
			}
			if active {
				a.Reactivate()
			} else {
				a.Deactivate()
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
