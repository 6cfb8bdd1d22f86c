package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"hourmeter-backend/internal/export"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportMaintenance handles GET /api/export/maintenance.xlsx.
func (h *Handler) ExportMaintenance(c *gin.Context) {
	machines, err := h.store.ListMachines(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	buf, err := export.MaintenanceWorkbook(machines)
	if err != nil {
		writeError(c, err)
		return
	}
	filename := fmt.Sprintf("maintenance-%s.xlsx", h.clock().In(h.loc).Format("2006-01-02"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
