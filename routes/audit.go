package routes

import (
	"github.com/gin-gonic/gin"

	"eventapi/models"
)

// GET /api/v1/Audit
func (d *Deps) getAuditLogs(c *gin.Context) {
	f := models.AuditFilter{
		Module:      c.Query("module"),
		ReferenceID: c.Query("reference_id"),
		ActionType:  c.Query("action"),
	}
	items, meta, err := d.Audit.List(c.Request.Context(), f, pageFrom(c))
	if err != nil {
		fail(c, err)
		return
	}
	okPage(c, items, meta, nil)
}
