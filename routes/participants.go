package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"eventapi/apperr"
	"eventapi/models"
	"eventapi/services"
)

/* ---- Participants ---- */

// POST /api/v1/Participant
func (d *Deps) createParticipant(c *gin.Context) {
	var reg services.Registration
	// CapacityGate already read the body
	if err := c.ShouldBindBodyWith(&reg, binding.JSON); err != nil {
		badBody(c, err)
		return
	}
	summary, err := d.Participants.Create(c.Request.Context(), actorFrom(c), reg)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusCreated, "Registration received.", summary)
}

// GET /api/v1/Participant
func (d *Deps) getParticipants(c *gin.Context) { d.listParticipants(c, false) }

// GET /api/v1/Participant/archived
func (d *Deps) getArchivedParticipants(c *gin.Context) { d.listParticipants(c, true) }

func (d *Deps) listParticipants(c *gin.Context, archived bool) {
	f := models.ParticipantFilter{
		Search:   c.Query("search"),
		Status:   c.Query("status"),
		Archived: archived,
	}
	if v := c.Query("event_id"); v != "" {
		id, err := models.ParseID(v)
		if err != nil {
			fail(c, apperr.BadRequest("Invalid event id"))
			return
		}
		f.EventID = &id
	}
	var err error
	if f.From, f.To, err = dateRange(c); err != nil {
		fail(c, err)
		return
	}

	items, meta, err := d.Participants.List(c.Request.Context(), f, pageFrom(c))
	if err != nil {
		fail(c, err)
		return
	}
	okPage(c, items, meta, nil)
}

// GET /api/v1/Participant/:id
func (d *Deps) getParticipant(c *gin.Context) {
	view, err := d.Participants.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "", view)
}

// PATCH /api/v1/Participant/:id/status
func (d *Deps) updateParticipantStatus(c *gin.Context) {
	var body struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badBody(c, err)
		return
	}
	res, err := d.Participants.UpdateStatus(c.Request.Context(), actorFrom(c), c.Param("id"), body.Status)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "Participant status updated.", res)
}

// PATCH /api/v1/Participant/:id/attendance
func (d *Deps) updateAttendance(c *gin.Context) {
	var body struct {
		AttendanceStatus string `json:"attendance_status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badBody(c, err)
		return
	}
	p, err := d.Participants.UpdateAttendance(c.Request.Context(), actorFrom(c), c.Param("id"), body.AttendanceStatus)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "Attendance updated.", p)
}

// PATCH /api/v1/Participant/:id/archive
func (d *Deps) updateArchive(c *gin.Context) {
	var body struct {
		Archived *bool `json:"archived"`
	}
	// a string or number fails to decode into *bool
	if err := c.ShouldBindJSON(&body); err != nil || body.Archived == nil {
		fail(c, apperr.BadRequest("archived must be a boolean"))
		return
	}
	p, err := d.Participants.UpdateArchive(c.Request.Context(), actorFrom(c), c.Param("id"), *body.Archived)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "Archive flag updated.", p)
}

// POST /api/v1/Participant/:id/pass
func (d *Deps) retryPass(c *gin.Context) {
	pass, err := d.Participants.RetryPass(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusAccepted, "Pass issuance queued.", pass)
}

// DELETE /api/v1/Participant/:id
func (d *Deps) deleteParticipant(c *gin.Context) {
	if err := d.Participants.Delete(c.Request.Context(), actorFrom(c), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "Participant deleted.", nil)
}
