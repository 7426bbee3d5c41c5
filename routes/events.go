package routes

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"eventapi/apperr"
	"eventapi/models"
	"eventapi/services"
)

const maxImageSize = 5 << 20

/* ---- Events ---- */

// GET /api/v1/Event
func (d *Deps) getEvents(c *gin.Context) {
	f := models.EventFilter{
		OrganizerID: c.Query("organizer_id"),
		Status:      c.Query("status"),
		Search:      c.Query("search"),
	}
	var err error
	if f.From, f.To, err = dateRange(c); err != nil {
		fail(c, err)
		return
	}
	events, meta, err := d.EventSvc.List(c.Request.Context(), f, pageFrom(c))
	if err != nil {
		fail(c, err)
		return
	}
	okPage(c, events, meta, nil)
}

// GET /api/v1/Event/:id
func (d *Deps) getEvent(c *gin.Context) {
	event, err := d.EventSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "", event)
}

// POST /api/v1/Event
func (d *Deps) createEvent(c *gin.Context) {
	var in services.EventInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badBody(c, err)
		return
	}
	event, err := d.EventSvc.Create(c.Request.Context(), actorFrom(c), in)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusCreated, "Event created!", event)
}

// PUT /api/v1/Event/:id
func (d *Deps) updateEvent(c *gin.Context) {
	var in services.EventInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badBody(c, err)
		return
	}
	event, err := d.EventSvc.Update(c.Request.Context(), actorFrom(c), c.Param("id"), in)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "Event updated successfully!", event)
}

// DELETE /api/v1/Event/:id
func (d *Deps) deleteEvent(c *gin.Context) {
	if err := d.EventSvc.Delete(c.Request.Context(), actorFrom(c), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "Event deleted successfully!", nil)
}

// POST /api/v1/Event/:id/image (multipart field "image")
func (d *Deps) uploadEventImage(c *gin.Context) {
	fh, err := c.FormFile("image")
	if err != nil {
		fail(c, apperr.BadRequest("image file is required"))
		return
	}
	if fh.Size > maxImageSize {
		fail(c, apperr.BadRequest("image must be 5MB or smaller"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		fail(c, apperr.Internal("Could not read upload.", err))
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxImageSize))
	if err != nil {
		fail(c, apperr.Internal("Could not read upload.", err))
		return
	}

	img, err := d.EventSvc.SetImage(c.Request.Context(), actorFrom(c), c.Param("id"), data, http.DetectContentType(data))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "Image uploaded.", img)
}

// GET /api/v1/Event/:id/feedback
func (d *Deps) eventFeedback(c *gin.Context) {
	items, err := d.Feedback.ListByEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "", items)
}
