package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"eventapi/middlewares"
	"eventapi/services"
)

/* ---- Notifications ---- */

// GET /api/v1/Notification
func (d *Deps) getNotifications(c *gin.Context) {
	viewer := c.GetString(middlewares.CtxProfileID)
	items, meta, unread, err := d.Notifications.List(c.Request.Context(), viewer, pageFrom(c))
	if err != nil {
		fail(c, err)
		return
	}
	okPage(c, items, meta, gin.H{"unreadCount": unread})
}

// PATCH /api/v1/Notification/:id/read
func (d *Deps) markNotificationRead(c *gin.Context) {
	var body struct {
		ViewerID string `json:"viewer_id"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badBody(c, err)
		return
	}
	n, err := d.Notifications.MarkRead(c.Request.Context(), actorFrom(c), c.Param("id"), body.ViewerID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "Notification marked as read.", n)
}

// POST /api/v1/Notification
func (d *Deps) sendNotification(c *gin.Context) {
	var body struct {
		Targets []string `json:"targets" binding:"required,min=1"`
		services.Notice
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badBody(c, err)
		return
	}
	n, err := d.Notifications.NotifyMany(c.Request.Context(), body.Targets, body.Notice)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusCreated, "Notification sent.", n)
}

// DELETE /api/v1/Notification/:id
func (d *Deps) deleteNotification(c *gin.Context) {
	if err := d.Notifications.Delete(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "Notification deleted.", nil)
}
