package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"eventapi/services"
)

// POST /api/v1/Feedback
func (d *Deps) submitFeedback(c *gin.Context) {
	var in services.FeedbackInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badBody(c, err)
		return
	}
	fb, err := d.Feedback.Submit(c.Request.Context(), actorFrom(c), in)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusCreated, "Thank you for your feedback!", fb)
}
