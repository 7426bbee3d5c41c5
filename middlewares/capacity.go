package middlewares

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"eventapi/apperr"
	"eventapi/models"
)

// CapacityGate rejects a registration early when its event is missing or
// already full. It is only a fast path: the seat itself is taken atomically
// when the participant is created. The body stays readable through
// ShouldBindBodyWith.
func CapacityGate(events models.EventRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var peek struct {
			EventID string `json:"event_id"`
		}
		if err := c.ShouldBindBodyWith(&peek, binding.JSON); err != nil || peek.EventID == "" {
			abort(c, apperr.BadRequest("event_id is required"))
			return
		}
		id, err := models.ParseID(peek.EventID)
		if err != nil {
			abort(c, apperr.BadRequest("Invalid event id"))
			return
		}

		ev, err := events.GetByID(c.Request.Context(), id)
		if errors.Is(err, models.ErrNotFound) {
			abort(c, apperr.NotFound("Event not found"))
			return
		}
		if err != nil {
			abort(c, apperr.Internal("Could not fetch event. Try again later.", err))
			return
		}
		if ev.RegisteredCount >= ev.Capacity {
			abort(c, apperr.CapacityExceeded("Event is full."))
			return
		}

		c.Next()
	}
}
