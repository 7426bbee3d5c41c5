package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"eventapi/apperr"
)

// GET /health
func (d *Deps) health(c *gin.Context) {
	if d.Health == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	checks := gin.H{}
	status, code := "ok", http.StatusOK
	for name, err := range d.Health(c.Request.Context()) {
		if err != nil {
			checks[name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	c.JSON(code, gin.H{"status": status, "checks": checks})
}

// GET /ws?token=<jwt>. Browsers cannot set headers on a websocket
// handshake, so the token rides in the query string.
func (d *Deps) serveWS(c *gin.Context) {
	claims, err := d.Tokens.VerifyToken(c.Query("token"))
	if err != nil {
		fail(c, apperr.Unauthorized("Not authorized."))
		return
	}
	if d.Sockets == nil {
		fail(c, apperr.New(apperr.KindInternal, "Live updates are unavailable."))
		return
	}
	d.Sockets.ServeWS(c.Writer, c.Request, claims.ProfileID, claims.Role)
}
