package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"eventapi/services"
)

/* ---- Users ---- */

// POST /api/v1/auth/signup
func (d *Deps) signup(c *gin.Context) {
	var in services.SignupInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badBody(c, err)
		return
	}
	user, err := d.Auth.Signup(c.Request.Context(), actorFrom(c), in)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusCreated, "User created successfully", user)
}

// POST /api/v1/auth/users (admin): same as signup, but staff roles are allowed.
func (d *Deps) createUser(c *gin.Context) { d.signup(c) }

// POST /api/v1/auth/login
func (d *Deps) login(c *gin.Context) {
	var in struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badBody(c, err)
		return
	}
	token, user, err := d.Auth.Login(c.Request.Context(), in.Email, in.Password)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "Login successful!", gin.H{"token": token, "user": user})
}
