package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"eventapi/models"
	"eventapi/services"
)

/* ---- Proposals ---- */

// POST /api/v1/Proposal
func (d *Deps) createProposal(c *gin.Context) {
	var in services.ProposalInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badBody(c, err)
		return
	}
	p, err := d.Proposals.Create(c.Request.Context(), actorFrom(c), in)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusCreated, "Proposal submitted.", p)
}

// GET /api/v1/Proposal
func (d *Deps) getProposals(c *gin.Context) {
	f := models.ProposalFilter{Status: c.Query("status")}
	items, meta, err := d.Proposals.List(c.Request.Context(), actorFrom(c), f, pageFrom(c))
	if err != nil {
		fail(c, err)
		return
	}
	okPage(c, items, meta, nil)
}

// PATCH /api/v1/Proposal/:id/decision
func (d *Deps) decideProposal(c *gin.Context) {
	var body struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badBody(c, err)
		return
	}
	p, err := d.Proposals.Decide(c.Request.Context(), actorFrom(c), c.Param("id"), body.Status)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, "Proposal "+p.Status+".", p)
}
