package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"eventapi/apperr"
	"eventapi/models"
)

const moduleProposals = "Proposals"

type ProposalInput struct {
	Title             string    `json:"title" binding:"required"`
	Description       string    `json:"description"`
	Venue             string    `json:"venue" binding:"required"`
	ProposedDate      time.Time `json:"proposed_date" binding:"required"`
	ExpectedAttendees int       `json:"expected_attendees" binding:"gte=0"`
}

type ProposalService struct {
	proposals models.ProposalRepository
	notifier  *Notifier
	audit     *Auditor
	now       func() time.Time
	log       *slog.Logger
}

func NewProposalService(proposals models.ProposalRepository, notifier *Notifier, audit *Auditor) *ProposalService {
	return &ProposalService{
		proposals: proposals,
		notifier:  notifier,
		audit:     audit,
		now:       time.Now,
		log:       slog.With("component", "proposals"),
	}
}

func (s *ProposalService) Create(ctx context.Context, actor Actor, in ProposalInput) (models.Proposal, error) {
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Venue) == "" || in.ProposedDate.IsZero() {
		return models.Proposal{}, apperr.BadRequest("title, venue and proposed_date are required")
	}
	p := models.Proposal{
		Title:             strings.TrimSpace(in.Title),
		Description:       in.Description,
		OrganizerID:       actor.ProfileID,
		Venue:             strings.TrimSpace(in.Venue),
		ProposedDate:      in.ProposedDate.UTC(),
		ExpectedAttendees: in.ExpectedAttendees,
		Status:            models.ProposalPending,
		CreatedAt:         s.now().UTC(),
	}
	if err := s.proposals.Create(ctx, &p); err != nil {
		return models.Proposal{}, apperr.Internal("Could not save proposal. Try again later.", err)
	}
	s.audit.Record(ctx, actor, Entry{
		Action:      models.ActionCreate,
		Module:      moduleProposals,
		ReferenceID: p.ID.Hex(),
		Description: "Submitted proposal " + p.Title,
		New:         p,
	})
	return p, nil
}

// List shows organizers their own proposals; reviewers see all.
func (s *ProposalService) List(ctx context.Context, actor Actor, f models.ProposalFilter, p models.Page) ([]models.Proposal, models.PageMeta, error) {
	if actor.Role == models.RoleOrganizer {
		f.OrganizerID = actor.ProfileID
	}
	items, total, err := s.proposals.List(ctx, f, p)
	if err != nil {
		return nil, models.PageMeta{}, apperr.Internal("Could not fetch proposals. Try again later.", err)
	}
	if items == nil {
		items = []models.Proposal{}
	}
	return items, models.NewPageMeta(p, total), nil
}

func (s *ProposalService) Decide(ctx context.Context, actor Actor, id, status string) (models.Proposal, error) {
	oid, err := parseID(id, "proposal")
	if err != nil {
		return models.Proposal{}, err
	}
	if status != models.ProposalApproved && status != models.ProposalRejected {
		return models.Proposal{}, apperr.BadRequest("Status must be Approved or Rejected")
	}
	p, err := s.proposals.GetByID(ctx, oid)
	if err != nil {
		return models.Proposal{}, lookupErr(err, "Proposal")
	}
	if err := s.proposals.Decide(ctx, oid, status); err != nil {
		if errors.Is(err, models.ErrStaleState) {
			return models.Proposal{}, apperr.Conflict("Proposal has already been decided")
		}
		return models.Proposal{}, lookupErr(err, "Proposal")
	}
	old := p.Status
	p.Status = status

	if s.notifier != nil && p.OrganizerID != "" {
		if _, err := s.notifier.Notify(ctx, p.OrganizerID, Notice{
			Title:    "Proposal " + strings.ToLower(status),
			Message:  "Your proposal \"" + p.Title + "\" was " + strings.ToLower(status) + ".",
			Category: "proposal",
			Priority: PriorityHigh,
		}); err != nil {
			s.log.Warn("organizer notification failed", "proposal", id, "error", err)
		}
	}

	action := models.ActionApprove
	if status == models.ProposalRejected {
		action = models.ActionReject
	}
	s.audit.Record(ctx, actor, Entry{
		Action:      action,
		Module:      moduleProposals,
		ReferenceID: id,
		Description: "Proposal " + strings.ToLower(status),
		Old:         map[string]string{"status": old},
		New:         map[string]string{"status": status},
	})
	return p, nil
}
