package services

import (
	"context"
	"errors"
	"time"

	"eventapi/apperr"
	"eventapi/models"
	"eventapi/utils"
)

const moduleFeedback = "Feedback"

type FeedbackInput struct {
	Token   string `json:"token" binding:"required"`
	Rating  int    `json:"rating" binding:"required,min=1,max=5"`
	Comment string `json:"comment"`
}

type FeedbackService struct {
	feedback     models.FeedbackRepository
	participants models.ParticipantRepository
	tokens       *utils.TokenIssuer
	audit        *Auditor
	now          func() time.Time
}

func NewFeedbackService(feedback models.FeedbackRepository, participants models.ParticipantRepository, tokens *utils.TokenIssuer, audit *Auditor) *FeedbackService {
	return &FeedbackService{feedback: feedback, participants: participants, tokens: tokens, audit: audit, now: time.Now}
}

// Submit stores the one review a participant may leave. The token comes
// from the review email and names the participant and the event.
func (s *FeedbackService) Submit(ctx context.Context, actor Actor, in FeedbackInput) (models.Feedback, error) {
	claims, err := s.tokens.VerifyReviewToken(in.Token)
	if err != nil {
		return models.Feedback{}, apperr.Unauthorized("Invalid or expired review link")
	}
	if in.Rating < 1 || in.Rating > 5 {
		return models.Feedback{}, apperr.BadRequest("rating must be between 1 and 5")
	}
	pid, err := parseID(claims.ParticipantID, "participant")
	if err != nil {
		return models.Feedback{}, err
	}
	eid, err := parseID(claims.EventID, "event")
	if err != nil {
		return models.Feedback{}, err
	}
	p, err := s.participants.GetByID(ctx, pid)
	if err != nil {
		return models.Feedback{}, lookupErr(err, "Participant")
	}
	if p.EventID != eid {
		return models.Feedback{}, apperr.BadRequest("Review link does not match the registration")
	}

	f := models.Feedback{
		EventID:       eid,
		ParticipantID: pid,
		Rating:        in.Rating,
		Comment:       in.Comment,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.feedback.Create(ctx, &f); err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			return models.Feedback{}, apperr.Conflict("Feedback already submitted")
		}
		return models.Feedback{}, apperr.Internal("Could not save feedback. Try again later.", err)
	}

	actor.ProfileID = "participant:" + pid.Hex()
	s.audit.Record(ctx, actor, Entry{
		Action:      models.ActionCreate,
		Module:      moduleFeedback,
		ReferenceID: f.ID.Hex(),
		Description: "Feedback submitted",
		New:         f,
	})
	return f, nil
}

func (s *FeedbackService) ListByEvent(ctx context.Context, eventID string) ([]models.Feedback, error) {
	eid, err := parseID(eventID, "event")
	if err != nil {
		return nil, err
	}
	items, err := s.feedback.ListByEvent(ctx, eid)
	if err != nil {
		return nil, apperr.Internal("Could not fetch feedback. Try again later.", err)
	}
	if items == nil {
		items = []models.Feedback{}
	}
	return items, nil
}
