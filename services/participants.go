package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"eventapi/apperr"
	"eventapi/models"
	"eventapi/realtime"
)

const moduleParticipants = "Participants"

type Registration struct {
	EventID   string `json:"event_id" binding:"required"`
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name" binding:"required"`
	Contact   string `json:"contact" binding:"required"`
	Email     string `json:"email" binding:"required,email"`
	Address   string `json:"address"`
}

// RegistrationSummary is the response to a successful registration.
type RegistrationSummary struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	EventName        string    `json:"event_name"`
	Venue            string    `json:"venue"`
	ProposalTitle    string    `json:"proposal_title,omitempty"`
	RegistrationDate time.Time `json:"registration_date"`
}

// StatusResult carries the participant after a status change and the
// state of its pass, so a caller can tell queued issuance from none.
type StatusResult struct {
	Participant models.Participant `json:"participant"`
	PassState   string             `json:"pass_state"`
}

type ParticipantDeps struct {
	Participants models.ParticipantRepository
	Events       models.EventRepository
	Feedback     models.FeedbackRepository
	Issuance     IssuanceQueue
	Notifier     *Notifier
	Auditor      *Auditor
	Push         Pusher
	Cache        EventCache
}

type ParticipantService struct {
	participants models.ParticipantRepository
	events       models.EventRepository
	feedback     models.FeedbackRepository
	issuance     IssuanceQueue
	notifier     *Notifier
	audit        *Auditor
	push         Pusher
	cache        EventCache
	now          func() time.Time
	log          *slog.Logger
}

func NewParticipantService(d ParticipantDeps) *ParticipantService {
	if d.Cache == nil {
		d.Cache = noCache{}
	}
	return &ParticipantService{
		participants: d.Participants,
		events:       d.Events,
		feedback:     d.Feedback,
		issuance:     d.Issuance,
		notifier:     d.Notifier,
		audit:        d.Auditor,
		push:         d.Push,
		cache:        d.Cache,
		now:          time.Now,
		log:          slog.With("component", "participants"),
	}
}

// Create takes a seat and inserts a Pending participant. The seat is
// reserved with one conditional increment; a failed insert gives it back.
func (s *ParticipantService) Create(ctx context.Context, actor Actor, r Registration) (RegistrationSummary, error) {
	eventID, err := parseID(r.EventID, "event")
	if err != nil {
		return RegistrationSummary{}, err
	}

	if _, err := s.events.ReserveSeat(ctx, eventID); err != nil {
		switch {
		case errors.Is(err, models.ErrEventFull):
			return RegistrationSummary{}, apperr.CapacityExceeded("Event is full.")
		case errors.Is(err, models.ErrNotFound):
			return RegistrationSummary{}, apperr.NotFound("Event not found")
		}
		return RegistrationSummary{}, apperr.Internal("Could not register participant. Try again later.", err)
	}

	now := s.now().UTC()
	p := &models.Participant{
		EventID:   eventID,
		FirstName: strings.TrimSpace(r.FirstName),
		LastName:  strings.TrimSpace(r.LastName),
		Contact:   strings.TrimSpace(r.Contact),
		Email:     strings.ToLower(strings.TrimSpace(r.Email)),
		Address:   strings.TrimSpace(r.Address),
		Status:    models.StatusPending,
		Pass:      models.Pass{State: models.PassNone},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.participants.Create(ctx, p); err != nil {
		s.releaseSeat(ctx, eventID)
		return RegistrationSummary{}, apperr.Internal("Could not register participant. Try again later.", err)
	}

	v, err := s.participants.GetView(ctx, p.ID)
	if err != nil {
		return RegistrationSummary{}, lookupErr(err, "Participant")
	}

	s.audit.Record(ctx, actor, Entry{
		Action:      models.ActionCreate,
		Module:      moduleParticipants,
		ReferenceID: p.ID.Hex(),
		Description: "Registered " + p.FullName(),
		New:         p,
	})
	s.purge(ctx, eventID)

	sum := RegistrationSummary{
		ID:               v.ID.Hex(),
		Name:             v.FullName(),
		Email:            v.Email,
		RegistrationDate: v.CreatedAt,
	}
	if v.Event != nil {
		sum.EventName, sum.Venue = v.Event.Name, v.Event.Venue
	}
	if v.Proposal != nil {
		sum.ProposalTitle = v.Proposal.Title
	}
	return sum, nil
}

func (s *ParticipantService) releaseSeat(ctx context.Context, eventID primitive.ObjectID) {
	if err := s.events.ReleaseSeat(context.WithoutCancel(ctx), eventID); err != nil {
		s.log.Error("release seat failed", "event", eventID.Hex(), "error", err)
	}
}

func (s *ParticipantService) purge(ctx context.Context, eventID primitive.ObjectID) {
	s.cache.PurgeEventsList(ctx)
	s.cache.PurgeEventItem(ctx, eventID.Hex())
}

func (s *ParticipantService) Get(ctx context.Context, id string) (models.ParticipantView, error) {
	oid, err := parseID(id, "participant")
	if err != nil {
		return models.ParticipantView{}, err
	}
	v, err := s.participants.GetView(ctx, oid)
	if err != nil {
		return models.ParticipantView{}, lookupErr(err, "Participant")
	}
	return v, nil
}

func (s *ParticipantService) List(ctx context.Context, f models.ParticipantFilter, p models.Page) ([]models.ParticipantView, models.PageMeta, error) {
	items, total, err := s.participants.List(ctx, f, p)
	if err != nil {
		return nil, models.PageMeta{}, apperr.Internal("Could not fetch participants. Try again later.", err)
	}
	if items == nil {
		items = []models.ParticipantView{}
	}
	return items, models.NewPageMeta(p, total), nil
}

func validStatus(s string) bool {
	return s == models.StatusPending || s == models.StatusAccept || s == models.StatusReject
}

// UpdateStatus applies Pending -> Accept or Pending -> Reject. Repeating the
// current status is a no-op; every other change is a conflict.
func (s *ParticipantService) UpdateStatus(ctx context.Context, actor Actor, id, status string) (StatusResult, error) {
	oid, err := parseID(id, "participant")
	if err != nil {
		return StatusResult{}, err
	}
	if !validStatus(status) {
		return StatusResult{}, apperr.BadRequest("Status must be one of Pending, Accept, Reject")
	}

	v, err := s.participants.GetView(ctx, oid)
	if err != nil {
		return StatusResult{}, lookupErr(err, "Participant")
	}
	if v.Status == status {
		return StatusResult{Participant: v.Participant, PassState: v.Pass.State}, nil
	}
	if v.Status != models.StatusPending {
		return StatusResult{}, apperr.Conflict("Participant is already " + v.Status)
	}

	if err := s.participants.UpdateStatus(ctx, oid, v.Status, status); err != nil {
		if errors.Is(err, models.ErrStaleState) {
			return StatusResult{}, apperr.Conflict("Participant status changed, reload and try again")
		}
		return StatusResult{}, lookupErr(err, "Participant")
	}

	before := v.Participant
	after := v.Participant
	after.Status = status
	action := models.ActionUpdate

	switch status {
	case models.StatusAccept:
		action = models.ActionApprove
		// the status write already queued the pass
		after.Pass.State = models.PassQueued
		s.issuance.Enqueue(oid)
	case models.StatusReject:
		action = models.ActionReject
		s.releaseSeat(ctx, v.EventID)
		s.purge(ctx, v.EventID)
	}

	if v.Event != nil && v.Event.OrganizerID != "" && s.notifier != nil {
		_, err := s.notifier.Notify(ctx, v.Event.OrganizerID, Notice{
			Title:    "Participant " + strings.ToLower(status) + "ed",
			Message:  v.FullName() + " was marked " + status + " for " + v.Event.Name,
			Category: "participant",
		})
		if err != nil {
			s.log.Warn("organizer notification failed", "participant", id, "error", err)
		}
	}

	s.audit.Record(ctx, actor, Entry{
		Action:      action,
		Module:      moduleParticipants,
		ReferenceID: id,
		Description: "Status changed from " + before.Status + " to " + status,
		Old:         map[string]string{"status": before.Status},
		New:         map[string]string{"status": status},
	})

	return StatusResult{Participant: after, PassState: after.Pass.State}, nil
}

// UpdateAttendance records a check-in or check-out and tells every
// connected client.
func (s *ParticipantService) UpdateAttendance(ctx context.Context, actor Actor, id, value string) (models.Participant, error) {
	oid, err := parseID(id, "participant")
	if err != nil {
		return models.Participant{}, err
	}
	if value != models.AttendanceCheckedIn && value != models.AttendanceCheckedOut {
		return models.Participant{}, apperr.BadRequest("attendance_status must be checked-in or checked-out")
	}
	p, err := s.participants.GetByID(ctx, oid)
	if err != nil {
		return models.Participant{}, lookupErr(err, "Participant")
	}
	if err := s.participants.UpdateAttendance(ctx, oid, value); err != nil {
		return models.Participant{}, lookupErr(err, "Participant")
	}
	old := p.AttendanceStatus
	p.AttendanceStatus = value

	if s.push != nil {
		err := s.push.Broadcast(ctx, realtime.EventAttendance, map[string]string{
			"participant_id": id,
			"name":           p.FullName(),
			"action":         value,
		})
		if err != nil {
			s.log.Warn("attendance broadcast failed", "participant", id, "error", err)
		}
	}

	s.audit.Record(ctx, actor, Entry{
		Action:      models.ActionUpdate,
		Module:      moduleParticipants,
		ReferenceID: id,
		Description: p.FullName() + " " + value,
		Old:         map[string]string{"attendance_status": old},
		New:         map[string]string{"attendance_status": value},
	})
	return p, nil
}

func (s *ParticipantService) UpdateArchive(ctx context.Context, actor Actor, id string, archived bool) (models.Participant, error) {
	oid, err := parseID(id, "participant")
	if err != nil {
		return models.Participant{}, err
	}
	p, err := s.participants.GetByID(ctx, oid)
	if err != nil {
		return models.Participant{}, lookupErr(err, "Participant")
	}
	if err := s.participants.UpdateArchive(ctx, oid, archived); err != nil {
		return models.Participant{}, lookupErr(err, "Participant")
	}
	old := p.Archived
	p.Archived = archived

	s.audit.Record(ctx, actor, Entry{
		Action:      models.ActionUpdate,
		Module:      moduleParticipants,
		ReferenceID: id,
		Description: "Archive flag set",
		Old:         map[string]bool{"archived": old},
		New:         map[string]bool{"archived": archived},
	})
	return p, nil
}

// Delete refuses participants that have submitted feedback.
func (s *ParticipantService) Delete(ctx context.Context, actor Actor, id string) error {
	oid, err := parseID(id, "participant")
	if err != nil {
		return err
	}
	p, err := s.participants.GetByID(ctx, oid)
	if err != nil {
		return lookupErr(err, "Participant")
	}
	referenced, err := s.feedback.ExistsForParticipant(ctx, oid)
	if err != nil {
		return apperr.Internal("Could not delete participant. Try again later.", err)
	}
	if referenced {
		return apperr.BadRequest("Participant has feedback on record and cannot be deleted")
	}
	if err := s.participants.Delete(ctx, oid); err != nil {
		return lookupErr(err, "Participant")
	}
	if p.HoldsSeat() {
		s.releaseSeat(ctx, p.EventID)
		s.purge(ctx, p.EventID)
	}

	s.audit.Record(ctx, actor, Entry{
		Action:      models.ActionDelete,
		Module:      moduleParticipants,
		ReferenceID: id,
		Description: "Deleted " + p.FullName(),
		Old:         p,
	})
	return nil
}

// RetryPass re-queues issuance for an accepted participant whose pass is
// not issued yet.
func (s *ParticipantService) RetryPass(ctx context.Context, actor Actor, id string) (models.Pass, error) {
	oid, err := parseID(id, "participant")
	if err != nil {
		return models.Pass{}, err
	}
	p, err := s.participants.GetByID(ctx, oid)
	if err != nil {
		return models.Pass{}, lookupErr(err, "Participant")
	}
	if p.Status != models.StatusAccept {
		return models.Pass{}, apperr.Conflict("Only accepted participants receive a pass")
	}
	if p.Pass.State == models.PassIssued {
		return p.Pass, nil
	}

	if _, err := s.participants.QueuePass(ctx, oid); err != nil {
		return models.Pass{}, lookupErr(err, "Participant")
	}
	s.issuance.Enqueue(oid)
	old := p.Pass.State
	p.Pass.State = models.PassQueued

	s.audit.Record(ctx, actor, Entry{
		Action:      models.ActionUpdate,
		Module:      moduleParticipants,
		ReferenceID: id,
		Description: "Pass issuance requeued",
		Old:         map[string]string{"pass_state": old},
		New:         map[string]string{"pass_state": models.PassQueued},
	})
	return p.Pass, nil
}
