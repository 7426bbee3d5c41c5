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
	"eventapi/storage"
)

const (
	moduleEvents = "Events"
	imageFolder  = "events"
)

type EventInput struct {
	ProposalID  string    `json:"proposal_id"`
	Name        string    `json:"name" binding:"required"`
	Description string    `json:"description"`
	Venue       string    `json:"venue" binding:"required"`
	Capacity    *int      `json:"capacity" binding:"required,gte=0"`
	EventDate   time.Time `json:"event_date" binding:"required"`
	ResourceIDs []string  `json:"resource_ids"`
	Status      string    `json:"status" binding:"omitempty,oneof=Scheduled Cancelled Completed"`
}

func (in EventInput) validate() error {
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Venue) == "" {
		return apperr.BadRequest("name and venue are required")
	}
	if in.Capacity == nil || *in.Capacity < 0 {
		return apperr.BadRequest("capacity must be zero or more")
	}
	if in.EventDate.IsZero() {
		return apperr.BadRequest("event_date is required")
	}
	return nil
}

type EventDeps struct {
	Events       models.EventRepository
	Participants models.ParticipantRepository
	Proposals    models.ProposalRepository
	Store        storage.Store
	Auditor      *Auditor
	Cache        EventCache
}

type EventService struct {
	events       models.EventRepository
	participants models.ParticipantRepository
	proposals    models.ProposalRepository
	store        storage.Store
	audit        *Auditor
	cache        EventCache
	now          func() time.Time
	log          *slog.Logger
}

func NewEventService(d EventDeps) *EventService {
	if d.Cache == nil {
		d.Cache = noCache{}
	}
	return &EventService{
		events:       d.Events,
		participants: d.Participants,
		proposals:    d.Proposals,
		store:        d.Store,
		audit:        d.Auditor,
		cache:        d.Cache,
		now:          time.Now,
		log:          slog.With("component", "events"),
	}
}

func canManage(actor Actor, organizerID string) bool {
	return actor.IsAdmin() || (organizerID != "" && organizerID == actor.ProfileID)
}

// Create turns an approved proposal into an event. The proposal is claimed
// first so two requests cannot both create an event from it.
func (s *EventService) Create(ctx context.Context, actor Actor, in EventInput) (models.Event, error) {
	if err := in.validate(); err != nil {
		return models.Event{}, err
	}
	pid, err := parseID(in.ProposalID, "proposal")
	if err != nil {
		return models.Event{}, err
	}
	prop, err := s.proposals.GetByID(ctx, pid)
	if err != nil {
		return models.Event{}, lookupErr(err, "Proposal")
	}
	if !canManage(actor, prop.OrganizerID) {
		return models.Event{}, apperr.Forbidden("Not authorized to create an event from this proposal")
	}
	if prop.Status != models.ProposalApproved {
		return models.Event{}, apperr.BadRequest("Proposal is not approved")
	}

	now := s.now().UTC()
	e := models.Event{
		ID:          primitive.NewObjectID(),
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Venue:       strings.TrimSpace(in.Venue),
		Capacity:    *in.Capacity,
		EventDate:   in.EventDate.UTC(),
		OrganizerID: prop.OrganizerID,
		ProposalID:  prop.ID,
		ResourceIDs: in.ResourceIDs,
		Status:      models.EventScheduled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.proposals.ClaimForEvent(ctx, pid, e.ID); err != nil {
		if errors.Is(err, models.ErrAlreadyAssigned) {
			return models.Event{}, apperr.Conflict("Proposal already assigned")
		}
		return models.Event{}, lookupErr(err, "Proposal")
	}
	if err := s.events.Create(ctx, &e); err != nil {
		if rerr := s.proposals.ReleaseClaim(context.WithoutCancel(ctx), pid); rerr != nil {
			s.log.Error("release proposal claim failed", "proposal", pid.Hex(), "error", rerr)
		}
		return models.Event{}, apperr.Internal("Could not create event. Try again later.", err)
	}

	s.audit.Record(ctx, actor, Entry{
		Action:      models.ActionCreate,
		Module:      moduleEvents,
		ReferenceID: e.ID.Hex(),
		Description: "Created event " + e.Name,
		New:         e,
	})
	s.cache.PurgeEventsList(ctx)
	return e, nil
}

func (s *EventService) Get(ctx context.Context, id string) (models.Event, error) {
	oid, err := parseID(id, "event")
	if err != nil {
		return models.Event{}, err
	}
	e, err := s.events.GetByID(ctx, oid)
	if err != nil {
		return models.Event{}, lookupErr(err, "Event")
	}
	return e, nil
}

func (s *EventService) List(ctx context.Context, f models.EventFilter, p models.Page) ([]models.Event, models.PageMeta, error) {
	items, total, err := s.events.List(ctx, f, p)
	if err != nil {
		return nil, models.PageMeta{}, apperr.Internal("Could not fetch events. Try again later.", err)
	}
	if items == nil {
		items = []models.Event{}
	}
	return items, models.NewPageMeta(p, total), nil
}

// load fetches an event the actor is allowed to change.
func (s *EventService) load(ctx context.Context, actor Actor, id string) (models.Event, error) {
	e, err := s.Get(ctx, id)
	if err != nil {
		return models.Event{}, err
	}
	if !canManage(actor, e.OrganizerID) {
		return models.Event{}, apperr.Forbidden("Not authorized to change this event")
	}
	return e, nil
}

func (s *EventService) Update(ctx context.Context, actor Actor, id string, in EventInput) (models.Event, error) {
	if err := in.validate(); err != nil {
		return models.Event{}, err
	}
	old, err := s.load(ctx, actor, id)
	if err != nil {
		return models.Event{}, err
	}

	e := old
	e.Name = strings.TrimSpace(in.Name)
	e.Description = in.Description
	e.Venue = strings.TrimSpace(in.Venue)
	e.Capacity = *in.Capacity
	e.EventDate = in.EventDate.UTC()
	e.ResourceIDs = in.ResourceIDs
	if in.Status != "" {
		e.Status = in.Status
	}
	e.UpdatedAt = s.now().UTC()

	if err := s.events.Update(ctx, &e); err != nil {
		if errors.Is(err, models.ErrStaleState) {
			return models.Event{}, apperr.Conflict("Capacity cannot be lower than the seats already taken")
		}
		return models.Event{}, lookupErr(err, "Event")
	}

	s.audit.Record(ctx, actor, Entry{
		Action:      models.ActionUpdate,
		Module:      moduleEvents,
		ReferenceID: id,
		Description: "Updated event " + e.Name,
		Old:         old,
		New:         e,
	})
	s.cache.PurgeEventsList(ctx)
	s.cache.PurgeEventItem(ctx, id)
	return e, nil
}

// Delete refuses events that still have participants and frees the
// proposal the event was created from.
func (s *EventService) Delete(ctx context.Context, actor Actor, id string) error {
	e, err := s.load(ctx, actor, id)
	if err != nil {
		return err
	}
	n, err := s.participants.CountByEvent(ctx, e.ID)
	if err != nil {
		return apperr.Internal("Could not delete the event.", err)
	}
	if n > 0 {
		return apperr.BadRequest("Event has registered participants and cannot be deleted")
	}
	if err := s.events.Delete(ctx, e.ID); err != nil {
		return lookupErr(err, "Event")
	}
	if err := s.proposals.ReleaseClaim(ctx, e.ProposalID); err != nil {
		s.log.Warn("release proposal claim failed", "proposal", e.ProposalID.Hex(), "error", err)
	}
	if e.Image != nil {
		s.destroy(ctx, e.Image.PublicID)
	}

	s.audit.Record(ctx, actor, Entry{
		Action:      models.ActionDelete,
		Module:      moduleEvents,
		ReferenceID: id,
		Description: "Deleted event " + e.Name,
		Old:         e,
	})
	s.cache.PurgeEventsList(ctx)
	s.cache.PurgeEventItem(ctx, id)
	return nil
}

// SetImage uploads a new cover image and removes the one it replaces.
func (s *EventService) SetImage(ctx context.Context, actor Actor, id string, data []byte, contentType string) (models.Image, error) {
	if !strings.HasPrefix(contentType, "image/") || len(data) == 0 {
		return models.Image{}, apperr.BadRequest("An image file is required")
	}
	if s.store == nil {
		return models.Image{}, apperr.Internal("Image uploads are not configured", errors.New("no object store"))
	}
	e, err := s.load(ctx, actor, id)
	if err != nil {
		return models.Image{}, err
	}

	obj, err := s.store.Upload(ctx, data, imageFolder, contentType)
	if err != nil {
		return models.Image{}, apperr.Internal("Could not upload image. Try again later.", err)
	}
	img := models.Image{PublicID: obj.PublicID, URL: obj.URL}
	old, err := s.events.SetImage(ctx, e.ID, img)
	if err != nil {
		s.destroy(ctx, img.PublicID)
		return models.Image{}, lookupErr(err, "Event")
	}
	if old != nil && old.PublicID != "" {
		s.destroy(ctx, old.PublicID)
	}

	s.audit.Record(ctx, actor, Entry{
		Action:      models.ActionUpdate,
		Module:      moduleEvents,
		ReferenceID: id,
		Description: "Replaced event image",
		Old:         old,
		New:         img,
	})
	s.cache.PurgeEventsList(ctx)
	s.cache.PurgeEventItem(ctx, id)
	return img, nil
}

// destroy is best effort; an orphaned object is only logged.
func (s *EventService) destroy(ctx context.Context, publicID string) {
	if s.store == nil {
		return
	}
	if err := s.store.Destroy(context.WithoutCancel(ctx), publicID); err != nil {
		s.log.Warn("destroy image failed", "public_id", publicID, "error", err)
	}
}
