package models

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrEventFull       = errors.New("event is full")
	ErrAlreadyAssigned = errors.New("proposal already assigned")
	ErrStaleState      = errors.New("record changed state concurrently")
	ErrDuplicate       = errors.New("duplicate record")
)

// ===== Events =====
type EventRepository interface {
	Create(ctx context.Context, e *Event) error
	GetByID(ctx context.Context, id primitive.ObjectID) (Event, error)
	List(ctx context.Context, f EventFilter, p Page) ([]Event, int64, error)
	// Update rewrites the editable fields; fails with ErrStaleState when the
	// new capacity is below the seats already held.
	Update(ctx context.Context, e *Event) error
	Delete(ctx context.Context, id primitive.ObjectID) error

	// ReserveSeat atomically takes one seat, ErrEventFull when none is left.
	ReserveSeat(ctx context.Context, id primitive.ObjectID) (Event, error)
	ReleaseSeat(ctx context.Context, id primitive.ObjectID) error

	// SetImage stores img and returns the image it replaced, if any.
	SetImage(ctx context.Context, id primitive.ObjectID, img Image) (*Image, error)
	ListPastUnnotified(ctx context.Context, now time.Time) ([]Event, error)
	MarkReviewNotified(ctx context.Context, id primitive.ObjectID) error
}

// ===== Participants =====
type ParticipantRepository interface {
	Create(ctx context.Context, p *Participant) error
	GetByID(ctx context.Context, id primitive.ObjectID) (Participant, error)
	// GetView reads the participant joined with its event and proposal.
	GetView(ctx context.Context, id primitive.ObjectID) (ParticipantView, error)
	List(ctx context.Context, f ParticipantFilter, p Page) ([]ParticipantView, int64, error)

	// UpdateStatus moves from -> to only if the stored status is still from.
	// Moving to Accept queues the pass in the same write.
	UpdateStatus(ctx context.Context, id primitive.ObjectID, from, to string) error
	UpdateAttendance(ctx context.Context, id primitive.ObjectID, value string) error
	UpdateArchive(ctx context.Context, id primitive.ObjectID, archived bool) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	CountByEvent(ctx context.Context, eventID primitive.ObjectID) (int64, error)
	ListAcceptedByEvent(ctx context.Context, eventID primitive.ObjectID) ([]Participant, error)

	// QueuePass marks the pass queued unless it is already queued or issued.
	// It reports whether the state changed.
	QueuePass(ctx context.Context, id primitive.ObjectID) (bool, error)
	SetPass(ctx context.Context, id primitive.ObjectID, pass Pass) error
	ListByPassState(ctx context.Context, state string) ([]primitive.ObjectID, error)
}

// ===== Proposals =====
type ProposalRepository interface {
	Create(ctx context.Context, p *Proposal) error
	GetByID(ctx context.Context, id primitive.ObjectID) (Proposal, error)
	List(ctx context.Context, f ProposalFilter, p Page) ([]Proposal, int64, error)
	// Decide moves a Pending proposal to status; ErrStaleState otherwise.
	Decide(ctx context.Context, id primitive.ObjectID, status string) error
	// ClaimForEvent links an approved, unassigned proposal to eventID.
	ClaimForEvent(ctx context.Context, id, eventID primitive.ObjectID) error
	ReleaseClaim(ctx context.Context, id primitive.ObjectID) error
}

// ===== Notifications =====
type NotificationRepository interface {
	Create(ctx context.Context, n *Notification) error
	GetByID(ctx context.Context, id primitive.ObjectID) (Notification, error)
	ListForViewer(ctx context.Context, viewer string, p Page) ([]Notification, int64, error)
	UnreadCount(ctx context.Context, viewer string) (int64, error)
	// MarkRead flips is_read for exactly one viewer entry.
	MarkRead(ctx context.Context, id primitive.ObjectID, viewer string, at time.Time) error
	Delete(ctx context.Context, id primitive.ObjectID) error
}

// ===== Audit =====
type AuditRepository interface {
	Insert(ctx context.Context, a *AuditLog) error
	List(ctx context.Context, f AuditFilter, p Page) ([]AuditLog, int64, error)
}

// ===== Feedback =====
type FeedbackRepository interface {
	// Create fails with ErrDuplicate when the participant already answered.
	Create(ctx context.Context, f *Feedback) error
	ExistsForParticipant(ctx context.Context, participantID primitive.ObjectID) (bool, error)
	ListByEvent(ctx context.Context, eventID primitive.ObjectID) ([]Feedback, error)
}

// ===== Users (Postgres) =====
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	ValidateCredentials(ctx context.Context, email, plain string) (User, error)
	GetByID(ctx context.Context, id int64) (User, error)
}
