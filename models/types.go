package models

import (
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	StatusPending = "Pending"
	StatusAccept  = "Accept"
	StatusReject  = "Reject"

	AttendanceCheckedIn  = "checked-in"
	AttendanceCheckedOut = "checked-out"

	PassNone   = "none"
	PassQueued = "queued"
	PassIssued = "issued"
	PassFailed = "failed"

	EventScheduled = "Scheduled"
	EventCancelled = "Cancelled"
	EventCompleted = "Completed"

	ProposalPending  = "Pending"
	ProposalApproved = "Approved"
	ProposalRejected = "Rejected"

	RoleAdmin     = "admin"
	RoleOrganizer = "organizer"
	RoleOfficer   = "officer"
	RoleLGU       = "lgu"
	RoleCitizen   = "citizen"
)

type Image struct {
	PublicID string `bson:"public_id" json:"publicId"`
	URL      string `bson:"url" json:"url"`
}

type Event struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name            string             `bson:"name" json:"name" binding:"required"`
	Description     string             `bson:"description" json:"description"`
	Venue           string             `bson:"venue" json:"venue" binding:"required"`
	Capacity        int                `bson:"capacity" json:"capacity" binding:"gte=0"`
	RegisteredCount int                `bson:"registered_count" json:"registeredCount"`
	EventDate       time.Time          `bson:"event_date" json:"eventDate" binding:"required"`
	OrganizerID     string             `bson:"organizer_id" json:"organizerId"`
	ProposalID      primitive.ObjectID `bson:"proposal_id" json:"proposalId"`
	ResourceIDs     []string           `bson:"resource_ids,omitempty" json:"resourceIds,omitempty"`
	Image           *Image             `bson:"image,omitempty" json:"image,omitempty"`
	Status          string             `bson:"status" json:"status"`
	ReviewNotified  bool               `bson:"review_notified" json:"reviewNotified"`
	CreatedAt       time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt       time.Time          `bson:"updated_at" json:"updatedAt"`
}

// SeatsLeft never goes negative.
func (e Event) SeatsLeft() int {
	if e.RegisteredCount >= e.Capacity {
		return 0
	}
	return e.Capacity - e.RegisteredCount
}

type EventFilter struct {
	OrganizerID string
	Status      string
	Search      string
	From, To    *time.Time
}

type Pass struct {
	State     string     `bson:"state" json:"state"`
	Attempts  int        `bson:"attempts" json:"attempts"`
	LastError string     `bson:"last_error,omitempty" json:"lastError,omitempty"`
	IssuedAt  *time.Time `bson:"issued_at,omitempty" json:"issuedAt,omitempty"`
	ObjectKey string     `bson:"object_key,omitempty" json:"objectKey,omitempty"`
}

type Participant struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	EventID          primitive.ObjectID `bson:"event_id" json:"eventId"`
	FirstName        string             `bson:"first_name" json:"firstName"`
	LastName         string             `bson:"last_name" json:"lastName"`
	Contact          string             `bson:"contact" json:"contact"`
	Email            string             `bson:"email" json:"email"`
	Address          string             `bson:"address" json:"address"`
	Status           string             `bson:"status" json:"status"`
	AttendanceStatus string             `bson:"attendance_status,omitempty" json:"attendanceStatus,omitempty"`
	Archived         bool               `bson:"archived" json:"archived"`
	Pass             Pass               `bson:"pass" json:"pass"`
	CreatedAt        time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt        time.Time          `bson:"updated_at" json:"updatedAt"`
}

func (p Participant) FullName() string { return p.FirstName + " " + p.LastName }

// HoldsSeat reports whether the participant counts against event capacity.
func (p Participant) HoldsSeat() bool { return p.Status != StatusReject }

type ProposalSummary struct {
	ID    primitive.ObjectID `bson:"_id" json:"id"`
	Title string             `bson:"title" json:"title"`
}

// ParticipantView is a participant joined with its event and proposal.
type ParticipantView struct {
	Participant `bson:",inline"`
	Event       *Event           `bson:"event,omitempty" json:"event,omitempty"`
	Proposal    *ProposalSummary `bson:"proposal,omitempty" json:"proposal,omitempty"`
}

type ParticipantFilter struct {
	EventID  *primitive.ObjectID
	Search   string
	Status   string
	From, To *time.Time
	Archived bool
}

type Proposal struct {
	ID                primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Title             string              `bson:"title" json:"title" binding:"required"`
	Description       string              `bson:"description" json:"description"`
	OrganizerID       string              `bson:"organizer_id" json:"organizerId"`
	Venue             string              `bson:"venue" json:"venue" binding:"required"`
	ProposedDate      time.Time           `bson:"proposed_date" json:"proposedDate" binding:"required"`
	ExpectedAttendees int                 `bson:"expected_attendees" json:"expectedAttendees" binding:"gte=0"`
	Status            string              `bson:"status" json:"status"`
	EventID           *primitive.ObjectID `bson:"event_id" json:"eventId,omitempty"`
	CreatedAt         time.Time           `bson:"created_at" json:"createdAt"`
}

type ProposalFilter struct {
	OrganizerID string
	Status      string
}

type Viewer struct {
	User   string     `bson:"user" json:"user"`
	IsRead bool       `bson:"is_read" json:"isRead"`
	ReadAt *time.Time `bson:"read_at,omitempty" json:"readAt,omitempty"`
}

type Notification struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title     string             `bson:"title" json:"title"`
	Message   string             `bson:"message" json:"message"`
	Category  string             `bson:"category" json:"category"`
	Priority  string             `bson:"priority" json:"priority"`
	Viewers   []Viewer           `bson:"viewers" json:"viewers"`
	CreatedAt time.Time          `bson:"created_at" json:"createdAt"`
}

// Viewer returns the entry for user, or nil.
func (n *Notification) Viewer(user string) *Viewer {
	for i := range n.Viewers {
		if n.Viewers[i].User == user {
			return &n.Viewers[i]
		}
	}
	return nil
}

const (
	ActionCreate  = "CREATE"
	ActionUpdate  = "UPDATE"
	ActionDelete  = "DELETE"
	ActionApprove = "APPROVE"
	ActionReject  = "REJECT"
)

type AuditLog struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ActionType  string             `bson:"action_type" json:"actionType"`
	PerformedBy string             `bson:"performed_by" json:"performedBy"`
	Module      string             `bson:"module" json:"module"`
	ReferenceID string             `bson:"reference_id" json:"referenceId"`
	Description string             `bson:"description" json:"description"`
	OldData     any                `bson:"old_data,omitempty" json:"oldData,omitempty"`
	NewData     any                `bson:"new_data,omitempty" json:"newData,omitempty"`
	IPAddress   string             `bson:"ip_address" json:"ipAddress"`
	Timestamp   time.Time          `bson:"timestamp" json:"timestamp"`
}

type AuditFilter struct {
	Module      string
	ReferenceID string
	ActionType  string
}

type Feedback struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	EventID       primitive.ObjectID `bson:"event_id" json:"eventId"`
	ParticipantID primitive.ObjectID `bson:"participant_id" json:"participantId"`
	Rating        int                `bson:"rating" json:"rating"`
	Comment       string             `bson:"comment" json:"comment"`
	CreatedAt     time.Time          `bson:"created_at" json:"createdAt"`
}

type User struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	Password  string `json:"-"`
	Role      string `json:"role"`
	ProfileID string `json:"profileId"`
	Name      string `json:"name"`
}

// Page is a 1-based page request.
type Page struct {
	Page  int
	Limit int
}

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// Normalize clamps the page into the accepted range.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p
}

func (p Page) Skip() int64 { return int64((p.Page - 1) * p.Limit) }

type PageMeta struct {
	CurrentPage int   `json:"currentPage"`
	TotalPages  int   `json:"totalPages"`
	TotalCount  int64 `json:"totalCount"`
}

func NewPageMeta(p Page, total int64) PageMeta {
	p = p.Normalize()
	return PageMeta{
		CurrentPage: p.Page,
		TotalPages:  int(math.Ceil(float64(total) / float64(p.Limit))),
		TotalCount:  total,
	}
}

// ParseID turns a hex string into an ObjectID.
func ParseID(s string) (primitive.ObjectID, error) {
	return primitive.ObjectIDFromHex(s)
}
