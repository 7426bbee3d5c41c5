// Package services holds the workflows behind the HTTP handlers. Every
// exported method returns *apperr.Error values (or wraps them) so the
// error middleware can map them without inspecting messages.
package services

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"eventapi/apperr"
	"eventapi/models"
)

// Actor is the caller of a mutating operation, as seen by the audit log.
type Actor struct {
	UserID    int64
	ProfileID string
	Role      string
	IP        string
}

func (a Actor) IsAdmin() bool { return a.Role == models.RoleAdmin }

// Name is what the audit log records as performed_by.
func (a Actor) Name() string {
	if a.ProfileID != "" {
		return a.ProfileID
	}
	return "anonymous"
}

// IssuanceQueue hands accepted participants to the pass worker.
type IssuanceQueue interface {
	Enqueue(id primitive.ObjectID) bool
}

// Pusher delivers live events to connected clients.
type Pusher interface {
	Emit(ctx context.Context, profileID, event string, data any) (bool, error)
	Broadcast(ctx context.Context, event string, data any) error
}

// EventCache drops cached event responses after seat counts or fields change.
type EventCache interface {
	PurgeEventsList(ctx context.Context)
	PurgeEventItem(ctx context.Context, id string)
}

type noCache struct{}

func (noCache) PurgeEventsList(context.Context)        {}
func (noCache) PurgeEventItem(context.Context, string) {}

func parseID(s, what string) (primitive.ObjectID, error) {
	id, err := models.ParseID(s)
	if err != nil {
		return primitive.NilObjectID, apperr.BadRequest("Invalid " + what + " id")
	}
	return id, nil
}

// lookupErr maps a repository read error for what.
func lookupErr(err error, what string) error {
	if errors.Is(err, models.ErrNotFound) {
		return apperr.NotFound(what + " not found")
	}
	return apperr.Internal("Could not fetch "+what+". Try again later.", err)
}
