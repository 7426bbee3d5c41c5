package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"eventapi/apperr"
	"eventapi/models"
	"eventapi/realtime"
)

const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

type Notice struct {
	Title    string `json:"title" binding:"required"`
	Message  string `json:"message" binding:"required"`
	Category string `json:"category"`
	Priority string `json:"priority" binding:"omitempty,oneof=low normal high"`
}

type Notifier struct {
	repo models.NotificationRepository
	push Pusher
	now  func() time.Time
	log  *slog.Logger
}

func NewNotifier(repo models.NotificationRepository, push Pusher) *Notifier {
	return &Notifier{repo: repo, push: push, now: time.Now, log: slog.With("component", "notifier")}
}

// Notify persists an unread notification for target and pushes it live
// when target is connected.
func (n *Notifier) Notify(ctx context.Context, target string, notice Notice) (models.Notification, error) {
	return n.NotifyMany(ctx, []string{target}, notice)
}

// NotifyMany creates one notification with a viewer entry per target.
func (n *Notifier) NotifyMany(ctx context.Context, targets []string, notice Notice) (models.Notification, error) {
	if len(targets) == 0 {
		return models.Notification{}, apperr.BadRequest("At least one recipient is required")
	}
	if notice.Priority == "" {
		notice.Priority = PriorityNormal
	}
	note := models.Notification{
		Title:     notice.Title,
		Message:   notice.Message,
		Category:  notice.Category,
		Priority:  notice.Priority,
		CreatedAt: n.now().UTC(),
	}
	seen := make(map[string]bool, len(targets))
	for _, t := range targets {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		note.Viewers = append(note.Viewers, models.Viewer{User: t})
	}
	if len(note.Viewers) == 0 {
		return models.Notification{}, apperr.BadRequest("At least one recipient is required")
	}
	if err := n.repo.Create(ctx, &note); err != nil {
		return models.Notification{}, apperr.Internal("Could not save notification. Try again later.", err)
	}

	for _, v := range note.Viewers {
		n.emit(ctx, v.User, realtime.EventNotification, note)
	}
	return note, nil
}

func (n *Notifier) emit(ctx context.Context, target, event string, data any) {
	if n.push == nil {
		return
	}
	if _, err := n.push.Emit(ctx, target, event, data); err != nil {
		n.log.Warn("push failed", "target", target, "event", event, "error", err)
	}
}

func (n *Notifier) List(ctx context.Context, viewer string, p models.Page) ([]models.Notification, models.PageMeta, int64, error) {
	items, total, err := n.repo.ListForViewer(ctx, viewer, p)
	if err != nil {
		return nil, models.PageMeta{}, 0, apperr.Internal("Could not fetch notifications. Try again later.", err)
	}
	unread, err := n.repo.UnreadCount(ctx, viewer)
	if err != nil {
		return nil, models.PageMeta{}, 0, apperr.Internal("Could not fetch notifications. Try again later.", err)
	}
	return items, models.NewPageMeta(p, total), unread, nil
}

// MarkRead flips the read flag of viewerID only. The caller must be that
// viewer unless they are an admin.
func (n *Notifier) MarkRead(ctx context.Context, actor Actor, id, viewerID string) (models.Notification, error) {
	oid, err := parseID(id, "notification")
	if err != nil {
		return models.Notification{}, err
	}
	if viewerID == "" {
		return models.Notification{}, apperr.BadRequest("viewer_id is required")
	}
	note, err := n.repo.GetByID(ctx, oid)
	if err != nil {
		return models.Notification{}, lookupErr(err, "Notification")
	}
	v := note.Viewer(viewerID)
	if v == nil || (!actor.IsAdmin() && viewerID != actor.ProfileID) {
		return models.Notification{}, apperr.Forbidden("You are not allowed to update this notification")
	}
	if v.IsRead {
		return note, nil
	}

	at := n.now().UTC()
	if err := n.repo.MarkRead(ctx, oid, viewerID, at); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.Notification{}, apperr.NotFound("Notification not found")
		}
		return models.Notification{}, apperr.Internal("Could not update notification. Try again later.", err)
	}
	v.IsRead, v.ReadAt = true, &at

	n.emit(ctx, viewerID, realtime.EventRefresh, map[string]string{"notification_id": id})
	return note, nil
}

func (n *Notifier) Delete(ctx context.Context, id string) error {
	oid, err := parseID(id, "notification")
	if err != nil {
		return err
	}
	if err := n.repo.Delete(ctx, oid); err != nil {
		return lookupErr(err, "Notification")
	}
	return nil
}
