// Package mocks holds in-memory repositories for handler and service tests.
package mocks

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"eventapi/models"
	"eventapi/utils"
)

func page[T any](items []T, p models.Page) []T {
	p = p.Normalize()
	start := int(p.Skip())
	if start >= len(items) {
		return []T{}
	}
	end := start + p.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func inRange(t time.Time, from, to *time.Time) bool {
	if from != nil && t.Before(*from) {
		return false
	}
	if to != nil && t.After(*to) {
		return false
	}
	return true
}

func contains(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// ===== Events =====
type EventRepo struct {
	mu    sync.Mutex
	Items map[primitive.ObjectID]models.Event
}

func NewEventRepo() *EventRepo {
	return &EventRepo{Items: map[primitive.ObjectID]models.Event{}}
}

func (m *EventRepo) Create(_ context.Context, e *models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID.IsZero() {
		e.ID = primitive.NewObjectID()
	}
	m.Items[e.ID] = *e
	return nil
}

func (m *EventRepo) GetByID(_ context.Context, id primitive.ObjectID) (models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.Items[id]
	if !ok {
		return models.Event{}, models.ErrNotFound
	}
	return e, nil
}

func (m *EventRepo) List(_ context.Context, f models.EventFilter, p models.Page) ([]models.Event, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Event
	for _, e := range m.Items {
		if f.OrganizerID != "" && e.OrganizerID != f.OrganizerID {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		if f.Search != "" && !contains(e.Name, f.Search) && !contains(e.Venue, f.Search) {
			continue
		}
		if !inRange(e.EventDate, f.From, f.To) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventDate.Before(out[j].EventDate) })
	return page(out, p), int64(len(out)), nil
}

func (m *EventRepo) Update(_ context.Context, e *models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.Items[e.ID]
	if !ok {
		return models.ErrNotFound
	}
	if cur.RegisteredCount > e.Capacity {
		return models.ErrStaleState
	}
	cur.Name, cur.Description, cur.Venue = e.Name, e.Description, e.Venue
	cur.Capacity, cur.EventDate, cur.ResourceIDs = e.Capacity, e.EventDate, e.ResourceIDs
	cur.Status, cur.UpdatedAt = e.Status, e.UpdatedAt
	m.Items[e.ID] = cur
	return nil
}

func (m *EventRepo) Delete(_ context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Items[id]; !ok {
		return models.ErrNotFound
	}
	delete(m.Items, id)
	return nil
}

func (m *EventRepo) ReserveSeat(_ context.Context, id primitive.ObjectID) (models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.Items[id]
	if !ok {
		return models.Event{}, models.ErrNotFound
	}
	if e.RegisteredCount >= e.Capacity {
		return models.Event{}, models.ErrEventFull
	}
	e.RegisteredCount++
	m.Items[id] = e
	return e, nil
}

func (m *EventRepo) ReleaseSeat(_ context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.Items[id]; ok && e.RegisteredCount > 0 {
		e.RegisteredCount--
		m.Items[id] = e
	}
	return nil
}

func (m *EventRepo) SetImage(_ context.Context, id primitive.ObjectID, img models.Image) (*models.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.Items[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	old := e.Image
	e.Image = &img
	m.Items[id] = e
	return old, nil
}

func (m *EventRepo) ListPastUnnotified(_ context.Context, now time.Time) ([]models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Event
	for _, e := range m.Items {
		if e.EventDate.Before(now) && !e.ReviewNotified {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *EventRepo) MarkReviewNotified(_ context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.Items[id]
	if !ok {
		return models.ErrNotFound
	}
	e.ReviewNotified = true
	m.Items[id] = e
	return nil
}

// ===== Participants =====

// ParticipantRepo joins against Events and Proposals when they are set.
type ParticipantRepo struct {
	mu        sync.Mutex
	Items     map[primitive.ObjectID]models.Participant
	Events    *EventRepo
	Proposals *ProposalRepo
	// FailCreate, when set, is returned by Create.
	FailCreate error
	// FailQueuePass, when set, is returned by QueuePass.
	FailQueuePass error
}

func NewParticipantRepo(events *EventRepo, proposals *ProposalRepo) *ParticipantRepo {
	return &ParticipantRepo{
		Items:     map[primitive.ObjectID]models.Participant{},
		Events:    events,
		Proposals: proposals,
	}
}

func (m *ParticipantRepo) Create(_ context.Context, p *models.Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCreate != nil {
		return m.FailCreate
	}
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	m.Items[p.ID] = *p
	return nil
}

func (m *ParticipantRepo) GetByID(_ context.Context, id primitive.ObjectID) (models.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.Items[id]
	if !ok {
		return models.Participant{}, models.ErrNotFound
	}
	return p, nil
}

func (m *ParticipantRepo) view(p models.Participant) models.ParticipantView {
	v := models.ParticipantView{Participant: p}
	if m.Events == nil {
		return v
	}
	e, err := m.Events.GetByID(context.Background(), p.EventID)
	if err != nil {
		return v
	}
	v.Event = &e
	if m.Proposals != nil {
		if pr, err := m.Proposals.GetByID(context.Background(), e.ProposalID); err == nil {
			v.Proposal = &models.ProposalSummary{ID: pr.ID, Title: pr.Title}
		}
	}
	return v
}

func (m *ParticipantRepo) GetView(ctx context.Context, id primitive.ObjectID) (models.ParticipantView, error) {
	p, err := m.GetByID(ctx, id)
	if err != nil {
		return models.ParticipantView{}, err
	}
	return m.view(p), nil
}

func (m *ParticipantRepo) List(_ context.Context, f models.ParticipantFilter, p models.Page) ([]models.ParticipantView, int64, error) {
	m.mu.Lock()
	var matched []models.Participant
	for _, it := range m.Items {
		if it.Archived != f.Archived {
			continue
		}
		if f.EventID != nil && it.EventID != *f.EventID {
			continue
		}
		if f.Status != "" && it.Status != f.Status {
			continue
		}
		if f.Search != "" && !contains(it.FirstName, f.Search) && !contains(it.LastName, f.Search) && !contains(it.Email, f.Search) {
			continue
		}
		if !inRange(it.CreatedAt, f.From, f.To) {
			continue
		}
		matched = append(matched, it)
	}
	m.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	var out []models.ParticipantView
	for _, it := range page(matched, p) {
		out = append(out, m.view(it))
	}
	return out, int64(len(matched)), nil
}

func (m *ParticipantRepo) mutate(id primitive.ObjectID, fn func(*models.Participant) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.Items[id]
	if !ok {
		return models.ErrNotFound
	}
	if err := fn(&p); err != nil {
		return err
	}
	p.UpdatedAt = time.Now().UTC()
	m.Items[id] = p
	return nil
}

func (m *ParticipantRepo) UpdateStatus(_ context.Context, id primitive.ObjectID, from, to string) error {
	return m.mutate(id, func(p *models.Participant) error {
		if p.Status != from {
			return models.ErrStaleState
		}
		p.Status = to
		if to == models.StatusAccept {
			p.Pass.State, p.Pass.LastError = models.PassQueued, ""
		}
		return nil
	})
}

func (m *ParticipantRepo) UpdateAttendance(_ context.Context, id primitive.ObjectID, value string) error {
	return m.mutate(id, func(p *models.Participant) error { p.AttendanceStatus = value; return nil })
}

func (m *ParticipantRepo) UpdateArchive(_ context.Context, id primitive.ObjectID, archived bool) error {
	return m.mutate(id, func(p *models.Participant) error { p.Archived = archived; return nil })
}

func (m *ParticipantRepo) Delete(_ context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Items[id]; !ok {
		return models.ErrNotFound
	}
	delete(m.Items, id)
	return nil
}

func (m *ParticipantRepo) CountByEvent(_ context.Context, eventID primitive.ObjectID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, p := range m.Items {
		if p.EventID == eventID {
			n++
		}
	}
	return n, nil
}

func (m *ParticipantRepo) ListAcceptedByEvent(_ context.Context, eventID primitive.ObjectID) ([]models.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Participant
	for _, p := range m.Items {
		if p.EventID == eventID && p.Status == models.StatusAccept {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *ParticipantRepo) QueuePass(_ context.Context, id primitive.ObjectID) (bool, error) {
	if m.FailQueuePass != nil {
		return false, m.FailQueuePass
	}
	changed := false
	err := m.mutate(id, func(p *models.Participant) error {
		if p.Pass.State == models.PassQueued || p.Pass.State == models.PassIssued {
			return nil
		}
		p.Pass.State, p.Pass.LastError = models.PassQueued, ""
		changed = true
		return nil
	})
	return changed, err
}

func (m *ParticipantRepo) SetPass(_ context.Context, id primitive.ObjectID, pass models.Pass) error {
	return m.mutate(id, func(p *models.Participant) error { p.Pass = pass; return nil })
}

func (m *ParticipantRepo) ListByPassState(_ context.Context, state string) ([]primitive.ObjectID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []primitive.ObjectID
	for id, p := range m.Items {
		if p.Pass.State == state {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// ===== Proposals =====
type ProposalRepo struct {
	mu    sync.Mutex
	Items map[primitive.ObjectID]models.Proposal
}

func NewProposalRepo() *ProposalRepo {
	return &ProposalRepo{Items: map[primitive.ObjectID]models.Proposal{}}
}

func (m *ProposalRepo) Create(_ context.Context, p *models.Proposal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	m.Items[p.ID] = *p
	return nil
}

func (m *ProposalRepo) GetByID(_ context.Context, id primitive.ObjectID) (models.Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.Items[id]
	if !ok {
		return models.Proposal{}, models.ErrNotFound
	}
	return p, nil
}

func (m *ProposalRepo) List(_ context.Context, f models.ProposalFilter, p models.Page) ([]models.Proposal, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Proposal
	for _, it := range m.Items {
		if f.OrganizerID != "" && it.OrganizerID != f.OrganizerID {
			continue
		}
		if f.Status != "" && it.Status != f.Status {
			continue
		}
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, p), int64(len(out)), nil
}

func (m *ProposalRepo) Decide(_ context.Context, id primitive.ObjectID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.Items[id]
	if !ok {
		return models.ErrNotFound
	}
	if p.Status != models.ProposalPending {
		return models.ErrStaleState
	}
	p.Status = status
	m.Items[id] = p
	return nil
}

func (m *ProposalRepo) ClaimForEvent(_ context.Context, id, eventID primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.Items[id]
	if !ok {
		return models.ErrNotFound
	}
	if p.Status != models.ProposalApproved || p.EventID != nil {
		return models.ErrAlreadyAssigned
	}
	p.EventID = &eventID
	m.Items[id] = p
	return nil
}

func (m *ProposalRepo) ReleaseClaim(_ context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.Items[id]; ok {
		p.EventID = nil
		m.Items[id] = p
	}
	return nil
}

// ===== Notifications =====
type NotificationRepo struct {
	mu    sync.Mutex
	Items map[primitive.ObjectID]models.Notification
}

func NewNotificationRepo() *NotificationRepo {
	return &NotificationRepo{Items: map[primitive.ObjectID]models.Notification{}}
}

func clone(n models.Notification) models.Notification {
	n.Viewers = append([]models.Viewer(nil), n.Viewers...)
	return n
}

func (m *NotificationRepo) Create(_ context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n.ID.IsZero() {
		n.ID = primitive.NewObjectID()
	}
	m.Items[n.ID] = clone(*n)
	return nil
}

func (m *NotificationRepo) GetByID(_ context.Context, id primitive.ObjectID) (models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.Items[id]
	if !ok {
		return models.Notification{}, models.ErrNotFound
	}
	return clone(n), nil
}

func (m *NotificationRepo) forViewer(viewer string) []models.Notification {
	var out []models.Notification
	for _, n := range m.Items {
		if n.Viewer(viewer) != nil {
			out = append(out, clone(n))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *NotificationRepo) ListForViewer(_ context.Context, viewer string, p models.Page) ([]models.Notification, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.forViewer(viewer)
	return page(all, p), int64(len(all)), nil
}

func (m *NotificationRepo) UnreadCount(_ context.Context, viewer string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, it := range m.forViewer(viewer) {
		if !it.Viewer(viewer).IsRead {
			n++
		}
	}
	return n, nil
}

func (m *NotificationRepo) MarkRead(_ context.Context, id primitive.ObjectID, viewer string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.Items[id]
	if !ok {
		return models.ErrNotFound
	}
	n = clone(n)
	v := n.Viewer(viewer)
	if v == nil {
		return models.ErrNotFound
	}
	v.IsRead, v.ReadAt = true, &at
	m.Items[id] = n
	return nil
}

func (m *NotificationRepo) Delete(_ context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Items[id]; !ok {
		return models.ErrNotFound
	}
	delete(m.Items, id)
	return nil
}

// ===== Audit =====
type AuditRepo struct {
	mu      sync.Mutex
	Entries []models.AuditLog
	// FailInserts makes the next n Insert calls fail with Err.
	FailInserts int
	Err         error
}

func (m *AuditRepo) Insert(_ context.Context, a *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailInserts > 0 {
		m.FailInserts--
		return m.Err
	}
	if a.ID.IsZero() {
		a.ID = primitive.NewObjectID()
	}
	for _, e := range m.Entries {
		if e.ID == a.ID {
			return nil
		}
	}
	m.Entries = append(m.Entries, *a)
	return nil
}

func (m *AuditRepo) List(_ context.Context, f models.AuditFilter, p models.Page) ([]models.AuditLog, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AuditLog
	for _, e := range m.Entries {
		if f.Module != "" && e.Module != f.Module {
			continue
		}
		if f.ReferenceID != "" && e.ReferenceID != f.ReferenceID {
			continue
		}
		if f.ActionType != "" && e.ActionType != f.ActionType {
			continue
		}
		out = append(out, e)
	}
	return page(out, p), int64(len(out)), nil
}

// ByReference returns the entries for ref in insertion order.
func (m *AuditRepo) ByReference(ref string) []models.AuditLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AuditLog
	for _, e := range m.Entries {
		if e.ReferenceID == ref {
			out = append(out, e)
		}
	}
	return out
}

// ===== Feedback =====
type FeedbackRepo struct {
	mu    sync.Mutex
	Items []models.Feedback
}

func (m *FeedbackRepo) Create(_ context.Context, f *models.Feedback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.Items {
		if it.ParticipantID == f.ParticipantID {
			return models.ErrDuplicate
		}
	}
	if f.ID.IsZero() {
		f.ID = primitive.NewObjectID()
	}
	m.Items = append(m.Items, *f)
	return nil
}

func (m *FeedbackRepo) ExistsForParticipant(_ context.Context, participantID primitive.ObjectID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.Items {
		if it.ParticipantID == participantID {
			return true, nil
		}
	}
	return false, nil
}

func (m *FeedbackRepo) ListByEvent(_ context.Context, eventID primitive.ObjectID) ([]models.Feedback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Feedback
	for _, it := range m.Items {
		if it.EventID == eventID {
			out = append(out, it)
		}
	}
	return out, nil
}

// ===== Users =====

// UserRepo keys users by email and stores bcrypt hashes like the SQL repo.
type UserRepo struct {
	mu    sync.Mutex
	Users map[string]models.User
}

func NewUserRepo() *UserRepo { return &UserRepo{Users: map[string]models.User{}} }

func (m *UserRepo) Create(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if _, ok := m.Users[u.Email]; ok {
		return models.ErrDuplicate
	}
	hashed, err := utils.HashPassword(u.Password)
	if err != nil {
		return err
	}
	u.Password = hashed
	u.ID = int64(len(m.Users) + 1)
	m.Users[u.Email] = *u
	return nil
}

func (m *UserRepo) ValidateCredentials(_ context.Context, email, plain string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.Users[strings.ToLower(strings.TrimSpace(email))]
	if !ok || !utils.CheckPasswordHash(plain, u.Password) {
		return models.User{}, models.ErrInvalidCredentials
	}
	return u, nil
}

func (m *UserRepo) GetByID(_ context.Context, id int64) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.Users {
		if u.ID == id {
			return u, nil
		}
	}
	return models.User{}, models.ErrNotFound
}
