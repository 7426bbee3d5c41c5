package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"eventapi/apperr"
	"eventapi/models"
	"eventapi/models/mocks"
	"eventapi/storage"
)

type pushed struct {
	Target string
	Event  string
	Data   any
}

type fakePush struct {
	mu         sync.Mutex
	online     map[string]bool
	emitted    []pushed
	broadcasts []pushed
}

func newFakePush(online ...string) *fakePush {
	f := &fakePush{online: map[string]bool{}}
	for _, o := range online {
		f.online[o] = true
	}
	return f
}

func (f *fakePush) Emit(_ context.Context, profileID, event string, data any) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.online[profileID] {
		return false, nil
	}
	f.emitted = append(f.emitted, pushed{profileID, event, data})
	return true, nil
}

func (f *fakePush) Broadcast(_ context.Context, event string, data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, pushed{"", event, data})
	return nil
}

func (f *fakePush) Emitted() []pushed {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pushed(nil), f.emitted...)
}

type fakeQueue struct {
	mu  sync.Mutex
	ids []primitive.ObjectID
}

func (q *fakeQueue) Enqueue(id primitive.ObjectID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = append(q.ids, id)
	return true
}

func (q *fakeQueue) Count(id primitive.ObjectID) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, x := range q.ids {
		if x == id {
			n++
		}
	}
	return n
}

type recordingCache struct {
	mu    sync.Mutex
	lists int
	items []string
}

func (c *recordingCache) PurgeEventsList(context.Context) {
	c.mu.Lock()
	c.lists++
	c.mu.Unlock()
}

func (c *recordingCache) PurgeEventItem(_ context.Context, id string) {
	c.mu.Lock()
	c.items = append(c.items, id)
	c.mu.Unlock()
}

const organizer = "org-profile-1"

type env struct {
	events       *mocks.EventRepo
	proposals    *mocks.ProposalRepo
	participants *mocks.ParticipantRepo
	feedback     *mocks.FeedbackRepo
	notes        *mocks.NotificationRepo
	audit        *mocks.AuditRepo
	push         *fakePush
	queue        *fakeQueue
	cache        *recordingCache
	store        *storage.MemoryStore

	auditor      *Auditor
	notifier     *Notifier
	participantS *ParticipantService
	eventS       *EventService
}

func newEnv(t *testing.T, online ...string) *env {
	t.Helper()
	e := &env{
		events:    mocks.NewEventRepo(),
		proposals: mocks.NewProposalRepo(),
		feedback:  &mocks.FeedbackRepo{},
		notes:     mocks.NewNotificationRepo(),
		audit:     &mocks.AuditRepo{},
		push:      newFakePush(online...),
		queue:     &fakeQueue{},
		cache:     &recordingCache{},
		store:     storage.NewMemoryStore(),
	}
	e.participants = mocks.NewParticipantRepo(e.events, e.proposals)
	e.auditor = NewAuditor(e.audit, nil)
	e.auditor.interval = time.Millisecond
	e.notifier = NewNotifier(e.notes, e.push)
	e.participantS = NewParticipantService(ParticipantDeps{
		Participants: e.participants,
		Events:       e.events,
		Feedback:     e.feedback,
		Issuance:     e.queue,
		Notifier:     e.notifier,
		Auditor:      e.auditor,
		Push:         e.push,
		Cache:        e.cache,
	})
	e.eventS = NewEventService(EventDeps{
		Events:       e.events,
		Participants: e.participants,
		Proposals:    e.proposals,
		Store:        e.store,
		Auditor:      e.auditor,
		Cache:        e.cache,
	})
	return e
}

func (e *env) event(t *testing.T, capacity, registered int) models.Event {
	t.Helper()
	prop := &models.Proposal{Title: "Tree planting drive", OrganizerID: organizer, Status: models.ProposalApproved}
	require.NoError(t, e.proposals.Create(context.Background(), prop))
	ev := &models.Event{
		Name: "Tree Planting", Venue: "Riverside Park", Capacity: capacity, RegisteredCount: registered,
		EventDate: time.Now().Add(72 * time.Hour), OrganizerID: organizer, ProposalID: prop.ID,
		Status: models.EventScheduled,
	}
	require.NoError(t, e.events.Create(context.Background(), ev))
	return *ev
}

func (e *env) register(t *testing.T, ev models.Event, first string) RegistrationSummary {
	t.Helper()
	sum, err := e.participantS.Create(context.Background(), Actor{IP: "203.0.113.9"}, Registration{
		EventID: ev.ID.Hex(), FirstName: first, LastName: "Santos", Contact: "0917 000 0000",
		Email: first + "@example.com", Address: "Barangay 1",
	})
	require.NoError(t, err)
	return sum
}

func requireKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, apperr.KindOf(err), "error: %v", err)
}

var admin = Actor{UserID: 1, ProfileID: "admin-profile", Role: models.RoleAdmin, IP: "10.0.0.1"}
