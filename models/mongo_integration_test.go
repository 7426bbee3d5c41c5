//go:build integration

// Runs the Mongo repositories against a live server:
//
//	MONGO_URI=mongodb://127.0.0.1:27018 go test -tags integration ./models/
package models_test

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"eventapi/db"
	"eventapi/models"
)

func testDB(t *testing.T) *mongo.Database {
	t.Helper()
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		uri = "mongodb://127.0.0.1:27018"
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := db.ConnectMongo(ctx, uri)
	require.NoError(t, err)
	database := client.Database("eventapi_it_" + primitive.NewObjectID().Hex())
	require.NoError(t, db.EnsureIndexes(ctx, database))

	t.Cleanup(func() {
		_ = database.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})
	return database
}

func TestMongo_ReserveSeatUnderConcurrency(t *testing.T) {
	database := testDB(t)
	events := models.NewMongoEventRepository(database.Collection(db.CollEvents))
	ctx := context.Background()

	ev := &models.Event{Name: "Zumba", Venue: "Gym", Capacity: 5, EventDate: time.Now().Add(time.Hour)}
	require.NoError(t, events.Create(ctx, ev))

	var won, full atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := events.ReserveSeat(ctx, ev.ID)
			switch {
			case err == nil:
				won.Add(1)
			case assert.ErrorIs(t, err, models.ErrEventFull):
				full.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(5), won.Load())
	assert.Equal(t, int32(35), full.Load())
	got, err := events.GetByID(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.RegisteredCount)

	_, err = events.ReserveSeat(ctx, primitive.NewObjectID())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMongo_ParticipantJoinAndPassQueue(t *testing.T) {
	database := testDB(t)
	ctx := context.Background()
	events := models.NewMongoEventRepository(database.Collection(db.CollEvents))
	proposals := models.NewMongoProposalRepository(database.Collection(db.CollProposals))
	participants := models.NewMongoParticipantRepository(database.Collection(db.CollParticipants))

	prop := &models.Proposal{Title: "Fun run", OrganizerID: "org", Status: models.ProposalApproved}
	require.NoError(t, proposals.Create(ctx, prop))
	ev := &models.Event{Name: "Fun Run", Venue: "Oval", Capacity: 10, ProposalID: prop.ID, EventDate: time.Now()}
	require.NoError(t, events.Create(ctx, ev))

	p := &models.Participant{
		EventID: ev.ID, FirstName: "Lia", LastName: "Cruz", Email: "lia@example.com",
		Status: models.StatusPending, Pass: models.Pass{State: models.PassNone}, CreatedAt: time.Now(),
	}
	require.NoError(t, participants.Create(ctx, p))

	v, err := participants.GetView(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, v.Event)
	assert.Equal(t, "Fun Run", v.Event.Name)
	require.NotNil(t, v.Proposal)
	assert.Equal(t, "Fun run", v.Proposal.Title)

	items, total, err := participants.List(ctx, models.ParticipantFilter{Search: "LIA"}, models.Page{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, items, 1)

	require.NoError(t, participants.UpdateStatus(ctx, p.ID, models.StatusPending, models.StatusAccept))
	assert.ErrorIs(t, participants.UpdateStatus(ctx, p.ID, models.StatusPending, models.StatusReject), models.ErrStaleState)

	// accepting queued the pass in the same write
	got, err := participants.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PassQueued, got.Pass.State)
	changed, err := participants.QueuePass(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	ids, err := participants.ListByPassState(ctx, models.PassQueued)
	require.NoError(t, err)
	assert.Equal(t, []primitive.ObjectID{p.ID}, ids)
}

func TestMongo_MarkReadTouchesOneViewer(t *testing.T) {
	database := testDB(t)
	ctx := context.Background()
	notes := models.NewMongoNotificationRepository(database.Collection(db.CollNotifications))

	n := &models.Notification{Title: "t", Viewers: []models.Viewer{{User: "a"}, {User: "b"}}, CreatedAt: time.Now()}
	require.NoError(t, notes.Create(ctx, n))
	require.NoError(t, notes.MarkRead(ctx, n.ID, "b", time.Now()))

	got, err := notes.GetByID(ctx, n.ID)
	require.NoError(t, err)
	assert.False(t, got.Viewer("a").IsRead)
	assert.True(t, got.Viewer("b").IsRead)
	assert.ErrorIs(t, notes.MarkRead(ctx, n.ID, "c", time.Now()), models.ErrNotFound)

	unread, err := notes.UnreadCount(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)
}

func TestMongo_FeedbackIsUniquePerParticipant(t *testing.T) {
	database := testDB(t)
	ctx := context.Background()
	feedback := models.NewMongoFeedbackRepository(database.Collection(db.CollFeedback))

	pid := primitive.NewObjectID()
	require.NoError(t, feedback.Create(ctx, &models.Feedback{ParticipantID: pid, Rating: 5}))
	assert.ErrorIs(t, feedback.Create(ctx, &models.Feedback{ParticipantID: pid, Rating: 1}), models.ErrDuplicate)

	ok, err := feedback.ExistsForParticipant(ctx, pid)
	require.NoError(t, err)
	assert.True(t, ok)
}
