package credentials

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/makiuchi-d/gozxing"
	zxqr "github.com/makiuchi-d/gozxing/qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"eventapi/mailer"
	"eventapi/models"
	"eventapi/models/mocks"
	"eventapi/storage"
)

func decodeQR(t *testing.T, b []byte) string {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(b))
	require.NoError(t, err)
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	require.NoError(t, err)
	res, err := zxqr.NewQRCodeReader().Decode(bmp, nil)
	require.NoError(t, err)
	return res.GetText()
}

func TestEncodeQR_RoundTrip(t *testing.T) {
	for i := 0; i < 5; i++ {
		id := primitive.NewObjectID().Hex()
		png, err := EncodeQR(id)
		require.NoError(t, err)
		assert.Equal(t, id, decodeQR(t, png))
	}
}

func TestEncodeQR_EmptyPayload(t *testing.T) {
	_, err := EncodeQR("")
	require.ErrorIs(t, err, ErrGeneration)
}

func TestRenderPass(t *testing.T) {
	qr, err := EncodeQR("abc123")
	require.NoError(t, err)

	out, err := RenderPass(PassData{
		OrgName: "City Events Office", EventName: "Coastal Cleanup", Venue: "Bayfront",
		EventDate: time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC),
		FullName: "Ana Cruz", Contact: "0917", Email: "ana@example.com", Address: "Poblacion",
		QR: qr, ReferenceID: "abc123",
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))

	_, err = RenderPass(PassData{EventName: "x"})
	require.ErrorIs(t, err, ErrGeneration)
}

type fixture struct {
	events       *mocks.EventRepo
	participants *mocks.ParticipantRepo
	mail         *mailer.Recorder
	store        *storage.MemoryStore
}

func newFixture() *fixture {
	events := mocks.NewEventRepo()
	return &fixture{
		events:       events,
		participants: mocks.NewParticipantRepo(events, mocks.NewProposalRepo()),
		mail:         &mailer.Recorder{},
		store:        storage.NewMemoryStore(),
	}
}

func (f *fixture) accepted(t *testing.T, pass models.Pass) models.Participant {
	t.Helper()
	ctx := context.Background()
	e := &models.Event{Name: "Coastal Cleanup", Venue: "Bayfront", Capacity: 10, EventDate: time.Now().Add(48 * time.Hour)}
	require.NoError(t, f.events.Create(ctx, e))
	p := &models.Participant{
		EventID: e.ID, FirstName: "Ana", LastName: "Cruz", Email: "ana@example.com",
		Status: models.StatusAccept, Pass: pass,
	}
	require.NoError(t, f.participants.Create(ctx, p))
	return *p
}

func TestIssuer_IssueEmailsPassWithParticipantQR(t *testing.T) {
	f := newFixture()
	p := f.accepted(t, models.Pass{State: models.PassQueued})

	iss := NewIssuer(f.participants, f.mail, f.store, "City Events Office")
	var rendered PassData
	iss.render = func(d PassData) ([]byte, error) {
		rendered = d
		return RenderPass(d)
	}

	pass, err := iss.Issue(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PassIssued, pass.State)
	assert.NotNil(t, pass.IssuedAt)
	assert.NotEmpty(t, pass.ObjectKey)

	sent := f.mail.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "ana@example.com", sent[0].To)
	require.Len(t, sent[0].Attachments, 1)
	assert.Equal(t, "application/pdf", sent[0].Attachments[0].ContentType)
	assert.True(t, bytes.HasPrefix(sent[0].Attachments[0].Data, []byte("%PDF-")))

	assert.Equal(t, p.ID.Hex(), decodeQR(t, rendered.QR))
	archived, ok := f.store.Get(pass.ObjectKey)
	require.True(t, ok)
	assert.Equal(t, sent[0].Attachments[0].Data, archived)
}

func TestIssuer_SkipsIssuedPass(t *testing.T) {
	f := newFixture()
	p := f.accepted(t, models.Pass{State: models.PassIssued, Attempts: 1})

	pass, err := NewIssuer(f.participants, f.mail, nil, "Org").Issue(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PassIssued, pass.State)
	assert.Empty(t, f.mail.Sent())
}

func TestIssuer_RejectsIneligible(t *testing.T) {
	f := newFixture()
	iss := NewIssuer(f.participants, f.mail, nil, "Org")

	_, err := iss.Issue(context.Background(), primitive.NewObjectID())
	require.ErrorIs(t, err, ErrNotIssuable)

	p := &models.Participant{EventID: primitive.NewObjectID(), Status: models.StatusPending}
	require.NoError(t, f.participants.Create(context.Background(), p))
	_, err = iss.Issue(context.Background(), p.ID)
	require.ErrorIs(t, err, ErrNotIssuable)
}

func TestIssuer_MailFailureIsReturned(t *testing.T) {
	f := newFixture()
	p := f.accepted(t, models.Pass{State: models.PassQueued})
	f.mail.SetErr(errors.New("smtp: connection refused"))

	_, err := NewIssuer(f.participants, f.mail, nil, "Org").Issue(context.Background(), p.ID)
	require.ErrorContains(t, err, "connection refused")
}

func TestIssuer_FailedSendsArchiveNothing(t *testing.T) {
	f := newFixture()
	p := f.accepted(t, models.Pass{State: models.PassQueued})
	issuer := NewIssuer(f.participants, f.mail, f.store, "Org")
	f.mail.SetErr(errors.New("smtp: connection refused"))

	for i := 0; i < 3; i++ {
		_, err := issuer.Issue(context.Background(), p.ID)
		require.Error(t, err)
	}
	assert.Equal(t, 0, f.store.Len())

	f.mail.SetErr(nil)
	pass, err := issuer.Issue(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PassIssued, pass.State)
	assert.Equal(t, 1, f.store.Len())
	_, ok := f.store.Get(pass.ObjectKey)
	assert.True(t, ok)
}

type scriptedIssuer struct {
	mu     sync.Mutex
	calls  int
	failN  int
	failAs error
}

func (s *scriptedIssuer) Issue(_ context.Context, _ primitive.ObjectID) (models.Pass, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failN < 0 || s.calls <= s.failN {
		return models.Pass{}, s.failAs
	}
	now := time.Now().UTC()
	return models.Pass{State: models.PassIssued, IssuedAt: &now}, nil
}

func (s *scriptedIssuer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func fastConfig() WorkerConfig {
	return WorkerConfig{Workers: 2, MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func waitForState(t *testing.T, repo *mocks.ParticipantRepo, id primitive.ObjectID, state string) models.Pass {
	t.Helper()
	var pass models.Pass
	require.Eventually(t, func() bool {
		p, err := repo.GetByID(context.Background(), id)
		pass = p.Pass
		return err == nil && p.Pass.State == state
	}, 2*time.Second, 5*time.Millisecond)
	return pass
}

func TestWorker_RetriesUntilIssued(t *testing.T) {
	f := newFixture()
	p := f.accepted(t, models.Pass{State: models.PassQueued})
	iss := &scriptedIssuer{failN: 2, failAs: errors.New("smtp timeout")}

	w := NewWorker(f.participants, iss, fastConfig())
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop(context.Background())

	pass := waitForState(t, f.participants, p.ID, models.PassIssued)
	assert.Equal(t, 3, pass.Attempts)
	assert.Empty(t, pass.LastError)
}

func TestWorker_MarksFailedAfterMaxAttempts(t *testing.T) {
	f := newFixture()
	p := f.accepted(t, models.Pass{State: models.PassNone})
	iss := &scriptedIssuer{failN: -1, failAs: errors.New("smtp down")}

	w := NewWorker(f.participants, iss, fastConfig())
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop(context.Background())

	_, err := f.participants.QueuePass(context.Background(), p.ID)
	require.NoError(t, err)
	require.True(t, w.Enqueue(p.ID))

	pass := waitForState(t, f.participants, p.ID, models.PassFailed)
	assert.Equal(t, 3, pass.Attempts)
	assert.Equal(t, "smtp down", pass.LastError)
	assert.Equal(t, 3, iss.Calls())
}

func TestWorker_PermanentErrorStopsRetrying(t *testing.T) {
	f := newFixture()
	p := f.accepted(t, models.Pass{State: models.PassQueued})
	iss := &scriptedIssuer{failN: -1, failAs: ErrNotIssuable}

	w := NewWorker(f.participants, iss, fastConfig())
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop(context.Background())

	pass := waitForState(t, f.participants, p.ID, models.PassFailed)
	assert.Equal(t, 1, pass.Attempts)
	assert.Equal(t, 1, iss.Calls())
}

func TestWorker_StartRecoversQueuedOnly(t *testing.T) {
	f := newFixture()
	queued := f.accepted(t, models.Pass{State: models.PassQueued})
	failed := f.accepted(t, models.Pass{State: models.PassFailed, Attempts: 3})
	iss := &scriptedIssuer{}

	w := NewWorker(f.participants, iss, fastConfig())
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop(context.Background())

	waitForState(t, f.participants, queued.ID, models.PassIssued)
	got, err := f.participants.GetByID(context.Background(), failed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PassFailed, got.Pass.State)
	assert.Equal(t, 1, iss.Calls())
}

func TestWorker_EnqueueDoesNotBlockWhenFull(t *testing.T) {
	f := newFixture()
	w := NewWorker(f.participants, &scriptedIssuer{}, WorkerConfig{QueueSize: 1})
	// not started: nothing drains the queue
	assert.True(t, w.Enqueue(primitive.NewObjectID()))
	assert.False(t, w.Enqueue(primitive.NewObjectID()))
}
