package credentials

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"eventapi/models"
)

type PassIssuer interface {
	Issue(ctx context.Context, id primitive.ObjectID) (models.Pass, error)
}

type WorkerConfig struct {
	Workers     int
	MaxAttempts int
	QueueSize   int
	// InitialBackoff is the first retry delay; it doubles per attempt.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.Workers < 1 {
		c.Workers = 2
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 5
	}
	if c.QueueSize < 1 {
		c.QueueSize = 256
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 2 * time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = time.Minute
	}
	return c
}

// Worker issues passes in the background. The participant record is the
// source of truth: pass.state is queued before Enqueue and ends as issued
// or failed, so anything still queued after a restart is picked up again.
type Worker struct {
	participants models.ParticipantRepository
	issuer       PassIssuer
	cfg          WorkerConfig
	log          *slog.Logger

	queue  chan primitive.ObjectID
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	inflight map[primitive.ObjectID]bool
}

func NewWorker(participants models.ParticipantRepository, issuer PassIssuer, cfg WorkerConfig) *Worker {
	cfg = cfg.withDefaults()
	return &Worker{
		participants: participants,
		issuer:       issuer,
		cfg:          cfg,
		log:          slog.With("component", "issuance"),
		queue:        make(chan primitive.ObjectID, cfg.QueueSize),
		inflight:     make(map[primitive.ObjectID]bool),
	}
}

// Start launches the workers and re-enqueues passes left queued.
func (w *Worker) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	for i := 0; i < w.cfg.Workers; i++ {
		w.wg.Add(1)
		go w.loop(runCtx)
	}
	return w.Recover(ctx)
}

// Recover enqueues every participant whose pass is still queued.
func (w *Worker) Recover(ctx context.Context) error {
	ids, err := w.participants.ListByPassState(ctx, models.PassQueued)
	if err != nil {
		return err
	}
	for _, id := range ids {
		w.Enqueue(id)
	}
	if len(ids) > 0 {
		w.log.Info("re-enqueued pending passes", "count", len(ids))
	}
	return nil
}

// Enqueue never blocks. When the queue is full the record stays queued
// and the next Recover picks it up.
func (w *Worker) Enqueue(id primitive.ObjectID) bool {
	select {
	case w.queue <- id:
		return true
	default:
		w.log.Warn("issuance queue full, deferring", "participant", id.Hex())
		return false
	}
}

// Stop cancels pending work and waits for running jobs or ctx.
func (w *Worker) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.cancel()
	}
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-w.queue:
			if !w.claim(id) {
				continue
			}
			w.process(ctx, id)
			w.release(id)
		}
	}
}

func (w *Worker) claim(id primitive.ObjectID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.inflight[id] {
		return false
	}
	w.inflight[id] = true
	return true
}

func (w *Worker) release(id primitive.ObjectID) {
	w.mu.Lock()
	delete(w.inflight, id)
	w.mu.Unlock()
}

func (w *Worker) process(ctx context.Context, id primitive.ObjectID) {
	current, err := w.participants.GetByID(ctx, id)
	if err != nil {
		w.log.Error("load participant failed", "participant", id.Hex(), "error", err)
		return
	}
	// duplicates from a recovery sweep arrive after the pass settled
	if current.Pass.State != models.PassQueued {
		return
	}
	attempts := current.Pass.Attempts

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = w.cfg.InitialBackoff
	eb.MaxInterval = w.cfg.MaxBackoff
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(w.cfg.MaxAttempts-1)), ctx)

	var pass models.Pass
	op := func() error {
		attempts++
		p, err := w.issuer.Issue(ctx, id)
		if err == nil {
			pass = p
			return nil
		}
		w.log.Warn("issue attempt failed", "participant", id.Hex(), "attempt", attempts, "error", err)
		if errors.Is(err, ErrNotIssuable) {
			return backoff.Permanent(err)
		}
		// keep progress visible while retrying
		_ = w.participants.SetPass(ctx, id, models.Pass{
			State: models.PassQueued, Attempts: attempts, LastError: err.Error(),
		})
		return err
	}

	err = backoff.Retry(op, policy)
	if ctx.Err() != nil {
		// shutting down; the record stays queued for the next start
		return
	}
	if err != nil {
		pass = models.Pass{State: models.PassFailed, LastError: err.Error()}
	}
	pass.Attempts = attempts
	if err := w.participants.SetPass(context.Background(), id, pass); err != nil {
		w.log.Error("recording pass state failed", "participant", id.Hex(), "error", err)
		return
	}
	w.log.Info("pass processed", "participant", id.Hex(), "state", pass.State, "attempts", attempts)
}
