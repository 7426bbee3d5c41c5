package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"eventapi/apperr"
	"eventapi/models"
)

// SpillKey is the Redis list holding audit entries that could not be written.
const SpillKey = "audit:spill"

// Entry describes one successful mutation.
type Entry struct {
	Action      string
	Module      string
	ReferenceID string
	Description string
	Old, New    any
}

// Auditor writes at least once: an insert is retried, then parked in Redis
// and replayed by FlushSpill. The ID is fixed before the first attempt so
// a replay of an entry that did land is a no-op.
type Auditor struct {
	repo     models.AuditRepository
	rdb      *redis.Client
	attempts int
	interval time.Duration
	now      func() time.Time
	log      *slog.Logger
}

// NewAuditor builds an Auditor. rdb may be nil, in which case entries that
// exhaust their retries are only logged.
func NewAuditor(repo models.AuditRepository, rdb *redis.Client) *Auditor {
	return &Auditor{
		repo:     repo,
		rdb:      rdb,
		attempts: 3,
		interval: 50 * time.Millisecond,
		now:      time.Now,
		log:      slog.With("component", "audit"),
	}
}

// Record never fails the caller's operation.
func (a *Auditor) Record(ctx context.Context, actor Actor, e Entry) {
	// the request may finish before the write does
	ctx = context.WithoutCancel(ctx)

	entry := &models.AuditLog{
		ID:          primitive.NewObjectID(),
		ActionType:  e.Action,
		PerformedBy: actor.Name(),
		Module:      e.Module,
		ReferenceID: e.ReferenceID,
		Description: e.Description,
		OldData:     e.Old,
		NewData:     e.New,
		IPAddress:   actor.IP,
		Timestamp:   a.now().UTC(),
	}

	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(a.interval), uint64(a.attempts-1))
	err := backoff.Retry(func() error { return a.repo.Insert(ctx, entry) }, backoff.WithContext(b, ctx))
	if err == nil {
		return
	}
	a.log.Warn("audit insert failed, spilling", "module", e.Module, "reference", e.ReferenceID, "error", err)
	if err := a.spill(ctx, entry); err != nil {
		a.log.Error("audit entry lost", "module", e.Module, "reference", e.ReferenceID,
			"action", e.Action, "error", err)
	}
}

func (a *Auditor) spill(ctx context.Context, entry *models.AuditLog) error {
	if a.rdb == nil {
		return errors.New("no spill store configured")
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return a.rdb.RPush(ctx, SpillKey, raw).Err()
}

// FlushSpill replays parked entries in order and reports how many landed.
// An entry leaves the list only after its insert succeeded.
func (a *Auditor) FlushSpill(ctx context.Context) (int, error) {
	if a.rdb == nil {
		return 0, nil
	}
	n := 0
	for {
		raw, err := a.rdb.LIndex(ctx, SpillKey, 0).Bytes()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, err
		}

		var entry models.AuditLog
		if err := json.Unmarshal(raw, &entry); err != nil {
			a.log.Error("dropping malformed spilled entry", "error", err)
		} else if err := a.repo.Insert(ctx, &entry); err != nil {
			return n, err
		} else {
			n++
		}
		if err := a.rdb.LPop(ctx, SpillKey).Err(); err != nil {
			return n, err
		}
	}
}

func (a *Auditor) List(ctx context.Context, f models.AuditFilter, p models.Page) ([]models.AuditLog, models.PageMeta, error) {
	items, total, err := a.repo.List(ctx, f, p)
	if err != nil {
		return nil, models.PageMeta{}, apperr.Internal("Could not fetch audit logs. Try again later.", err)
	}
	return items, models.NewPageMeta(p, total), nil
}
