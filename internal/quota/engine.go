package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"snapchart-proxy/internal/docstore"
	"snapchart-proxy/internal/model"
)

// consumeAttempts bounds the conditional-decrement retry loop. Conflicts only
// happen when the same user races itself, so contention stays low.
const consumeAttempts = 3

type UserStore interface {
	GetUser(ctx context.Context, uid string) (model.UserRecord, string, bool, error)
	CreateUser(ctx context.Context, uid string, rec model.UserRecord) error
	PatchUser(ctx context.Context, uid string, update docstore.UserUpdate, updateTime string) error
}

// Engine owns every write to analysesRemaining and lastReset after a record
// is created. The reset window is derived, never stored:
// nextReset = lastReset + resetInterval.
type Engine struct {
	store         UserStore
	initialQuota  int
	resetInterval time.Duration
	now           func() time.Time
}

func NewEngine(store UserStore, initialQuota int, resetInterval time.Duration) *Engine {
	return &Engine{
		store:         store,
		initialQuota:  initialQuota,
		resetInterval: resetInterval,
		now:           time.Now,
	}
}

type Usage struct {
	Remaining int
	WaitMs    int64
}

// EnsureUser creates the record with a full quota the first time a uid is
// seen. Existing records are left alone.
func (e *Engine) EnsureUser(ctx context.Context, uid string, email string) error {
	_, _, found, err := e.store.GetUser(ctx, uid)
	if err != nil {
		return err
	}
	if found {
		return nil
	}

	rec := model.UserRecord{
		Email:             email,
		AnalysesRemaining: e.initialQuota,
		LastReset:         e.now().UTC(),
	}

	return e.store.CreateUser(ctx, uid, rec)
}

// Check reports the current allowance, refilling first when the reset window
// has elapsed. After a refill WaitMs is always 0; with the quota depleted it
// is the time until the next window opens.
func (e *Engine) Check(ctx context.Context, uid string) (Usage, error) {
	now := e.now().UTC()

	rec, _, found, err := e.store.GetUser(ctx, uid)
	if err != nil {
		return Usage{}, err
	}

	if !found {
		rec = model.UserRecord{AnalysesRemaining: e.initialQuota, LastReset: now}
		if err := e.store.CreateUser(ctx, uid, rec); err != nil {
			return Usage{}, err
		}
		return Usage{Remaining: e.initialQuota}, nil
	}

	nextReset := rec.LastReset.Add(e.resetInterval)
	if rec.LastReset.IsZero() || !now.Before(nextReset) {
		refill := e.initialQuota
		reset := now
		update := docstore.UserUpdate{AnalysesRemaining: &refill, LastReset: &reset}
		if err := e.store.PatchUser(ctx, uid, update, ""); err != nil {
			return Usage{}, err
		}
		return Usage{Remaining: refill}, nil
	}

	usage := Usage{Remaining: rec.AnalysesRemaining}
	if rec.AnalysesRemaining <= 0 {
		usage.WaitMs = nextReset.Sub(now).Milliseconds()
	}

	return usage, nil
}

// ConsumeOne takes a single unit as a conditional update: read the record
// with its revision tag, decrement, and patch against that revision. A
// conflict means a concurrent request moved the counter first, so the read
// is repeated. Two racing requests can never both take the last unit.
func (e *Engine) ConsumeOne(ctx context.Context, uid string) (int, error) {
	for attempt := 0; attempt < consumeAttempts; attempt++ {
		rec, updateTime, found, err := e.store.GetUser(ctx, uid)
		if err != nil {
			return 0, err
		}
		if !found || rec.AnalysesRemaining <= 0 {
			return 0, model.ErrQuotaExhausted
		}
		// Without a revision tag the patch would be unconditional and the
		// hard cap would silently stop holding.
		if updateTime == "" {
			return 0, fmt.Errorf("user record %s has no revision tag, refusing unconditional decrement", uid)
		}

		remaining := rec.AnalysesRemaining - 1
		update := docstore.UserUpdate{AnalysesRemaining: &remaining}
		err = e.store.PatchUser(ctx, uid, update, updateTime)
		if errors.Is(err, model.ErrPreconditionFailed) {
			continue
		}
		if err != nil {
			return 0, err
		}

		return remaining, nil
	}

	return 0, model.ErrConsumeRetriesSpent
}
