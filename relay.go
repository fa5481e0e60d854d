package outbox

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Relay periodically claims a batch of due events and drives each through one
// publish attempt and the resulting status transition.
//
// Each batch is processed inside a single store transaction: the claim locks
// and the status writes commit together, so a crash or commit failure leaves
// every event in the batch exactly as it was and claimable by a future run.
// Expected publish failures are contained here; they never escape to callers
// of the Writer.
type Relay struct {
	claimer   Claimer
	publisher Publisher
	cfg       RelayConfig

	pendingMu sync.Mutex
	pendingAt time.Time
}

type batchOutcome struct {
	sent   []int64
	failed []int64
}

// NewRelay constructs a Relay with defaults and optional settings.
func NewRelay(claimer Claimer, publisher Publisher, opts ...RelayOption) *Relay {
	if claimer == nil {
		panic("outbox: nil Claimer")
	}
	if publisher == nil {
		panic("outbox: nil Publisher")
	}

	var cfg RelayConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	return &Relay{
		claimer:   claimer,
		publisher: publisher,
		cfg:       cfg,
	}
}

// Run starts the periodic loop after the configured initial delay and blocks
// until the context is canceled.
//
// A single worker loop never overlaps with itself: the next run starts only
// after the previous one finished. Multiple workers, or multiple relay
// instances on different replicas, are safe to run concurrently because
// claims are exclusive per event. Claim and commit failures are logged and
// retried on the next scheduled run; they do not stop the loop.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.sleep(ctx, r.cfg.InitialDelay); err != nil {
		return ignoreCanceled(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Workers; i++ {
		wg.Add(1)
		workerID := i
		go func() {
			defer wg.Done()
			r.runWorker(ctx, workerID)
		}()
	}
	wg.Wait()

	return ignoreCanceled(ctx.Err())
}

// ProcessOnce claims and processes a single batch. It reports whether a batch
// was processed; an empty claim pool is a no-op, not an error.
func (r *Relay) ProcessOnce(ctx context.Context) (bool, error) {
	batch, err := r.claimBatch(ctx)
	if err != nil {
		if errors.Is(err, ErrNoEvents) {
			r.maybeRecordPending(ctx)

			return false, nil
		}

		return false, err
	}

	if err := r.processBatch(ctx, batch); err != nil {
		return false, err
	}

	return true, nil
}

func (r *Relay) runWorker(ctx context.Context, workerID int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		processed, err := r.runOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// Nothing committed; the events stay claimable.
			r.cfg.Logger.Error("outbox run failed", "worker", workerID, "err", err)
		}
		if processed && err == nil {
			// Drain the backlog before going idle again.
			continue
		}

		if err := r.sleep(ctx, r.cfg.PollInterval); err != nil {
			return
		}
	}
}

func (r *Relay) runOnce(ctx context.Context) (processed bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.cfg.Logger.Error("outbox run panic", "panic", rec)
			processed = false
			err = ErrRunPanic
		}
	}()

	return r.ProcessOnce(ctx)
}

func (r *Relay) claimBatch(ctx context.Context) (Batch, error) {
	return r.claimer.Claim(ctx, ClaimOptions{
		BatchSize: r.cfg.BatchSize,
		Now:       r.cfg.Clock.Now(),
	})
}

func (r *Relay) processBatch(ctx context.Context, batch Batch) error {
	start := time.Now()
	defer func() {
		r.cfg.Metrics.ObserveBatchDuration(time.Since(start))
	}()

	if batch == nil {
		return ErrNilBatch
	}

	events := batch.Events()
	if len(events) == 0 {
		rollbackErr := batch.Rollback()

		return errors.Join(ErrEmptyBatch, rollbackErr)
	}

	outcome, err := r.publishAll(ctx, events)
	if err != nil {
		return r.rollbackWith(batch, err)
	}

	return r.applyOutcome(ctx, batch, outcome)
}

func (r *Relay) publishAll(ctx context.Context, events []Event) (batchOutcome, error) {
	outcome := batchOutcome{
		sent:   make([]int64, 0, len(events)),
		failed: make([]int64, 0),
	}
	for i := range events {
		event := events[i]
		pubCtx := ctx
		cancel := func() {}
		if r.cfg.PublishTimeout > 0 {
			pubCtx, cancel = context.WithTimeout(ctx, r.cfg.PublishTimeout)
		}
		err := r.publisher.Publish(pubCtx, event)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return outcome, ctx.Err()
			}
			r.cfg.Logger.Warn("outbox publish failed",
				"event", event.ID,
				"event_type", event.EventType,
				"attempts", event.Attempts,
				"err", err,
			)
			outcome.failed = append(outcome.failed, event.ID)

			continue
		}
		outcome.sent = append(outcome.sent, event.ID)
	}

	return outcome, nil
}

func (r *Relay) applyOutcome(ctx context.Context, batch Batch, outcome batchOutcome) error {
	if len(outcome.sent) > 0 {
		if err := batch.MarkSent(ctx, outcome.sent); err != nil {
			return r.rollbackWith(batch, err)
		}
	}

	var dead int
	if len(outcome.failed) > 0 {
		var err error
		dead, err = batch.MarkFailed(ctx, outcome.failed)
		if err != nil {
			return r.rollbackWith(batch, err)
		}
	}

	if err := batch.Commit(); err != nil {
		return r.rollbackWith(batch, err)
	}

	r.cfg.Metrics.AddSent(len(outcome.sent))
	r.cfg.Metrics.AddFailed(len(outcome.failed))
	r.cfg.Metrics.AddDead(dead)
	if dead > 0 {
		r.cfg.Logger.Error("outbox events dead-lettered", "count", dead)
	}

	return nil
}

func (r *Relay) rollbackWith(batch Batch, err error) error {
	rollbackErr := batch.Rollback()
	if rollbackErr == nil {
		return err
	}

	return errors.Join(err, rollbackErr)
}

func (r *Relay) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (r *Relay) maybeRecordPending(ctx context.Context) {
	counter, ok := r.claimer.(StatusCounter)
	if !ok {
		return
	}
	if r.cfg.PendingInterval <= 0 {
		return
	}
	if ctx.Err() != nil {
		return
	}

	now := r.cfg.Clock.Now()
	r.pendingMu.Lock()
	nextAllowed := r.pendingAt.Add(r.cfg.PendingInterval)
	if !r.pendingAt.IsZero() && now.Before(nextAllowed) {
		r.pendingMu.Unlock()

		return
	}
	r.pendingAt = now
	r.pendingMu.Unlock()

	count, err := counter.CountByStatus(ctx, StatusPending)
	if err != nil {
		r.cfg.Logger.Warn("outbox pending count failed", "err", err)

		return
	}

	r.cfg.Metrics.SetPending(count)
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}
