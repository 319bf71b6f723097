package sched

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"paybridge/internal/domain"
	"paybridge/internal/domain/model"
	"paybridge/internal/domain/ports/recon"
	"paybridge/internal/domain/ports/repository"
	"paybridge/internal/infra/metrics"
	red "paybridge/internal/infra/redis"
	"paybridge/internal/infra/worker"
	"paybridge/internal/usecase"
)

// Registry is the default recon.JobRegistry: an in-memory record of orders
// waiting on asynchronous settlement. The database scan in the Reconciler
// stays the authority, so losing this map on restart loses nothing.
type Registry struct {
	mu   sync.Mutex
	jobs map[string]*recon.Job // latest job per order
}

var _ recon.JobRegistry = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*recon.Job)}
}

func (r *Registry) RegisterJob(ctx context.Context, paymentID, orderID string) (*recon.Job, error) {
	job := &recon.Job{
		ID:        ulid.Make().String(),
		PaymentID: paymentID,
		OrderID:   orderID,
		CreatedAt: time.Now(),
	}
	r.mu.Lock()
	r.jobs[orderID] = job
	r.mu.Unlock()
	return job, nil
}

func (r *Registry) LatestJobForOrder(ctx context.Context, orderID string) (*recon.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[orderID]
	if !ok {
		return nil, nil
	}
	cp := *job
	return &cp, nil
}

func (r *Registry) drop(orderID string) {
	r.mu.Lock()
	delete(r.jobs, orderID)
	r.mu.Unlock()
}

// prune removes entries old enough that the payment either settled long ago
// or never will. The webhooks table, not this map, is the audit record.
func (r *Registry) prune(now time.Time) {
	horizon := now.Add(-24 * time.Hour)
	r.mu.Lock()
	for orderID, job := range r.jobs {
		if job.CreatedAt.Before(horizon) {
			delete(r.jobs, orderID)
		}
	}
	r.mu.Unlock()
}

// Reconciler periodically re-verifies in-flight payments that no webhook
// settled, covering lost deliveries and crashes mid-processing. Verification
// fans out over the worker pool so one slow gateway cannot stall the scan.
type Reconciler struct {
	payments   usecase.PaymentUseCase
	idem       usecase.IdempotencyUseCase
	repo       repository.PaymentRepository
	registry   *Registry
	pool       *worker.Pool
	// locker elects one replica per sweep so overlapping instances do not
	// re-verify the same payments against the gateways. nil runs unguarded.
	locker     red.Locker
	interval   time.Duration
	staleAfter time.Duration
	batch      int
	log        *zerolog.Logger

	nextPurge time.Time
}

// purgeEvery is how often expired idempotency records are swept. Purging is
// cheap but not urgent, so it rides the reconcile loop at a slower cadence.
const purgeEvery = time.Hour

func NewReconciler(
	payments usecase.PaymentUseCase,
	idem usecase.IdempotencyUseCase,
	repo repository.PaymentRepository,
	registry *Registry,
	pool *worker.Pool,
	locker red.Locker,
	interval, staleAfter time.Duration,
	batch int,
	logger *zerolog.Logger,
) *Reconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	if batch <= 0 {
		batch = 200
	}
	return &Reconciler{
		payments:   payments,
		idem:       idem,
		repo:       repo,
		registry:   registry,
		pool:       pool,
		locker:     locker,
		interval:   interval,
		staleAfter: staleAfter,
		batch:      batch,
		log:        logger,
		nextPurge:  time.Now().Add(purgeEvery),
	}
}

func (w *Reconciler) Start(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.tick(ctx)
		}
	}
}

// sweepLockKey serializes the sweep across replicas. The TTL backstops a
// crashed holder; normal runs release explicitly.
const sweepLockKey = "recon:sweep"

func (w *Reconciler) tick(ctx context.Context) {
	if w.locker != nil {
		token, err := w.locker.TryLock(ctx, sweepLockKey, w.interval)
		if err != nil {
			if !errors.Is(err, domain.ErrLockNotAcquired) {
				w.log.Warn().Err(err).Msg("reconciler: sweep lock failed")
			}
			return
		}
		defer func() {
			if err := w.locker.Unlock(ctx, sweepLockKey, token); err != nil {
				w.log.Warn().Err(err).Msg("reconciler: sweep unlock failed")
			}
		}()
	}

	cutoff := time.Now().Add(-w.staleAfter)
	open, err := w.repo.ListOpenOlderThan(ctx, repository.NoTX, cutoff, w.batch)
	if err != nil {
		w.log.Error().Err(err).Msg("reconciler: listing open payments failed")
		return
	}
	for _, p := range open {
		w.enqueue(p)
	}

	if now := time.Now(); now.After(w.nextPurge) {
		w.nextPurge = now.Add(purgeEvery)
		if n, err := w.idem.PurgeExpired(ctx); err != nil {
			w.log.Error().Err(err).Msg("reconciler: idempotency purge failed")
		} else if n > 0 {
			w.log.Info().Int64("purged", n).Msg("reconciler: expired idempotency records removed")
		}
		w.registry.prune(now)
	}
}

func (w *Reconciler) enqueue(p *model.Payment) {
	tenantID, paymentID, orderID := p.TenantID, p.ID, p.OrderID
	task := func(ctx context.Context) error {
		pay, changed, err := w.payments.Verify(ctx, tenantID, paymentID)
		if err != nil {
			w.log.Warn().
				Str("payment_id", paymentID).
				Err(err).
				Msg("reconciler: verify failed")
			return nil
		}
		metrics.IncReconciled(string(pay.Provider), changed)
		if changed {
			w.log.Info().
				Str("payment_id", paymentID).
				Str("status", string(pay.Status)).
				Msg("reconciler: payment settled")
		}
		if pay.Status.IsTerminal() {
			w.registry.drop(orderID)
		}
		return nil
	}
	if err := w.pool.Submit(task); err != nil {
		// Saturation is fine, the next tick picks the payment up again.
		w.log.Debug().Str("payment_id", paymentID).Err(err).Msg("reconciler: queue full")
	}
}
