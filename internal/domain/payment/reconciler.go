package payment

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dispatchly/ledger-api/internal/domain/transaction"
	"github.com/dispatchly/ledger-api/internal/pkg/paystack"
)

const reconcileBatchSize = 100

type ReconcilerConfig struct {
	Interval time.Duration
	// Grace is how old a pending payment must be before it is re-verified.
	Grace time.Duration
	// Expiry is the age after which an unpaid pending payment is cancelled.
	Expiry time.Duration
}

// Summary counts what one sweep did.
type Summary struct {
	Checked   int
	Applied   int
	Cancelled int
	Errors    int
}

// Reconciler re-verifies payments stuck in pending, covering webhooks
// that never arrived and clients that never came back to verify.
type Reconciler struct {
	engine    *Engine
	registrar *transaction.Registrar
	cfg       ReconcilerConfig
	now       func() time.Time
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

func NewReconciler(engine *Engine, registrar *transaction.Registrar, cfg ReconcilerConfig) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Grace <= 0 {
		cfg.Grace = 10 * time.Minute
	}
	if cfg.Expiry <= 0 {
		cfg.Expiry = 24 * time.Hour
	}
	return &Reconciler{
		engine:    engine,
		registrar: registrar,
		cfg:       cfg,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
}

// WithClock replaces the time source.
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

// Start begins the background sweep.
func (r *Reconciler) Start() {
	log.Info().Dur("interval", r.cfg.Interval).Msg("Starting payment reconciler...")
	r.wg.Add(1)
	go r.loop()
}

// Stop waits for the sweep in progress to finish.
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() {
		log.Info().Msg("Stopping payment reconciler...")
		close(r.stopCh)
	})
	r.wg.Wait()
}

func (r *Reconciler) loop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.sweep()
	for {
		select {
		case <-ticker.C:
			r.sweep()
		case <-r.stopCh:
			return
		}
	}
}

func (r *Reconciler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.Interval)
	defer cancel()

	s, err := r.RunOnce(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Payment reconciliation sweep failed")
		return
	}
	if s.Checked > 0 {
		log.Info().
			Int("checked", s.Checked).
			Int("applied", s.Applied).
			Int("cancelled", s.Cancelled).
			Int("errors", s.Errors).
			Msg("Payment reconciliation sweep finished")
	}
}

// RunOnce re-verifies one batch of stale pending payments.
func (r *Reconciler) RunOnce(ctx context.Context) (Summary, error) {
	var s Summary
	now := r.now().UTC()

	stale, err := r.registrar.ListStale(ctx,
		[]transaction.Type{transaction.TypeWalletFunding, transaction.TypeOrderPayment},
		now.Add(-r.cfg.Grace), reconcileBatchSize)
	if err != nil {
		return s, err
	}

	for _, t := range stale {
		if ctx.Err() != nil {
			break
		}
		s.Checked++

		res, err := r.engine.verify(ctx, sourceReconciler, t.Reference, nil)
		if err == nil {
			if !res.AlreadyApplied {
				s.Applied++
			}
			continue
		}

		expired := now.Sub(t.CreatedAt) >= r.cfg.Expiry
		if expired && (errors.Is(err, ErrPaymentNotSuccessful) || unknownToProvider(err)) {
			if r.cancel(ctx, t.Reference) {
				s.Cancelled++
			}
			continue
		}
		if !errors.Is(err, ErrPaymentNotSuccessful) {
			s.Errors++
			log.Warn().Err(err).Str("reference", t.Reference).Msg("reconciler could not verify payment")
		}
	}
	return s, nil
}

func (r *Reconciler) cancel(ctx context.Context, reference string) bool {
	_, err := r.registrar.UpdateStatus(ctx, reference, transaction.UpdateParams{
		Status:        transaction.StatusCancelled,
		MetadataPatch: transaction.Metadata{"cancelled_reason": "expired", "reconciled_via": sourceReconciler},
	})
	if err != nil {
		if !errors.Is(err, transaction.ErrInvalidTransition) {
			log.Warn().Err(err).Str("reference", reference).Msg("could not cancel expired payment")
		}
		return false
	}
	log.Info().Str("reference", reference).Msg("expired pending payment cancelled")
	return true
}

func unknownToProvider(err error) bool {
	var gwErr *paystack.Error
	return errors.As(err, &gwErr) && gwErr.StatusCode == http.StatusNotFound
}
