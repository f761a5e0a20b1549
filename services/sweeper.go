package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"course-marketplace/db"
	"course-marketplace/logger"
	"course-marketplace/models"
)

const sweepLockKey = "course-marketplace:locks:payment-sweeper"

// Sweeper expires abandoned pending payments and repairs the course
// enrolled-students cache. It runs once on Start and then on every tick.
type Sweeper struct {
	store    db.Store
	locker   Locker
	events   *Dispatcher
	interval time.Duration
	now      func() time.Time
	log      *logger.Logger

	started  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewSweeper(store db.Store, locker Locker, events *Dispatcher, interval time.Duration) *Sweeper {
	if locker == nil {
		locker = LocalLocker{}
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{
		store:    store,
		locker:   locker,
		events:   events,
		interval: interval,
		now:      time.Now,
		log:      logger.Default().With("component", "sweeper"),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the sweep loop in a goroutine until ctx is done or Stop is
// called.
func (s *Sweeper) Start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.log.Info("Payment sweeper started (interval %v)", s.interval)
		s.tick(ctx)
		for {
			select {
			case <-ticker.C:
				s.tick(ctx)
			case <-ctx.Done():
				s.log.Info("Payment sweeper stopped")
				return
			case <-s.stop:
				s.log.Info("Payment sweeper stopped")
				return
			}
		}
	}()
}

// Stop ends the loop and waits for an in-progress sweep to finish.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	if s.started.Load() {
		<-s.done
	}
}

// tick runs one guarded sweep. Errors are logged and swallowed so the loop
// keeps going.
func (s *Sweeper) tick(ctx context.Context) {
	unlock, ok, err := s.locker.TryLock(ctx, sweepLockKey, s.interval)
	if err != nil {
		s.log.Warn("Sweeper lock unavailable, sweeping without it: %v", err)
		ok, unlock = true, func() {}
	}
	if !ok {
		s.log.Debug("Another instance holds the sweeper lock, skipping")
		return
	}
	defer unlock()

	if _, err := s.SweepOnce(ctx); err != nil {
		s.log.Error("Expiry sweep failed: %v", err)
	}
	if err := s.Reconcile(ctx); err != nil {
		s.log.Error("Enrolled-students reconciliation failed: %v", err)
	}
}

// SweepOnce marks every pending payment past its expiry as expired in a
// single bulk update and returns how many changed. Running it again on the
// same data changes nothing.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	n, err := s.store.ExpirePendingPayments(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("Expired %d pending payments", n)
		s.events.PaymentEvent(models.PaymentEvent{
			Event:  models.EventPaymentsExpired,
			Status: string(models.PaymentStatusExpired),
			Count:  n,
		})
	} else {
		s.log.Debug("No pending payments to expire")
	}
	return n, nil
}

// Reconcile rebuilds the enrolled-students cache from enrollments.
func (s *Sweeper) Reconcile(ctx context.Context) error {
	added, removed, err := s.store.ReconcileEnrolledStudents(ctx)
	if err != nil {
		return err
	}
	if added > 0 || removed > 0 {
		s.log.Warn("Enrolled-students cache drift repaired: %d added, %d removed", added, removed)
	}
	return nil
}
