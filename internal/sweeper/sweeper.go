// Package sweeper deletes lapsed holds on a fixed cadence and announces
// the freed seats.
package sweeper

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/iliyamo/cinema-seat-availability/internal/hub"
	"github.com/iliyamo/cinema-seat-availability/internal/repository"
)

// MaxBatchesPerTick bounds how many batches one tick may delete before
// yielding to the next tick.
const MaxBatchesPerTick = 20

// Store is the slice of the reservation repository the sweeper needs.
type Store interface {
	ExpiredBatchTx(ctx context.Context, tx *sql.Tx, now time.Time, limit int) ([]repository.ExpiredHold, error)
	DeletePendingTx(ctx context.Context, tx *sql.Tx, ids []uint64) (int64, error)
}

// TxBeginner opens transactions.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Broadcaster delivers release frames to viewers.
type Broadcaster interface {
	Broadcast(showtimeID uint64, msg any, opts ...hub.BroadcastOption) (int, error)
}

// Dispatcher runs work after a commit.
type Dispatcher interface {
	Enqueue(kind string, run func(ctx context.Context) error) bool
}

// Options configures a Sweeper.  Zero values take the defaults.
type Options struct {
	Interval  time.Duration // 30s
	Backoff   time.Duration // 60s
	BatchSize int           // 500
	Now       func() time.Time
}

// Sweeper is the single process-wide expiry loop.
type Sweeper struct {
	db     TxBeginner
	store  Store
	hub    Broadcaster
	outbox Dispatcher
	opts   Options

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Sweeper.  It does nothing until Start.
func New(db TxBeginner, store Store, b Broadcaster, d Dispatcher, opts Options) *Sweeper {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 60 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Sweeper{db: db, store: store, hub: b, outbox: d, opts: opts}
}

// Start spawns the loop.  Calling Start on a running sweeper is a no-op.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
	log.Printf("sweeper: started (interval=%s batch=%d)", s.opts.Interval, s.opts.BatchSize)
}

// Stop cancels the loop and returns once it has exited.  A sweep in
// progress is interrupted through its context and rolled back.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	log.Printf("sweeper: stopped")
}

func (s *Sweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	wait := s.opts.Interval
	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		wait = s.opts.Interval
		if _, err := s.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("sweeper: sweep failed, retrying in %s: %v", s.opts.Backoff, err)
			wait = s.opts.Backoff
		}
		timer.Reset(wait)
	}
}

// RunOnce deletes lapsed holds batch by batch until a batch comes back
// short or MaxBatchesPerTick is reached.  It returns the number of rows
// deleted, including those of batches that committed before an error.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	total := 0
	for i := 0; i < MaxBatchesPerTick; i++ {
		n, err := s.sweepBatch(ctx)
		total += n
		if err != nil {
			return total, err
		}
		if n < s.opts.BatchSize {
			break
		}
	}
	if total > 0 {
		log.Printf("sweeper: released %d lapsed hold(s)", total)
	}
	return total, nil
}

func (s *Sweeper) sweepBatch(ctx context.Context) (int, error) {
	now := s.opts.Now().UTC()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	holds, err := s.store.ExpiredBatchTx(ctx, tx, now, s.opts.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("select lapsed holds: %w", err)
	}
	if len(holds) == 0 {
		return 0, nil
	}
	ids := make([]uint64, len(holds))
	freed := map[uint64][]uint64{}
	var order []uint64
	for i, h := range holds {
		ids[i] = h.ReservationID
		if _, ok := freed[h.ShowtimeID]; !ok {
			order = append(order, h.ShowtimeID)
		}
		freed[h.ShowtimeID] = append(freed[h.ShowtimeID], h.SeatID)
	}
	if _, err := s.store.DeletePendingTx(ctx, tx, ids); err != nil {
		return 0, fmt.Errorf("delete lapsed holds: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	committed = true

	for _, showtimeID := range order {
		msg := hub.Released(showtimeID, freed[showtimeID], hub.ReasonExpired, now)
		id := showtimeID
		s.outbox.Enqueue("seat_released", func(context.Context) error {
			_, err := s.hub.Broadcast(id, msg)
			return err
		})
	}
	return len(holds), nil
}
