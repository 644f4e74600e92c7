// Package clock drives phase transitions. The session row is the job: an
// active session whose phase_end_time has passed is due, and a worker
// claims it with FOR UPDATE SKIP LOCKED and runs the orchestrator inside
// the claiming transaction. Durability and restart recovery come for free;
// a deadline that expired while the process was down fires on the first
// poll after startup.
package clock

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coupgame/coupd/pkg/models"
	"github.com/coupgame/coupd/pkg/orchestrator"
	"github.com/coupgame/coupd/pkg/store"
)

// Defaults for the poll loop.
const (
	DefaultWorkerCount  = 2
	DefaultPollInterval = 5 * time.Second
)

// Transitioner advances a claimed session out of its expired phase.
// Implemented by the orchestrator.
type Transitioner interface {
	Transition(ctx context.Context, db store.DB, sess *models.Session, now time.Time) (orchestrator.PostCommit, error)
}

// Scheduler polls for due sessions and hands them to the transitioner.
// Row locks guarantee at most one worker fires a given session's
// transition, across every process sharing the database.
type Scheduler struct {
	pool         *pgxpool.Pool
	sessions     *store.SessionStore
	transitioner Transitioner
	workerCount  int
	pollInterval time.Duration
	logger       *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewScheduler creates a Scheduler. Non-positive counts and intervals fall
// back to the defaults.
func NewScheduler(pool *pgxpool.Pool, transitioner Transitioner, workerCount int, pollInterval time.Duration, logger *slog.Logger) *Scheduler {
	if workerCount <= 0 {
		workerCount = DefaultWorkerCount
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Scheduler{
		pool:         pool,
		sessions:     store.NewSessionStore(),
		transitioner: transitioner,
		workerCount:  workerCount,
		pollInterval: pollInterval,
		logger:       logger.With("component", "phase_clock"),
		stopCh:       make(chan struct{}),
	}
}

// Start launches the worker goroutines.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.InfoContext(ctx, "Phase clock starting",
		"workers", s.workerCount, "poll_interval", s.pollInterval.String())
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}
}

// Stop signals the workers and waits for in-flight transitions to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	s.logger.Info("Phase clock stopped")
}

func (s *Scheduler) worker(ctx context.Context, id int) {
	defer s.wg.Done()
	log := s.logger.With("worker", id)
	for {
		// Jitter spreads the workers' polls so they do not stampede the
		// due-session index in lockstep.
		wait := s.pollInterval + rand.N(s.pollInterval/2)
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		// Drain everything that is due before sleeping again.
		for {
			fired, err := s.fireNext(ctx)
			if err != nil {
				log.ErrorContext(ctx, "Phase transition failed", "error", err)
				break
			}
			if !fired {
				break
			}
			select {
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			default:
			}
		}
	}
}

// fireNext claims the most overdue session, runs the transition in the
// claiming transaction, and invokes the post-commit hook. Returns false
// when nothing was due.
func (s *Scheduler) fireNext(ctx context.Context) (bool, error) {
	var post orchestrator.PostCommit
	fired := false

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		now := time.Now().UTC()
		sess, err := s.sessions.ClaimDue(ctx, tx, now)
		if err != nil {
			return err
		}
		if sess == nil {
			return nil
		}
		fired = true
		post, err = s.transitioner.Transition(ctx, tx, sess, now)
		return err
	})
	if err != nil {
		return fired, err
	}

	if post != nil {
		post(ctx)
	}
	return fired, nil
}
