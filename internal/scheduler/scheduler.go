// Package scheduler admits background jobs under a global concurrency
// cap. Jobs beyond the cap wait in admission order; two jobs sharing a
// key (the source id for ingestion) are never in flight together.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/localbook/backend/internal/metrics"
	"github.com/localbook/backend/pkg/logger"
)

var ErrDuplicateJob = errors.New("job with this key is already admitted")

type Job struct {
	Key string
	Run func(ctx context.Context)
}

type Scheduler struct {
	sem *semaphore.Weighted

	mu       sync.Mutex
	inflight map[string]struct{}
	turn     chan struct{}
	closed   bool
	wg       sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

func New(maxConcurrent int) *Scheduler {
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	ctx, cancel := context.WithCancel(context.Background())
	turn := make(chan struct{})
	close(turn)
	return &Scheduler{
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
		inflight: make(map[string]struct{}),
		turn:     turn,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Admit registers the job and starts it as soon as a slot frees. Each
// admission takes a turn in the ticket chain, so jobs reach the
// semaphore in admission order and execution begins in that order. A
// job whose key is already in flight or queued is rejected with
// ErrDuplicateJob rather than run twice.
func (s *Scheduler) Admit(job Job) error {
	if job.Key == "" || job.Run == nil {
		return fmt.Errorf("job needs a key and a run function")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is shut down")
	}
	if _, exists := s.inflight[job.Key]; exists {
		s.mu.Unlock()
		return ErrDuplicateJob
	}
	s.inflight[job.Key] = struct{}{}
	prev := s.turn
	next := make(chan struct{})
	s.turn = next
	s.wg.Add(1)
	s.mu.Unlock()

	metrics.ActiveJobs.Inc()

	logger.Debug("Job admitted", zap.String("job_key", job.Key))

	go s.execute(job, prev, next)
	return nil
}

func (s *Scheduler) execute(job Job, prev, next chan struct{}) {
	defer s.wg.Done()
	defer metrics.ActiveJobs.Dec()
	defer func() {
		s.mu.Lock()
		delete(s.inflight, job.Key)
		s.mu.Unlock()
	}()

	// Wait for every earlier admission to have reached the semaphore, so
	// slots are granted in admission order.
	<-prev
	err := s.sem.Acquire(s.ctx, 1)
	close(next)
	if err != nil {
		logger.Warn("Job abandoned during shutdown", zap.String("job_key", job.Key))
		return
	}
	defer s.sem.Release(1)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job panicked",
				zap.String("job_key", job.Key),
				zap.Any("panic", r),
			)
		}
	}()

	logger.Debug("Job started", zap.String("job_key", job.Key))
	job.Run(s.ctx)
	logger.Debug("Job finished", zap.String("job_key", job.Key))
}

// InFlight reports whether a job with the key is admitted and not yet
// finished.
func (s *Scheduler) InFlight(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inflight[key]
	return ok
}

// Shutdown stops admissions, cancels queued jobs, and waits for running
// jobs to finish.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}
