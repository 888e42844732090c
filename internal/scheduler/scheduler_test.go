package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdmitRunsJob(t *testing.T) {
	s := New(2)
	defer s.Shutdown()

	done := make(chan struct{})
	err := s.Admit(Job{
		Key: "job-1",
		Run: func(ctx context.Context) { close(done) },
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run")
	}
}

func TestExecutionFollowsAdmissionOrder(t *testing.T) {
	s := New(1)
	defer s.Shutdown()

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, s.Admit(Job{
		Key: "blocker",
		Run: func(ctx context.Context) {
			close(started)
			<-release
		},
	}))
	<-started

	var mu sync.Mutex
	var order []string
	for _, key := range []string{"b", "c", "d"} {
		key := key
		require.NoError(t, s.Admit(Job{
			Key: key,
			Run: func(ctx context.Context) {
				mu.Lock()
				order = append(order, key)
				mu.Unlock()
			},
		}))
	}

	close(release)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 3
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"b", "c", "d"}, order)
}

func TestAdmitRejectsDuplicateKey(t *testing.T) {
	s := New(1)
	defer s.Shutdown()

	release := make(chan struct{})
	started := make(chan struct{})
	err := s.Admit(Job{
		Key: "job-1",
		Run: func(ctx context.Context) {
			close(started)
			<-release
		},
	})
	require.NoError(t, err)
	<-started

	err = s.Admit(Job{Key: "job-1", Run: func(ctx context.Context) {}})
	assert.ErrorIs(t, err, ErrDuplicateJob)
	assert.True(t, s.InFlight("job-1"))

	close(release)
}

func TestConcurrencyCap(t *testing.T) {
	s := New(1)
	defer s.Shutdown()

	var running, maxRunning int32
	var wg sync.WaitGroup
	wg.Add(3)

	for _, key := range []string{"a", "b", "c"} {
		err := s.Admit(Job{
			Key: key,
			Run: func(ctx context.Context) {
				defer wg.Done()
				n := atomic.AddInt32(&running, 1)
				for {
					prev := atomic.LoadInt32(&maxRunning)
					if n <= prev || atomic.CompareAndSwapInt32(&maxRunning, prev, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				atomic.AddInt32(&running, -1)
			},
		})
		require.NoError(t, err)
	}

	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxRunning))
}

func TestKeyFreedAfterCompletion(t *testing.T) {
	s := New(2)
	defer s.Shutdown()

	ran := make(chan struct{})
	require.NoError(t, s.Admit(Job{
		Key: "job-1",
		Run: func(ctx context.Context) { close(ran) },
	}))
	<-ran

	// The key is released once the job finishes; poll briefly since the
	// bookkeeping happens after Run returns.
	require.Eventually(t, func() bool {
		return !s.InFlight("job-1")
	}, 2*time.Second, 10*time.Millisecond)

	assert.NoError(t, s.Admit(Job{Key: "job-1", Run: func(ctx context.Context) {}}))
}

func TestPanickingJobDoesNotPoisonScheduler(t *testing.T) {
	s := New(1)
	defer s.Shutdown()

	require.NoError(t, s.Admit(Job{
		Key: "bad",
		Run: func(ctx context.Context) { panic("boom") },
	}))

	done := make(chan struct{})
	require.NoError(t, s.Admit(Job{
		Key: "good",
		Run: func(ctx context.Context) { close(done) },
	}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("slot was not released after panic")
	}
}

func TestAdmitAfterShutdown(t *testing.T) {
	s := New(1)
	s.Shutdown()

	err := s.Admit(Job{Key: "late", Run: func(ctx context.Context) {}})
	assert.Error(t, err)
}

func TestAdmitValidation(t *testing.T) {
	s := New(1)
	defer s.Shutdown()

	assert.Error(t, s.Admit(Job{Key: "", Run: func(ctx context.Context) {}}))
	assert.Error(t, s.Admit(Job{Key: "no-run"}))
}
