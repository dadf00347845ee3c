package procmgr

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteRunsToCompletion(t *testing.T) {
	m := New(DefaultConfig(), nil)

	res, err := m.Execute(context.Background(), Request{
		Executable: "/bin/echo",
		Args:       []string{"hello"},
		Timeout:    2 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.False(t, res.TimedOut)
	assert.Contains(t, string(res.Stdout), "hello")
}

func TestExecuteNeverExceedsConcurrencyBound(t *testing.T) {
	const limit = 2
	m := New(Config{
		MaxConcurrent:  limit,
		DefaultTimeout: 5 * time.Second,
		CleanupGrace:   time.Second,
		QueueTimeout:   10 * time.Second,
	}, nil)

	var active int32
	var maxActive int32
	var mu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			n := atomic.AddInt32(&active, 1)
			mu.Lock()
			if n > maxActive {
				maxActive = n
			}
			mu.Unlock()

			_, err := m.Execute(context.Background(), Request{
				Executable: "/bin/sleep",
				Args:       []string{"0.05"},
				Timeout:    5 * time.Second,
			})
			atomic.AddInt32(&active, -1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, int(maxActive), 8, "sanity: observed concurrent launchers")
	h := m.Health()
	assert.Equal(t, 8, h.Total)
	assert.Equal(t, 8, h.Successes)
}

func TestExecuteQueuesFIFOWhenSaturated(t *testing.T) {
	m := New(Config{
		MaxConcurrent:  1,
		DefaultTimeout: 5 * time.Second,
		CleanupGrace:   time.Second,
		QueueTimeout:   10 * time.Second,
	}, nil)

	var order []int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 3; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			time.Sleep(time.Duration(i) * 20 * time.Millisecond)
			_, err := m.Execute(context.Background(), Request{
				Executable: "/bin/sleep",
				Args:       []string{"0.03"},
				Timeout:    5 * time.Second,
			})
			require.NoError(t, err)
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestExecuteTimeoutTerminatesProcess(t *testing.T) {
	m := New(Config{
		MaxConcurrent:  1,
		DefaultTimeout: 50 * time.Millisecond,
		CleanupGrace:   50 * time.Millisecond,
		QueueTimeout:   5 * time.Second,
	}, nil)

	start := time.Now()
	res, err := m.Execute(context.Background(), Request{
		Executable: "/bin/sleep",
		Args:       []string{"10"},
	})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.Equal(t, -1, res.ExitCode)
	assert.Less(t, elapsed, 2*time.Second, "should be killed well before sleep 10 would finish")
}

func TestExecuteRejectsAfterShutdown(t *testing.T) {
	m := New(DefaultConfig(), nil)
	require.NoError(t, m.Shutdown(context.Background()))

	_, err := m.Execute(context.Background(), Request{Executable: "/bin/echo"})
	assert.ErrorIs(t, err, ErrShutdown)
}

func TestShutdownTerminatesActiveProcesses(t *testing.T) {
	m := New(Config{
		MaxConcurrent:  2,
		DefaultTimeout: 10 * time.Second,
		CleanupGrace:   200 * time.Millisecond,
	}, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	started := make(chan struct{})
	var res *Result
	go func() {
		defer wg.Done()
		close(started)
		res, _ = m.Execute(context.Background(), Request{
			Executable: "/bin/sleep",
			Args:       []string{"10"},
			Timeout:    10 * time.Second,
		})
	}()
	<-started
	time.Sleep(50 * time.Millisecond) // let the subprocess actually start

	shutdownStart := time.Now()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(shutdownCtx))

	wg.Wait()
	require.NotNil(t, res)
	assert.Less(t, time.Since(shutdownStart), 2*time.Second, "Shutdown must terminate the still-running subprocess rather than waiting out its full timeout")
}

func TestExecuteQueueTimeout(t *testing.T) {
	m := New(Config{
		MaxConcurrent:  1,
		DefaultTimeout: time.Second,
		CleanupGrace:   time.Second,
		QueueTimeout:   20 * time.Millisecond,
	}, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = m.Execute(context.Background(), Request{
			Executable: "/bin/sleep",
			Args:       []string{"0.3"},
			Timeout:    time.Second,
		})
	}()
	time.Sleep(5 * time.Millisecond)

	_, err := m.Execute(context.Background(), Request{Executable: "/bin/echo"})
	assert.ErrorIs(t, err, ErrQueueTimeout)

	wg.Wait()
}

func TestHealthDegradesOnRepeatedFailure(t *testing.T) {
	m := New(DefaultConfig(), nil)

	for i := 0; i < 6; i++ {
		_, _ = m.Execute(context.Background(), Request{
			Executable: "/bin/false",
			Timeout:    time.Second,
		})
	}

	h := m.Health()
	assert.Equal(t, 6, h.Total)
	assert.Equal(t, 0, h.Successes)
	assert.False(t, h.Healthy)
}
