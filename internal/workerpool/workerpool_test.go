package workerpool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSubmitRunsAllTasks(t *testing.T) {
	p := New(4)
	defer p.Shutdown()

	var n int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		p.Submit(func() {
			atomic.AddInt64(&n, 1)
			wg.Done()
		})
	}
	wg.Wait()
	require.EqualValues(t, 50, atomic.LoadInt64(&n))
}

func TestPrioritizedTaskRunsBeforeQueuedNormalTasks(t *testing.T) {
	p := New(1)
	defer p.Shutdown()

	block := make(chan struct{})
	started := make(chan struct{})
	p.Submit(func() {
		close(started)
		<-block
	})
	<-started

	var order []string
	var mu sync.Mutex
	done := make(chan struct{}, 2)

	p.Submit(func() {
		mu.Lock()
		order = append(order, "normal")
		mu.Unlock()
		done <- struct{}{}
	})
	p.SubmitPrioritized(func() {
		mu.Lock()
		order = append(order, "priority")
		mu.Unlock()
		done <- struct{}{}
	})

	close(block)
	<-done
	<-done

	require.Equal(t, []string{"priority", "normal"}, order)
}

func TestSubmitAsyncInvokesCallbackWithResult(t *testing.T) {
	p := New(2)
	defer p.Shutdown()

	resultCh := make(chan any, 1)
	p.SubmitAsync(func() any { return 42 }, func(result any) {
		resultCh <- result
	})

	select {
	case r := <-resultCh:
		require.Equal(t, 42, r)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for callback")
	}
}

func TestShutdownDropsQueuedTasks(t *testing.T) {
	p := New(1)

	block := make(chan struct{})
	started := make(chan struct{})
	p.Submit(func() {
		close(started)
		<-block
	})
	<-started

	var ran int32
	p.Submit(func() { atomic.AddInt32(&ran, 1) })

	// The sole worker is still blocked in the first task, so Shutdown's
	// queue-clear is guaranteed to run before the second task could ever
	// be dequeued.
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(block)
	}()
	p.Shutdown()

	require.EqualValues(t, 0, atomic.LoadInt32(&ran))
}

func TestSubmitWithoutMetricsDoesNotPanic(t *testing.T) {
	p := New(2)
	defer p.Shutdown()

	require.NotPanics(t, func() {
		p.Submit(func() {})
		p.SubmitPrioritized(func() {})
	})
}

func TestSetMetricsAcceptsNil(t *testing.T) {
	p := New(1)
	defer p.Shutdown()

	p.SetMetrics(nil)
	require.NotPanics(t, func() {
		p.Submit(func() {})
	})
}
