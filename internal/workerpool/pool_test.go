package workerpool

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNew_InvalidSize(t *testing.T) {
	for _, size := range []int{0, -3} {
		if _, err := New(size); !errors.Is(err, ErrInvalidSize) {
			t.Errorf("New(%d) error = %v, want ErrInvalidSize", size, err)
		}
	}
}

func TestSubmit_RunsAllTasks(t *testing.T) {
	p, err := New(4)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer p.Shutdown()

	var wg sync.WaitGroup
	var count atomic.Int32
	for i := 0; i < 100; i++ {
		wg.Add(1)
		if err := p.Submit(func() {
			defer wg.Done()
			count.Add(1)
		}); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}
	wg.Wait()

	if count.Load() != 100 {
		t.Errorf("ran %d tasks, want 100", count.Load())
	}
}

func TestSubmit_FIFOWithOneWorker(t *testing.T) {
	p, err := New(1)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer p.Shutdown()

	var mu sync.Mutex
	var order []int
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		i := i
		_ = p.Submit(func() {
			mu.Lock()
			order = append(order, i)
			n := len(order)
			mu.Unlock()
			if n == 10 {
				close(done)
			}
		})
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tasks did not finish")
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("order = %v, want ascending", order)
		}
	}
}

func TestShutdown_DiscardsQueued(t *testing.T) {
	p, err := New(1)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	started := make(chan struct{})
	release := make(chan struct{})
	_ = p.Submit(func() {
		close(started)
		<-release
	})
	<-started

	var ran atomic.Bool
	for i := 0; i < 5; i++ {
		_ = p.Submit(func() { ran.Store(true) })
	}

	shutdownDone := make(chan struct{})
	go func() {
		p.Shutdown()
		close(shutdownDone)
	}()

	// Shutdown waits for the running task.
	select {
	case <-shutdownDone:
		t.Fatal("Shutdown() returned while a task was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-shutdownDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown() did not return")
	}

	if ran.Load() {
		t.Error("queued task ran after Shutdown")
	}
	if err := p.Submit(func() {}); !errors.Is(err, ErrClosed) {
		t.Errorf("Submit() after Shutdown error = %v, want ErrClosed", err)
	}

	// Idempotent.
	p.Shutdown()
}

func TestStop_CalledFromTask(t *testing.T) {
	p, err := New(1)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	stopped := make(chan struct{})
	_ = p.Submit(func() {
		p.Stop()
		close(stopped)
	})

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() blocked inside a task")
	}
	if err := p.Submit(func() {}); !errors.Is(err, ErrClosed) {
		t.Errorf("Submit() after Stop error = %v, want ErrClosed", err)
	}

	done := make(chan struct{})
	go func() {
		p.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown() after Stop did not return")
	}
}

func TestShutdown_IdleWorkers(t *testing.T) {
	p, err := New(8)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	done := make(chan struct{})
	go func() {
		p.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown() deadlocked with idle workers")
	}
}

type recordingLogger struct {
	mu   sync.Mutex
	msgs []string
}

func (l *recordingLogger) Error(msg string, args ...any) {
	l.mu.Lock()
	l.msgs = append(l.msgs, msg)
	l.mu.Unlock()
}

func TestPanicRecovered(t *testing.T) {
	p, err := New(1)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer p.Shutdown()

	logger := &recordingLogger{}
	p.SetLogger(logger)

	_ = p.Submit(func() { panic("driver bug") })

	done := make(chan struct{})
	_ = p.Submit(func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive a panicking task")
	}

	logger.mu.Lock()
	defer logger.mu.Unlock()
	if len(logger.msgs) != 1 {
		t.Errorf("logged %d panics, want 1", len(logger.msgs))
	}
}

func TestPoolSizeBoundsConcurrency(t *testing.T) {
	const size = 3
	p, err := New(size)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer p.Shutdown()

	var running, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		_ = p.Submit(func() {
			defer wg.Done()
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			running.Add(-1)
		})
	}
	wg.Wait()

	if peak.Load() > size {
		t.Errorf("peak concurrency = %d, want at most %d", peak.Load(), size)
	}
}
