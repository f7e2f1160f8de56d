package workerpool

import (
	"errors"
	"fmt"
	"sync"
)

// Domain errors for the workerpool package.
var (
	// ErrInvalidSize is returned by New for a size below one.
	ErrInvalidSize = errors.New("workerpool: size must be at least 1")

	// ErrClosed is returned by Submit after Shutdown.
	ErrClosed = errors.New("workerpool: shut down")
)

// Logger defines the logging interface used by the Pool.
type Logger interface {
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Error(string, ...any) {}

// Pool runs submitted tasks on a fixed set of goroutines in FIFO order.
//
// Thread Safety:
//   - Submit, Stop and Shutdown are safe for concurrent use.
//   - Tasks may call Stop but must not call Shutdown.
type Pool struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    []func()
	shutdown bool
	size     int

	wg       sync.WaitGroup
	stopOnce sync.Once

	logger Logger
}

// New starts a pool of size workers.
func New(size int) (*Pool, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSize, size)
	}

	p := &Pool{
		size:   size,
		logger: noopLogger{},
	}
	p.cond = sync.NewCond(&p.mu)

	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker()
	}
	return p, nil
}

// SetLogger sets the logger used to report task panics.
func (p *Pool) SetLogger(logger Logger) {
	p.mu.Lock()
	p.logger = logger
	p.mu.Unlock()
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.size
}

// Submit queues task and wakes one idle worker.
func (p *Pool) Submit(task func()) error {
	if task == nil {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.shutdown {
		return ErrClosed
	}
	p.queue = append(p.queue, task)
	p.cond.Signal()
	return nil
}

// Queued returns the number of tasks waiting for a worker.
func (p *Pool) Queued() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Stop closes the pool without waiting. Queued tasks that have not started
// are discarded; running tasks finish on their own. Stop may be called more
// than once.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.shutdown = true
		p.queue = nil
		p.cond.Broadcast()
		p.mu.Unlock()
	})
}

// Shutdown stops the pool and blocks until every worker has exited.
func (p *Pool) Shutdown() {
	p.Stop()
	p.wg.Wait()
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.shutdown {
			p.cond.Wait()
		}
		if p.shutdown {
			p.mu.Unlock()
			return
		}
		task := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		logger := p.logger
		p.mu.Unlock()

		p.run(task, logger)
	}
}

// run executes task, recovering a panic so the worker survives.
func (p *Pool) run(task func(), logger Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("worker task panic recovered", "panic", r)
		}
	}()
	task()
}
