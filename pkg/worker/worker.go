package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/pkg/logger"
)

var ErrStopped = errors.New("worker manager stopped")

type WorkerHandler[T any] func(ctx context.Context, workerIndex int, job T)

// WorkerManager distributes jobs among a fixed pool of goroutines. Workers run
// until the context passed to Start is cancelled; jobs already queued at that
// point are drained before Start returns.
type WorkerManager[T any] struct {
	numberOfWorker int
	jobChannel     chan T
	do             WorkerHandler[T]
	waiter         sync.WaitGroup
	mu             sync.RWMutex
	stopped        bool
}

func NewWorkerManager[T any](bufferSize, numberOfWorkers int, handler WorkerHandler[T]) *WorkerManager[T] {
	if numberOfWorkers <= 0 {
		numberOfWorkers = 1
	}
	return &WorkerManager[T]{
		numberOfWorker: numberOfWorkers,
		jobChannel:     make(chan T, bufferSize),
		do:             handler,
	}
}

func (w *WorkerManager[T]) GetUnreadCount() int64 {
	return int64(len(w.jobChannel))
}

// Enqueue blocks until the job is queued, ctx is done or the manager stopped.
func (w *WorkerManager[T]) Enqueue(ctx context.Context, job T) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return ErrStopped
	}
	select {
	case w.jobChannel <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start runs the workers and blocks until ctx is cancelled and the queue is drained.
func (w *WorkerManager[T]) Start(ctx context.Context) error {
	w.waiter.Add(w.numberOfWorker)
	for i := 0; i < w.numberOfWorker; i++ {
		go func(index int) {
			defer w.waiter.Done()
			for job := range w.jobChannel {
				w.run(ctx, index, job)
			}
		}(i)
	}

	<-ctx.Done()
	logger.Info("worker manager is going to be shutdown", "pending", len(w.jobChannel))

	w.mu.Lock()
	w.stopped = true
	close(w.jobChannel)
	w.mu.Unlock()

	w.waiter.Wait()
	return ErrStopped
}

func (w *WorkerManager[T]) run(ctx context.Context, index int, job T) {
	defer func() {
		if err := recover(); err != nil {
			logger.Error("worker panic recovered", "worker", index, "error", err)
		}
	}()
	// drained jobs still get a live context
	w.do(context.WithoutCancel(ctx), index, job)
}
