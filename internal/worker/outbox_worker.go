package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spinforge/settlement/internal/observability"
	"github.com/spinforge/settlement/internal/service"
)

// OutboxWorker drains the notification outbox in the background. Dispatch
// claims rows under SKIP LOCKED for a whole unit of work, so concurrent
// instances divide the backlog instead of double-delivering.
type OutboxWorker struct {
	svc          *service.OutboxService
	pollInterval time.Duration
	batchSize    int32
	stopCh       chan struct{}
	stopOnce     sync.Once
}

func NewOutboxWorker(svc *service.OutboxService) *OutboxWorker {
	return &OutboxWorker{
		svc:          svc,
		pollInterval: 5 * time.Second,
		batchSize:    50,
		stopCh:       make(chan struct{}),
	}
}

// WithPollInterval sets the poll interval for the worker.
func (w *OutboxWorker) WithPollInterval(interval time.Duration) *OutboxWorker {
	if interval > 0 {
		w.pollInterval = interval
	}
	return w
}

// WithBatchSize sets the batch size for the worker.
func (w *OutboxWorker) WithBatchSize(size int32) *OutboxWorker {
	if size > 0 {
		w.batchSize = size
	}
	return w
}

// Start blocks and drains the outbox until the context ends or Stop is called.
func (w *OutboxWorker) Start(ctx context.Context) {
	zap.L().Info("outbox worker starting",
		zap.Duration("interval", w.pollInterval),
		zap.Int32("batch", w.batchSize))

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("outbox worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("outbox worker stop signal received")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

// Stop stops the running worker loop.
func (w *OutboxWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *OutboxWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

func (w *OutboxWorker) runOnce(ctx context.Context) {
	if _, err := w.svc.DispatchPending(ctx, w.batchSize); err != nil {
		observability.IncrementWorkerRun("outbox", "failed")
		zap.L().Error("outbox dispatch failed", zap.Error(err))
		return
	}
	observability.IncrementWorkerRun("outbox", "success")
}
