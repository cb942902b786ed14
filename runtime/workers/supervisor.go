package workers

import (
	"context"
	"fmt"
	"log/slog"
	"reading-room/contract"
	"reading-room/errors"
	"reading-room/observability"
	"sync"
	"time"
)

const DefaultRestartInterval = 200 * time.Millisecond

// Supervisor Own a context and a cancel function
// Run each worker in a goroutine
// Check panics and errors
// Restart workers automatically
// Shutdown properly if parent context is canceled
// Wait for the end of all goroutines via WaitGroup
//
// Workers may be started while Run is active. Run only waits once its context is done,
// and no worker is started after that, so Add never races with Wait.
type Supervisor struct {
	mu              sync.Mutex
	cancel          context.CancelFunc // To stop the context
	runCtx          context.Context
	stopping        bool
	wg              *sync.WaitGroup // Wait for the end of goroutines
	log             *slog.Logger
	workers         []contract.Worker
	restartInterval time.Duration
}

func NewSupervisor(log *slog.Logger, restartInterval time.Duration) *Supervisor {
	if restartInterval <= 0 {
		restartInterval = DefaultRestartInterval
	}
	return &Supervisor{wg: &sync.WaitGroup{}, log: log, restartInterval: restartInterval}
}

// Run starts the registered workers and blocks until ctx is canceled or Stop is called,
// then waits for every supervised goroutine, including the ones given to Start.
func (s *Supervisor) Run(ctx context.Context) {
	// If the parent (main) cancels, we cancel.
	// If WE call s.Stop(), only our children cancel.
	supervisedCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.cancel = cancel
	s.runCtx = supervisedCtx
	s.stopping = false
	for _, worker := range s.workers {
		s.startLocked(supervisedCtx, worker)
	}
	s.mu.Unlock()

	<-supervisedCtx.Done()

	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Supervisor) Add(worker ...contract.Worker) contract.ISupervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers = append(s.workers, worker...)
	return s
}

// Start runs a worker under supervision.
// The worker is executed in a dedicated goroutine. If its Run method panics,
// the supervisor recovers, restarts the worker, and keeps the supervision
// loop alive. A failure in one worker must not stop the supervisor itself.
// This provides fault isolation and basic self-healing behavior.
// Workers started once Run is shutting down are ignored.
func (s *Supervisor) Start(ctx context.Context, worker contract.Worker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startLocked(ctx, worker)
}

func (s *Supervisor) startLocked(ctx context.Context, worker contract.Worker) {
	if s.stopping {
		s.log.Debug("Supervisor is stopping, worker not started", "name", contract.GetWorkerName(worker))
		return
	}
	s.wg.Add(1)
	workerName := contract.GetWorkerName(worker)

	// a worker started with its own context still stops with the supervisor
	ctx, stopWorker := context.WithCancel(ctx)
	stopAfter := func() bool { return false }
	if s.runCtx != nil {
		stopAfter = context.AfterFunc(s.runCtx, stopWorker)
	}

	go func() {
		defer s.wg.Done()
		defer stopWorker()
		defer stopAfter()

		for {
			if ctx.Err() != nil {
				s.log.Info(fmt.Sprintf("Stopping : %s", workerName))
				return
			}

			err := func() (err error) {
				defer func() {
					if r := recover(); r != nil {
						err = fmt.Errorf("%w: %v", errors.ErrWorkerPanic, r)
					}
				}()
				// Execute the children goroutine
				// Restarted after a crash
				// Not restarting the entire goroutine
				return worker.Run(ctx)
			}()

			if err == nil {
				// Terminated properly, never restart !
				s.log.Info(fmt.Sprintf("Worker finished : %s", workerName))
				return
			}

			if ctx.Err() != nil {
				s.log.Info("Worker stopped (context canceled)", "name", workerName)
				return
			}

			s.log.Warn("Worker crashed, restarting", "name", workerName, "error", err)
			observability.RoomRestarts.Inc()
			select {
			case <-ctx.Done():
				// Context canceled: priority stop.
				// Exit immediately without waiting for the restart delay.
				return
			case <-time.After(s.restartInterval):
				// Delay elapsed and context is still active.
				// Proceed with the worker restart.
			}
		}
	}()
}

// Stop Cancel all goroutines listening channel for Ctx.Done
// Supervisor will wait for all goroutines to finish
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}
