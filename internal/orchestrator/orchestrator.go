// Package orchestrator drives the download queue: one dispatch loop pulls
// schedulable tasks from the priority lanes, claims concurrency slots from
// the governor and spawns an isolated worker per task. Workers own their task
// exclusively; every state change is persisted before it is published.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tunefetch/tunefetch/internal/config"
	"github.com/tunefetch/tunefetch/internal/domain"
	errpkg "github.com/tunefetch/tunefetch/internal/errors"
	"github.com/tunefetch/tunefetch/internal/events"
	"github.com/tunefetch/tunefetch/internal/metrics"
	"github.com/tunefetch/tunefetch/internal/provider"
	"github.com/tunefetch/tunefetch/internal/repository"
	"github.com/tunefetch/tunefetch/internal/scheduler"
	"github.com/tunefetch/tunefetch/internal/storage"
)

// Cancellation causes, inspected by a worker at its next checkpoint.
var (
	errPausedForPreemption = errors.New("paused for preemption")
	errCancelRequested     = errors.New("cancellation requested")
)

// handle tracks one active worker. The worker mutates its task; the
// dispatcher only reads the snapshot fields kept here under the
// orchestrator's lock.
type handle struct {
	task        *domain.DownloadTask
	lane        int
	startedAt   time.Time
	cancel      context.CancelCauseFunc
	state       domain.TaskState
	preemptedAt time.Time
}

// Orchestrator is the cooperative driver of the download queue.
type Orchestrator struct {
	cfg      *config.Config
	lanes    []domain.Lane
	repo     repository.TaskRepo
	buf      *scheduler.Buffer
	gov      *scheduler.Governor
	sched    *scheduler.LaneScheduler
	files    *storage.FileStorage
	search   provider.SearchProvider
	ranker   provider.Ranker
	transfer provider.TransferProvider
	tagger   provider.Tagger
	events   *events.Publisher
	logger   *slog.Logger

	mu     sync.Mutex
	active map[string]*handle
	wg     sync.WaitGroup

	draining atomic.Bool
}

// Deps bundles the collaborators the orchestrator drives.
type Deps struct {
	Repo     repository.TaskRepo
	Files    *storage.FileStorage
	Search   provider.SearchProvider
	Ranker   provider.Ranker
	Transfer provider.TransferProvider
	Tagger   provider.Tagger
	Events   *events.Publisher
}

// New wires an orchestrator from configuration and collaborators.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) *Orchestrator {
	lanes := domain.DefaultLanes(cfg.ExpressReservedSlots, cfg.StandardMaxSlots)
	gov := scheduler.NewGovernor(lanes, cfg.MaxConcurrentDownloads)
	buf := scheduler.NewBuffer(deps.Repo, cfg.BufferSize, cfg.RefillThreshold, logger)
	sched := scheduler.NewLaneScheduler(lanes, gov, buf, cfg.PreemptionCooldown)

	return &Orchestrator{
		cfg:      cfg,
		lanes:    lanes,
		repo:     deps.Repo,
		buf:      buf,
		gov:      gov,
		sched:    sched,
		files:    deps.Files,
		search:   deps.Search,
		ranker:   deps.Ranker,
		transfer: deps.Transfer,
		tagger:   deps.Tagger,
		events:   deps.Events,
		logger:   logger,
		active:   make(map[string]*handle),
	}
}

// Recover reloads all tasks at startup and forces any task that was in
// flight at crash time back to Pending. No partial transfer state is assumed
// recoverable. Must be called before Run.
func (o *Orchestrator) Recover(ctx context.Context) error {
	tasks, err := o.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load tasks for recovery: %w", err)
	}

	recovered := 0
	for _, t := range tasks {
		if !t.State.InFlight() && t.State != domain.StatePaused {
			continue
		}
		t.RecoverReset()
		if err := o.repo.Save(ctx, t); err != nil {
			return fmt.Errorf("failed to recover task %s: %w", t.ID, err)
		}
		recovered++
	}

	if recovered > 0 {
		o.logger.Info("interrupted tasks recovered", "count", recovered)
	}

	if _, err := o.buf.Refill(ctx); err != nil {
		return err
	}
	return nil
}

// Run executes the dispatch loop until ctx is cancelled. The loop never
// busy-spins: when nothing is dispatchable it refills the working set and
// waits one dispatch interval.
func (o *Orchestrator) Run(ctx context.Context) {
	o.logger.Info("orchestrator started",
		"max_concurrent", o.cfg.MaxConcurrentDownloads,
		"express_reserved", o.cfg.ExpressReservedSlots,
		"buffer_size", o.cfg.BufferSize,
	)

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("dispatch loop stopping")
			return
		default:
		}

		if o.dispatchOnce(ctx) {
			// A dispatch may have drained the working set below threshold.
			if added, err := o.buf.Refill(ctx, o.activeIDs()...); err != nil {
				o.logger.Error("working set refill failed", "error", err)
			} else if added > 0 {
				metrics.BufferRefills.Inc()
			}
			continue
		}

		if added, err := o.buf.Refill(ctx, o.activeIDs()...); err != nil {
			o.logger.Error("working set refill failed", "error", err)
		} else if added > 0 {
			metrics.BufferRefills.Inc()
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(o.cfg.DispatchInterval):
		}
	}
}

// dispatchOnce performs one scheduling pass. It returns true when a worker
// was spawned.
func (o *Orchestrator) dispatchOnce(ctx context.Context) bool {
	decision := o.sched.Next(o.activesSnapshot())
	if decision.Task == nil {
		return false
	}

	if decision.Victim != nil {
		if !o.signalPreemption(decision.Victim.TaskID) {
			return false
		}
		// The freed slot is claimed only after the victim released it:
		// the global cap holds throughout.
		if err := o.gov.Acquire(ctx, decision.Lane); err != nil {
			o.logger.Debug("slot acquisition aborted", "error", err)
			return false
		}
	} else if !o.gov.TryAcquire(decision.Lane) {
		return false
	}

	task := o.buf.Take(decision.Task.ID)
	if task == nil || task.State != domain.StatePending {
		// Another path (cancel, earlier dispatch) claimed it meanwhile.
		o.gov.Release(decision.Lane)
		return false
	}

	// The buffered copy may be stale: re-validate the claim against the
	// durable record. A cancel or completion persisted since hydration
	// wins, and the worker starts from the freshest snapshot.
	stored, err := o.repo.Get(ctx, task.ID)
	if err != nil || stored.State != domain.StatePending {
		o.logger.Debug("stale claim discarded", "task_id", task.ID)
		o.gov.Release(decision.Lane)
		return false
	}
	task = stored

	o.mu.Lock()
	if _, running := o.active[task.ID]; running {
		o.mu.Unlock()
		o.gov.Release(decision.Lane)
		return false
	}

	wctx, cancel := context.WithCancelCause(ctx)
	h := &handle{
		task:        task,
		lane:        decision.Lane,
		startedAt:   time.Now(),
		cancel:      cancel,
		state:       domain.StatePending,
		preemptedAt: task.LastPreemptedAt,
	}
	o.active[task.ID] = h
	o.mu.Unlock()

	metrics.ActiveByLane.WithLabelValues(o.lanes[decision.Lane].Name).Inc()
	o.wg.Add(1)
	go o.runWorker(wctx, h)

	o.logger.Info("task dispatched",
		"task_id", task.ID,
		"lane", o.lanes[decision.Lane].Name,
		"priority", task.Priority,
	)
	return true
}

// signalPreemption asks the victim's worker to pause cooperatively and
// returns whether the signal was delivered.
func (o *Orchestrator) signalPreemption(taskID string) bool {
	o.mu.Lock()
	h, ok := o.active[taskID]
	o.mu.Unlock()
	if !ok {
		return false
	}

	metrics.Preemptions.Inc()
	o.logger.Info("preempting task", "task_id", taskID, "lane", o.lanes[h.lane].Name)
	h.cancel(errPausedForPreemption)
	return true
}

// activeIDs returns the IDs of all tasks currently owned by workers. Passed
// to Refill so a claimed task whose first write has not landed yet is never
// re-hydrated as a stale Pending copy.
func (o *Orchestrator) activeIDs() []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	ids := make([]string, 0, len(o.active))
	for id := range o.active {
		ids = append(ids, id)
	}
	return ids
}

func (o *Orchestrator) activesSnapshot() []scheduler.Active {
	o.mu.Lock()
	defer o.mu.Unlock()

	actives := make([]scheduler.Active, 0, len(o.active))
	for id, h := range o.active {
		actives = append(actives, scheduler.Active{
			TaskID:          id,
			Lane:            h.lane,
			State:           h.state,
			StartedAt:       h.startedAt,
			LastPreemptedAt: h.preemptedAt,
		})
	}
	return actives
}

func (o *Orchestrator) setWorkerState(taskID string, state domain.TaskState) {
	o.mu.Lock()
	if h, ok := o.active[taskID]; ok {
		h.state = state
	}
	o.mu.Unlock()
}

func (o *Orchestrator) unregister(taskID string, lane int) {
	o.mu.Lock()
	delete(o.active, taskID)
	o.mu.Unlock()
	metrics.ActiveByLane.WithLabelValues(o.lanes[lane].Name).Dec()
}

// Enqueue persists a batch of tracks and hydrates them into the working set.
// Duplicate natural keys are reported, not re-queued.
func (o *Orchestrator) Enqueue(ctx context.Context, reqs []domain.EnqueueRequest) (*domain.BatchEnqueueResponse, error) {
	if o.draining.Load() {
		return nil, errpkg.ErrShuttingDown
	}

	resp := &domain.BatchEnqueueResponse{
		BatchID: uuid.New().String(),
		Results: make([]domain.EnqueueResult, len(reqs)),
	}

	for i, r := range reqs {
		task := domain.NewTask(r.Artist, r.Title, r.Album, r.Priority)
		result := domain.EnqueueResult{TaskID: task.ID}

		_, err := o.repo.Get(ctx, task.ID)
		switch {
		case err == nil:
			result.Duplicate = true
			result.Error = errpkg.ErrDuplicateTask.Error()
		case errors.Is(err, errpkg.ErrTaskNotFound):
			if saveErr := o.repo.Save(ctx, task); saveErr != nil {
				result.Error = "failed to persist task"
				o.logger.Error("enqueue persist failed", "task_id", task.ID, "error", saveErr)
				break
			}
			o.buf.Add(task)
			o.events.Publish(domain.TaskEvent{Type: domain.EventTaskUpdated, Task: task.Clone()})
			metrics.TasksEnqueued.Inc()
			result.Accepted = true
			resp.Accepted++
		default:
			result.Error = "failed to check for duplicate"
			o.logger.Error("enqueue lookup failed", "task_id", task.ID, "error", err)
		}

		resp.Results[i] = result
	}

	o.logger.Info("batch enqueued",
		"batch_id", resp.BatchID,
		"requested", len(reqs),
		"accepted", resp.Accepted,
	)
	return resp, nil
}

// Get returns the durable snapshot of a task.
func (o *Orchestrator) Get(ctx context.Context, id string) (*domain.DownloadTask, error) {
	return o.repo.Get(ctx, id)
}

// Cancel requests cancellation of a task. An active worker observes the
// request at its next suspension point; a queued task is cancelled
// immediately.
func (o *Orchestrator) Cancel(ctx context.Context, id string) error {
	o.mu.Lock()
	h, running := o.active[id]
	o.mu.Unlock()
	if running {
		h.cancel(errCancelRequested)
		return nil
	}

	if task := o.buf.Take(id); task != nil {
		if err := task.Transition(domain.StateCancelled); err != nil {
			return err
		}
		metrics.TasksCancelled.Inc()
		return o.persistAndPublish(task)
	}

	task, err := o.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !task.CanTransition(domain.StateCancelled) {
		return fmt.Errorf("task %s is %s: %w", id, task.State, errpkg.ErrNotRetryable)
	}
	if err := task.Transition(domain.StateCancelled); err != nil {
		return err
	}
	metrics.TasksCancelled.Inc()
	return o.persistAndPublish(task)
}

// HardRetry destructively resets a task to Pending, clearing progress, error
// fields and the retry counter. It is idempotent and is the only way out of
// a terminal state.
func (o *Orchestrator) HardRetry(ctx context.Context, id string) error {
	if o.draining.Load() {
		return errpkg.ErrShuttingDown
	}

	o.mu.Lock()
	_, running := o.active[id]
	o.mu.Unlock()
	if running {
		return errpkg.ErrTaskActive
	}

	task, err := o.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	task.HardReset()
	if err := o.persistAndPublish(task); err != nil {
		return err
	}
	o.buf.Add(task)
	o.logger.Info("task hard-reset to pending", "task_id", id)
	return nil
}

// Stats aggregates queue counters for the API.
func (o *Orchestrator) Stats(ctx context.Context) (*domain.QueueStats, error) {
	byState, err := o.repo.CountByState(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := o.repo.CountPending(ctx)
	if err != nil {
		return nil, err
	}

	return &domain.QueueStats{
		ByState:      byState,
		ActiveByLane: o.gov.Snapshot(),
		Hydrated:     o.buf.Len(),
		StorePending: pending,
	}, nil
}

// Shutdown refuses new work and waits for in-flight workers to wind down.
// Their tasks are reset to Pending on the way out, so a restart resumes
// where the queue left off.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.draining.Store(true)
	o.logger.Info("shutting down orchestrator")

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		o.logger.Info("orchestrator shutdown completed")
		return nil
	case <-ctx.Done():
		o.logger.Warn("orchestrator shutdown timed out")
		return ctx.Err()
	}
}
