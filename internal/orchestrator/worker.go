package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tunefetch/tunefetch/internal/domain"
	"github.com/tunefetch/tunefetch/internal/metrics"
	"github.com/tunefetch/tunefetch/internal/provider"
)

// runWorker drives one task through its lifecycle in an isolated failure
// domain: a panic fails the task, never the dispatch loop, and the slot is
// released on every exit path.
func (o *Orchestrator) runWorker(ctx context.Context, h *handle) {
	task := h.task

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("worker panicked", "task_id", task.ID, "panic", r)
			task.Fail(domain.ReasonInternal, fmt.Sprintf("worker panic: %v", r))
			if err := o.persistAndPublish(task); err != nil {
				o.logger.Error("failed to persist panic state", "task_id", task.ID, "error", err)
			}
			metrics.TasksFailed.WithLabelValues(string(domain.ReasonInternal)).Inc()
		}
		o.unregister(task.ID, h.lane)
		o.gov.Release(h.lane)
		o.wg.Done()
	}()

	o.process(ctx, h)
}

func (o *Orchestrator) process(ctx context.Context, h *handle) {
	task := h.task

	if err := o.advance(task, domain.StateSearching); err != nil {
		o.logger.Error("failed to start search", "task_id", task.ID, "error", err)
		return
	}
	o.setWorkerState(task.ID, domain.StateSearching)

	candidates, err := o.runSearch(ctx, task)
	if err != nil {
		o.finishSearchError(ctx, task, err)
		return
	}

	if len(candidates) == 0 {
		o.fail(task, domain.ReasonNoSearchResults, "no candidates found for "+task.Query())
		return
	}

	best := o.ranker.SelectBest(candidates, provider.RankContext{
		Artist: task.Artist,
		Title:  task.Title,
		Album:  task.Album,
	})
	if best == nil {
		o.fail(task, domain.ReasonAllCandidatesRejected,
			fmt.Sprintf("all %d candidates rejected by selection filters", len(candidates)))
		return
	}

	if err := o.advance(task, domain.StateDownloading); err != nil {
		o.logger.Error("failed to start download", "task_id", task.ID, "error", err)
		return
	}
	o.setWorkerState(task.ID, domain.StateDownloading)

	dest := o.files.DestPath(task.Artist, task.Title, best.Filename)
	if err := o.runTransfer(ctx, task, *best, dest); err != nil {
		o.finishTransferError(ctx, task, err)
		return
	}

	if err := o.tagger.Tag(dest, provider.TrackMetadata{
		Artist: task.Artist,
		Title:  task.Title,
		Album:  task.Album,
	}); err != nil {
		// Tagging failure is logged, never propagated as a task failure.
		o.logger.Warn("tagging failed", "task_id", task.ID, "path", dest, "error", err)
	}

	task.ResolvedPath = dest
	task.Progress = 1
	if err := o.advance(task, domain.StateCompleted); err != nil {
		o.logger.Error("failed to complete task", "task_id", task.ID, "error", err)
		return
	}
	metrics.TasksCompleted.Inc()
	o.logger.Info("task completed", "task_id", task.ID, "path", dest)
}

// runSearch calls the search provider under the bounded search timeout.
func (o *Orchestrator) runSearch(ctx context.Context, task *domain.DownloadTask) ([]provider.Candidate, error) {
	searchCtx, cancel := context.WithTimeout(ctx, o.cfg.SearchTimeout)
	defer cancel()
	return o.search.Search(searchCtx, task.Query())
}

// runTransfer downloads the selected candidate with per-attempt retry for
// transient failures. Progress writes are throttled so the store is not
// hammered on every chunk.
func (o *Orchestrator) runTransfer(ctx context.Context, task *domain.DownloadTask, best provider.Candidate, dest string) error {
	start := time.Now()

	for {
		err := o.transfer.Download(ctx, best, dest, o.progressFunc(task))
		if err == nil {
			metrics.DownloadDuration.Observe(time.Since(start).Seconds())
			if best.SizeBytes > 0 {
				metrics.DownloadBytes.Add(float64(best.SizeBytes))
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		reason := classifyTransferError(err)
		if !reason.Retryable() {
			return err
		}
		if task.RetryCount >= o.cfg.MaxRetries {
			return fmt.Errorf("retry budget exhausted after %d attempts: %w", task.RetryCount, err)
		}

		task.RetryCount++
		task.Progress = 0
		metrics.TransferRetries.Inc()
		o.logger.Warn("transfer failed, retrying",
			"task_id", task.ID,
			"attempt", task.RetryCount,
			"error", err,
		)
		if perr := o.persistAndPublish(task); perr != nil {
			return perr
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(o.cfg.RetryBackoff * time.Duration(task.RetryCount)):
		}
	}
}

// progressFunc returns a throttled progress callback that persists and
// publishes at most every 500ms. The final write lands with the completion
// transition.
func (o *Orchestrator) progressFunc(task *domain.DownloadTask) provider.ProgressFunc {
	var lastPersist time.Time
	return func(fraction float64) {
		task.Progress = fraction
		if time.Since(lastPersist) < 500*time.Millisecond {
			return
		}
		lastPersist = time.Now()
		if err := o.persistAndPublish(task); err != nil {
			o.logger.Error("failed to persist progress", "task_id", task.ID, "error", err)
		}
	}
}

// finishSearchError maps a failed search call onto the task's final state.
func (o *Orchestrator) finishSearchError(ctx context.Context, task *domain.DownloadTask, err error) {
	switch {
	case ctx.Err() != nil:
		o.finishInterrupted(ctx, task)
	case errors.Is(err, context.DeadlineExceeded):
		o.fail(task, domain.ReasonSearchTimeout,
			fmt.Sprintf("search timed out after %s", o.cfg.SearchTimeout))
	default:
		o.fail(task, domain.ReasonNetworkError, "search failed: "+err.Error())
	}
}

// finishTransferError maps a failed transfer onto the task's final state.
func (o *Orchestrator) finishTransferError(ctx context.Context, task *domain.DownloadTask, err error) {
	if ctx.Err() != nil {
		o.finishInterrupted(ctx, task)
		return
	}

	reason := classifyTransferError(err)
	if reason.Retryable() {
		// The retry loop gave up; surface the exhaustion, keep the detail.
		reason = domain.ReasonMaxRetriesExceeded
	}
	o.fail(task, reason, err.Error())
}

// finishInterrupted handles the three ways a worker's context dies: a
// preemption pause, an explicit cancellation, or shutdown.
func (o *Orchestrator) finishInterrupted(ctx context.Context, task *domain.DownloadTask) {
	cause := context.Cause(ctx)

	switch {
	case errors.Is(cause, errPausedForPreemption):
		task.LastPreemptedAt = time.Now().UTC()
		if err := task.Transition(domain.StatePaused); err != nil {
			o.logger.Error("pause transition failed", "task_id", task.ID, "error", err)
			task.RecoverReset()
			o.persist(task)
			return
		}
		if err := o.persistAndPublish(task); err != nil {
			return
		}
		// Resume cycle: the task re-queues immediately with its partial
		// progress discarded; the download restarts from the search step.
		task.Progress = 0
		if err := task.Transition(domain.StatePending); err != nil {
			o.logger.Error("resume transition failed", "task_id", task.ID, "error", err)
			return
		}
		if err := o.persistAndPublish(task); err != nil {
			return
		}
		o.buf.Add(task)
		o.logger.Info("task paused and re-queued", "task_id", task.ID)

	case errors.Is(cause, errCancelRequested):
		if err := task.Transition(domain.StateCancelled); err != nil {
			o.logger.Error("cancel transition failed", "task_id", task.ID, "error", err)
			return
		}
		if err := o.persistAndPublish(task); err != nil {
			return
		}
		metrics.TasksCancelled.Inc()
		o.logger.Info("task cancelled", "task_id", task.ID)

	default:
		// Shutdown: leave the task Pending so a restart picks it up.
		task.RecoverReset()
		o.persist(task)
		o.logger.Info("task returned to pending for shutdown", "task_id", task.ID)
	}
}

func (o *Orchestrator) fail(task *domain.DownloadTask, reason domain.FailureReason, msg string) {
	task.Fail(reason, msg)
	if err := o.persistAndPublish(task); err != nil {
		return
	}
	metrics.TasksFailed.WithLabelValues(string(reason)).Inc()
	o.logger.Warn("task failed", "task_id", task.ID, "reason", reason, "detail", msg)
}

// classifyTransferError maps a transfer error onto the failure taxonomy.
func classifyTransferError(err error) domain.FailureReason {
	switch {
	case errors.Is(err, provider.ErrDiskFull):
		return domain.ReasonDiskFull
	case errors.Is(err, provider.ErrPermissionDenied):
		return domain.ReasonPermissionDenied
	case errors.Is(err, provider.ErrVerification):
		return domain.ReasonVerificationFailed
	case errors.Is(err, context.Canceled):
		return domain.ReasonTransferCancelled
	default:
		return domain.ReasonNetworkError
	}
}
