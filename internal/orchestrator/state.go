package orchestrator

import (
	"context"
	"time"

	"github.com/tunefetch/tunefetch/internal/domain"
)

// advance moves a task along the state graph and makes the change durable.
// The write precedes the event publish, so the store is always at least as
// current as anything an observer sees.
func (o *Orchestrator) advance(task *domain.DownloadTask, next domain.TaskState) error {
	if err := task.Transition(next); err != nil {
		return err
	}
	return o.persistAndPublish(task)
}

// persistAndPublish writes the task record atomically (state and priority
// together) and then notifies subscribers with a clone.
func (o *Orchestrator) persistAndPublish(task *domain.DownloadTask) error {
	if err := o.persist(task); err != nil {
		return err
	}

	evt := domain.EventTaskUpdated
	if task.State == domain.StateCompleted {
		evt = domain.EventTaskCompleted
	}
	o.events.Publish(domain.TaskEvent{Type: evt, Task: task.Clone()})
	return nil
}

// persist writes the task with its own short deadline. Worker contexts die
// on cancellation, but the final state of a cancelled task must still land
// in the store.
func (o *Orchestrator) persist(task *domain.DownloadTask) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := o.repo.Save(ctx, task); err != nil {
		o.logger.Error("persistence write failed",
			"task_id", task.ID,
			"state", task.State,
			"error", err,
		)
		return err
	}
	return nil
}
