package domain

// EventType classifies task lifecycle notifications.
type EventType string

const (
	EventTaskUpdated   EventType = "task_updated"
	EventTaskCompleted EventType = "task_completed"
)

// TaskEvent is a fire-and-forget notification published after a task's state
// has been durably persisted. Task is always a clone.
type TaskEvent struct {
	Type EventType
	Task *DownloadTask
}
