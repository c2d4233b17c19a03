package domain

import "time"

// EnqueueRequest represents one track in a batch enqueue call.
type EnqueueRequest struct {
	Artist   string `json:"artist" validate:"required,min=1,max=512"`
	Title    string `json:"title" validate:"required,min=1,max=512"`
	Album    string `json:"album" validate:"max=512"`
	Priority int    `json:"priority" validate:"min=0"`
}

// BatchEnqueueRequest is the request body for POST /tasks.
type BatchEnqueueRequest struct {
	Tracks []EnqueueRequest `json:"tracks" validate:"required,min=1,max=1000,dive"`
}

// EnqueueResult reports the outcome of a single track in a batch enqueue.
type EnqueueResult struct {
	TaskID    string `json:"task_id"`
	Accepted  bool   `json:"accepted"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Error     string `json:"error,omitempty"`
}

// BatchEnqueueResponse is the response body for POST /tasks.
type BatchEnqueueResponse struct {
	BatchID  string          `json:"batch_id"`
	Accepted int             `json:"accepted"`
	Results  []EnqueueResult `json:"results"`
}

// TaskResponse is the API snapshot of a task.
type TaskResponse struct {
	ID           string        `json:"id"`
	Artist       string        `json:"artist"`
	Title        string        `json:"title"`
	Album        string        `json:"album,omitempty"`
	Priority     int           `json:"priority"`
	State        TaskState     `json:"state"`
	Progress     float64       `json:"progress"`
	ResolvedPath string        `json:"resolved_path,omitempty"`
	ErrorReason  FailureReason `json:"error_reason,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	RetryCount   int           `json:"retry_count"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// NewTaskResponse converts a task snapshot into its API representation.
func NewTaskResponse(t *DownloadTask) TaskResponse {
	return TaskResponse{
		ID:           t.ID,
		Artist:       t.Artist,
		Title:        t.Title,
		Album:        t.Album,
		Priority:     t.Priority,
		State:        t.State,
		Progress:     t.Progress,
		ResolvedPath: t.ResolvedPath,
		ErrorReason:  t.ErrorReason,
		ErrorMessage: t.ErrorMessage,
		RetryCount:   t.RetryCount,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

// QueueStats is the aggregate view returned by GET /queue.
type QueueStats struct {
	ByState      map[TaskState]int `json:"by_state"`
	ActiveByLane map[string]int    `json:"active_by_lane"`
	Hydrated     int               `json:"hydrated"`
	StorePending int               `json:"store_pending"`
}
