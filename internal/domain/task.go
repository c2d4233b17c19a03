package domain

import (
	"fmt"
	"strings"
	"time"
)

// TaskState represents the current lifecycle state of a DownloadTask.
type TaskState string

const (
	StatePending     TaskState = "pending"
	StateSearching   TaskState = "searching"
	StateDownloading TaskState = "downloading"
	StatePaused      TaskState = "paused"
	StateCompleted   TaskState = "completed"
	StateFailed      TaskState = "failed"
	StateCancelled   TaskState = "cancelled"
)

// Terminal reports whether no further transitions are permitted from s
// without an explicit hard retry.
func (s TaskState) Terminal() bool {
	return s == StateCompleted || s == StateCancelled
}

// InFlight reports whether a worker owns the task in state s.
func (s TaskState) InFlight() bool {
	return s == StateSearching || s == StateDownloading
}

// Priority tiers. Values between Standard and Background are reserved for
// future fine-grained control and map to the Standard lane.
const (
	PriorityExpress    = 0
	PriorityStandard   = 1
	PriorityBackground = 10
)

// DownloadTask is the central entity of the download queue. A task is mutated
// exclusively by the worker that owns it; everyone else sees snapshots.
type DownloadTask struct {
	ID              string        `json:"id"`
	Artist          string        `json:"artist"`
	Title           string        `json:"title"`
	Album           string        `json:"album,omitempty"`
	Priority        int           `json:"priority"`
	State           TaskState     `json:"state"`
	Progress        float64       `json:"progress"`
	ResolvedPath    string        `json:"resolved_path,omitempty"`
	ErrorReason     FailureReason `json:"error_reason,omitempty"`
	ErrorMessage    string        `json:"error_message,omitempty"`
	RetryCount      int           `json:"retry_count"`
	LastPreemptedAt time.Time     `json:"last_preempted_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// TaskID derives the stable identity of a task from a case-insensitive
// normalization of artist and title. It doubles as the natural dedup key:
// enqueueing the same track twice yields the same ID.
func TaskID(artist, title string) string {
	norm := func(s string) string {
		return strings.Join(strings.Fields(strings.ToLower(s)), " ")
	}
	return norm(artist) + "|" + norm(title)
}

// NewTask builds a Pending task for the given track metadata.
func NewTask(artist, title, album string, priority int) *DownloadTask {
	now := time.Now().UTC()
	return &DownloadTask{
		ID:        TaskID(artist, title),
		Artist:    strings.TrimSpace(artist),
		Title:     strings.TrimSpace(title),
		Album:     strings.TrimSpace(album),
		Priority:  priority,
		State:     StatePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Query returns the search string used against a SearchProvider.
func (t *DownloadTask) Query() string {
	return strings.TrimSpace(t.Artist + " " + t.Title)
}

// Clone returns a copy; published events and API responses carry clones so
// no consumer can reach into the worker-owned record.
func (t *DownloadTask) Clone() *DownloadTask {
	c := *t
	return &c
}

var transitions = map[TaskState][]TaskState{
	StatePending:     {StateSearching, StateCancelled},
	StateSearching:   {StateDownloading, StateFailed, StateCancelled},
	StateDownloading: {StateCompleted, StateFailed, StateCancelled, StatePaused},
	StatePaused:      {StatePending, StateCancelled},
	StateCompleted:   {},
	StateCancelled:   {},
	StateFailed:      {StateCancelled},
}

// CanTransition reports whether the state graph permits moving from the
// task's current state to next. Hard retry and crash recovery reset tasks
// outside this graph; see HardReset and RecoverReset.
func (t *DownloadTask) CanTransition(next TaskState) bool {
	for _, s := range transitions[t.State] {
		if s == next {
			return true
		}
	}
	return false
}

// Transition moves the task to next, updating bookkeeping fields. It returns
// an error if the state graph forbids the move.
func (t *DownloadTask) Transition(next TaskState) error {
	if !t.CanTransition(next) {
		return fmt.Errorf("illegal transition %s -> %s for task %s", t.State, next, t.ID)
	}
	t.State = next
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// HardReset destructively returns the task to Pending, clearing all transient
// fields. It is the only way out of a terminal state and is idempotent.
func (t *DownloadTask) HardReset() {
	t.State = StatePending
	t.Progress = 0
	t.ResolvedPath = ""
	t.ErrorReason = ""
	t.ErrorMessage = ""
	t.RetryCount = 0
	t.UpdatedAt = time.Now().UTC()
}

// RecoverReset returns an interrupted task to Pending after a crash or
// shutdown. Unlike HardReset it preserves the retry counter and the
// preemption timestamp; no partial in-flight transfer state is assumed
// recoverable, so progress is discarded.
func (t *DownloadTask) RecoverReset() {
	t.State = StatePending
	t.Progress = 0
	t.UpdatedAt = time.Now().UTC()
}

// Fail marks the task Failed with the given reason and diagnostic message.
func (t *DownloadTask) Fail(reason FailureReason, msg string) {
	t.State = StateFailed
	t.ErrorReason = reason
	t.ErrorMessage = msg
	t.UpdatedAt = time.Now().UTC()
}
