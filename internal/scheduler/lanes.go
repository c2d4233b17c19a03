package scheduler

import (
	"time"

	"github.com/tunefetch/tunefetch/internal/domain"
)

// Active describes a task currently holding a slot, as seen by the
// dispatcher when it asks for a scheduling decision. Only immutable
// snapshot fields are carried; the task itself belongs to its worker.
type Active struct {
	TaskID          string
	Lane            int
	State           domain.TaskState
	StartedAt       time.Time
	LastPreemptedAt time.Time
}

// Decision is the outcome of one scheduling pass. A zero Decision means
// nothing is dispatchable and the caller should wait, not busy-spin.
type Decision struct {
	// Task to dispatch next, nil when idle.
	Task *domain.DownloadTask
	// Lane the task maps onto.
	Lane int
	// Victim, when non-nil, must be paused before Task can claim a slot.
	Victim *Active
}

// LaneScheduler selects the next task to dispatch across priority lanes:
// free slots first in ascending lane order, FIFO within a lane, preemption of
// a strictly lower-priority active as the last resort.
type LaneScheduler struct {
	lanes    []domain.Lane
	gov      *Governor
	buf      *Buffer
	cooldown time.Duration

	// now is swappable for tests.
	now func() time.Time
}

// NewLaneScheduler builds a scheduler over the given lanes, governor and
// working set. cooldown is the anti-thrashing window: a task preempted within
// it cannot be chosen as a victim again.
func NewLaneScheduler(lanes []domain.Lane, gov *Governor, buf *Buffer, cooldown time.Duration) *LaneScheduler {
	return &LaneScheduler{
		lanes:    lanes,
		gov:      gov,
		buf:      buf,
		cooldown: cooldown,
		now:      time.Now,
	}
}

// Next computes one scheduling decision given the current actives.
func (s *LaneScheduler) Next(actives []Active) Decision {
	if s.gov.InUse() < s.gov.Max() {
		// A global slot is free: the first lane with headroom and pending
		// work wins outright.
		for lane := range s.lanes {
			if s.gov.Available(lane) <= 0 {
				continue
			}
			if t := s.buf.NextForLane(s.lanes, lane); t != nil {
				return Decision{Task: t, Lane: lane}
			}
		}
		return Decision{}
	}

	// Every slot is taken. A lane with headroom under its own cap may
	// preempt a strictly lower-priority active.
	for lane := range s.lanes {
		t := s.buf.NextForLane(s.lanes, lane)
		if t == nil {
			continue
		}
		if s.gov.ActiveCount(lane) >= s.gov.EffectiveCap(lane) {
			// Freeing a slot would not help this lane.
			continue
		}
		if v := s.pickVictim(lane, actives); v != nil {
			return Decision{Task: t, Lane: lane, Victim: v}
		}
	}

	return Decision{}
}

// pickVictim chooses the least urgent preemptable active: the numerically
// lowest-priority lane first, then the oldest active within it. Only tasks in
// Downloading are pausable, and a task preempted within the cooldown window
// is skipped so no single task can be interrupted repeatedly.
func (s *LaneScheduler) pickVictim(lane int, actives []Active) *Active {
	now := s.now()
	var victim *Active

	for i := range actives {
		a := &actives[i]
		if s.lanes[a.Lane].PriorityValue <= s.lanes[lane].PriorityValue {
			continue
		}
		if a.State != domain.StateDownloading {
			continue
		}
		if !a.LastPreemptedAt.IsZero() && now.Sub(a.LastPreemptedAt) < s.cooldown {
			continue
		}
		if victim == nil {
			victim = a
			continue
		}
		if a.Lane > victim.Lane {
			victim = a
		} else if a.Lane == victim.Lane && a.StartedAt.Before(victim.StartedAt) {
			victim = a
		}
	}
	return victim
}
