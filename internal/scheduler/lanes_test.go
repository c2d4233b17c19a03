package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunefetch/tunefetch/internal/domain"
)

func newTestScheduler(t *testing.T, maxConcurrent int, cooldown time.Duration) (*LaneScheduler, *Governor, *Buffer) {
	t.Helper()
	lanes := domain.DefaultLanes(2, 4)
	gov := NewGovernor(lanes, maxConcurrent)
	buf := NewBuffer(newTestRepo(t), 100, 20, newTestLogger())
	return NewLaneScheduler(lanes, gov, buf, cooldown), gov, buf
}

func fillLane(t *testing.T, gov *Governor, lane, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.True(t, gov.TryAcquire(lane), "lane %d should have had a free slot", lane)
	}
}

func TestLaneScheduler_FreeSlotPrefersHigherLane(t *testing.T) {
	sched, _, buf := newTestScheduler(t, 4, time.Hour)

	bg := domain.NewTask("a", "bg", "", domain.PriorityBackground)
	std := domain.NewTask("a", "std", "", domain.PriorityStandard)
	std.CreatedAt = bg.CreatedAt.Add(time.Minute)
	require.True(t, buf.Add(bg))
	require.True(t, buf.Add(std))

	d := sched.Next(nil)
	require.NotNil(t, d.Task)
	assert.Equal(t, std.ID, d.Task.ID, "standard outranks an older background task")
	assert.Equal(t, 1, d.Lane)
	assert.Nil(t, d.Victim)
}

func TestLaneScheduler_FIFOWithinLane(t *testing.T) {
	sched, _, buf := newTestScheduler(t, 4, time.Hour)

	first := domain.NewTask("a", "first", "", domain.PriorityStandard)
	second := domain.NewTask("a", "second", "", domain.PriorityStandard)
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	require.True(t, buf.Add(second))
	require.True(t, buf.Add(first))

	d := sched.Next(nil)
	require.NotNil(t, d.Task)
	assert.Equal(t, first.ID, d.Task.ID)
}

func TestLaneScheduler_IdleWhenBufferEmpty(t *testing.T) {
	sched, _, _ := newTestScheduler(t, 4, time.Hour)

	d := sched.Next(nil)
	assert.Nil(t, d.Task)
	assert.Nil(t, d.Victim)
}

func TestLaneScheduler_NoPreemptionWhileSlotFree(t *testing.T) {
	sched, gov, buf := newTestScheduler(t, 2, time.Hour)
	fillLane(t, gov, 2, 1)

	exp := domain.NewTask("a", "exp", "", domain.PriorityExpress)
	require.True(t, buf.Add(exp))

	actives := []Active{{
		TaskID:    "bg-1",
		Lane:      2,
		State:     domain.StateDownloading,
		StartedAt: time.Now().Add(-time.Minute),
	}}

	d := sched.Next(actives)
	require.NotNil(t, d.Task)
	assert.Equal(t, exp.ID, d.Task.ID)
	assert.Nil(t, d.Victim, "a free global slot must never trigger preemption")
}

func TestLaneScheduler_PreemptsLowestLaneOldestFirst(t *testing.T) {
	sched, gov, buf := newTestScheduler(t, 4, time.Hour)
	fillLane(t, gov, 1, 2)
	fillLane(t, gov, 2, 2)

	exp := domain.NewTask("a", "exp", "", domain.PriorityExpress)
	require.True(t, buf.Add(exp))

	now := time.Now()
	actives := []Active{
		{TaskID: "std-1", Lane: 1, State: domain.StateDownloading, StartedAt: now.Add(-3 * time.Hour)},
		{TaskID: "std-2", Lane: 1, State: domain.StateDownloading, StartedAt: now.Add(-2 * time.Hour)},
		{TaskID: "bg-young", Lane: 2, State: domain.StateDownloading, StartedAt: now.Add(-time.Minute)},
		{TaskID: "bg-old", Lane: 2, State: domain.StateDownloading, StartedAt: now.Add(-time.Hour)},
	}

	d := sched.Next(actives)
	require.NotNil(t, d.Task)
	assert.Equal(t, exp.ID, d.Task.ID)
	require.NotNil(t, d.Victim)
	assert.Equal(t, "bg-old", d.Victim.TaskID, "oldest active in the lowest lane pays first")
}

func TestLaneScheduler_OnlyDownloadingIsPreemptable(t *testing.T) {
	sched, gov, buf := newTestScheduler(t, 2, time.Hour)
	fillLane(t, gov, 2, 2)

	exp := domain.NewTask("a", "exp", "", domain.PriorityExpress)
	require.True(t, buf.Add(exp))

	actives := []Active{
		{TaskID: "bg-searching", Lane: 2, State: domain.StateSearching, StartedAt: time.Now().Add(-time.Hour)},
		{TaskID: "bg-searching-2", Lane: 2, State: domain.StateSearching, StartedAt: time.Now().Add(-time.Hour)},
	}

	d := sched.Next(actives)
	assert.Nil(t, d.Task, "searching workers cannot be paused")
	assert.Nil(t, d.Victim)
}

func TestLaneScheduler_NoVictimAmongEqualOrHigherPriority(t *testing.T) {
	sched, gov, buf := newTestScheduler(t, 4, time.Hour)
	fillLane(t, gov, 0, 2)
	fillLane(t, gov, 1, 2)

	std := domain.NewTask("a", "std", "", domain.PriorityStandard)
	require.True(t, buf.Add(std))

	actives := []Active{
		{TaskID: "exp-1", Lane: 0, State: domain.StateDownloading, StartedAt: time.Now().Add(-time.Hour)},
		{TaskID: "exp-2", Lane: 0, State: domain.StateDownloading, StartedAt: time.Now().Add(-time.Hour)},
		{TaskID: "std-1", Lane: 1, State: domain.StateDownloading, StartedAt: time.Now().Add(-time.Hour)},
		{TaskID: "std-2", Lane: 1, State: domain.StateDownloading, StartedAt: time.Now().Add(-time.Hour)},
	}

	d := sched.Next(actives)
	assert.Nil(t, d.Task, "equal- and higher-priority actives are never victims")
}

func TestLaneScheduler_LaneAtOwnCapCannotPreempt(t *testing.T) {
	// Express reservation is 2 and both slots are already express.
	sched, gov, buf := newTestScheduler(t, 4, time.Hour)
	fillLane(t, gov, 0, 2)
	fillLane(t, gov, 2, 2)

	exp := domain.NewTask("a", "exp", "", domain.PriorityExpress)
	require.True(t, buf.Add(exp))

	actives := []Active{
		{TaskID: "exp-1", Lane: 0, State: domain.StateDownloading, StartedAt: time.Now().Add(-time.Hour)},
		{TaskID: "exp-2", Lane: 0, State: domain.StateDownloading, StartedAt: time.Now().Add(-time.Hour)},
		{TaskID: "bg-1", Lane: 2, State: domain.StateDownloading, StartedAt: time.Now().Add(-time.Hour)},
		{TaskID: "bg-2", Lane: 2, State: domain.StateDownloading, StartedAt: time.Now().Add(-time.Hour)},
	}

	d := sched.Next(actives)
	assert.Nil(t, d.Task, "freeing a slot would not help a lane at its own cap")
}

func TestLaneScheduler_CooldownBlocksRepeatPreemption(t *testing.T) {
	sched, gov, buf := newTestScheduler(t, 2, time.Hour)
	fillLane(t, gov, 2, 2)

	exp := domain.NewTask("a", "exp", "", domain.PriorityExpress)
	require.True(t, buf.Add(exp))

	base := time.Now()
	actives := []Active{
		{TaskID: "bg-fresh", Lane: 2, State: domain.StateDownloading, StartedAt: base.Add(-2 * time.Hour)},
		{TaskID: "bg-preempted", Lane: 2, State: domain.StateDownloading,
			StartedAt: base.Add(-3 * time.Hour), LastPreemptedAt: base.Add(-30 * time.Minute)},
	}

	// Thirty minutes into a sixty-minute cooldown, bg-preempted is immune
	// even though it is the older active.
	sched.now = func() time.Time { return base }
	d := sched.Next(actives)
	require.NotNil(t, d.Victim)
	assert.Equal(t, "bg-fresh", d.Victim.TaskID)

	// Once only the cooling task remains preemptable in principle, the
	// window makes it untouchable.
	gov.Release(2)
	fillLane(t, gov, 0, 1)
	withCooling := []Active{
		actives[1],
		{TaskID: "exp-running", Lane: 0, State: domain.StateDownloading, StartedAt: base},
	}
	d = sched.Next(withCooling)
	assert.Nil(t, d.Task, "cooldown makes the only low-priority active untouchable")

	// After the window expires it becomes fair game again.
	sched.now = func() time.Time { return base.Add(31 * time.Minute) }
	d = sched.Next(withCooling)
	require.NotNil(t, d.Victim)
	assert.Equal(t, "bg-preempted", d.Victim.TaskID)
}
