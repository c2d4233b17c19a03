package scheduler

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/tunefetch/tunefetch/internal/domain"
)

// Governor owns the single counting mechanism that gates worker spawning: a
// weighted semaphore sized to the global concurrency cap, plus per-lane
// active counters used to derive each lane's effective cap.
//
// Invariant: the sum of all lane active counts never exceeds the global cap,
// including during preemption (a preemptor acquires the freed slot only after
// the victim released it).
type Governor struct {
	lanes []domain.Lane
	max   int
	sem   *semaphore.Weighted

	mu     sync.Mutex
	active []int
}

// NewGovernor builds a governor for the given ordered lane list and global
// maximum concurrency.
func NewGovernor(lanes []domain.Lane, maxConcurrent int) *Governor {
	return &Governor{
		lanes:  lanes,
		max:    maxConcurrent,
		sem:    semaphore.NewWeighted(int64(maxConcurrent)),
		active: make([]int, len(lanes)),
	}
}

// EffectiveCap returns the number of slots lane may occupy right now.
// A reserved lane is always granted its reservation; a capped lane gets
// min(maxSlots, global max); an uncapped, unreserved lane only consumes
// capacity left over by every other lane.
func (g *Governor) EffectiveCap(lane int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.effectiveCapLocked(lane)
}

func (g *Governor) effectiveCapLocked(lane int) int {
	l := g.lanes[lane]
	switch {
	case l.ReservedSlots > 0:
		return l.ReservedSlots
	case l.MaxSlots > 0:
		return min(l.MaxSlots, g.max)
	default:
		others := 0
		for i, n := range g.active {
			if i != lane {
				others += n
			}
		}
		return max(0, g.max-others)
	}
}

// Available returns how many more tasks lane could start, ignoring the state
// of the global semaphore.
func (g *Governor) Available(lane int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return max(0, g.effectiveCapLocked(lane)-g.active[lane])
}

// TryAcquire claims one slot for lane without blocking. It fails when the
// lane is at its effective cap or the global cap is exhausted.
func (g *Governor) TryAcquire(lane int) bool {
	g.mu.Lock()
	if g.effectiveCapLocked(lane)-g.active[lane] <= 0 {
		g.mu.Unlock()
		return false
	}
	if !g.sem.TryAcquire(1) {
		g.mu.Unlock()
		return false
	}
	g.active[lane]++
	g.mu.Unlock()
	return true
}

// Acquire blocks until a global slot frees, then claims it for lane. Used on
// the preemption path, where the dispatcher has already signaled a victim and
// waits for its slot. The lane cap must have been checked by the caller; it
// is re-checked here to guard races.
func (g *Governor) Acquire(ctx context.Context, lane int) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	g.mu.Lock()
	if g.effectiveCapLocked(lane)-g.active[lane] <= 0 {
		g.mu.Unlock()
		g.sem.Release(1)
		return fmt.Errorf("lane %s is at capacity", g.lanes[lane].Name)
	}
	g.active[lane]++
	g.mu.Unlock()
	return nil
}

// Release returns a slot claimed for lane. Every acquire must be paired with
// exactly one release on every worker exit path.
func (g *Governor) Release(lane int) {
	g.mu.Lock()
	if g.active[lane] <= 0 {
		g.mu.Unlock()
		panic(fmt.Sprintf("governor: release without acquire on lane %d", lane))
	}
	g.active[lane]--
	g.mu.Unlock()
	g.sem.Release(1)
}

// ActiveCount returns the number of slots lane currently holds.
func (g *Governor) ActiveCount(lane int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active[lane]
}

// InUse returns the total number of claimed slots.
func (g *Governor) InUse() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	total := 0
	for _, n := range g.active {
		total += n
	}
	return total
}

// Max returns the global concurrency cap.
func (g *Governor) Max() int {
	return g.max
}

// Snapshot returns a copy of per-lane active counts keyed by lane name.
func (g *Governor) Snapshot() map[string]int {
	g.mu.Lock()
	defer g.mu.Unlock()
	counts := make(map[string]int, len(g.lanes))
	for i, l := range g.lanes {
		counts[l.Name] = g.active[i]
	}
	return counts
}
