package domain

// Lane is a static priority tier. Three lanes exist by convention (Express,
// Standard, Background) but all scheduling logic is generic over an ordered
// list of lanes, ascending by PriorityValue.
//
// Slot policy: ReservedSlots > 0 guarantees that many slots regardless of
// other lane load; otherwise MaxSlots > 0 caps the lane at min(MaxSlots,
// global max); a lane with neither consumes leftover capacity only.
type Lane struct {
	Name          string
	PriorityValue int
	ReservedSlots int
	MaxSlots      int
}

// DefaultLanes builds the conventional Express/Standard/Background lane set.
func DefaultLanes(expressReserved, standardMax int) []Lane {
	return []Lane{
		{Name: "express", PriorityValue: PriorityExpress, ReservedSlots: expressReserved},
		{Name: "standard", PriorityValue: PriorityStandard, MaxSlots: standardMax},
		{Name: "background", PriorityValue: PriorityBackground},
	}
}

// LaneForPriority maps a task priority onto a lane index: the last lane whose
// PriorityValue does not exceed the priority. Priorities below the first lane
// clamp to lane 0.
func LaneForPriority(lanes []Lane, priority int) int {
	idx := 0
	for i, l := range lanes {
		if priority >= l.PriorityValue {
			idx = i
		}
	}
	return idx
}
