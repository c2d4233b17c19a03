package provider

// FirstAvailableRanker is the built-in placeholder selection policy used when
// no external ranking collaborator is wired: prefer candidates with a free
// upload slot, break ties by bitrate. The real quality/format scoring lives
// outside this core.
type FirstAvailableRanker struct{}

// SelectBest returns the chosen candidate, or nil when the list is empty.
func (FirstAvailableRanker) SelectBest(candidates []Candidate, _ RankContext) *Candidate {
	if len(candidates) == 0 {
		return nil
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.HasFreeSlot != best.HasFreeSlot {
			if c.HasFreeSlot {
				best = c
			}
			continue
		}
		if c.BitrateKbps > best.BitrateKbps {
			best = c
		}
	}
	return &best
}

var _ Ranker = FirstAvailableRanker{}
