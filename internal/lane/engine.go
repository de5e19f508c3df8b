package lane

import (
	"fmt"
	"sort"
)

// Rebalance applies one move to a snapshot of all client records and
// returns the resulting snapshot plus the minimal set of writes needed to
// persist it.
//
// A move may change the target's lane, its priority within a lane, or
// both. After any successful call every lane's priorities are exactly
// 1..N with no gaps or duplicates:
//
//   - Lane change: the target leaves its old lane (which is compacted,
//     preserving relative order) and is appended to the end of the
//     destination lane.
//   - Reorder: the target is placed at the requested priority within the
//     effective lane (the destination lane if the same call also changes
//     lanes) and the displaced records shift by one.
//   - Both: the lane change is applied first, then the reorder runs
//     within the destination lane.
//
// Rebalance is a pure function: the input slice is never modified, all
// validation happens before any mutation, and on error no changes are
// produced. The caller is responsible for committing the returned changes
// atomically and for serializing concurrent moves that touch the same
// lanes.
//
// The returned snapshot is ordered by (status, priority) for
// presentation.
func Rebalance(records []Client, move Move) ([]Client, []Change, error) {
	snapshot := make([]Client, len(records))
	copy(snapshot, records)

	target := -1
	for i := range snapshot {
		if snapshot[i].ID == move.TargetID {
			target = i
			break
		}
	}
	if target == -1 {
		return nil, nil, fmt.Errorf("%w: id %d", ErrNotFound, move.TargetID)
	}

	if move.NewStatus != nil && !move.NewStatus.Valid() {
		return nil, nil, fmt.Errorf("%w: %q (expected one of %v)", ErrInvalidStatus, *move.NewStatus, Statuses)
	}

	current := snapshot[target]
	laneChange := move.NewStatus != nil && *move.NewStatus != current.Status

	// A reorder combined with a lane change runs in the destination lane.
	effective := current.Status
	if laneChange {
		effective = *move.NewStatus
	}

	if move.NewPriority != nil {
		limit := laneSizeExcluding(snapshot, effective, move.TargetID) + 1
		if p := *move.NewPriority; p < 1 || p > limit {
			return nil, nil, fmt.Errorf("%w: %d (must be between 1 and %d)", ErrInvalidPriority, p, limit)
		}
	}

	if !laneChange && move.NewPriority == nil {
		// Nothing requested; zero writes.
		return sortSnapshot(snapshot), nil, nil
	}

	if laneChange {
		oldLane := current.Status
		snapshot[target].Status = *move.NewStatus
		snapshot[target].Priority = laneSizeExcluding(snapshot, *move.NewStatus, move.TargetID) + 1
		compactLane(snapshot, oldLane)
	}

	if move.NewPriority != nil {
		placeInLane(snapshot, effective, move.TargetID, *move.NewPriority)
	}

	sorted := sortSnapshot(snapshot)
	return sorted, diffSnapshots(records, sorted), nil
}

// laneSizeExcluding counts the records in a lane, ignoring excludeID.
func laneSizeExcluding(records []Client, status Status, excludeID int64) int {
	n := 0
	for i := range records {
		if records[i].Status == status && records[i].ID != excludeID {
			n++
		}
	}
	return n
}

// compactLane reassigns priorities 1..M within a lane, preserving the
// relative order given by the current priorities.
func compactLane(records []Client, status Status) {
	idx := laneIndexes(records, status, 0)
	for rank, i := range idx {
		records[i].Priority = rank + 1
	}
}

// placeInLane positions the target at the given 1-based priority within a
// lane and re-ranks the whole lane 1..N. The caller must have validated
// the priority range.
func placeInLane(records []Client, status Status, targetID int64, priority int) {
	idx := laneIndexes(records, status, targetID)

	rank := 1
	for seq := 0; seq <= len(idx); seq++ {
		if seq == priority-1 {
			for i := range records {
				if records[i].ID == targetID {
					records[i].Priority = rank
					break
				}
			}
			rank++
		}
		if seq < len(idx) {
			records[idx[seq]].Priority = rank
			rank++
		}
	}
}

// laneIndexes returns the indexes of a lane's records sorted by current
// priority ascending, excluding excludeID (pass 0 to exclude nothing;
// record IDs start at 1).
func laneIndexes(records []Client, status Status, excludeID int64) []int {
	var idx []int
	for i := range records {
		if records[i].Status == status && records[i].ID != excludeID {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return records[idx[a]].Priority < records[idx[b]].Priority
	})
	return idx
}

// sortSnapshot orders records by (status, priority) for presentation.
func sortSnapshot(records []Client) []Client {
	sort.SliceStable(records, func(a, b int) bool {
		if records[a].Status != records[b].Status {
			return records[a].Status.order() < records[b].Status.order()
		}
		return records[a].Priority < records[b].Priority
	})
	return records
}

// diffSnapshots returns the writes needed to turn the original snapshot
// into the updated one, in the updated snapshot's presentation order.
func diffSnapshots(original, updated []Client) []Change {
	before := make(map[int64]Client, len(original))
	for _, c := range original {
		before[c.ID] = c
	}

	var changes []Change
	for _, c := range updated {
		prev := before[c.ID]
		if prev.Status != c.Status || prev.Priority != c.Priority {
			changes = append(changes, Change{ID: c.ID, Status: c.Status, Priority: c.Priority})
		}
	}
	return changes
}
