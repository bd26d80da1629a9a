package ringhost

import "sort"

// memberChanges is the diff between two ring snapshots.
type memberChanges struct {
	Remained []MemberID
	Joined   []MemberID
	Left     []MemberID
}

func (c memberChanges) churned() bool {
	return len(c.Joined) > 0 || len(c.Left) > 0
}

// diffMembers compares the previous ring against a new member set.
// Output slices are sorted so that every member computes the same diff.
func diffMembers(prev *Ring, next []RingMember) memberChanges {
	prevSet := make(map[MemberID]struct{})
	if prev != nil {
		for _, id := range prev.IDs() {
			prevSet[id] = struct{}{}
		}
	}
	nextSet := make(map[MemberID]struct{}, len(next))
	for _, m := range next {
		nextSet[m.ID] = struct{}{}
	}

	changes := memberChanges{
		Remained: Intersect(prevSet, nextSet),
		Joined:   Difference(nextSet, prevSet),
		Left:     Difference(prevSet, nextSet),
	}
	sortIDs(changes.Remained)
	sortIDs(changes.Joined)
	sortIDs(changes.Left)
	return changes
}

func sortIDs(ids []MemberID) {
	sort.Slice(ids, func(i, j int) bool {
		return ids[i].Less(ids[j])
	})
}
