package match

import (
	"encoding/json"
	"sort"

	"github.com/refind-app/refind/internal/storage"
)

// PairID derives the deterministic match identifier from the ordered item
// pair. Item IDs are UUIDs, which never contain ':', so the composite key
// cannot collide.
func PairID(lostItemID, foundItemID string) string {
	return lostItemID + ":" + foundItemID
}

// Discover enumerates all active (lost, found) pairs from the item pool,
// scores each, and returns the pairs meeting MinimumMatchScore as pending
// match records sorted by score descending (stable, so ties keep discovery
// order). Deterministic for a given item snapshot: the same input always
// yields the same matches with the same identifiers.
//
// The full cross product is O(L×F), which is fine at community scale.
func Discover(items []storage.Item, w Weights) []storage.Match {
	var lost, found []storage.Item
	for _, item := range items {
		if item.Status != storage.StatusActive || !Eligible(item) {
			continue
		}
		switch item.Type {
		case storage.TypeLost:
			lost = append(lost, item)
		case storage.TypeFound:
			found = append(found, item)
		}
	}

	var matches []storage.Match
	for _, l := range lost {
		for _, f := range found {
			score, fields := Score(l, f, w)
			if score < MinimumMatchScore {
				continue
			}
			if fields == nil {
				fields = []string{}
			}
			fieldsJSON, _ := json.Marshal(fields) // string slice, cannot fail
			matches = append(matches, storage.Match{
				ID:            PairID(l.ID, f.ID),
				LostItemID:    l.ID,
				FoundItemID:   f.ID,
				Score:         score,
				MatchedFields: string(fieldsJSON),
				Status:        storage.MatchPending,
				AIConfidence:  AIConfidence(l, f),
				ImageScore:    ImageScore(l, f),
			})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches
}
