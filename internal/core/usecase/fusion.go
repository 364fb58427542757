package usecase

import "sort"

// FusedID is one entry of a reciprocal-rank-fused ranking.
type FusedID struct {
	ID    string
	Score float64
}

// fuseRankedLists merges ranked ID lists with reciprocal rank fusion: each
// list contributes 1/(k+rank+1) for the ID at zero-based rank. The output
// covers the union of all lists, ordered by score descending; ties keep the
// order in which IDs were first seen across the inputs.
func fuseRankedLists(lists [][]string, rrfK int) []FusedID {
	if rrfK <= 0 {
		rrfK = 60
	}

	scores := make(map[string]float64)
	order := make([]string, 0)
	for _, list := range lists {
		for rank, id := range list {
			if _, seen := scores[id]; !seen {
				order = append(order, id)
			}
			scores[id] += 1.0 / float64(rrfK+rank+1)
		}
	}

	out := make([]FusedID, 0, len(order))
	for _, id := range order {
		out = append(out, FusedID{ID: id, Score: scores[id]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

func topFusedIDs(fused []FusedID, limit int) []string {
	if limit > len(fused) {
		limit = len(fused)
	}
	out := make([]string, 0, limit)
	for _, f := range fused[:limit] {
		out = append(out, f.ID)
	}
	return out
}
