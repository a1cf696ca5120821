package cluster

import "sort"

// Classify returns the IDs of the clusters sharing the most tags with the
// input, best first, at most topN of them.
//
// A cluster's score is the number of distinct input tags that are members of
// it. Zero-score clusters are dropped. Equal scores keep registry order.
// The result is never nil.
func Classify(tags []string, clusters []TagCluster, topN int) []int {
	if topN <= 0 {
		topN = DefaultTopN
	}

	input := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		input[t] = struct{}{}
	}

	type scored struct {
		id    int
		count int
	}
	matches := make([]scored, 0, len(clusters))
	for _, c := range clusters {
		count := matchCount(input, c.Tags)
		if count > 0 {
			matches = append(matches, scored{id: c.ID, count: count})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].count > matches[j].count
	})

	if len(matches) > topN {
		matches = matches[:topN]
	}
	ids := make([]int, len(matches))
	for i, m := range matches {
		ids[i] = m.id
	}
	return ids
}

// matchCount is |input ∩ members|, counting each member tag once.
func matchCount(input map[string]struct{}, members []string) int {
	if len(input) == 0 {
		return 0
	}
	seen := make(map[string]struct{}, len(members))
	n := 0
	for _, m := range members {
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		if _, ok := input[m]; ok {
			n++
		}
	}
	return n
}
