package clustering

import (
	"fmt"
)

// Group collects items that share a cluster label. Groups are ordered by the
// first appearance of their label and keep the items' original order.
// Outliers are dropped. labels must have one entry per item, each >= Outlier.
func Group[T any](items []T, labels []Label) ([][]T, error) {
	if len(items) != len(labels) {
		return nil, fmt.Errorf("%w: %d items but %d labels", ErrInvalidLabels, len(items), len(labels))
	}
	for i, l := range labels {
		if l < Outlier {
			return nil, fmt.Errorf("%w: label %d at index %d is below %d", ErrInvalidLabels, l, i, Outlier)
		}
	}

	groups := make([][]T, 0)
	index := make(map[Label]int)
	for i, l := range labels {
		if l == Outlier {
			continue
		}
		g, ok := index[l]
		if !ok {
			g = len(groups)
			index[l] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], items[i])
	}
	return groups, nil
}

// GroupResult groups items by a fitted clustering result.
func GroupResult[T any](items []T, r Result) ([][]T, error) {
	return Group(items, r.Labels)
}
