package clustering

import (
	"fmt"

	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"
)

// pointObservation wraps a Point to implement clusters.Observation while
// remembering its position in the dataset.
type pointObservation struct {
	index  int
	coords clusters.Coordinates
}

func (o pointObservation) Coordinates() clusters.Coordinates {
	return o.coords
}

func (o pointObservation) Distance(point clusters.Coordinates) float64 {
	return o.coords.Distance(point)
}

// KMeans partitions points into at most k clusters with k-means. Every point
// is assigned to a cluster; empty clusters are dropped and the remaining
// labels are numbered by first appearance. Seeding is random, so repeated
// runs may differ. Points are expected to be scaled to [0,1].
func KMeans(points []Point, k int) (Result, error) {
	if k < 1 {
		return Result{}, fmt.Errorf("%w: k must be at least 1, got %d", ErrInvalidConfig, k)
	}
	if len(points) == 0 {
		return Result{Labels: []Label{}}, nil
	}
	if err := checkDimensions(points); err != nil {
		return Result{}, err
	}
	if k > len(points) {
		k = len(points)
	}

	obs := make(clusters.Observations, len(points))
	for i, p := range points {
		obs[i] = pointObservation{index: i, coords: p}
	}

	km := kmeans.New()
	partition, err := km.Partition(obs, k)
	if err != nil {
		return Result{}, fmt.Errorf("partitioning points: %w", err)
	}

	labels := make([]Label, len(points))
	for c, cluster := range partition {
		for _, o := range cluster.Observations {
			if po, ok := o.(pointObservation); ok {
				labels[po.index] = Label(c)
			}
		}
	}
	return Result{Labels: compact(labels)}, nil
}

// compact renumbers non-outlier labels 0..n-1 in order of first appearance.
func compact(labels []Label) []Label {
	ids := make(map[Label]Label)
	out := make([]Label, len(labels))
	for i, l := range labels {
		if l == Outlier {
			out[i] = Outlier
			continue
		}
		id, ok := ids[l]
		if !ok {
			id = Label(len(ids))
			ids[l] = id
		}
		out[i] = id
	}
	return out
}
