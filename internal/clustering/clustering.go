// Package clustering implements density-based clustering over numeric
// feature points and groups the original items by the resulting labels.
package clustering

import (
	"errors"
	"fmt"

	"github.com/muesli/clusters"
)

// Outlier is the label given to points that belong to no cluster.
const Outlier Label = -1

var (
	// ErrInvalidConfig is returned for clustering parameters outside their domain.
	ErrInvalidConfig = errors.New("invalid clustering config")

	// ErrInvalidLabels is returned when a label slice does not fit its dataset.
	ErrInvalidLabels = errors.New("invalid labels")
)

// Point is a feature vector. Every point in a dataset must have the same
// number of dimensions.
type Point = clusters.Coordinates

// Label identifies the cluster a point belongs to, or Outlier.
type Label int

// Result is the outcome of a clustering run. Labels mirror the input
// dataset in length and order.
type Result struct {
	Labels []Label
}

// NumClusters returns max(labels)+1, or 0 when every point is an outlier.
func (r Result) NumClusters() int {
	highest := Outlier
	for _, l := range r.Labels {
		if l > highest {
			highest = l
		}
	}
	return int(highest) + 1
}

// Outliers returns the number of points labelled Outlier.
func (r Result) Outliers() int {
	n := 0
	for _, l := range r.Labels {
		if l == Outlier {
			n++
		}
	}
	return n
}

// Center returns the mean of points.
func Center(points []Point) (Point, error) {
	obs := make(clusters.Observations, len(points))
	for i, p := range points {
		obs[i] = p
	}
	c, err := obs.Center()
	if err != nil {
		return nil, fmt.Errorf("computing center: %w", err)
	}
	return c, nil
}

// checkDimensions verifies that all points share a non-zero dimension.
func checkDimensions(points []Point) error {
	if len(points) == 0 {
		return nil
	}
	dims := len(points[0])
	if dims == 0 {
		return fmt.Errorf("%w: points have no dimensions", ErrInvalidConfig)
	}
	for i, p := range points {
		if len(p) != dims {
			return fmt.Errorf("%w: point %d has %d dimensions, want %d", ErrInvalidConfig, i, len(p), dims)
		}
	}
	return nil
}
