package clustering

import (
	"fmt"
)

// DensityConfig holds DBSCAN parameters.
type DensityConfig struct {
	MaxDist   float64 // Neighbourhood radius (default: 0.5)
	MinPoints int     // Points within MaxDist, itself included, for a core point (default: 3)
}

// DefaultDensityConfig returns the recommended default configuration.
func DefaultDensityConfig() DensityConfig {
	return DensityConfig{
		MaxDist:   0.5,
		MinPoints: 3,
	}
}

// Validate checks the configuration.
func (c DensityConfig) Validate() error {
	if c.MaxDist <= 0 {
		return fmt.Errorf("%w: max distance must be positive, got %v", ErrInvalidConfig, c.MaxDist)
	}
	if c.MinPoints < 1 {
		return fmt.Errorf("%w: min points must be at least 1, got %d", ErrInvalidConfig, c.MinPoints)
	}
	return nil
}

// unassigned marks points not yet reached during expansion.
const unassigned Label = -2

// DBSCAN partitions points into dense clusters and outliers.
//
// A point is a core point when at least cfg.MinPoints points (itself
// included) lie within cfg.MaxDist of it. Clusters grow from core points in
// input order, so the result is deterministic for a given input order.
// Border points join the first cluster that reaches them.
func DBSCAN(points []Point, cfg DensityConfig) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	if err := checkDimensions(points); err != nil {
		return Result{}, err
	}

	labels := make([]Label, len(points))
	if len(points) < cfg.MinPoints {
		// Nothing can reach density; every point is an outlier.
		for i := range labels {
			labels[i] = Outlier
		}
		return Result{Labels: labels}, nil
	}

	neighbours := regionQueries(points, cfg.MaxDist*cfg.MaxDist)
	core := make([]bool, len(points))
	for i := range points {
		labels[i] = unassigned
		core[i] = len(neighbours[i]) >= cfg.MinPoints
	}

	var next Label
	var stack []int
	for i := range points {
		if labels[i] != unassigned || !core[i] {
			continue
		}

		labels[i] = next
		stack = append(stack[:0], i)
		for len(stack) > 0 {
			p := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for _, q := range neighbours[p] {
				if labels[q] != unassigned {
					continue
				}
				labels[q] = next
				if core[q] {
					stack = append(stack, q)
				}
			}
		}
		next++
	}

	for i, l := range labels {
		if l == unassigned {
			labels[i] = Outlier
		}
	}
	return Result{Labels: labels}, nil
}

// regionQueries returns, for every point, the indexes of all points within
// the squared radius, itself included.
func regionQueries(points []Point, radiusSq float64) [][]int {
	neighbours := make([][]int, len(points))
	for i := range points {
		neighbours[i] = append(neighbours[i], i)
	}
	for i := range points {
		for j := i + 1; j < len(points); j++ {
			// clusters.Coordinates.Distance is the squared euclidean distance.
			if points[i].Distance(points[j]) <= radiusSq {
				neighbours[i] = append(neighbours[i], j)
				neighbours[j] = append(neighbours[j], i)
			}
		}
	}
	return neighbours
}
