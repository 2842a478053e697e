package match

import (
	"fmt"
	"math"
	"sort"

	"github.com/trailtools/rde/internal/config"
)

// OrderForReview reorders a directory's suspicious locations so nearby
// detections sit next to each other during visual review. Ordering is
// cosmetic: it never changes which locations are in the list, only their
// sequence (and, for clustersort, their cluster labels).
func OrderForReview(locs []*DetectionLocation, opts *config.Options) ([]*DetectionLocation, error) {
	if len(locs) <= 1 || opts.SortMode == config.SortNone || opts.SortMode == "" {
		return locs, nil
	}

	switch opts.SortMode {
	case config.SortX:
		out := make([]*DetectionLocation, len(locs))
		copy(out, locs)
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Box.CenterX() < out[j].Box.CenterX()
		})
		return out, nil

	case config.SortCluster:
		return clusterSort(locs, opts.ClusterSortDistance)

	default:
		return nil, fmt.Errorf("unrecognized sort mode %q", opts.SortMode)
	}
}

// clusterSort runs complete-linkage agglomerative clustering over box
// centers, renumbers clusters by ascending mean x coordinate, stores the
// label on each location, and sorts by (label, id).
func clusterSort(locs []*DetectionLocation, distanceThreshold float64) ([]*DetectionLocation, error) {
	points := make([][2]float64, len(locs))
	for i, l := range locs {
		points[i] = [2]float64{l.Box.CenterX(), l.Box.CenterY()}
	}

	labels := completeLinkage(points, distanceThreshold)

	// Mean upper-left x per cluster drives the label renumbering, so
	// labels read left to right across the frame.
	nClusters := 0
	for _, lb := range labels {
		if lb+1 > nClusters {
			nClusters = lb + 1
		}
	}
	sums := make([]float64, nClusters)
	counts := make([]int, nClusters)
	for i, l := range locs {
		sums[labels[i]] += l.Box.X()
		counts[labels[i]]++
	}

	order := make([]int, nClusters)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return sums[order[a]]/float64(counts[order[a]]) < sums[order[b]]/float64(counts[order[b]])
	})
	oldToNew := make([]int, nClusters)
	for rank, old := range order {
		oldToNew[old] = rank
	}

	out := make([]*DetectionLocation, len(locs))
	for i, l := range locs {
		label := oldToNew[labels[i]]
		l.ClusterLabel = &label
		out[i] = l
	}
	sort.SliceStable(out, func(i, j int) bool {
		if *out[i].ClusterLabel != *out[j].ClusterLabel {
			return *out[i].ClusterLabel < *out[j].ClusterLabel
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// completeLinkage merges clusters greedily while the smallest
// complete-linkage (max pairwise) distance stays below the threshold.
// Location counts per directory are tiny, so the naive O(n^3) merge loop
// is fine. Returned labels are cluster indices in formation order.
func completeLinkage(points [][2]float64, threshold float64) []int {
	n := len(points)
	clusters := make([][]int, n)
	for i := range clusters {
		clusters[i] = []int{i}
	}

	dist := func(a, b []int) float64 {
		worst := 0.0
		for _, i := range a {
			for _, j := range b {
				dx := points[i][0] - points[j][0]
				dy := points[i][1] - points[j][1]
				if d := math.Hypot(dx, dy); d > worst {
					worst = d
				}
			}
		}
		return worst
	}

	for len(clusters) > 1 {
		bestI, bestJ := -1, -1
		best := math.Inf(1)
		for i := 0; i < len(clusters); i++ {
			for j := i + 1; j < len(clusters); j++ {
				if d := dist(clusters[i], clusters[j]); d < best {
					best, bestI, bestJ = d, i, j
				}
			}
		}
		if best >= threshold {
			break
		}
		clusters[bestI] = append(clusters[bestI], clusters[bestJ]...)
		clusters = append(clusters[:bestJ], clusters[bestJ+1:]...)
	}

	labels := make([]int, n)
	for c, members := range clusters {
		for _, i := range members {
			labels[i] = c
		}
	}
	return labels
}
