// Package cluster reorders correlation matrices so that highly correlated
// series sit adjacently. The permutation is the leaf order of an
// agglomerative hierarchical clustering over distance 1 - corr.
package cluster

import (
	"math"

	"github.com/macroview/macrocorr/internal/config"
	"github.com/macroview/macrocorr/internal/corr"
)

// OrderedMatrix pairs a matrix with a display permutation. Perm is a
// bijection over the matrix indices: position k in the display shows
// original index Perm[k].
type OrderedMatrix struct {
	Matrix *corr.Matrix
	Perm   []int
}

// ID returns the series identifier at display position k.
func (o *OrderedMatrix) ID(k int) string { return o.Matrix.IDs[o.Perm[k]] }

// Label returns the display label at position k.
func (o *OrderedMatrix) Label(k int) string { return o.Matrix.Labels[o.Perm[k]] }

// At returns the correlation between display positions k and l.
func (o *OrderedMatrix) At(k, l int) float64 { return o.Matrix.Vals[o.Perm[k]][o.Perm[l]] }

// Dim returns the matrix dimension.
func (o *OrderedMatrix) Dim() int { return o.Matrix.Dim() }

// Identity wraps a matrix with the identity permutation, for runs with
// clustering disabled.
func Identity(m *corr.Matrix) *OrderedMatrix {
	perm := make([]int, m.Dim())
	for i := range perm {
		perm[i] = i
	}
	return &OrderedMatrix{Matrix: m, Perm: perm}
}

// maxDistance is what an undefined correlation maps to: maximally
// dissimilar, the far end of the 1 - corr range.
const maxDistance = 2.0

// Order clusters the matrix and returns it with the dendrogram leaf order
// as permutation. Matrices with fewer than 3 series skip clustering and
// keep the identity permutation. The result is deterministic: equal merge
// distances resolve by original input order.
func Order(m *corr.Matrix, linkage config.Linkage) (*OrderedMatrix, error) {
	switch linkage {
	case config.LinkageAverage, config.LinkageSingle, config.LinkageComplete:
	default:
		return nil, config.NewConfigurationError("linkage", "unknown linkage strategy: %q", linkage)
	}
	n := m.Dim()
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	if n < 3 {
		return &OrderedMatrix{Matrix: m, Perm: perm}, nil
	}

	dist := distanceMatrix(m)
	leaves := agglomerate(dist, linkage)
	return &OrderedMatrix{Matrix: m, Perm: leaves}, nil
}

// distanceMatrix converts correlations to distances in [0, 2]. Undefined
// entries become maxDistance so they never cluster with anything.
func distanceMatrix(m *corr.Matrix) [][]float64 {
	n := m.Dim()
	d := make([][]float64, n)
	for i := range d {
		d[i] = make([]float64, n)
		for j := range d[i] {
			if i == j {
				continue
			}
			r := m.Vals[i][j]
			if !corr.IsDefined(r) {
				d[i][j] = maxDistance
				continue
			}
			d[i][j] = 1 - math.Max(-1, math.Min(1, r))
		}
	}
	return d
}

// group is one active cluster during agglomeration. leaves keeps the
// left-to-right dendrogram order; min is the lowest original index, used
// for deterministic tie-breaking and for left/right placement on merge.
type group struct {
	leaves []int
	min    int
}

// agglomerate runs bottom-up clustering over the distance matrix and
// returns the final leaf order. Cluster-to-cluster distance follows the
// linkage strategy, recomputed from original leaf distances on each scan
// (n stays small here; matrices are series counts, not observations).
func agglomerate(dist [][]float64, linkage config.Linkage) []int {
	n := len(dist)
	groups := make([]*group, n)
	for i := range groups {
		groups[i] = &group{leaves: []int{i}, min: i}
	}

	for len(groups) > 1 {
		bestA, bestB := 0, 1
		best := math.Inf(1)
		for a := 0; a < len(groups); a++ {
			for b := a + 1; b < len(groups); b++ {
				d := groupDistance(dist, groups[a], groups[b], linkage)
				// Strict less-than keeps the first (lowest original
				// order) pair on ties.
				if d < best {
					best = d
					bestA, bestB = a, b
				}
			}
		}
		merged := merge(groups[bestA], groups[bestB])
		next := make([]*group, 0, len(groups)-1)
		for i, g := range groups {
			if i != bestA && i != bestB {
				next = append(next, g)
			}
		}
		// Insert by min index so the scan order stays tied to original
		// input order across iterations.
		pos := len(next)
		for i, g := range next {
			if merged.min < g.min {
				pos = i
				break
			}
		}
		next = append(next[:pos], append([]*group{merged}, next[pos:]...)...)
		groups = next
	}
	return groups[0].leaves
}

// merge joins two clusters, placing the one with the lower original index
// on the left.
func merge(a, b *group) *group {
	left, right := a, b
	if b.min < a.min {
		left, right = b, a
	}
	leaves := make([]int, 0, len(left.leaves)+len(right.leaves))
	leaves = append(leaves, left.leaves...)
	leaves = append(leaves, right.leaves...)
	return &group{leaves: leaves, min: left.min}
}

// groupDistance evaluates the linkage strategy over all cross-cluster
// leaf pairs.
func groupDistance(dist [][]float64, a, b *group, linkage config.Linkage) float64 {
	switch linkage {
	case config.LinkageSingle:
		best := math.Inf(1)
		for _, i := range a.leaves {
			for _, j := range b.leaves {
				if dist[i][j] < best {
					best = dist[i][j]
				}
			}
		}
		return best
	case config.LinkageComplete:
		worst := 0.0
		for _, i := range a.leaves {
			for _, j := range b.leaves {
				if dist[i][j] > worst {
					worst = dist[i][j]
				}
			}
		}
		return worst
	default: // average
		sum := 0.0
		for _, i := range a.leaves {
			for _, j := range b.leaves {
				sum += dist[i][j]
			}
		}
		return sum / float64(len(a.leaves)*len(b.leaves))
	}
}
