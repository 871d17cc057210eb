// Visionary - Video Similarity and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visionary

// Package ann implements an approximate nearest neighbor index as a
// forest of random-projection trees over the angular metric.
//
// The index is a performance optimization over the persisted
// similarity edges, never the sole source of truth: callers fall back
// to the durable store on any failure. Distances are angular,
// d = sqrt(2 - 2*cos) in [0, 2]; serving converts to a similarity via
// 1 - d/2.
package ann

import (
	"container/heap"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

const (
	// leafSize is the maximum number of items held in one tree leaf.
	leafSize = 16

	// maxSplitAttempts bounds retries when a random hyperplane fails
	// to separate a point set (e.g. duplicate vectors).
	maxSplitAttempts = 3

	// searchKPerTree scales how many candidates a query gathers per
	// tree before exact re-ranking.
	searchKPerTree = 8
)

// node is one tree node. Leaves carry item positions; internal nodes
// carry a hyperplane normal. Exported fields for gob.
type node struct {
	Plane []float32
	Left  int32
	Right int32
	Items []int32 // non-nil marks a leaf
}

// tree is one random-projection tree, nodes stored in a flat slice.
type tree struct {
	Nodes []node
	Root  int32
}

// Forest is a serializable ANN index over a fixed vector set.
// Position i corresponds to the i-th vector passed to Build; mapping
// positions to domain IDs is the caller's concern.
type Forest struct {
	Dim     int
	Vectors [][]float32 // unit-normalized
	Trees   []tree
}

// Neighbor is one query result: an item position and its angular
// distance from the query vector.
type Neighbor struct {
	Position int
	Distance float64
}

// Build constructs a forest of numTrees trees over the given vectors.
// The same seed over the same input yields an identical forest.
func Build(vectors [][]float64, numTrees int, seed int64) (*Forest, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("ann: no vectors to index")
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, fmt.Errorf("ann: zero-dimensional vectors")
	}
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("ann: vector %d has dimension %d, want %d", i, len(v), dim)
		}
	}

	f := &Forest{
		Dim:     dim,
		Vectors: normalizeAll(vectors),
		Trees:   make([]tree, numTrees),
	}

	rng := rand.New(rand.NewSource(seed))
	all := make([]int32, len(vectors))
	for i := range all {
		all[i] = int32(i)
	}

	for t := range f.Trees {
		f.Trees[t] = f.buildTree(all, rng)
	}
	return f, nil
}

// Len returns the number of indexed vectors.
func (f *Forest) Len() int {
	return len(f.Vectors)
}

func normalizeAll(vectors [][]float64) [][]float32 {
	out := make([][]float32, len(vectors))
	for i, v := range vectors {
		var norm float64
		for _, x := range v {
			norm += x * x
		}
		norm = math.Sqrt(norm)
		row := make([]float32, len(v))
		if norm > 0 {
			for j, x := range v {
				row[j] = float32(x / norm)
			}
		}
		out[i] = row
	}
	return out
}

func (f *Forest) buildTree(items []int32, rng *rand.Rand) tree {
	t := tree{}
	// Copy: buildNode shuffles item order in place.
	owned := make([]int32, len(items))
	copy(owned, items)
	t.Root = f.buildNode(&t, owned, rng)
	return t
}

// buildNode recursively splits items by random hyperplanes, returning
// the index of the created node.
func (f *Forest) buildNode(t *tree, items []int32, rng *rand.Rand) int32 {
	if len(items) <= leafSize {
		t.Nodes = append(t.Nodes, node{Items: items})
		return int32(len(t.Nodes) - 1)
	}

	var plane []float32
	var left, right []int32
	for attempt := 0; attempt < maxSplitAttempts; attempt++ {
		plane = f.randomHyperplane(items, rng)
		left, right = f.partition(items, plane)
		if len(left) > 0 && len(right) > 0 {
			break
		}
	}

	// Degenerate point set: split arbitrarily so recursion terminates.
	if len(left) == 0 || len(right) == 0 {
		mid := len(items) / 2
		left, right = items[:mid], items[mid:]
	}

	idx := int32(len(t.Nodes))
	t.Nodes = append(t.Nodes, node{Plane: plane})
	leftIdx := f.buildNode(t, left, rng)
	rightIdx := f.buildNode(t, right, rng)
	t.Nodes[idx].Left = leftIdx
	t.Nodes[idx].Right = rightIdx
	return idx
}

// randomHyperplane picks two random sample points and uses their
// difference as the splitting normal.
func (f *Forest) randomHyperplane(items []int32, rng *rand.Rand) []float32 {
	a := f.Vectors[items[rng.Intn(len(items))]]
	b := f.Vectors[items[rng.Intn(len(items))]]

	plane := make([]float32, f.Dim)
	nonzero := false
	for i := range plane {
		plane[i] = a[i] - b[i]
		if plane[i] != 0 {
			nonzero = true
		}
	}
	if !nonzero {
		// Identical samples: fall back to a random direction.
		for i := range plane {
			plane[i] = float32(rng.NormFloat64())
		}
	}
	return plane
}

func (f *Forest) partition(items []int32, plane []float32) (left, right []int32) {
	for _, item := range items {
		if dot(f.Vectors[item], plane) >= 0 {
			right = append(right, item)
		} else {
			left = append(left, item)
		}
	}
	return left, right
}

func dot(a, b []float32) float32 {
	var s float32
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// queueEntry orders tree traversal by how close the query is to the
// splitting plane: the most ambiguous branches are explored first.
type queueEntry struct {
	margin  float32
	treeIdx int
	nodeIdx int32
}

type entryQueue []queueEntry

func (q entryQueue) Len() int            { return len(q) }
func (q entryQueue) Less(i, j int) bool  { return q[i].margin < q[j].margin }
func (q entryQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *entryQueue) Push(x interface{}) { *q = append(*q, x.(queueEntry)) }
func (q *entryQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// QueryVector returns the k nearest indexed items to the given vector
// by angular distance. Candidates are gathered across all trees and
// re-ranked exactly.
func (f *Forest) QueryVector(query []float64, k int) ([]Neighbor, error) {
	if len(query) != f.Dim {
		return nil, fmt.Errorf("ann: query has dimension %d, want %d", len(query), f.Dim)
	}

	q := make([]float32, f.Dim)
	var norm float64
	for _, x := range query {
		norm += x * x
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i, x := range query {
			q[i] = float32(x / norm)
		}
	}

	searchK := k * searchKPerTree * len(f.Trees)
	if searchK < k {
		searchK = k
	}

	candidates := f.gatherCandidates(q, searchK)

	neighbors := make([]Neighbor, 0, len(candidates))
	for pos := range candidates {
		neighbors = append(neighbors, Neighbor{
			Position: int(pos),
			Distance: angularDistance(q, f.Vectors[pos]),
		})
	}
	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].Distance != neighbors[j].Distance {
			return neighbors[i].Distance < neighbors[j].Distance
		}
		return neighbors[i].Position < neighbors[j].Position
	})

	if len(neighbors) > k {
		neighbors = neighbors[:k]
	}
	return neighbors, nil
}

// QueryItem returns the k nearest items to an already-indexed item,
// including the item itself (distance 0); callers exclude self.
func (f *Forest) QueryItem(position, k int) ([]Neighbor, error) {
	if position < 0 || position >= len(f.Vectors) {
		return nil, fmt.Errorf("ann: position %d out of range [0, %d)", position, len(f.Vectors))
	}
	query := make([]float64, f.Dim)
	for i, x := range f.Vectors[position] {
		query[i] = float64(x)
	}
	return f.QueryVector(query, k)
}

// gatherCandidates walks all trees breadth-wise by plane margin until
// searchK candidate positions are collected.
func (f *Forest) gatherCandidates(q []float32, searchK int) map[int32]struct{} {
	candidates := make(map[int32]struct{})

	pq := make(entryQueue, 0, len(f.Trees)*2)
	for t := range f.Trees {
		pq = append(pq, queueEntry{margin: 0, treeIdx: t, nodeIdx: f.Trees[t].Root})
	}
	heap.Init(&pq)

	for pq.Len() > 0 && len(candidates) < searchK {
		e := heap.Pop(&pq).(queueEntry)
		n := &f.Trees[e.treeIdx].Nodes[e.nodeIdx]

		if n.Items != nil {
			for _, item := range n.Items {
				candidates[item] = struct{}{}
			}
			continue
		}

		margin := dot(q, n.Plane)
		near, far := n.Left, n.Right
		if margin >= 0 {
			near, far = n.Right, n.Left
		}
		abs := margin
		if abs < 0 {
			abs = -abs
		}
		heap.Push(&pq, queueEntry{margin: e.margin, treeIdx: e.treeIdx, nodeIdx: near})
		heap.Push(&pq, queueEntry{margin: e.margin + abs, treeIdx: e.treeIdx, nodeIdx: far})
	}

	return candidates
}

// angularDistance computes sqrt(2 - 2*cos) between two unit vectors.
func angularDistance(a, b []float32) float64 {
	cos := float64(dot(a, b))
	if cos > 1 {
		cos = 1
	}
	if cos < -1 {
		cos = -1
	}
	return math.Sqrt(2 - 2*cos)
}

// DistanceToSimilarity converts an angular distance in [0, 2] to a
// similarity score in [0, 1].
func DistanceToSimilarity(d float64) float64 {
	s := 1 - d/2
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
