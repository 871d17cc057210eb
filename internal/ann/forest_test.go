// Visionary - Video Similarity and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visionary

package ann

import (
	"math"
	"math/rand"
	"testing"
)

// clusteredVectors returns vectors in two well-separated clusters so
// nearest-neighbor structure is unambiguous.
func clusteredVectors(n, dim int, seed int64) [][]float64 {
	rng := rand.New(rand.NewSource(seed))
	vectors := make([][]float64, n)
	for i := range vectors {
		base := 1.0
		if i >= n/2 {
			base = -1.0
		}
		v := make([]float64, dim)
		for j := range v {
			v[j] = base + 0.05*rng.NormFloat64()
		}
		vectors[i] = v
	}
	return vectors
}

func TestBuildValidations(t *testing.T) {
	if _, err := Build(nil, 10, 42); err == nil {
		t.Error("Build(empty) succeeded, want error")
	}

	ragged := [][]float64{{1, 2}, {1, 2, 3}}
	if _, err := Build(ragged, 10, 42); err == nil {
		t.Error("Build(ragged) succeeded, want error")
	}
}

func TestQueryItemFindsClusterNeighbors(t *testing.T) {
	vectors := clusteredVectors(100, 8, 1)
	f, err := Build(vectors, 10, 42)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	neighbors, err := f.QueryItem(3, 11)
	if err != nil {
		t.Fatalf("QueryItem failed: %v", err)
	}
	if len(neighbors) != 11 {
		t.Fatalf("got %d neighbors, want 11", len(neighbors))
	}

	// The item itself must be the nearest match at distance ~0.
	if neighbors[0].Position != 3 {
		t.Errorf("nearest neighbor = %d, want self (3)", neighbors[0].Position)
	}
	if neighbors[0].Distance > 1e-3 {
		t.Errorf("self distance = %v, want ~0", neighbors[0].Distance)
	}

	// All returned neighbors should come from the same cluster
	// (positions 0..49): the clusters are diametrically opposed.
	for _, n := range neighbors {
		if n.Position >= 50 {
			t.Errorf("neighbor %d from opposite cluster", n.Position)
		}
	}

	// Distances are sorted ascending.
	for i := 1; i < len(neighbors); i++ {
		if neighbors[i].Distance < neighbors[i-1].Distance {
			t.Errorf("distances not sorted at %d", i)
		}
	}
}

func TestQueryVectorDimensionMismatch(t *testing.T) {
	f, err := Build(clusteredVectors(20, 4, 1), 5, 42)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if _, err := f.QueryVector([]float64{1, 2}, 3); err == nil {
		t.Error("QueryVector with wrong dimension succeeded, want error")
	}
	if _, err := f.QueryItem(999, 3); err == nil {
		t.Error("QueryItem out of range succeeded, want error")
	}
}

func TestBuildDeterministic(t *testing.T) {
	vectors := clusteredVectors(60, 6, 7)

	f1, err := Build(vectors, 10, 42)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	f2, err := Build(vectors, 10, 42)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	n1, err := f1.QueryItem(5, 10)
	if err != nil {
		t.Fatalf("QueryItem failed: %v", err)
	}
	n2, err := f2.QueryItem(5, 10)
	if err != nil {
		t.Fatalf("QueryItem failed: %v", err)
	}

	if len(n1) != len(n2) {
		t.Fatalf("result lengths differ: %d vs %d", len(n1), len(n2))
	}
	for i := range n1 {
		if n1[i] != n2[i] {
			t.Errorf("results differ at %d: %+v vs %+v", i, n1[i], n2[i])
		}
	}
}

func TestIdenticalVectorsTerminate(t *testing.T) {
	// More copies of one vector than the leaf size: the builder must
	// not recurse forever on an unsplittable point set.
	vectors := make([][]float64, 100)
	for i := range vectors {
		vectors[i] = []float64{1, 2, 3}
	}

	f, err := Build(vectors, 5, 42)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	neighbors, err := f.QueryItem(0, 5)
	if err != nil {
		t.Fatalf("QueryItem failed: %v", err)
	}
	for _, n := range neighbors {
		if n.Distance > 1e-6 {
			t.Errorf("identical vector at distance %v", n.Distance)
		}
	}
}

func TestDistanceToSimilarity(t *testing.T) {
	tests := []struct {
		distance float64
		want     float64
	}{
		{0, 1},
		{2, 0},
		{1, 0.5},
		{-0.1, 1},  // clamped
		{2.5, 0},   // clamped
		{0.4, 0.8},
	}
	for _, tt := range tests {
		if got := DistanceToSimilarity(tt.distance); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("DistanceToSimilarity(%v) = %v, want %v", tt.distance, got, tt.want)
		}
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	vectors := clusteredVectors(50, 5, 3)
	f, err := Build(vectors, 10, 42)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	blob, err := Encode(f)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	restored, err := Decode(blob)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if restored.Len() != f.Len() || restored.Dim != f.Dim {
		t.Fatalf("restored forest shape %d/%d, want %d/%d",
			restored.Len(), restored.Dim, f.Len(), f.Dim)
	}

	want, err := f.QueryItem(2, 8)
	if err != nil {
		t.Fatalf("QueryItem failed: %v", err)
	}
	got, err := restored.QueryItem(2, 8)
	if err != nil {
		t.Fatalf("restored QueryItem failed: %v", err)
	}
	for i := range want {
		if want[i] != got[i] {
			t.Errorf("restored result differs at %d: %+v vs %+v", i, want[i], got[i])
		}
	}
}

func TestDecodeRejectsCorruption(t *testing.T) {
	f, err := Build(clusteredVectors(20, 4, 1), 5, 42)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	blob, err := Encode(f)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	if _, err := Decode([]byte("not a snapshot")); err == nil {
		t.Error("Decode(garbage) succeeded, want error")
	}

	// Flip a byte inside the payload region.
	corrupted := make([]byte, len(blob))
	copy(corrupted, blob)
	corrupted[len(corrupted)/2] ^= 0xFF
	if _, err := Decode(corrupted); err == nil {
		t.Error("Decode(corrupted) succeeded, want error")
	}
}
