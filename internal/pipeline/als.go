// Visionary - Video Similarity and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visionary

package pipeline

import (
	"context"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"sync"

	"github.com/tomtom215/visionary/internal/config"
	"github.com/tomtom215/visionary/internal/logging"
	"github.com/tomtom215/visionary/internal/metrics"
	"github.com/tomtom215/visionary/internal/models"
)

// Synthetic engagement boost parameters. Visions whose engagement
// ratio exceeds the threshold receive synthetic high-weight
// interactions so sparsely-watched but highly-engaged content still
// earns a factor signal. A heuristic, not ground truth: it can distort
// factors for small user bases.
const (
	engagementBoostThreshold = 0.2
	maxBoostFactor           = 5.0
	maxSyntheticInteractions = 100
)

// alsWeightFloor is the minimum interaction weight in the implicit
// matrix; even month-old watches keep a faint signal here.
const alsWeightFloor = 0.1

// fallbackSeed makes the random factor fallback reproducible.
const fallbackSeed = 42

// ComputeItemFactors factorizes the implicit user-vision interaction
// matrix with ALS and returns the item factor matrix: one row per
// vision position, cfg.Factors columns.
//
// The step never fails the pipeline: degenerate input (no
// interactions) or an aborted solve yields a uniform random matrix of
// the same shape, logged at warn. Implements the confidence-weighted
// implicit objective of Hu, Koren, Volinsky (2008): c_ui = 1 + alpha*r.
func ComputeItemFactors(ctx context.Context, signals WatchSignals, visions []models.Vision, posByID map[int64]int, cfg config.PipelineConfig) [][]float64 {
	n := len(visions)

	userItems := buildInteractionMatrix(signals, visions, posByID, cfg.Alpha)
	if len(userItems) == 0 {
		logging.Warn().Msg("No interactions for factorization, using random factors")
		metrics.PipelineFactorizationFallbacks.Inc()
		return randomFactors(n, cfg.Factors)
	}

	factors, err := trainALS(ctx, userItems, len(userItems), n, cfg)
	if err != nil {
		logging.Warn().Err(err).Msg("Factorization failed, using random factors")
		metrics.PipelineFactorizationFallbacks.Inc()
		return randomFactors(n, cfg.Factors)
	}

	logging.Info().
		Int("users", len(userItems)).
		Int("visions", n).
		Int("factors", cfg.Factors).
		Msg("ALS factorization complete")
	return factors
}

// buildInteractionMatrix assembles the sparse confidence matrix:
// recency-weighted watches (floor 0.1) plus synthetic engagement
// boosts, as confidences c = 1 + alpha*r keyed by dense user index.
func buildInteractionMatrix(signals WatchSignals, visions []models.Vision, posByID map[int64]int, alpha float64) []map[int]float64 {
	if len(signals) == 0 {
		return nil
	}

	// Dense user indices in sorted ID order for determinism.
	userIDs := make([]int64, 0, len(signals))
	for userID := range signals {
		userIDs = append(userIDs, userID)
	}
	sort.Slice(userIDs, func(i, j int) bool { return userIDs[i] < userIDs[j] })

	userItems := make([]map[int]float64, len(userIDs))
	for ui, userID := range userIDs {
		watches := signals[userID]
		row := make(map[int]float64, len(watches))
		for visionID, rec := range watches {
			pos, ok := posByID[visionID]
			if !ok {
				continue
			}
			weight := rec.Weight
			if weight < alsWeightFloor {
				weight = alsWeightFloor
			}
			conf := 1.0 + alpha*weight
			if conf > row[pos] {
				row[pos] = conf
			}
		}
		userItems[ui] = row
	}

	// Synthetic interactions for highly-engaged visions, spread
	// round-robin over user rows.
	numUsers := len(userIDs)
	for i := range visions {
		v := &visions[i]
		engagement := EngagementRatio(v)
		if engagement <= engagementBoostThreshold {
			continue
		}

		boost := engagement * 10
		if boost > maxBoostFactor {
			boost = maxBoostFactor
		}

		estEngaged := numUsers / 10
		if byViews := int(float64(v.Views) * engagement); byViews < estEngaged {
			estEngaged = byViews
		}
		if estEngaged > maxSyntheticInteractions {
			estEngaged = maxSyntheticInteractions
		}

		pos := posByID[v.ID]
		for s := 0; s < estEngaged; s++ {
			ui := s % numUsers
			c := 1.0 + alpha*boost
			if c > userItems[ui][pos] {
				userItems[ui][pos] = c
			}
		}
	}

	nnz := 0
	for _, row := range userItems {
		nnz += len(row)
	}
	if nnz == 0 {
		return nil
	}

	logging.Debug().
		Int("users", numUsers).
		Int("nonzero", nnz).
		Msg("Built user-vision interaction matrix")
	return userItems
}

// trainALS runs alternating optimization and returns the item factor
// matrix with numItems rows.
func trainALS(ctx context.Context, userItems []map[int]float64, numUsers, numItems int, cfg config.PipelineConfig) ([][]float64, error) {
	numFactors := cfg.Factors
	lambda := cfg.Regularization
	workers := cfg.NumWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	// Transpose for item-side updates.
	itemUsers := make([]map[int]float64, numItems)
	for ui, row := range userItems {
		for pos, conf := range row {
			if itemUsers[pos] == nil {
				itemUsers[pos] = make(map[int]float64)
			}
			itemUsers[pos][ui] = conf
		}
	}

	// Deterministic small-value initialization.
	X := make([][]float64, numUsers)
	for u := range X {
		X[u] = make([]float64, numFactors)
		for f := range X[u] {
			X[u][f] = 0.1 * (float64((u*numFactors+f)%1000)/1000.0 - 0.5)
		}
	}
	Y := make([][]float64, numItems)
	for i := range Y {
		Y[i] = make([]float64, numFactors)
		for f := range Y[i] {
			Y[i][f] = 0.1 * (float64((i*numFactors+f)%1000)/1000.0 - 0.5)
		}
	}

	for iter := 0; iter < cfg.Iterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		updateFactors(X, Y, userItems, numFactors, lambda, workers)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		updateFactors(Y, X, itemUsers, numFactors, lambda, workers)
	}

	return Y, nil
}

// updateFactors solves for every row of target, holding fixed
// constant. interactions[t] maps fixed-row index to confidence.
func updateFactors(target, fixed [][]float64, interactions []map[int]float64, numFactors int, lambda float64, workers int) {
	// Precompute F'F once per half-iteration.
	FtF := make([][]float64, numFactors)
	for f := range FtF {
		FtF[f] = make([]float64, numFactors)
	}
	for _, row := range fixed {
		for f1 := 0; f1 < numFactors; f1++ {
			for f2 := f1; f2 < numFactors; f2++ {
				FtF[f1][f2] += row[f1] * row[f2]
				if f1 != f2 {
					FtF[f2][f1] = FtF[f1][f2]
				}
			}
		}
	}

	var wg sync.WaitGroup
	chunkSize := (len(target) + workers - 1) / workers

	for w := 0; w < workers; w++ {
		start := w * chunkSize
		end := start + chunkSize
		if end > len(target) {
			end = len(target)
		}
		if start >= end {
			break
		}

		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			for t := lo; t < hi; t++ {
				target[t] = solveRow(interactions[t], fixed, FtF, numFactors, lambda)
			}
		}(start, end)
	}

	wg.Wait()
}

// solveRow computes one factor vector:
//
//	A = F' C F + lambda I,  b = F' C p,  row = A^{-1} b
//
// exploiting C = I + (C - I) so only observed entries touch A.
func solveRow(obs map[int]float64, fixed, FtF [][]float64, numFactors int, lambda float64) []float64 {
	A := make([][]float64, numFactors)
	for f := range A {
		A[f] = make([]float64, numFactors)
		copy(A[f], FtF[f])
		A[f][f] += lambda
	}

	b := make([]float64, numFactors)
	for idx, conf := range obs {
		row := fixed[idx]
		cMinus1 := conf - 1.0
		for f1 := 0; f1 < numFactors; f1++ {
			for f2 := f1; f2 < numFactors; f2++ {
				delta := cMinus1 * row[f1] * row[f2]
				A[f1][f2] += delta
				if f1 != f2 {
					A[f2][f1] += delta
				}
			}
			b[f1] += conf * row[f1]
		}
	}

	return solveLinearSystem(A, b)
}

// solveLinearSystem solves A*x = b via Cholesky decomposition.
//
//nolint:gocritic // A, L follow standard linear algebra notation
func solveLinearSystem(A [][]float64, b []float64) []float64 {
	n := len(b)

	L := make([][]float64, n)
	for i := range L {
		L[i] = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			sum := A[i][j]
			for k := 0; k < j; k++ {
				sum -= L[i][k] * L[j][k]
			}

			if i == j {
				if sum <= 0 {
					// Regularize if not positive definite.
					sum = 1e-10
				}
				L[i][j] = math.Sqrt(sum)
			} else if L[j][j] != 0 {
				L[i][j] = sum / L[j][j]
			}
		}
	}

	// Forward substitution: L z = b.
	z := make([]float64, n)
	for i := 0; i < n; i++ {
		sum := b[i]
		for j := 0; j < i; j++ {
			sum -= L[i][j] * z[j]
		}
		if L[i][i] != 0 {
			z[i] = sum / L[i][i]
		}
	}

	// Back substitution: L' x = z.
	x := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		sum := z[i]
		for j := i + 1; j < n; j++ {
			sum -= L[j][i] * x[j]
		}
		if L[i][i] != 0 {
			x[i] = sum / L[i][i]
		}
	}

	return x
}

// randomFactors is the never-fail fallback: a uniform random matrix
// with the contracted shape.
func randomFactors(rows, cols int) [][]float64 {
	rng := rand.New(rand.NewSource(fallbackSeed)) //nolint:gosec // reproducible fallback, not crypto
	m := make([][]float64, rows)
	for i := range m {
		m[i] = make([]float64, cols)
		for j := range m[i] {
			m[i][j] = rng.Float64()
		}
	}
	return m
}
