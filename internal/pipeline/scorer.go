// Visionary - Video Similarity and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visionary

package pipeline

import (
	"math"
	"sort"

	"github.com/tomtom215/visionary/internal/models"
)

// Scoring constants. The epsilon breaks exact-zero ties in the cosine
// matrix; the boost weights re-rank neighbors by their own engagement
// and recency.
const (
	cosineEpsilon         = 1e-10
	engagementBoostWeight = 0.5
	recencyBoostWeight    = 0.2
)

// pairKey canonicalizes an undirected vision pair.
type pairKey struct {
	lo, hi int64
}

// ComputeSimilarityEdges computes full pairwise cosine similarity over
// the combined embedding, keeps each vision's topK neighbors, re-ranks
// with engagement and recency boosts, and deduplicates undirected
// pairs keeping the higher-scored direction. It also derives the
// per-vision score updates from embedding columns 0 and 1.
func ComputeSimilarityEdges(combined [][]float64, visions []models.Vision, topK int) ([]models.ScoreUpdate, []models.SimilarityEdge) {
	n := len(visions)
	if n == 0 {
		return nil, nil
	}

	similarity := cosineMatrix(combined)

	updates := make([]models.ScoreUpdate, n)
	for i := range visions {
		updates[i] = models.ScoreUpdate{
			VisionID:        visions[i].ID,
			EngagementScore: math.Max(0, combined[i][featEngagement]),
			PopularityScore: math.Max(0, combined[i][featPopularity]),
		}
	}

	best := make(map[pairKey]models.SimilarityEdge)
	order := make([]int, n)

	for i := 0; i < n; i++ {
		for p := range order {
			order[p] = p
		}
		// Top neighbors by raw cosine, position ascending on ties.
		sort.Slice(order, func(a, b int) bool {
			if similarity[i][order[a]] != similarity[i][order[b]] {
				return similarity[i][order[a]] > similarity[i][order[b]]
			}
			return order[a] < order[b]
		})

		kept := 0
		for _, j := range order {
			if kept >= topK {
				break
			}
			if j == i {
				continue
			}
			kept++

			simScore := similarity[i][j]
			engBoost := combined[j][featEngagement] * engagementBoostWeight
			recBoost := combined[j][featTimeFactor] * recencyBoostWeight
			finalScore := clamp01(simScore + engBoost + recBoost)

			key := pairKey{lo: visions[i].ID, hi: visions[j].ID}
			if key.lo > key.hi {
				key.lo, key.hi = key.hi, key.lo
			}

			if existing, ok := best[key]; !ok || existing.FinalScore < finalScore {
				best[key] = models.SimilarityEdge{
					VisionID:        visions[i].ID,
					SimilarVisionID: visions[j].ID,
					SimilarityScore: simScore,
					EngagementBoost: engBoost + recBoost,
					FinalScore:      finalScore,
				}
			}
		}
	}

	edges := make([]models.SimilarityEdge, 0, len(best))
	for _, e := range best {
		edges = append(edges, e)
	}
	// Deterministic output order for stable persistence and tests.
	sort.Slice(edges, func(a, b int) bool {
		if edges[a].VisionID != edges[b].VisionID {
			return edges[a].VisionID < edges[b].VisionID
		}
		return edges[a].SimilarVisionID < edges[b].SimilarVisionID
	})

	return updates, edges
}

// cosineMatrix computes pairwise cosine similarity with the tie
// epsilon added and the diagonal forced to zero.
func cosineMatrix(vectors [][]float64) [][]float64 {
	n := len(vectors)

	norms := make([]float64, n)
	for i, v := range vectors {
		var s float64
		for _, x := range v {
			s += x * x
		}
		norms[i] = math.Sqrt(s)
	}

	sim := make([][]float64, n)
	for i := 0; i < n; i++ {
		sim[i] = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			var cos float64
			if norms[i] > 0 && norms[j] > 0 {
				var dot float64
				for k := range vectors[i] {
					dot += vectors[i][k] * vectors[j][k]
				}
				cos = dot / (norms[i] * norms[j])
			}
			cos += cosineEpsilon
			sim[i][j] = cos
			sim[j][i] = cos
		}
		sim[i][i] = 0
	}

	return sim
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
