// Visionary - Video Similarity and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visionary

package pipeline

import "sort"

// userWatch is one retained watch flattened for sorting.
type userWatch struct {
	visionID int64
	record   WatchRecord
}

// BuildCoWatchMatrix accumulates pairwise co-watch scores into a dense
// symmetric n×n matrix. For every pair of visions a user watched, both
// cells receive (w_i + w_j) / 2. The diagonal stays zero.
//
// maxPerUser caps how many of a user's most recent watches enter the
// pairing loop, bounding the O(k²) inner cost; 0 means uncapped.
func BuildCoWatchMatrix(signals WatchSignals, posByID map[int64]int, n, maxPerUser int) [][]float64 {
	matrix := make([][]float64, n)
	for i := range matrix {
		matrix[i] = make([]float64, n)
	}

	for _, userWatches := range signals {
		watches := make([]userWatch, 0, len(userWatches))
		for visionID, rec := range userWatches {
			watches = append(watches, userWatch{visionID: visionID, record: rec})
		}

		// Newest-first; vision ID breaks timestamp ties so the matrix
		// is deterministic for identical inputs.
		sort.Slice(watches, func(i, j int) bool {
			if !watches[i].record.WatchedAt.Equal(watches[j].record.WatchedAt) {
				return watches[i].record.WatchedAt.After(watches[j].record.WatchedAt)
			}
			return watches[i].visionID < watches[j].visionID
		})

		if maxPerUser > 0 && len(watches) > maxPerUser {
			watches = watches[:maxPerUser]
		}

		for i := 0; i < len(watches); i++ {
			for j := i + 1; j < len(watches); j++ {
				idx1 := posByID[watches[i].visionID]
				idx2 := posByID[watches[j].visionID]
				score := (watches[i].record.Weight + watches[j].record.Weight) / 2
				matrix[idx1][idx2] += score
				matrix[idx2][idx1] += score
			}
		}
	}

	return matrix
}
