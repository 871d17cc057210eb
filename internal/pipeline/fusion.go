// Visionary - Video Similarity and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visionary

package pipeline

// Block weights inside the content embedding. These are part of the
// feature formula itself; the outer content/latent split is
// configurable and passed to FuseEmbeddings.
const (
	engagementBlockWeight = 0.7
	tagBlockWeight        = 0.3
)

// minMaxNormalize rescales each column of the block to [0, 1].
// Constant columns map to zero.
func minMaxNormalize(block [][]float64) [][]float64 {
	if len(block) == 0 || len(block[0]) == 0 {
		return block
	}
	rows, cols := len(block), len(block[0])

	mins := make([]float64, cols)
	maxs := make([]float64, cols)
	copy(mins, block[0])
	copy(maxs, block[0])
	for i := 1; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if block[i][j] < mins[j] {
				mins[j] = block[i][j]
			}
			if block[i][j] > maxs[j] {
				maxs[j] = block[i][j]
			}
		}
	}

	out := make([][]float64, rows)
	for i := 0; i < rows; i++ {
		out[i] = make([]float64, cols)
		for j := 0; j < cols; j++ {
			if span := maxs[j] - mins[j]; span > 0 {
				out[i][j] = (block[i][j] - mins[j]) / span
			}
		}
	}
	return out
}

// normalizeContent min-max normalizes the engagement block and the
// tag block independently, then recombines them 0.7/0.3. Independent
// scaling keeps sparse one-hot tags from being washed out by dense
// engagement magnitudes.
func normalizeContent(features [][]float64) [][]float64 {
	rows := len(features)
	if rows == 0 {
		return features
	}
	width := len(features[0])
	tagCols := width - numEngagementFeatures

	engagement := make([][]float64, rows)
	tags := make([][]float64, rows)
	for i, row := range features {
		engagement[i] = row[:numEngagementFeatures]
		if tagCols > 0 {
			tags[i] = row[numEngagementFeatures:]
		}
	}

	normEng := minMaxNormalize(engagement)
	if tagCols == 0 {
		return normEng
	}
	normTags := minMaxNormalize(tags)

	out := make([][]float64, rows)
	for i := 0; i < rows; i++ {
		row := make([]float64, width)
		for j := 0; j < numEngagementFeatures; j++ {
			row[j] = normEng[i][j] * engagementBlockWeight
		}
		for j := 0; j < tagCols; j++ {
			row[numEngagementFeatures+j] = normTags[i][j] * tagBlockWeight
		}
		out[i] = row
	}
	return out
}

// FuseEmbeddings builds the combined embedding: normalized content
// features scaled by contentWeight concatenated with latent factors
// scaled by behaviorWeight (0.7/0.3 by default). Both the similarity
// scorer and the ANN index operate over this space. Columns 0..6
// remain the (scaled) engagement features, which the scorer reads
// directly for its boosts.
func FuseEmbeddings(features, factors [][]float64, contentWeight, behaviorWeight float64) [][]float64 {
	content := normalizeContent(features)
	rows := len(content)
	if rows == 0 {
		return nil
	}

	contentCols := len(content[0])
	latentCols := 0
	if len(factors) > 0 {
		latentCols = len(factors[0])
	}

	combined := make([][]float64, rows)
	for i := 0; i < rows; i++ {
		row := make([]float64, contentCols+latentCols)
		for j := 0; j < contentCols; j++ {
			row[j] = content[i][j] * contentWeight
		}
		if latentCols > 0 {
			for j := 0; j < latentCols; j++ {
				row[contentCols+j] = factors[i][j] * behaviorWeight
			}
		}
		combined[i] = row
	}
	return combined
}
