// Visionary - Video Similarity and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/visionary

package pipeline

import (
	"time"

	"github.com/tomtom215/visionary/internal/models"
)

// numEngagementFeatures is the width of the scalar feature block; tag
// one-hot columns follow it.
const numEngagementFeatures = 7

// Feature column positions. Columns 0, 1 and 6 feed the persisted
// engagement score, popularity score and recency boost respectively.
const (
	featEngagement = iota
	featPopularity
	featLikes
	featViews
	featComments
	featCoWatchDegree
	featTimeFactor
)

// timeFactorDays is the fixed horizon of the popularity decay. Part
// of the scoring formula, unlike the configurable watch window.
const timeFactorDays = 30

// TimeFactor applies the 30-day linear decay to a vision's age.
func TimeFactor(createdAt, now time.Time) float64 {
	return RecencyWeight(createdAt, now, timeFactorDays)
}

// EngagementRatio is (likes + comments) / max(views, 1).
func EngagementRatio(v *models.Vision) float64 {
	views := v.Views
	if views < 1 {
		views = 1
	}
	return float64(v.Likes+v.CommentCount) / float64(views)
}

// PopularityScore is (views + 2*likes + 3*comments) * timeFactor.
func PopularityScore(v *models.Vision, timeFactor float64) float64 {
	return float64(v.Views+v.Likes*2+v.CommentCount*3) * timeFactor
}

// BuildFeatureMatrix produces the content feature matrix: 7 engagement
// scalars per vision followed by one-hot tag membership over allTags.
// Row i aligns with visions[i]; the co-watch matrix must use the same
// positions.
func BuildFeatureMatrix(visions []models.Vision, allTags []string, tagIdx map[string]int, cowatch [][]float64, now time.Time) [][]float64 {
	n := len(visions)
	width := numEngagementFeatures + len(allTags)

	matrix := make([][]float64, n)
	for i := range visions {
		v := &visions[i]
		row := make([]float64, width)

		tf := TimeFactor(v.CreatedAt, now)
		engagement := EngagementRatio(v)

		row[featEngagement] = engagement * (1 + tf)
		row[featPopularity] = PopularityScore(v, tf)
		row[featLikes] = float64(v.Likes)
		row[featViews] = float64(v.Views)
		row[featComments] = float64(v.CommentCount)
		row[featCoWatchDegree] = rowSum(cowatch[i]) / float64(n)
		row[featTimeFactor] = tf

		for _, tag := range v.Tags {
			if idx, ok := tagIdx[tag]; ok {
				row[numEngagementFeatures+idx] = 1.0
			}
		}

		matrix[i] = row
	}

	return matrix
}

func rowSum(row []float64) float64 {
	var s float64
	for _, x := range row {
		s += x
	}
	return s
}
