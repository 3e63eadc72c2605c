package service

import (
	"math"
	"sort"

	"github.com/talentboard/supportbot/internal/domain"
)

// CosineSimilarity returns dot(a,b) / (|a|*|b|). Vectors of different length,
// empty vectors and zero-norm vectors have no defined similarity and yield NaN.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return math.NaN()
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return math.NaN()
	}
	score := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// rounding can push identical vectors a hair past 1
	if score > 1 {
		score = 1
	} else if score < -1 {
		score = -1
	}
	return score
}

// rankByCosine scores every chunk against query, drops undefined scores and
// returns the topK best in descending order. Ties keep input order.
func rankByCosine(query []float32, chunks []*domain.KnowledgeChunk, topK int) []domain.ScoredChunk {
	scored := make([]domain.ScoredChunk, 0, len(chunks))
	for _, c := range chunks {
		if c == nil {
			continue
		}
		score := CosineSimilarity(query, c.Embedding)
		if math.IsNaN(score) || math.IsInf(score, 0) {
			continue
		}
		scored = append(scored, domain.ScoredChunk{KnowledgeChunk: *c, Score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}

// finiteScores drops results whose score is NaN or infinite, keeping order.
func finiteScores(results []domain.ScoredChunk) []domain.ScoredChunk {
	out := make([]domain.ScoredChunk, 0, len(results))
	for _, r := range results {
		if math.IsNaN(r.Score) || math.IsInf(r.Score, 0) {
			continue
		}
		out = append(out, r)
	}
	return out
}
