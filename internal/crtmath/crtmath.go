// Package crtmath implements the scoring primitives shared by retrieval,
// the contradiction classifier and the reconstruction gate: cosine
// similarity, drift, recency decay, the retrieval score formula, and
// volatility.
package crtmath

import (
	"math"
	"time"
)

// Similarity returns the cosine similarity of a and b. Vectors are assumed
// unit-normalized by the embedder contract, but this still divides by the
// observed norm so mismatched callers degrade gracefully instead of
// returning a biased score.
func Similarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		fa, fb := float64(a[i]), float64(b[i])
		dot += fa * fb
		normA += fa * fa
		normB += fb * fb
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// DriftMeaning is 1 - similarity, in [0, 2] (typically [0, 1]).
func DriftMeaning(a, b []float32) float64 {
	return 1 - Similarity(a, b)
}

// RecencyWeight applies an exponential half-life decay to the age of ts
// relative to now. A half-life of zero or negative disables decay (weight
// is always 1), since a non-positive half-life has no physical meaning.
func RecencyWeight(ts, now time.Time, halfLife time.Duration) float64 {
	if halfLife <= 0 {
		return 1
	}
	age := now.Sub(ts)
	if age < 0 {
		age = 0
	}
	lambda := math.Ln2 / halfLife.Seconds()
	return math.Exp(-lambda * age.Seconds())
}

// RetrievalScore combines similarity s, recency weight rho and a
// trust/confidence blend into the ranking score retrieve_memories sorts by.
// alpha weights trust against confidence; it is expected to be in [0,1].
func RetrievalScore(s, rho float64, trust, confidence float32, alpha float64) float64 {
	blend := alpha*float64(trust) + (1-alpha)*float64(confidence)
	return s * rho * blend
}

// ComputeVolatility folds drift, memory alignment and two boolean signals
// (is this turn a contradiction? did it fall back to low-trust speech?)
// into a single [0,1] scalar. Weights are the F.4 open-question decision:
// drift dominates, memory misalignment is secondary, and the two boolean
// flags contribute a fixed bump each when true.
func ComputeVolatility(drift float64, memoryAlignment float64, isContradiction, isFallback bool) float64 {
	const (
		wDrift         = 0.5
		wMemMisalign   = 0.3
		wContradiction = 0.2
		wFallback      = 0.1
	)
	v := wDrift*clamp01(drift) + wMemMisalign*clamp01(1-memoryAlignment)
	if isContradiction {
		v += wContradiction
	}
	if isFallback {
		v += wFallback
	}
	return clamp01(v / (wDrift + wMemMisalign + wContradiction + wFallback))
}

// ShouldReflect reports whether volatility warrants queuing for reflection.
func ShouldReflect(volatility, threshold float64) bool {
	return volatility >= threshold
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
