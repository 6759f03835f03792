// Package score ranks search candidates against a supply item.
//
// Each candidate gets four sub-scores in [0, 1] and a weighted final score.
// Missing inputs never fail scoring; they fall back to a neutral value.
package score

import (
	"sort"
	"strings"

	"github.com/kailas-cloud/prodmatch/internal/domain/product"
	"github.com/kailas-cloud/prodmatch/internal/domain/supply"
)

// Neutral is used when a sub-score cannot be computed.
const Neutral = 0.5

// geohashPrecision is the prefix length that counts as an exact location match.
const geohashPrecision = 8

// Weights of the final score. They sum to 1.
const (
	WeightVector   = 0.4
	WeightPrice    = 0.3
	WeightLocation = 0.2
	WeightLeadTime = 0.1
)

// Breakdown holds the four sub-scores.
type Breakdown struct {
	Vector   float64 `json:"vector"`
	Price    float64 `json:"price"`
	Location float64 `json:"location"`
	LeadTime float64 `json:"leadTime"`
}

// Final combines the sub-scores with the fixed weights.
func (b Breakdown) Final() float64 {
	return clamp01(WeightVector*b.Vector +
		WeightPrice*b.Price +
		WeightLocation*b.Location +
		WeightLeadTime*b.LeadTime)
}

// Match is a candidate with its scores.
type Match struct {
	Candidate  product.Candidate
	Scores     Breakdown
	FinalScore float64
}

// RawScore returns the backend similarity, 0 when absent.
func (m Match) RawScore() float64 {
	if m.Candidate.Score == nil {
		return 0
	}
	return *m.Candidate.Score
}

// ScoreMatches scores every candidate and returns them ordered by FinalScore, best first.
// Equal scores keep the incoming order. The input slice is not modified.
func ScoreMatches(candidates []product.Candidate, item supply.Item, user supply.UserContext) []Match {
	out := make([]Match, len(candidates))
	userGeohash := user.Geohash()
	for i, c := range candidates {
		b := Breakdown{
			Vector:   VectorScore(c.Score),
			Price:    PriceScore(c.Metadata.Price, item.TargetPrice),
			Location: LocationScore(c.Metadata.Geohash, userGeohash),
			LeadTime: LeadTimeScore(c.Metadata.LeadTime, item.MaxLeadTime),
		}
		out[i] = Match{Candidate: c, Scores: b, FinalScore: b.Final()}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FinalScore > out[j].FinalScore
	})
	return out
}

// VectorScore passes similarity through, clamped to [0, 1].
func VectorScore(similarity *float64) float64 {
	if similarity == nil {
		return Neutral
	}
	return clamp01(*similarity)
}

// PriceScore is 1 at or under target, falls linearly to 0 at twice the target.
// A non-positive target is treated as missing.
func PriceScore(actual, target *float64) float64 {
	if actual == nil || target == nil || *target <= 0 {
		return Neutral
	}
	ratio := *actual / *target
	switch {
	case ratio <= 1:
		return 1
	case ratio > 2:
		return 0
	default:
		return 2 - ratio
	}
}

// LocationScore is the shared geohash prefix length over 8, capped at 1.
// Comparison ignores case.
func LocationScore(candidate, user string) float64 {
	if candidate == "" || user == "" {
		return Neutral
	}
	a, b := strings.ToLower(candidate), strings.ToLower(user)
	n := min(len(a), len(b))
	common := 0
	for common < n && a[common] == b[common] {
		common++
	}
	return min(1, float64(common)/geohashPrecision)
}

// LeadTimeScore is 1 within the limit, falls linearly to 0 at twice the limit.
// No limit means any lead time is acceptable.
func LeadTimeScore(actual *float64, maxDays *int) float64 {
	if actual == nil {
		return Neutral
	}
	if maxDays == nil {
		return 1
	}
	limit := float64(*maxDays)
	switch {
	case *actual <= limit:
		return 1
	case *actual > 2*limit:
		return 0
	default:
		return 2 - *actual/limit
	}
}

func clamp01(v float64) float64 {
	return max(0, min(1, v))
}
