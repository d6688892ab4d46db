// Package rank scores and selects candidate memories for injection.
package rank

import (
	"math"
	"time"
)

const msPerDay = 86_400_000

// Adjust discounts a raw similarity score by record age using exponential
// decay: raw * exp(-ageMs/halfLifeMs). A non-positive halfLifeDays disables
// decay and returns raw unchanged. Future timestamps are treated as age zero.
func Adjust(raw float64, recordAt time.Time, halfLifeDays float64, now time.Time) float64 {
	if halfLifeDays <= 0 {
		return raw
	}
	ageMs := float64(now.Sub(recordAt).Milliseconds())
	if ageMs < 0 {
		ageMs = 0
	}
	halfLifeMs := halfLifeDays * msPerDay
	return raw * math.Exp(-ageMs/halfLifeMs)
}

// ScoreFromDistance converts a retrieval distance into a similarity score in
// (0, 1] as 1/(1+distance).
func ScoreFromDistance(distance float64) float64 {
	return 1 / (1 + distance)
}
