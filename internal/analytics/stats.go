/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package analytics

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

const day = 24 * time.Hour

// Percentile uses the nearest-rank method over an ascending slice:
// index = ceil(N*p/100) - 1, clamped into range. Empty input yields 0.
func Percentile(sorted []int, p float64) int {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(float64(len(sorted))*p/100)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func percentiles(values []int, ps ...int) map[string]int {
	sorted := append([]int(nil), values...)
	sort.Ints(sorted)
	out := make(map[string]int, len(ps))
	for _, p := range ps {
		out[percentileKey(p)] = Percentile(sorted, float64(p))
	}
	return out
}

func percentileKey(p int) string { return "p" + strconv.Itoa(p) }

func round(value float64, precision int) float64 {
	factor := math.Pow(10, float64(precision))
	return math.Round(value*factor) / factor
}

// roundPct is round(part/whole*100), 0 when whole is 0.
func roundPct(part, whole int) int {
	if whole <= 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(whole) * 100))
}

func days(d time.Duration) int {
	return int(math.Round(float64(d) / float64(day)))
}

// lowerMedian returns sorted[floor(N/2)] of the positive values, or def when none.
func lowerMedian(values []float64, def float64) float64 {
	pos := make([]float64, 0, len(values))
	for _, v := range values {
		if v > 0 {
			pos = append(pos, v)
		}
	}
	if len(pos) == 0 {
		return def
	}
	sort.Float64s(pos)
	return pos[len(pos)/2]
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), sub)
}
