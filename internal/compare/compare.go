// Copyright 2016 Michael Stapelberg and contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package compare compares two spectra of possibly different length over
// their common prefix.
package compare

import (
	"math"

	"github.com/skinspec/skinspec"
)

func prefixLen(a, b skinspec.Spectrum) int {
	if len(a) < len(b) {
		return len(a)
	}
	return len(b)
}

// Difference returns a[i] - b[i] for every index both spectra share.
func Difference(a, b skinspec.Spectrum) skinspec.Spectrum {
	n := prefixLen(a, b)
	diff := make(skinspec.Spectrum, n)
	for i := 0; i < n; i++ {
		diff[i] = a[i] - b[i]
	}
	return diff
}

// Correlation returns the Pearson correlation coefficient of the common
// prefix of a and b. Degenerate inputs (empty, or either spectrum constant)
// yield 0.
func Correlation(a, b skinspec.Spectrum) float64 {
	n := prefixLen(a, b)
	if n == 0 || constant(a[:n]) || constant(b[:n]) {
		return 0
	}
	var sumX, sumY, sumXY, sumX2, sumY2 float64
	for i := 0; i < n; i++ {
		x, y := a[i], b[i]
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
		sumY2 += y * y
	}
	fn := float64(n)
	numerator := fn*sumXY - sumX*sumY
	denominator := math.Sqrt((fn*sumX2 - sumX*sumX) * (fn*sumY2 - sumY*sumY))
	// Rounding can push a variance term slightly below zero, turning the
	// square root into NaN; treat that like a zero denominator.
	if !(denominator > 0) {
		return 0
	}
	return numerator / denominator
}

// constant reports whether all values of s equal its first. Constant
// non-integer spectra can leave a tiny nonzero variance after cancellation.
func constant(s skinspec.Spectrum) bool {
	for _, v := range s[1:] {
		if v != s[0] {
			return false
		}
	}
	return true
}

// Compare returns both the difference and the correlation of a and b.
func Compare(a, b skinspec.Spectrum) (skinspec.Spectrum, float64) {
	return Difference(a, b), Correlation(a, b)
}
