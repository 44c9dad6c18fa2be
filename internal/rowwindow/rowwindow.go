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

// Package rowwindow sums a raster over a fixed neighborhood of rows into a
// spectrum with one value per column.
package rowwindow

import (
	"github.com/skinspec/skinspec"
	"github.com/skinspec/skinspec/internal/raster"
)

const (
	// Size is the number of rows in a window: Above rows above the
	// requested row, the requested row itself and Size-Above-1 below.
	Size  = 300
	Above = 150
)

// Bounds returns the first and last row (both inclusive) of the window
// around row in a raster of the specified height. Rows outside of the
// raster select the window at the nearest edge.
//
// Rasters with fewer than Size rows are always summed entirely, unless the
// requested row is so far down that the window starts within the raster.
func Bounds(height, row int) (first, last int) {
	switch {
	case row < 0:
		return 0, min(Size-Above-1, height-1)
	case row >= height:
		return max(0, height-Above), height - 1
	default:
		return max(0, row-Above), min(height-1, row+Size-Above-1)
	}
}

// Aggregate returns, for each column of r, the sum of all samples in the
// window around row. The sums are not normalized.
func Aggregate(r *raster.Raster, row int) skinspec.Spectrum {
	first, last := Bounds(r.Height, row)
	sums := make([]int64, r.Width)
	for y := first; y <= last; y++ {
		for x, s := range r.Row(y) {
			sums[x] += int64(s)
		}
	}
	// 300 rows of 16-bit samples stay far below 2^53, so the conversion is
	// exact.
	spectrum := make(skinspec.Spectrum, len(sums))
	for x, sum := range sums {
		spectrum[x] = float64(sum)
	}
	return spectrum
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
