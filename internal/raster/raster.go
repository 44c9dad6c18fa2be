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

// Package raster decodes stored images into single-channel intensity grids.
//
// Two container formats are supported: color bitmaps (BMP), whose pixels are
// converted to luminance, and single-band scientific rasters (TIFF), whose
// samples are kept at their native 8 or 16 bit depth.
package raster

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Format selects the container format of an encoded raster.
type Format int

const (
	FormatUnknown Format = iota
	FormatBitmap
	FormatScientific
)

func (f Format) String() string {
	switch f {
	case FormatBitmap:
		return "bitmap"
	case FormatScientific:
		return "scientific"
	default:
		return "<unknown>"
	}
}

// FormatFromName returns the format implied by the extension of name, or
// FormatUnknown.
func FormatFromName(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".bmp":
		return FormatBitmap
	case ".tif", ".tiff":
		return FormatScientific
	default:
		return FormatUnknown
	}
}

// A Raster is a decoded, row-major, top-down grid of intensity samples.
type Raster struct {
	Width    int
	Height   int
	BitDepth int // 8 or 16
	Samples  []uint16
}

func newRaster(f Format, width, height, depth int, samples []uint16) (*Raster, error) {
	if width <= 0 || height <= 0 {
		return nil, &DecodeError{
			Kind:   MalformedHeader,
			Format: f,
			Err:    fmt.Errorf("invalid dimensions %dx%d", width, height),
		}
	}
	if got, want := len(samples), width*height; got != want {
		return nil, &DecodeError{
			Kind:   SizeMismatch,
			Format: f,
			Err:    fmt.Errorf("got %d samples, want %dx%d = %d", got, width, height, want),
		}
	}
	return &Raster{
		Width:    width,
		Height:   height,
		BitDepth: depth,
		Samples:  samples,
	}, nil
}

// At returns the sample in column x of row y.
func (r *Raster) At(x, y int) uint16 {
	return r.Samples[y*r.Width+x]
}

// Row returns the samples of row y. The returned slice aliases the raster.
func (r *Raster) Row(y int) []uint16 {
	return r.Samples[y*r.Width : (y+1)*r.Width]
}

// Decode decodes b, which is encoded in format f. All errors are of type
// *DecodeError.
func Decode(b []byte, f Format) (*Raster, error) {
	switch f {
	case FormatBitmap:
		return decodeBitmap(b)
	case FormatScientific:
		return decodeScientific(b)
	default:
		return nil, &DecodeError{
			Kind:   UnsupportedFormat,
			Format: f,
			Err:    fmt.Errorf("unknown format %d", int(f)),
		}
	}
}

// Encode writes r to w in format f, such that Decode yields the same
// samples again. Bitmaps are written as 8-bit grayscale.
func Encode(w io.Writer, r *Raster, f Format) error {
	switch f {
	case FormatBitmap:
		return encodeBitmap(w, r)
	case FormatScientific:
		return encodeScientific(w, r)
	default:
		return fmt.Errorf("cannot encode unknown format %d", int(f))
	}
}
