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

package raster

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"

	"golang.org/x/image/bmp"
)

// luminance converts an 8-bit RGB pixel to an 8-bit intensity using the
// ITU-R BT.601 weights.
func luminance(r, g, b uint8) uint16 {
	return uint16(math.Round(0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)))
}

func decodeBitmap(b []byte) (*Raster, error) {
	cfg, err := bmp.DecodeConfig(bytes.NewReader(b))
	if err != nil {
		kind := MalformedHeader
		if err == bmp.ErrUnsupported {
			kind = UnsupportedFormat
		}
		return nil, &DecodeError{Kind: kind, Format: FormatBitmap, Err: err}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, &DecodeError{
			Kind:   MalformedHeader,
			Format: FormatBitmap,
			Err:    fmt.Errorf("invalid dimensions %dx%d", cfg.Width, cfg.Height),
		}
	}
	if err := checkBitmapSize(b, cfg); err != nil {
		return nil, err
	}

	// bmp.Decode flips bottom-up bitmaps, so rows arrive top-down.
	img, err := bmp.Decode(bytes.NewReader(b))
	if err != nil {
		kind := MalformedHeader
		if truncated(err) {
			kind = SizeMismatch
		}
		return nil, &DecodeError{Kind: kind, Format: FormatBitmap, Err: err}
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	samples := make([]uint16, 0, width*height)
	// Pixels are read from Pix directly: 32-bit bitmaps commonly carry an
	// unused (zero) fourth byte, which must not be treated as alpha.
	switch m := img.(type) {
	case *image.Paletted:
		samples, err = appendPaletted(samples, m, width, height)
		if err != nil {
			return nil, err
		}

	case *image.NRGBA:
		samples = appendRGBA(samples, m.Pix, m.Stride, width, height)

	case *image.RGBA:
		samples = appendRGBA(samples, m.Pix, m.Stride, width, height)

	default:
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				r, g, b, _ := img.At(x, y).RGBA()
				samples = append(samples, luminance(uint8(r>>8), uint8(g>>8), uint8(b>>8)))
			}
		}
	}
	return newRaster(FormatBitmap, width, height, 8, samples)
}

// checkBitmapSize returns a SizeMismatch error unless b holds all rows cfg
// declares. bmp.Decode allocates the whole image before reading any pixel.
func checkBitmapSize(b []byte, cfg image.Config) error {
	// bmp.DecodeConfig has read the 14 byte file header and an info header
	// of at least 40 bytes.
	offset := uint64(binary.LittleEndian.Uint32(b[10:14]))
	bpp := uint64(binary.LittleEndian.Uint16(b[28:30]))
	size := uint64(len(b))
	// Rows are padded to a multiple of 4 bytes.
	rowBytes := (uint64(cfg.Width)*bpp + 31) / 32 * 4
	if offset > size || uint64(cfg.Height) > (size-offset)/rowBytes {
		return &DecodeError{
			Kind:   SizeMismatch,
			Format: FormatBitmap,
			Err: fmt.Errorf("%d rows of %d bytes at offset %d exceed the %d byte file",
				cfg.Height, rowBytes, offset, size),
		}
	}
	return nil
}

// appendPaletted appends the luminance of every pixel of m.
func appendPaletted(samples []uint16, m *image.Paletted, width, height int) ([]uint16, error) {
	lut := make([]uint16, len(m.Palette))
	for i, c := range m.Palette {
		n := color.NRGBAModel.Convert(c).(color.NRGBA)
		lut[i] = luminance(n.R, n.G, n.B)
	}
	for y := 0; y < height; y++ {
		for _, idx := range m.Pix[y*m.Stride : y*m.Stride+width] {
			if int(idx) >= len(lut) {
				return nil, &DecodeError{
					Kind:   MalformedHeader,
					Format: FormatBitmap,
					Err:    fmt.Errorf("palette index %d out of range [0, %d)", idx, len(lut)),
				}
			}
			samples = append(samples, lut[idx])
		}
	}
	return samples, nil
}

// appendRGBA appends the luminance of each pixel in an RGBA-ordered pixel
// buffer, ignoring the fourth channel.
func appendRGBA(samples []uint16, pix []byte, stride, width, height int) []uint16 {
	for y := 0; y < height; y++ {
		row := pix[y*stride : y*stride+4*width]
		for i := 0; i < len(row); i += 4 {
			samples = append(samples, luminance(row[i+0], row[i+1], row[i+2]))
		}
	}
	return samples
}

func encodeBitmap(w io.Writer, r *Raster) error {
	if r.BitDepth != 8 {
		return fmt.Errorf("bitmap encoding requires 8-bit samples, raster has %d-bit", r.BitDepth)
	}
	img := image.NewGray(image.Rect(0, 0, r.Width, r.Height))
	for i, s := range r.Samples {
		img.Pix[i] = uint8(s)
	}
	return bmp.Encode(w, img)
}
