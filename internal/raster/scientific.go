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

	"golang.org/x/image/tiff"
)

// errNoPixels is what x/image/tiff returns when strips are shorter than the
// declared image size.
const errNoPixels = tiff.FormatError("not enough pixel data")

func tiffErrorKind(err error) ErrorKind {
	if _, ok := err.(tiff.UnsupportedError); ok {
		return UnsupportedFormat
	}
	if err == errNoPixels || truncated(err) {
		return SizeMismatch
	}
	return MalformedHeader
}

// TIFF tags and field types read by tiffLayout.
const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagStripOffsets    = 273
	tagStripByteCounts = 279
	tagTileWidth       = 322
	tagTileOffsets     = 324
	tagTileByteCounts  = 325

	compressionNone     = 1
	compressionDeflate  = 8
	compressionPackBits = 32773
	compressionDeflate2 = 32946
)

// fieldSizes holds the byte size of each TIFF field type, indexed by type.
var fieldSizes = [...]uint64{0, 1, 1, 2, 4, 8, 1, 1, 2, 4, 8, 4, 8}

// tiffLayout is the part of the first IFD needed to bound the work of
// tiff.Decode before it allocates anything.
type tiffLayout struct {
	width, height uint64
	bitsPerSample []uint64
	compression   uint64
	blockOffsets  []uint64
	blockCounts   []uint64
}

// readTIFFLayout walks the first IFD of b. Every entry whose values are
// stored out of line must lie within b: x/image/tiff allocates the declared
// size of such values before reading them.
func readTIFFLayout(b []byte) (*tiffLayout, error) {
	malformed := func(format string, args ...interface{}) error {
		return &DecodeError{
			Kind:   MalformedHeader,
			Format: FormatScientific,
			Err:    fmt.Errorf(format, args...),
		}
	}
	if len(b) < 8 {
		return nil, malformed("file too short for a TIFF header (%d bytes)", len(b))
	}
	var order binary.ByteOrder
	switch string(b[:4]) {
	case "II\x2a\x00":
		order = binary.LittleEndian
	case "MM\x00\x2a":
		order = binary.BigEndian
	default:
		return nil, malformed("not a TIFF header: %q", b[:4])
	}
	size := uint64(len(b))
	ifd := uint64(order.Uint32(b[4:8]))
	if ifd+2 > size {
		return nil, malformed("IFD offset %d beyond end of file", ifd)
	}
	entries := uint64(order.Uint16(b[ifd : ifd+2]))
	if ifd+2+12*entries > size {
		return nil, malformed("IFD with %d entries exceeds file", entries)
	}

	values := make(map[uint16][]uint64)
	for i := uint64(0); i < entries; i++ {
		e := b[ifd+2+12*i : ifd+2+12*(i+1)]
		tag := order.Uint16(e[0:2])
		typ := order.Uint16(e[2:4])
		count := uint64(order.Uint32(e[4:8]))
		if int(typ) >= len(fieldSizes) || fieldSizes[typ] == 0 {
			continue // rejected by x/image/tiff without allocating
		}
		data := e[8:12]
		if n := fieldSizes[typ] * count; n > 4 {
			off := uint64(order.Uint32(e[8:12]))
			if off > size || n > size-off {
				return nil, malformed("tag %d: %d bytes of values at offset %d beyond end of file", tag, n, off)
			}
			data = b[off : off+n]
		}
		var vals []uint64
		switch typ {
		case 1: // BYTE
			for j := uint64(0); j < count; j++ {
				vals = append(vals, uint64(data[j]))
			}
		case 3: // SHORT
			for j := uint64(0); j < count; j++ {
				vals = append(vals, uint64(order.Uint16(data[2*j:])))
			}
		case 4: // LONG
			for j := uint64(0); j < count; j++ {
				vals = append(vals, uint64(order.Uint32(data[4*j:])))
			}
		}
		values[tag] = vals
	}

	first := func(tag uint16, def uint64) uint64 {
		if v := values[tag]; len(v) > 0 {
			return v[0]
		}
		return def
	}
	l := &tiffLayout{
		width:         first(tagImageWidth, 0),
		height:        first(tagImageLength, 0),
		bitsPerSample: values[tagBitsPerSample],
		compression:   first(tagCompression, compressionNone),
		blockOffsets:  values[tagStripOffsets],
		blockCounts:   values[tagStripByteCounts],
	}
	if len(l.bitsPerSample) == 0 {
		l.bitsPerSample = []uint64{1} // TIFF default
	}
	if first(tagTileWidth, 0) != 0 {
		l.blockOffsets = values[tagTileOffsets]
		l.blockCounts = values[tagTileByteCounts]
	}
	return l, nil
}

// maxExpansion bounds how many bytes of samples a single byte of block data
// can decompress into.
func maxExpansion(compression uint64) uint64 {
	switch compression {
	case 0, compressionNone:
		return 1
	case compressionPackBits:
		return 64 // 2 bytes expand to at most 128
	case compressionDeflate, compressionDeflate2:
		return 1032
	default:
		return 4096 // LZW: 9-bit codes expand to at most 4096 bytes
	}
}

// checkAvailable returns a SizeMismatch error unless b can hold the pixel
// data l declares.
func (l *tiffLayout) checkAvailable(b []byte, bytesPerSample uint64) error {
	mismatch := func(format string, args ...interface{}) error {
		return &DecodeError{
			Kind:   SizeMismatch,
			Format: FormatScientific,
			Err:    fmt.Errorf(format, args...),
		}
	}
	size := uint64(len(b))
	for i, off := range l.blockOffsets {
		if i >= len(l.blockCounts) {
			break
		}
		if n := l.blockCounts[i]; off > size || n > size-off {
			return mismatch("block %d: %d bytes at offset %d beyond end of file (%d bytes)", i, n, off, size)
		}
	}
	avail := size * maxExpansion(l.compression)
	rowBytes := l.width * bytesPerSample
	if rowBytes > avail || l.height > avail/rowBytes {
		return mismatch("%dx%d samples of %d bytes exceed the %d bytes of data", l.width, l.height, bytesPerSample, size)
	}
	return nil
}

func decodeScientific(b []byte) (*Raster, error) {
	layout, err := readTIFFLayout(b)
	if err != nil {
		return nil, err
	}
	cfg, err := tiff.DecodeConfig(bytes.NewReader(b))
	if err != nil {
		kind := MalformedHeader
		if _, ok := err.(tiff.UnsupportedError); ok {
			kind = UnsupportedFormat
		}
		return nil, &DecodeError{Kind: kind, Format: FormatScientific, Err: err}
	}
	var depth int
	switch cfg.ColorModel {
	case color.GrayModel, color.Gray16Model:
		// x/image/tiff reports bilevel images as 8-bit gray, scaling
		// samples to 0 and 255.
		if bps := layout.bitsPerSample[0]; bps != 8 && bps != 16 {
			return nil, &DecodeError{
				Kind:   UnsupportedFormat,
				Format: FormatScientific,
				Err:    fmt.Errorf("%d bits per sample, want 8 or 16", bps),
			}
		}
		depth = int(layout.bitsPerSample[0])
	default:
		return nil, &DecodeError{
			Kind:   UnsupportedFormat,
			Format: FormatScientific,
			Err:    fmt.Errorf("only single-band gray rasters are supported"),
		}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, &DecodeError{
			Kind:   MalformedHeader,
			Format: FormatScientific,
			Err:    fmt.Errorf("invalid dimensions %dx%d", cfg.Width, cfg.Height),
		}
	}
	if err := layout.checkAvailable(b, uint64(depth/8)); err != nil {
		return nil, err
	}

	img, err := tiff.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, &DecodeError{Kind: tiffErrorKind(err), Format: FormatScientific, Err: err}
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	samples := make([]uint16, 0, width*height)
	switch m := img.(type) {
	case *image.Gray:
		for y := 0; y < height; y++ {
			for _, v := range m.Pix[y*m.Stride : y*m.Stride+width] {
				samples = append(samples, uint16(v))
			}
		}

	case *image.Gray16:
		for y := 0; y < height; y++ {
			row := m.Pix[y*m.Stride : y*m.Stride+2*width]
			for i := 0; i < len(row); i += 2 {
				samples = append(samples, uint16(row[i])<<8|uint16(row[i+1]))
			}
		}

	default:
		return nil, &DecodeError{
			Kind:   UnsupportedFormat,
			Format: FormatScientific,
			Err:    fmt.Errorf("unexpected image type %T", img),
		}
	}
	return newRaster(FormatScientific, width, height, depth, samples)
}

func encodeScientific(w io.Writer, r *Raster) error {
	rect := image.Rect(0, 0, r.Width, r.Height)
	var img image.Image
	switch r.BitDepth {
	case 8:
		gray := image.NewGray(rect)
		for i, s := range r.Samples {
			gray.Pix[i] = uint8(s)
		}
		img = gray

	case 16:
		gray := image.NewGray16(rect)
		for i, s := range r.Samples {
			gray.Pix[2*i+0] = uint8(s >> 8)
			gray.Pix[2*i+1] = uint8(s)
		}
		img = gray

	default:
		return fmt.Errorf("unsupported bit depth %d", r.BitDepth)
	}
	return tiff.Encode(w, img, nil)
}
