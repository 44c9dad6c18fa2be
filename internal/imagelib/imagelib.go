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

// Package imagelib implements the directory of stored images which spectra
// are extracted from.
package imagelib

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/skinspec/skinspec/internal/raster"
)

var ErrNotFound = errors.New("image not found")

// extensions are tried in order for keys without a decodable extension.
var extensions = []string{".bmp", ".tif", ".tiff"}

type Library struct {
	Dir string
}

// An Image is the still encoded content of a stored image.
type Image struct {
	Key    string
	Format raster.Format
	Bytes  []byte
}

// Decode decodes the image into a raster.
func (i *Image) Decode() (*raster.Raster, error) {
	return raster.Decode(i.Bytes, i.Format)
}

// List returns the file names of all decodable images, sorted.
func (l *Library) List() ([]string, error) {
	entries, err := os.ReadDir(l.Dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if raster.FormatFromName(entry.Name()) == raster.FormatUnknown {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}

// Load reads the image identified by key. key is either a file name as
// returned by List, or a file name without its extension.
func (l *Library) Load(key string) (*Image, error) {
	if key == "" ||
		strings.HasPrefix(key, ".") ||
		strings.ContainsAny(key, `/\`+"\x00") {
		return nil, fmt.Errorf("%w: invalid key %q", ErrNotFound, key)
	}
	candidates := []string{key}
	if raster.FormatFromName(key) == raster.FormatUnknown {
		candidates = candidates[:0]
		for _, ext := range extensions {
			candidates = append(candidates, key+ext)
		}
	}
	for _, name := range candidates {
		b, err := os.ReadFile(filepath.Join(l.Dir, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		return &Image{
			Key:    key,
			Format: raster.FormatFromName(name),
			Bytes:  b,
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrNotFound, key)
}
