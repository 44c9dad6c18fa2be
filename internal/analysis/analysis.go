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

// Package analysis extracts row spectra from stored images and compares them
// against registered reference spectra.
//
// Every operation runs synchronously to completion. Decoded rasters are
// scoped to a single call and never cached.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/skinspec/skinspec"
	"github.com/skinspec/skinspec/internal/compare"
	"github.com/skinspec/skinspec/internal/imagelib"
	"github.com/skinspec/skinspec/internal/mayqtt"
	"github.com/skinspec/skinspec/internal/rowwindow"
	"golang.org/x/net/trace"
)

// ErrInvalidRequest is returned for requests lacking required fields.
var ErrInvalidRequest = errors.New("invalid request")

// Records is the keyed storage the engine persists references and analyses
// in, e.g. a *recordstore.Table.
type Records[T any] interface {
	Get(key string) (T, error)
	Put(key string, rec T) error
	Create(key string, rec T) error
	List() ([]T, error)
}

// Images provides the encoded images spectra are extracted from, e.g. an
// *imagelib.Library.
type Images interface {
	List() ([]string, error)
	Load(key string) (*imagelib.Image, error)
}

type Engine struct {
	Library        Images
	ReferenceStore Records[skinspec.Reference]
	AnalysisStore  Records[skinspec.AnalysisResult]

	// Now defaults to time.Now.
	Now func() time.Time
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func tracef(ctx context.Context, format string, args ...interface{}) {
	if tr, ok := trace.FromContext(ctx); ok {
		tr.LazyPrintf(format, args...)
	}
}

func required(field, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidRequest, field)
	}
	return nil
}

// ImageKeys returns the keys of all images spectra can be extracted from.
func (e *Engine) ImageKeys(ctx context.Context) ([]string, error) {
	keys, err := e.Library.List()
	if err != nil {
		return nil, err
	}
	tracef(ctx, "%d images", len(keys))
	return keys, nil
}

// RowData decodes the image identified by imageKey and returns the spectrum
// of the row window around row.
func (e *Engine) RowData(ctx context.Context, imageKey string, row int) (skinspec.Spectrum, error) {
	if err := required("imageKey", imageKey); err != nil {
		return nil, err
	}
	img, err := e.Library.Load(imageKey)
	if err != nil {
		return nil, err
	}
	tracef(ctx, "loaded %v image %q (%d bytes)", img.Format, imageKey, len(img.Bytes))

	r, err := img.Decode()
	if err != nil {
		return nil, fmt.Errorf("image %q: %w", imageKey, err)
	}
	first, last := rowwindow.Bounds(r.Height, row)
	tracef(ctx, "decoded %dx%d %d-bit raster, summing rows [%d, %d] for row %d",
		r.Width, r.Height, r.BitDepth, first, last, row)
	return rowwindow.Aggregate(r, row), nil
}

// Compare extracts the spectrum around row of imageKey and compares the
// reference spectrum against it: the difference is reference minus
// extracted spectrum.
func (e *Engine) Compare(ctx context.Context, imageKey string, row int, referenceKey string) (*skinspec.AnalysisResult, error) {
	if err := required("referenceKey", referenceKey); err != nil {
		return nil, err
	}
	ref, err := e.Reference(ctx, referenceKey)
	if err != nil {
		return nil, err
	}
	extracted, err := e.RowData(ctx, imageKey, row)
	if err != nil {
		return nil, err
	}
	diff, corr := compare.Compare(ref.Spectrum, extracted)
	tracef(ctx, "compared %d reference values against %d extracted values: correlation %v",
		len(ref.Spectrum), len(extracted), corr)
	return &skinspec.AnalysisResult{
		ImageKey:           imageKey,
		ReferenceKey:       referenceKey,
		Row:                row,
		DifferenceSpectrum: diff,
		Correlation:        corr,
		CreatedAt:          e.now(),
	}, nil
}

// Save persists res under its composite key, replacing any earlier analysis
// of the same image and reference.
func (e *Engine) Save(ctx context.Context, res *skinspec.AnalysisResult) error {
	if err := required("imageKey", res.ImageKey); err != nil {
		return err
	}
	if err := required("referenceKey", res.ReferenceKey); err != nil {
		return err
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = e.now()
	}
	key := res.Key()
	if err := e.AnalysisStore.Put(key, *res); err != nil {
		return err
	}
	tracef(ctx, "saved analysis %q", key)
	mayqtt.Publishf("analysis %s saved at %s", key, e.now().Format(time.RFC3339Nano))
	return nil
}

// SaveAnalysis persists a comparison submitted by a client.
func (e *Engine) SaveAnalysis(ctx context.Context, req *skinspec.SaveAnalysisRequest) (*skinspec.AnalysisResult, error) {
	res := &skinspec.AnalysisResult{
		ImageKey:           req.ImageKey,
		ReferenceKey:       req.ReferenceKey,
		DifferenceSpectrum: req.AnalysisResult.DifferenceSpectrum,
		Correlation:        req.AnalysisResult.Correlation,
	}
	if err := e.Save(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Engine) Analysis(ctx context.Context, key string) (*skinspec.AnalysisResult, error) {
	if err := required("key", key); err != nil {
		return nil, err
	}
	res, err := e.AnalysisStore.Get(key)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (e *Engine) Analyses(ctx context.Context) ([]skinspec.AnalysisResult, error) {
	results, err := e.AnalysisStore.List()
	if err != nil {
		return nil, err
	}
	tracef(ctx, "%d analyses", len(results))
	return results, nil
}

// RegisterReference persists ref, assigning a random ID if it has none.
// References are immutable: registering an existing ID fails with an error
// wrapping recordstore.ErrExists.
func (e *Engine) RegisterReference(ctx context.Context, ref *skinspec.Reference) (*skinspec.Reference, error) {
	if ref.Spectrum == nil {
		return nil, fmt.Errorf("%w: spectrum is required", ErrInvalidRequest)
	}
	registered := *ref
	if registered.ID == "" {
		registered.ID = uuid.NewString()
	}
	if err := e.ReferenceStore.Create(registered.ID, registered); err != nil {
		return nil, err
	}
	tracef(ctx, "registered reference %q (%d values)", registered.ID, len(registered.Spectrum))
	mayqtt.Publishf("reference %s registered at %s", registered.ID, e.now().Format(time.RFC3339Nano))
	return &registered, nil
}

func (e *Engine) Reference(ctx context.Context, id string) (*skinspec.Reference, error) {
	if err := required("id", id); err != nil {
		return nil, err
	}
	ref, err := e.ReferenceStore.Get(id)
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

func (e *Engine) References(ctx context.Context) ([]skinspec.Reference, error) {
	refs, err := e.ReferenceStore.List()
	if err != nil {
		return nil, err
	}
	tracef(ctx, "%d references", len(refs))
	return refs, nil
}
