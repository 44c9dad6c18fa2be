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

package analysis_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/skinspec/skinspec"
	"github.com/skinspec/skinspec/internal/analysis"
	"github.com/skinspec/skinspec/internal/imagelib"
	"github.com/skinspec/skinspec/internal/raster"
	"github.com/skinspec/skinspec/internal/recordstore"
)

var fixedTime = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func newEngine(t *testing.T) (*analysis.Engine, string) {
	t.Helper()
	dir := t.TempDir()
	imagesDir := filepath.Join(dir, "images")
	if err := os.Mkdir(imagesDir, 0755); err != nil {
		t.Fatal(err)
	}
	// The 4×3 single-band raster [[1,2,3,4],[5,6,7,8],[9,10,11,12]].
	r := &raster.Raster{
		Width:    4,
		Height:   3,
		BitDepth: 8,
		Samples:  []uint16{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
	}
	var buf bytes.Buffer
	if err := raster.Encode(&buf, r, raster.FormatScientific); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(imagesDir, "plate.tif"), buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(imagesDir, "broken.bmp"), []byte("BM garbage"), 0644); err != nil {
		t.Fatal(err)
	}
	return &analysis.Engine{
		Library:        &imagelib.Library{Dir: imagesDir},
		ReferenceStore: &recordstore.Table[skinspec.Reference]{Dir: filepath.Join(dir, "cosmetics")},
		AnalysisStore:  &recordstore.Table[skinspec.AnalysisResult]{Dir: filepath.Join(dir, "analysis")},
		Now:            func() time.Time { return fixedTime },
	}, dir
}

func TestRowData(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	got, err := e.RowData(ctx, "plate", 1)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(skinspec.Spectrum{15, 18, 21, 24}, got); diff != "" {
		t.Fatalf("unexpected row data (-want +got):\n%s", diff)
	}

	if _, err := e.RowData(ctx, "missing", 1); !errors.Is(err, imagelib.ErrNotFound) {
		t.Fatalf("RowData(missing): got %v, want ErrNotFound", err)
	}
	var de *raster.DecodeError
	if _, err := e.RowData(ctx, "broken", 1); !errors.As(err, &de) {
		t.Fatalf("RowData(broken): got %v, want *raster.DecodeError", err)
	}
	if _, err := e.RowData(ctx, "", 1); !errors.Is(err, analysis.ErrInvalidRequest) {
		t.Fatalf("RowData(\"\"): got %v, want ErrInvalidRequest", err)
	}
}

func TestCompareAgainstConstantReference(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	ref, err := e.RegisterReference(ctx, &skinspec.Reference{
		ID:       "water",
		Name:     "Water",
		Spectrum: skinspec.Spectrum{10, 10, 10, 10},
	})
	if err != nil {
		t.Fatal(err)
	}
	got, err := e.Compare(ctx, "plate", 1, ref.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := &skinspec.AnalysisResult{
		ImageKey:           "plate",
		ReferenceKey:       "water",
		Row:                1,
		DifferenceSpectrum: skinspec.Spectrum{-5, -8, -11, -14},
		Correlation:        0,
		CreatedAt:          fixedTime,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected analysis (-want +got):\n%s", diff)
	}

	if _, err := e.Compare(ctx, "plate", 1, "missing"); !errors.Is(err, recordstore.ErrNotFound) {
		t.Fatalf("Compare(missing reference): got %v, want ErrNotFound", err)
	}
}

func TestCompareTruncates(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	if _, err := e.RegisterReference(ctx, &skinspec.Reference{
		ID:       "ramp",
		Spectrum: skinspec.Spectrum{1, 2},
	}); err != nil {
		t.Fatal(err)
	}
	got, err := e.Compare(ctx, "plate", -5, "ramp")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(skinspec.Spectrum{-14, -16}, got.DifferenceSpectrum); diff != "" {
		t.Fatalf("unexpected difference (-want +got):\n%s", diff)
	}
	if got, want := got.Correlation, 1.0; got != want {
		t.Fatalf("unexpected correlation: got %v, want %v", got, want)
	}
}

func TestSaveAnalysis(t *testing.T) {
	ctx := context.Background()
	e, dir := newEngine(t)

	req := &skinspec.SaveAnalysisRequest{
		ImageKey:     "plate",
		ReferenceKey: "water",
	}
	req.AnalysisResult.DifferenceSpectrum = skinspec.Spectrum{1, 2, 3}
	req.AnalysisResult.Correlation = 0.5
	if _, err := e.SaveAnalysis(ctx, req); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "analysis", "plate_water.json")); err != nil {
		t.Fatalf("analysis not persisted under its composite key: %v", err)
	}

	// Saving again under the same key replaces the earlier analysis.
	req.AnalysisResult.DifferenceSpectrum = skinspec.Spectrum{4}
	if _, err := e.SaveAnalysis(ctx, req); err != nil {
		t.Fatal(err)
	}
	got, err := e.Analysis(ctx, "plate_water")
	if err != nil {
		t.Fatal(err)
	}
	want := &skinspec.AnalysisResult{
		ImageKey:           "plate",
		ReferenceKey:       "water",
		DifferenceSpectrum: skinspec.Spectrum{4},
		Correlation:        0.5,
		CreatedAt:          fixedTime,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected analysis (-want +got):\n%s", diff)
	}

	all, err := e.Analyses(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := len(all), 1; got != want {
		t.Fatalf("unexpected number of analyses: got %d, want %d", got, want)
	}

	if _, err := e.SaveAnalysis(ctx, &skinspec.SaveAnalysisRequest{ImageKey: "plate"}); !errors.Is(err, analysis.ErrInvalidRequest) {
		t.Fatalf("SaveAnalysis(no referenceKey): got %v, want ErrInvalidRequest", err)
	}
}

func TestRegisterReference(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)

	ref, err := e.RegisterReference(ctx, &skinspec.Reference{
		Name:     "Unnamed lotion",
		Spectrum: skinspec.Spectrum{3, 2, 1},
	})
	if err != nil {
		t.Fatal(err)
	}
	if ref.ID == "" {
		t.Fatalf("RegisterReference did not assign an ID")
	}
	got, err := e.Reference(ctx, ref.ID)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(ref, got); diff != "" {
		t.Fatalf("unexpected reference (-want +got):\n%s", diff)
	}

	refs, err := e.References(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := len(refs), 1; got != want {
		t.Fatalf("unexpected number of references: got %d, want %d", got, want)
	}

	if _, err := e.RegisterReference(ctx, &skinspec.Reference{ID: "empty"}); !errors.Is(err, analysis.ErrInvalidRequest) {
		t.Fatalf("RegisterReference(no spectrum): got %v, want ErrInvalidRequest", err)
	}

	// Registering an existing ID fails and keeps the original reference.
	_, err = e.RegisterReference(ctx, &skinspec.Reference{
		ID:       ref.ID,
		Name:     "Impostor",
		Spectrum: skinspec.Spectrum{9},
	})
	if !errors.Is(err, recordstore.ErrExists) {
		t.Fatalf("RegisterReference(existing ID): got %v, want ErrExists", err)
	}
	got, err = e.Reference(ctx, ref.ID)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(ref, got); diff != "" {
		t.Fatalf("reference modified by re-registration (-want +got):\n%s", diff)
	}
}

func TestImageKeys(t *testing.T) {
	e, _ := newEngine(t)
	got, err := e.ImageKeys(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"broken.bmp", "plate.tif"}, got); diff != "" {
		t.Fatalf("unexpected image keys (-want +got):\n%s", diff)
	}
}
