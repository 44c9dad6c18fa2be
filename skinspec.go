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

// Package skinspec contains domain types for skinspec, like spectra,
// reference substances or saved analyses.
package skinspec

import "time"

// A Spectrum is a one-dimensional intensity profile: one value per raster
// column, or per comparison index.
type Spectrum []float64

// A Reference is a named spectrum of a reference substance (e.g. a
// cosmetic product), registered once and used as comparison baseline.
type Reference struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Spectrum Spectrum `json:"spectrum"`
}

// An AnalysisResult is the comparison of an image row spectrum against a
// reference spectrum.
type AnalysisResult struct {
	ImageKey           string    `json:"imageKey"`
	ReferenceKey       string    `json:"referenceKey"`
	Row                int       `json:"row"`
	DifferenceSpectrum Spectrum  `json:"differenceSpectrum"`
	Correlation        float64   `json:"correlation"`
	CreatedAt          time.Time `json:"createdAt"`
}

// Key returns the key under which the result is persisted.
func (a *AnalysisResult) Key() string {
	return AnalysisKey(a.ImageKey, a.ReferenceKey)
}

// AnalysisKey combines an image key and a reference key into the composite
// key of the analysis comparing both.
func AnalysisKey(imageKey, referenceKey string) string {
	return imageKey + "_" + referenceKey
}

// A RowDataRequest asks for the spectrum around one row of a stored image.
type RowDataRequest struct {
	ImageKey string `json:"imageKey"`
	Row      int    `json:"row"`
}

type RowDataReply struct {
	RowData Spectrum `json:"rowData"`
}

// A CompareRequest asks for the analysis of an image row against a
// registered reference.
type CompareRequest struct {
	ImageKey     string `json:"imageKey"`
	Row          int    `json:"row"`
	ReferenceKey string `json:"referenceKey"`
}

// A SaveAnalysisRequest persists a (typically client-reviewed) comparison.
type SaveAnalysisRequest struct {
	ImageKey       string `json:"imageKey"`
	ReferenceKey   string `json:"referenceKey"`
	AnalysisResult struct {
		DifferenceSpectrum Spectrum `json:"differenceSpectrum"`
		Correlation        float64  `json:"correlation"`
	} `json:"analysisResult"`
}

type AnalysisReply struct {
	SpectrumData Spectrum `json:"spectrumData"`
	Correlation  float64  `json:"correlation"`
}

type MessageReply struct {
	Message string `json:"message"`
}
