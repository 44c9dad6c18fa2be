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

// Package spectrumapi implements a JSON HTTP API around the analysis engine.
//
// # Example Usage
//
// You can use this API with curl on the command line like so:
//
//	curl -s http://localhost:7130/api/images
//	curl -s -d '{"imageKey":"plate.tif","row":120}' http://localhost:7130/api/row-data
//	curl -s -d '{"id":"lotion","name":"Lotion","spectrum":[1,2,3]}' http://localhost:7130/api/cosmetics
//	curl -s -d '{"imageKey":"plate.tif","row":120,"referenceKey":"lotion"}' http://localhost:7130/api/individual-analysis
package spectrumapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/skinspec/skinspec"
	"github.com/skinspec/skinspec/internal/analysis"
	"github.com/skinspec/skinspec/internal/httperr"
	"github.com/skinspec/skinspec/internal/recordstore"
	"golang.org/x/net/trace"
)

// maxRequestBytes bounds request bodies; spectra of even very wide images
// stay well below.
const maxRequestBytes = 32 << 20

// shiftPath from
// https://blog.merovius.de/2017/06/18/how-not-to-use-an-http-router.html:

// shiftPath splits off the first component of p, which will be cleaned of
// relative components before processing. head will never contain a slash and
// tail will always be a rooted path without trailing slash.
func shiftPath(p string) (head, tail string) {
	p = path.Clean("/" + p)
	i := strings.Index(p[1:], "/") + 1
	if i <= 0 {
		return p[1:], "/"
	}
	return p[1:i], p[i:]
}

// statusFor maps engine errors to HTTP errors. Missing or undecodable
// images and records are server-side failures, like write errors.
// Re-registering a reference conflicts with the existing one.
func statusFor(err error) error {
	var he *httperr.Err
	switch {
	case err == nil:
		return nil
	case errors.As(err, &he):
		return err
	case errors.Is(err, analysis.ErrInvalidRequest),
		errors.Is(err, recordstore.ErrInvalidKey):
		return httperr.Error(http.StatusBadRequest, err)
	case errors.Is(err, recordstore.ErrExists):
		return httperr.Error(http.StatusConflict, err)
	default:
		return httperr.Error(http.StatusInternalServerError, err)
	}
}

// handle serves h for requests using method, tracing each request on
// /debug/requests and recording it in the API metrics.
func handle(name, method string, h func(http.ResponseWriter, *http.Request) error) http.Handler {
	return httperr.Handle(func(w http.ResponseWriter, r *http.Request) (err error) {
		start := time.Now()
		defer func() {
			observe(name, err, time.Since(start).Seconds())
		}()
		if got, want := r.Method, method; got != want {
			return httperr.Error(
				http.StatusMethodNotAllowed,
				fmt.Errorf("unexpected HTTP method: got %v, want %v", got, want))
		}
		tr := trace.New("spectrumapi", name)
		defer tr.Finish()
		r = r.WithContext(trace.NewContext(r.Context(), tr))

		err = h(w, r)
		if err != nil {
			tr.LazyPrintf("-> return err=%v", err)
			tr.SetError()
		}
		return statusFor(err)
	})
}

func readJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	if err := dec.Decode(v); err != nil {
		return httperr.Error(
			http.StatusBadRequest,
			fmt.Errorf("parsing request: %v", err))
	}
	return nil
}

func writeJSON(w http.ResponseWriter, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(v)
}

type api struct {
	engine *analysis.Engine
}

func (a *api) images(w http.ResponseWriter, r *http.Request) error {
	keys, err := a.engine.ImageKeys(r.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, keys)
}

func (a *api) rowData(w http.ResponseWriter, r *http.Request) error {
	var req skinspec.RowDataRequest
	if err := readJSON(r, &req); err != nil {
		return err
	}
	spectrum, err := a.engine.RowData(r.Context(), req.ImageKey, req.Row)
	if err != nil {
		return err
	}
	return writeJSON(w, &skinspec.RowDataReply{RowData: spectrum})
}

func (a *api) references(w http.ResponseWriter, r *http.Request) error {
	refs, err := a.engine.References(r.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, refs)
}

func (a *api) registerReference(w http.ResponseWriter, r *http.Request) error {
	var ref skinspec.Reference
	if err := readJSON(r, &ref); err != nil {
		return err
	}
	registered, err := a.engine.RegisterReference(r.Context(), &ref)
	if err != nil {
		return err
	}
	return writeJSON(w, &skinspec.MessageReply{
		Message: fmt.Sprintf("reference %s saved successfully", registered.ID),
	})
}

func (a *api) reference(w http.ResponseWriter, r *http.Request) error {
	id, _ := shiftPath(r.URL.Path)
	ref, err := a.engine.Reference(r.Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(w, ref)
}

func (a *api) compare(w http.ResponseWriter, r *http.Request) error {
	var req skinspec.CompareRequest
	if err := readJSON(r, &req); err != nil {
		return err
	}
	res, err := a.engine.Compare(r.Context(), req.ImageKey, req.Row, req.ReferenceKey)
	if err != nil {
		return err
	}
	return writeJSON(w, res)
}

func (a *api) saveAnalysis(w http.ResponseWriter, r *http.Request) error {
	var req skinspec.SaveAnalysisRequest
	if err := readJSON(r, &req); err != nil {
		return err
	}
	if _, err := a.engine.SaveAnalysis(r.Context(), &req); err != nil {
		return err
	}
	return writeJSON(w, &skinspec.MessageReply{
		Message: "analysis saved successfully",
	})
}

func (a *api) analyses(w http.ResponseWriter, r *http.Request) error {
	results, err := a.engine.Analyses(r.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, results)
}

func (a *api) analysis(w http.ResponseWriter, r *http.Request) error {
	id, _ := shiftPath(r.URL.Path)
	res, err := a.engine.Analysis(r.Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(w, &skinspec.AnalysisReply{
		SpectrumData: res.DifferenceSpectrum,
		Correlation:  res.Correlation,
	})
}

// ServeMux returns the API handlers, expecting to be mounted at /api/ with
// the prefix stripped.
func ServeMux(engine *analysis.Engine) *http.ServeMux {
	a := &api{engine: engine}
	serveMux := http.NewServeMux()

	serveMux.Handle("/images", handle("Images", http.MethodGet, a.images))
	serveMux.Handle("/row-data", handle("RowData", http.MethodPost, a.rowData))
	serveMux.Handle("/individual-analysis", handle("Compare", http.MethodPost, a.compare))
	serveMux.Handle("/save-analysis", handle("SaveAnalysis", http.MethodPost, a.saveAnalysis))
	serveMux.Handle("/analyses", handle("Analyses", http.MethodGet, a.analyses))

	listRefs := handle("References", http.MethodGet, a.references)
	registerRef := handle("RegisterReference", http.MethodPost, a.registerReference)
	serveMux.Handle("/cosmetics", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			registerRef.ServeHTTP(w, r)
			return
		}
		listRefs.ServeHTTP(w, r)
	}))

	getRef := handle("Reference", http.MethodGet, a.reference)
	serveMux.Handle("/cosmetics/", http.StripPrefix("/cosmetics", getRef))

	getAnalysis := handle("Analysis", http.MethodGet, a.analysis)
	serveMux.Handle("/analysis/", http.StripPrefix("/analysis", getAnalysis))

	serveMux.Handle("/", httperr.Handle(func(w http.ResponseWriter, r *http.Request) error {
		return httperr.Error(
			http.StatusNotFound,
			fmt.Errorf("%s not found", r.URL.Path))
	}))

	return serveMux
}
