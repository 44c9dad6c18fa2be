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

package spectrumapi

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/skinspec/skinspec/internal/analysis"
	"github.com/skinspec/skinspec/internal/recordstore"
)

func TestHandleRecordsMetrics(t *testing.T) {
	ok := handle("MetricsTestOK", http.MethodGet, func(w http.ResponseWriter, r *http.Request) error {
		return writeJSON(w, []string{})
	})
	invalid := handle("MetricsTestInvalid", http.MethodGet, func(w http.ResponseWriter, r *http.Request) error {
		return analysis.ErrInvalidRequest
	})
	failing := handle("MetricsTestFailing", http.MethodGet, func(w http.ResponseWriter, r *http.Request) error {
		return errors.New("disk on fire")
	})

	for _, test := range []struct {
		handler http.Handler
		method  string
		name    string
		code    int
	}{
		{ok, http.MethodGet, "MetricsTestOK", http.StatusOK},
		{ok, http.MethodPost, "MetricsTestOK", http.StatusMethodNotAllowed},
		{invalid, http.MethodGet, "MetricsTestInvalid", http.StatusBadRequest},
		{failing, http.MethodGet, "MetricsTestFailing", http.StatusInternalServerError},
	} {
		counter := requestsTotal.WithLabelValues(test.name, strconv.Itoa(test.code))
		before := testutil.ToFloat64(counter)
		rec := httptest.NewRecorder()
		test.handler.ServeHTTP(rec, httptest.NewRequest(test.method, "/", nil))
		if got, want := rec.Code, test.code; got != want {
			t.Errorf("%s %s: unexpected status: got %d, want %d", test.method, test.name, got, want)
		}
		if got, want := testutil.ToFloat64(counter), before+1; got != want {
			t.Errorf("%s %s: requests_total{code=%d}: got %v, want %v", test.method, test.name, test.code, got, want)
		}
	}
}

func TestStatusCode(t *testing.T) {
	for _, test := range []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{statusFor(analysis.ErrInvalidRequest), http.StatusBadRequest},
		{statusFor(fmt.Errorf("%w: %q", recordstore.ErrExists, "water")), http.StatusConflict},
		{statusFor(errors.New("unexpected")), http.StatusInternalServerError},
		{errors.New("unmapped"), http.StatusInternalServerError},
	} {
		if got := statusCode(test.err); got != test.want {
			t.Errorf("statusCode(%v): got %d, want %d", test.err, got, test.want)
		}
	}
}
