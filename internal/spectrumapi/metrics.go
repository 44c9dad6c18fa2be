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
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/skinspec/skinspec/internal/httperr"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skinspec_api_requests_total",
			Help: "Total number of API requests by handler and HTTP status code",
		},
		[]string{"handler", "code"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "skinspec_api_request_duration_seconds",
			Help: "Duration of API requests in seconds, including image decoding",
			// decoding a large raster takes up to a few seconds
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"handler"},
	)
)

// statusCode returns the HTTP status code httperr.Handle will reply with.
func statusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var he *httperr.Err
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

func observe(name string, err error, seconds float64) {
	requestsTotal.WithLabelValues(name, strconv.Itoa(statusCode(err))).Inc()
	requestDuration.WithLabelValues(name).Observe(seconds)
}
