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

// Program skinspec extracts intensity spectra from rows of stored images and
// compares them against registered reference spectra.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/skinspec/skinspec"
	"github.com/skinspec/skinspec/internal/analysis"
	"github.com/skinspec/skinspec/internal/imagelib"
	"github.com/skinspec/skinspec/internal/mayqtt"
	"github.com/skinspec/skinspec/internal/recordstore"
	"github.com/skinspec/skinspec/internal/spectrumapi"
	"golang.org/x/crypto/acme/autocert"
	"golang.org/x/net/trace"
	"golang.org/x/sync/errgroup"
)

// splitList splits a comma-separated flag value, dropping empty elements.
func splitList(list string) []string {
	var result []string
	for _, elem := range strings.Split(list, ",") {
		elem = strings.TrimSpace(elem)
		if elem == "" {
			continue
		}
		result = append(result, elem)
	}
	return result
}

type serveFunc struct {
	serve    func() error
	shutdown func() error
}

func shutdownFunc(s *http.Server) func() error {
	return func() error {
		timeout, canc := context.WithTimeout(context.Background(), 250*time.Millisecond)
		defer canc()
		return s.Shutdown(timeout)
	}
}

func logic() error {
	imagesDir := flag.String("images_dir",
		"/perm/skinspec/images",
		"Directory containing the images (.bmp, .tif, .tiff) spectra are extracted from.")

	stateDir := flag.String("state_dir",
		"/perm/skinspec",
		"Directory in which registered references (cosmetics/) and saved analyses (analysis/) are stored, one JSON file per record.")

	httpListenAddr := flag.String("http_listen_address",
		"localhost:7130",
		"[host]:port to listen on for HTTP requests")

	httpsListenAddr := flag.String("https_listen_address",
		":https",
		"[host]:port to listen on for HTTPS requests. This is a no-op unless -tls_autocert_hosts is non-empty.")

	autocertHostList := flag.String("tls_autocert_hosts",
		"",
		"If non-empty, a comma-separated list of hostnames to obtain TLS certificates for. If non-empty, a TLS listener will be enabled on -https_listen_address")

	mqttBroker := flag.String("mqtt_broker",
		"",
		"If non-empty, an MQTT broker (e.g. tcp://broker.lan:1883) to publish status updates to")

	mqttClientID := flag.String("mqtt_client_id",
		"skinspec",
		"MQTT client id to use when connecting to -mqtt_broker")

	flag.Parse()

	log.Printf("skinspec starting")

	if *mqttBroker != "" {
		mayqtt.MQTT(*mqttBroker, *mqttClientID)
	}

	engine := &analysis.Engine{
		Library: &imagelib.Library{Dir: *imagesDir},
		ReferenceStore: &recordstore.Table[skinspec.Reference]{
			Dir: filepath.Join(*stateDir, "cosmetics"),
		},
		AnalysisStore: &recordstore.Table[skinspec.AnalysisResult]{
			Dir: filepath.Join(*stateDir, "analysis"),
		},
	}

	mux := http.NewServeMux()
	mux.Handle("/api/", http.StripPrefix("/api", spectrumapi.ServeMux(engine)))
	mux.Handle("/metrics", promhttp.Handler())
	// for /debug/requests:
	mux.Handle("/debug/", http.DefaultServeMux)
	trace.AuthRequest = func(req *http.Request) (bool, bool) {
		// RemoteAddr is commonly in the form "IP" or "IP:port".
		// If it is in the form "IP:port", split off the port.
		host, _, err := net.SplitHostPort(req.RemoteAddr)
		if err != nil {
			host = req.RemoteAddr
		}
		ip := net.ParseIP(host)
		if ip == nil {
			return false, false
		}
		if ip.IsLoopback() || ip.IsPrivate() {
			return true, true
		}
		return false, false
	}

	var serveFuncs []serveFunc

	if hosts := splitList(*autocertHostList); len(hosts) > 0 {
		m := &autocert.Manager{
			Cache:      autocert.DirCache(filepath.Join(*stateDir, "autocert")),
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(hosts...),
		}
		s := &http.Server{
			Addr:      *httpsListenAddr,
			Handler:   mux,
			TLSConfig: m.TLSConfig(),
		}
		for _, host := range hosts {
			log.Printf("listening on https://%s", host)
		}

		ln, err := net.Listen("tcp", s.Addr)
		if err != nil {
			return err
		}
		serveFuncs = append(serveFuncs, serveFunc{
			serve: func() error {
				defer ln.Close()

				return s.ServeTLS(ln, "", "")
			},
			shutdown: shutdownFunc(s),
		})
	}

	// HTTP listener (local network)
	ln, err := net.Listen("tcp", *httpListenAddr)
	if err != nil {
		return err
	}
	log.Printf("listening on http://%s", ln.Addr())
	s := &http.Server{Handler: mux}
	serveFuncs = append(serveFuncs, serveFunc{
		serve: func() error {
			return s.Serve(ln)
		},
		shutdown: shutdownFunc(s),
	})

	ctx, canc := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer canc()
	eg, ctx := errgroup.WithContext(ctx)
	for _, sf := range serveFuncs {
		sf := sf // copy
		eg.Go(func() error {
			errC := make(chan error, 1)
			go func() {
				errC <- sf.serve()
			}()
			select {
			case err := <-errC:
				return err
			case <-ctx.Done():
				if err := sf.shutdown(); err != nil {
					log.Printf("shutting down listener: %v", err)
				}
				return ctx.Err()
			}
		})
	}

	return eg.Wait()
}

func main() {
	if err := logic(); err != nil && err != context.Canceled {
		log.Fatal(err)
	}
}
