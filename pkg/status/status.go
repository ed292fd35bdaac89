// Package status serves the VNF's metrics, health and route table over
// HTTP.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/newtron-network/routevnf/pkg/util"
	"github.com/newtron-network/routevnf/pkg/vnf"
)

// Source provides the state to serve. It returns false while no VNF is
// running.
type Source interface {
	Snapshot() (vnf.Snapshot, bool)
}

// NewRouter builds the status API. metrics may be nil.
func NewRouter(src Source, metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		snap, ok := src.Snapshot()
		if !ok || !snap.Ready {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintln(w, "ok")
	})
	r.Get("/routes", func(w http.ResponseWriter, _ *http.Request) {
		snap, ok := src.Snapshot()
		if !ok {
			http.Error(w, "not running", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, snap)
	})
	r.Get("/routes/{host}", func(w http.ResponseWriter, req *http.Request) {
		snap, ok := src.Snapshot()
		if !ok {
			http.Error(w, "not running", http.StatusServiceUnavailable)
			return
		}
		host := chi.URLParam(req, "host")
		var routes []any
		for _, e := range snap.Routes {
			if e.Pair.A == host || e.Pair.B == host {
				routes = append(routes, e)
			}
		}
		if routes == nil {
			http.Error(w, "unknown host "+host, http.StatusNotFound)
			return
		}
		writeJSON(w, routes)
	})
	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		util.Warnf("status: encoding response: %v", err)
	}
}

// Serve listens on addr until ctx ends.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		server.Close()
	}()

	util.Infof("Serving status API on %s", addr)
	err := server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("status: serving %s: %w", addr, err)
	}
	return nil
}
