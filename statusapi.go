package emskit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const statusHttpTimeoutsMs = 3000

// StatusServer serves the latest snapshot, the schedule listing and the
// Prometheus metrics over a small HTTP API. It renders whatever the last
// poll cycle produced; it never triggers a fetch of its own.
type StatusServer struct {
	Addr string

	kit    *EmsKit
	server *http.Server

	serverErr chan error
}

func newStatusServer(kit *EmsKit, addr string) *StatusServer {
	return &StatusServer{Addr: addr, kit: kit}
}

func (ss *StatusServer) Start() error {
	registry := prometheus.NewRegistry()
	err := registry.Register(NewCollector(ss.kit))
	if err != nil {
		return err
	}

	handler := httprouter.New()
	handler.GET("/api/status", ss.handleStatus)
	handler.GET("/api/schedule", ss.handleSchedule)
	handler.POST("/api/schedule", ss.handleScheduleAdd)
	handler.Handler(http.MethodGet, "/metrics",
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	httpTimeout := statusHttpTimeoutsMs * time.Millisecond

	ss.server = &http.Server{
		Addr:              ss.Addr,
		Handler:           handler,
		ReadTimeout:       httpTimeout,
		ReadHeaderTimeout: httpTimeout,
		WriteTimeout:      httpTimeout,
		IdleTimeout:       2 * httpTimeout,
	}

	ss.serverErr = make(chan error)

	go func() {
		ss.serverErr <- ss.server.ListenAndServe()
	}()

	return nil
}

func (ss *StatusServer) Close() error {
	if ss.server == nil {
		return nil
	}
	return ss.server.Close()
}

func (ss *StatusServer) handleStatus(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	data := ss.kit.Latest()
	if data == nil {
		http.Error(w, "no data fetched yet", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (ss *StatusServer) handleSchedule(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	data := ss.kit.Latest()
	if data == nil {
		http.Error(w, "no data fetched yet", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data.Schedule); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (ss *StatusServer) handleScheduleAdd(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form body", http.StatusBadRequest)
		return
	}

	mode := r.PostFormValue("mode")
	if len(mode) == 0 {
		http.Error(w, "missing mode", http.StatusBadRequest)
		return
	}

	setpoint, err := strconv.Atoi(r.PostFormValue("setpoint"))
	if err != nil {
		http.Error(w, "setpoint must be an integer", http.StatusBadRequest)
		return
	}

	from := r.PostFormValue("from")
	to := r.PostFormValue("to")
	if len(from) == 0 || len(to) == 0 {
		http.Error(w, "missing from/to time", http.StatusBadRequest)
		return
	}

	err = ss.kit.AddSchedule(r.Context(), mode, setpoint, from, to)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	w.WriteHeader(http.StatusOK)
}
