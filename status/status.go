package status

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hurst-trader/config"
	"hurst-trader/logging"
	"hurst-trader/models"
)

// SnapshotFunc returns the current engine state.
type SnapshotFunc func() models.EngineSnapshot

// NewMux serves /status, /metrics, /healthz and, when ws is non-nil, /ws.
func NewMux(snapshot SnapshotFunc, ws http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		snap := snapshot()
		if snap.Time.IsZero() {
			snap.Time = time.Now()
		}
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snap); err != nil {
			http.Error(w, "failed to encode status", http.StatusInternalServerError)
			return
		}
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if !snapshot().Running {
			http.Error(w, "engine not running", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	if ws != nil {
		mux.Handle("/ws", ws)
	}
	return mux
}

// StartServer starts a local HTTP status server for diagnostics.
func StartServer(cfg *config.Config, snapshot SnapshotFunc, ws http.Handler, logger logging.LoggerInterface) *http.Server {
	addr := strings.TrimSpace(cfg.StatusAddr)
	if addr == "" || strings.EqualFold(addr, "off") || strings.EqualFold(addr, "disabled") {
		logger.Info("Status server disabled")
		return nil
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           NewMux(snapshot, ws),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Status server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Status server error: %v", err)
		}
	}()

	return server
}
