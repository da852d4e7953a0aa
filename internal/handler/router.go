package handler

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/efreitasn/stockserver/internal/admission"
	"github.com/efreitasn/stockserver/internal/stats"
	"github.com/efreitasn/stockserver/internal/store"
	"github.com/go-chi/chi/v5"
)

// NewRouter creates the operations router: health, ledger inspection,
// counters and the live transaction feed. feed may be nil, in which case
// /feed is not registered.
func NewRouter(
	ledger *store.LedgerStore,
	ctrl *admission.Controller,
	recorder *stats.MemoryRecorder,
	feed http.Handler,
	logger *slog.Logger,
) chi.Router {
	r := chi.NewRouter()

	r.Use(requestLogging(logger))
	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)

	accountH := NewAccountHandler(ledger)
	statsH := NewStatsHandler(ctrl, recorder)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/accounts", accountH.List)
	r.Get("/accounts/{name}", accountH.Get)
	r.Get("/stats", statsH.Get)

	if feed != nil {
		r.Method(http.MethodGet, "/feed", feed)
	}

	return r
}

// requestLogging returns middleware that logs each request's method, path,
// status code, and duration using slog.
func requestLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// Hijack passes through to the underlying writer so /feed can upgrade to a
// websocket behind the logging middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("handler: response writer does not support hijacking")
	}
	if !w.wroteHeader {
		w.status = http.StatusSwitchingProtocols
		w.wroteHeader = true
	}
	return h.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
