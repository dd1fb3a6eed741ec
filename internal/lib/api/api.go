// Package api serves pool queries and user operations over HTTP.
package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/TxnLab/lsd/internal/lib/httputil"
	"github.com/TxnLab/lsd/internal/lib/lsd"
	"github.com/TxnLab/lsd/internal/lib/misc"
)

type Options struct {
	AllowedOrigins  string
	EnableReqLogger bool
	EnableMetrics   bool
}

// New returns the API handler.
func New(logger *slog.Logger, manager *lsd.Manager, events EventQuerier, opts Options) http.Handler {
	origins := strings.Split(strings.TrimSpace(opts.AllowedOrigins), ",")
	for i, o := range origins {
		origins[i] = strings.ToLower(strings.TrimSpace(o))
	}

	router := mux.NewRouter()
	router.Path("/health").Methods(http.MethodGet).HandlerFunc(
		httputil.WrapHandlerFunc(func(w http.ResponseWriter, req *http.Request) error {
			return httputil.WriteJSON(w, map[string]string{"status": "ok", "version": misc.GetVersionInfo()})
		}))
	if opts.EnableMetrics {
		router.Path("/metrics").Methods(http.MethodGet).Handler(promhttp.Handler())
	}

	NewPools(manager, events).
		Mount(router, "/pools")

	handler := handlers.CompressHandler(router)
	handler = handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedHeaders([]string{"content-type"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost}),
	)(handler)

	if opts.EnableReqLogger {
		handler = requestLoggerHandler(handler, logger)
	}
	return handler
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func requestLoggerHandler(handler http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		handler.ServeHTTP(rec, r)
		logger.Debug("api request",
			"method", r.Method,
			"uri", r.URL.RequestURI(),
			"status", rec.status,
			"duration", time.Since(start).String(),
			"remote", r.RemoteAddr,
		)
	})
}
