// SPDX-License-Identifier: GPL-3.0-or-later

// Package api exposes a [*checker.Checker] over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rbmk-project/blockcheck/checker"
	"github.com/rbmk-project/blockcheck/target"
)

// DefaultTimeout bounds the handling of a request.
const DefaultTimeout = 10 * time.Second

// Checker is the part of [*checker.Checker] used by the API.
type Checker interface {
	Check(ctx context.Context, tgt target.Target) (*checker.Check, error)
	Stats() checker.Stats
}

// API serves the checker endpoints.
//
// Construct using [New].
type API struct {
	checker Checker
	logger  *slog.Logger
	metrics *metrics
	reg     *prometheus.Registry
}

// New creates an [*API] registering its metrics into reg.
func New(c Checker, logger *slog.Logger, reg *prometheus.Registry) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		checker: c,
		logger:  logger,
		metrics: newMetrics(reg, c),
		reg:     reg,
	}
}

// Handler returns the [http.Handler] serving all the routes.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, middleware.Timeout(DefaultTimeout))
	r.Get("/api/check", a.check)
	r.Get("/api/healthcheck", a.healthcheck)
	r.Handle("/metrics", promhttp.HandlerFor(a.reg, promhttp.HandlerOpts{}))
	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Warn("writeJSONFailed", slog.Any("err", err))
	}
}

func (a *API) check(w http.ResponseWriter, r *http.Request) {
	t0 := time.Now()
	tgt, err := target.Parse(r.URL.Query().Get("target"))
	if err != nil {
		a.metrics.observe(outcomeInvalid, t0)
		a.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	result, err := a.checker.Check(r.Context(), tgt)
	switch {
	case errors.Is(err, checker.ErrNotFound):
		a.metrics.observe(outcomeNotFound, t0)
		a.writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case err != nil:
		a.metrics.observe(outcomeError, t0)
		a.logger.ErrorContext(
			r.Context(),
			"checkFailed",
			slog.String("target", tgt.String()),
			slog.String("requestID", middleware.GetReqID(r.Context())),
			slog.Any("err", err),
		)
		a.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	default:
		a.metrics.observe(string(result.Verdict.Status), t0)
		a.writeJSON(w, http.StatusOK, result)
	}
}

type healthcheckResponse struct {
	checker.Stats
	TotalDomainsText string `json:"total_domains_text"`
	TotalV4sText     string `json:"total_v4s_text"`
}

// healthcheck answers 503 until the first refresh completes.
func (a *API) healthcheck(w http.ResponseWriter, r *http.Request) {
	st := a.checker.Stats()
	status := http.StatusOK
	if st.LastUpdate == nil {
		status = http.StatusServiceUnavailable
	}
	a.writeJSON(w, status, healthcheckResponse{
		Stats:            st,
		TotalDomainsText: checker.FormatNumber(uint64(st.TotalDomains)),
		TotalV4sText:     checker.FormatNumber(st.TotalV4s),
	})
}
