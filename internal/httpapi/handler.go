// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package httpapi exposes the credential lifecycle over JSON/HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/accountd/internal/account"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Service is the lifecycle API served over HTTP. *account.Manager implements it.
type Service interface {
	Register(ctx context.Context, email, password string) (ulid.ULID, error)
	ActivateUser(ctx context.Context, email string) error
	Authenticate(ctx context.Context, email, password string) (*account.UserRecord, error)
	ResetPassword(ctx context.Context, email, newPassword string) error
}

// Recorder receives one observation per HTTP response.
type Recorder interface {
	ObserveHTTPRequest(route string, status int)
}

type noopRecorder struct{}

func (noopRecorder) ObserveHTTPRequest(string, int) {}

// Handler serves the lifecycle routes.
type Handler struct {
	service Service
	logger  *slog.Logger
	metrics Recorder
}

// NewHandler creates a Handler. A nil recorder disables HTTP metrics.
func NewHandler(service Service, logger *slog.Logger, metrics Recorder) (*Handler, error) {
	if service == nil {
		return nil, oops.Code("HTTPAPI_INVALID_CONFIG").Errorf("service is required")
	}
	if logger == nil {
		return nil, oops.Code("HTTPAPI_INVALID_CONFIG").Errorf("logger is required")
	}
	if metrics == nil {
		metrics = noopRecorder{}
	}
	return &Handler{service: service, logger: logger, metrics: metrics}, nil
}

// Routes returns the router with middleware applied.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(h.logRequests)
	r.Use(middleware.Recoverer)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/accounts", h.handleRegister)
		r.Post("/accounts/activate", h.handleActivate)
		r.Post("/accounts/password", h.handleResetPassword)
		r.Post("/authenticate", h.handleAuthenticate)
	})
	return r
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type registerResponse struct {
	ID string `json:"id"`
}

// accountResponse is the public view of a record; the hash is never exposed.
type accountResponse struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	IsActive     bool       `json:"is_active"`
	RegisteredAt time.Time  `json:"registered_at"`
	ActivatedAt  *time.Time `json:"activated_at,omitempty"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decode(w, r, &req) {
		return
	}

	id, err := h.service.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, registerResponse{ID: id.String()})
}

func (h *Handler) handleActivate(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.ActivateUser(r.Context(), req.Email); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decode(w, r, &req) {
		return
	}

	rec, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accountResponse{
		ID:           rec.ID.String(),
		Email:        rec.Email,
		IsActive:     rec.IsActive,
		RegisteredAt: rec.RegisteredAt,
		ActivatedAt:  rec.ActivatedAt,
	})
}

// handleResetPassword replaces the password of an existing account. Callers
// are expected to sit behind an authorizer; the route itself checks nothing
// beyond the account existing.
func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.ResetPassword(r.Context(), req.Email, req.Password); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decode reads a single JSON object into dst, writing a 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	err := dec.Decode(dst)
	if err == nil && dec.More() {
		err = errors.New("unexpected data after JSON object")
	}
	if err != nil {
		h.logger.DebugContext(r.Context(), "invalid request body",
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		writeProblem(w, http.StatusBadRequest, CodeInvalidRequest, "request body must be a single JSON object with the documented fields")
		return false
	}
	return true
}

// logRequests records a metric and a log line per response, labelled by
// route pattern so ids in paths never become label values.
func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		h.metrics.ObserveHTTPRequest(route, status)
		h.logger.InfoContext(r.Context(), "http request",
			"method", r.Method,
			"route", route,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
