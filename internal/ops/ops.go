// Package ops serves the operator HTTP endpoint: health and per-user
// ledger inspection.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/m3rciful/artbot/core/logger"
	"github.com/m3rciful/artbot/internal/ledger"
)

// Check reports whether one backend is reachable.
type Check func(ctx context.Context) error

// Handler exposes ledger state over HTTP.
type Handler struct {
	ledger  ledger.Ledger
	initial decimal.Decimal
	checks  map[string]Check
	log     *slog.Logger
}

// NewHandler returns a handler over l. checks are run by /healthz.
func NewHandler(l ledger.Ledger, initial decimal.Decimal, checks map[string]Check) *Handler {
	return &Handler{ledger: l, initial: initial, checks: checks, log: logger.Component("ops")}
}

// NewRouter registers every endpoint on a chi router.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", h.Health)
	r.Get("/users/{userId}/stats", h.Stats)
	r.Get("/users/{userId}/audit", h.Audit)
	return r
}

// NewServer wraps the router in an http.Server listening on addr.
func NewServer(addr string, h *Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewRouter(h),
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Serve runs srv until ctx is done, then shuts it down gracefully.
func Serve(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "ops", "ops.listen", slog.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("ops server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ops shutdown: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Component("ops").Error("failed to encode JSON response", slog.String("err", err.Error()))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func parseUserID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "userId")
	if raw == "" {
		return 0, errors.New("missing userId")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid userId: %w", err)
	}
	if id <= 0 {
		return 0, errors.New("invalid userId: must be positive")
	}
	return id, nil
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	report := map[string]string{"status": "ok"}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			report["status"] = "degraded"
			report[name] = err.Error()
			continue
		}
		report[name] = "ok"
	}
	writeJSON(w, status, report)
}

// Stats handles GET /users/{userId}/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	st, err := h.ledger.Stats(r.Context(), userID)
	switch {
	case errors.Is(err, ledger.ErrUnknownUser):
		writeError(w, http.StatusNotFound, "user not found")
		return
	case err != nil:
		h.internal(w, r, "ops.stats", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type auditResponse struct {
	UserID  int64           `json:"user_id"`
	OK      bool            `json:"ok"`
	Balance decimal.Decimal `json:"balance"`
	Error   string          `json:"error,omitempty"`
}

// Audit handles GET /users/{userId}/audit. Drift is reported with 409.
func (h *Handler) Audit(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	balance, err := h.ledger.Balance(r.Context(), userID)
	switch {
	case errors.Is(err, ledger.ErrUnknownUser):
		writeError(w, http.StatusNotFound, "user not found")
		return
	case err != nil:
		h.internal(w, r, "ops.audit", err)
		return
	}

	resp := auditResponse{UserID: userID, OK: true, Balance: balance}
	err = ledger.Verify(r.Context(), h.ledger, userID, h.initial)
	switch {
	case errors.Is(err, ledger.ErrDrift):
		resp.OK = false
		resp.Error = err.Error()
		logger.LogEvent(r.Context(), h.log, slog.LevelWarn, "ledger.drift",
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		)
		writeJSON(w, http.StatusConflict, resp)
		return
	case err != nil:
		h.internal(w, r, "ops.audit", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) internal(w http.ResponseWriter, r *http.Request, event string, err error) {
	logger.LogEvent(r.Context(), h.log, slog.LevelError, event,
		slog.String("path", r.URL.Path),
		slog.String("status", "fail"),
		slog.String("err", err.Error()),
	)
	writeError(w, http.StatusInternalServerError, "internal error")
}
