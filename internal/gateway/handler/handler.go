package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/akshay033333/medical-claims-pipeline/internal/claims"
	"github.com/akshay033333/medical-claims-pipeline/internal/gateway"
	apperrors "github.com/akshay033333/medical-claims-pipeline/pkg/errors"
	"github.com/akshay033333/medical-claims-pipeline/pkg/health"
	"github.com/akshay033333/medical-claims-pipeline/pkg/logger"
)

// sourceHeader identifies the submitting source system for rate limiting.
const sourceHeader = "X-Source-System"

type Handler struct {
	gateway *gateway.Gateway
	checker *health.Checker
	logger  *slog.Logger
}

func New(gw *gateway.Gateway, checker *health.Checker) *Handler {
	return &Handler{
		gateway: gw,
		checker: checker,
		logger:  logger.WithComponent("gateway-handler"),
	}
}

// Submit handles POST /api/v1/claims. Every syntactically parseable claim
// gets a receipt with status 202; rejected claims carry their full error
// list in the receipt rather than an HTTP error.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := logger.WithRequestID(r.Context(), uuid.NewString())
	log := logger.FromContext(ctx)

	var c claims.Claim
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	receipt, err := h.gateway.Submit(ctx, &c, r.Header.Get(sourceHeader))
	if err != nil {
		statusCode := apperrors.HTTPStatusCode(err)
		log.Error("submission failed",
			"claim_id", c.ClaimID,
			"error", err,
			"status_code", statusCode,
		)
		h.writeError(w, statusCode, "submission failed")
		return
	}
	log.Info("submission handled",
		"claim_id", receipt.ClaimID,
		"status", receipt.Status,
	)
	h.writeJSON(w, http.StatusAccepted, receipt)
}

// Receipt handles GET /api/v1/claims/{claimID}/receipt for submitters
// re-checking the outcome of an earlier submission.
func (h *Handler) Receipt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claimID := r.PathValue("claimID")
	if claimID == "" {
		h.writeError(w, http.StatusBadRequest, "missing claim id")
		return
	}
	receipt, err := h.gateway.Receipt(ctx, claimID)
	if err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), "receipt lookup failed")
		return
	}
	h.writeJSON(w, http.StatusOK, receipt)
}

// Health reports readiness of the gateway's dependencies.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.checker != nil {
		h.checker.Handler().ServeHTTP(w, r)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
