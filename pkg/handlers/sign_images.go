package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/menkyo-prep/sign-engine/pkg/apperrors"
	"github.com/menkyo-prep/sign-engine/pkg/logging"
	"github.com/menkyo-prep/sign-engine/pkg/models"
	"github.com/menkyo-prep/sign-engine/pkg/services"
)

// ============================================================================
// Response Types
// ============================================================================

// ResolveResponse for GET /api/sign-images/resolve.
// Image is null when no image could be found.
type ResolveResponse struct {
	Image *models.ImageResult `json:"image"`
}

// ExtractResponse for GET /api/sign-images/extract.
type ExtractResponse struct {
	SignCode *string `json:"sign_code"`
}

// UsageResponse for POST /api/sign-images/{id}/usage.
type UsageResponse struct {
	UsageCount int64 `json:"usage_count"`
}

// ============================================================================
// Handler
// ============================================================================

// SignImagesHandler exposes the sign image pipeline over HTTP.
type SignImagesHandler struct {
	resolver services.SignImageResolver
	usage    services.UsageRecorder
	logger   *zap.Logger
}

// NewSignImagesHandler creates a new sign images handler.
func NewSignImagesHandler(
	resolver services.SignImageResolver,
	usage services.UsageRecorder,
	logger *zap.Logger,
) *SignImagesHandler {
	return &SignImagesHandler{
		resolver: resolver,
		usage:    usage,
		logger:   logger,
	}
}

// RegisterRoutes registers the sign image routes on the given mux.
func (h *SignImagesHandler) RegisterRoutes(mux *http.ServeMux, scope ScopeMiddleware) {
	base := "/api/sign-images"

	mux.HandleFunc("GET "+base+"/resolve", scope(h.Resolve))
	mux.HandleFunc("GET "+base+"/extract", scope(h.Extract))
	mux.HandleFunc("GET "+base+"/codes/{code}", scope(h.MatchCode))
	mux.HandleFunc("POST "+base+"/{id}/usage", scope(h.RecordUsage))
}

// Resolve handles GET /api/sign-images/resolve?q=&category=&sign_id=&external=.
// A miss is not an error: the response carries a null image.
func (h *SignImagesHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	signID, ok := ParseSignIDQuery(w, r, h.logger)
	if !ok {
		return
	}

	query := strings.TrimSpace(q.Get("q"))
	if query == "" && signID == uuid.Nil {
		h.writeError(w, http.StatusBadRequest, "missing_query", "q or sign_id is required")
		return
	}

	external := true
	if raw := q.Get("external"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_external", "external must be a boolean")
			return
		}
		external = v
	}

	var (
		result *models.ImageResult
		err    error
	)
	if external || signID != uuid.Nil {
		result, err = h.resolver.Resolve(r.Context(), services.ResolveRequest{
			Query:        query,
			CategoryHint: q.Get("category"),
			SignID:       signID,
		})
	} else {
		result, err = h.resolver.ResolveCatalog(r.Context(), query, q.Get("category"))
	}
	if err != nil {
		h.logger.Error("Failed to resolve sign image",
			zap.String("query", logging.SanitizeQuery(query)),
			zap.String("error", logging.SanitizeError(err)))
		h.writeError(w, http.StatusInternalServerError, "resolve_failed", "Failed to resolve sign image")
		return
	}

	h.writeData(w, ResolveResponse{Image: result})
}

// Extract handles GET /api/sign-images/extract?q=.
func (h *SignImagesHandler) Extract(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")

	code, err := h.resolver.ExtractSignCode(r.Context(), query)
	if err != nil {
		h.logger.Error("Failed to extract sign code", zap.String("error", logging.SanitizeError(err)))
		h.writeError(w, http.StatusInternalServerError, "extract_failed", "Failed to extract sign code")
		return
	}

	var resp ExtractResponse
	if code != "" {
		resp.SignCode = &code
	}
	h.writeData(w, resp)
}

// MatchCode handles GET /api/sign-images/codes/{code}.
func (h *SignImagesHandler) MatchCode(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if !services.IsSignCode(code) {
		h.writeError(w, http.StatusBadRequest, "invalid_sign_code", "Invalid sign code format")
		return
	}

	rec, err := h.resolver.MatchExactByCode(r.Context(), code)
	if err != nil {
		h.logger.Error("Failed to match sign code",
			zap.String("code", code),
			zap.String("error", logging.SanitizeError(err)))
		h.writeError(w, http.StatusInternalServerError, "match_failed", "Failed to match sign code")
		return
	}
	if rec == nil {
		h.writeError(w, http.StatusNotFound, "not_found", "No catalog image for sign code")
		return
	}

	h.writeData(w, rec)
}

// RecordUsage handles POST /api/sign-images/{id}/usage.
func (h *SignImagesHandler) RecordUsage(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseImageID(w, r, h.logger)
	if !ok {
		return
	}

	count, err := h.usage.Increment(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Sign image not found")
			return
		}
		h.logger.Error("Failed to record usage",
			zap.String("image_id", id.String()),
			zap.String("error", logging.SanitizeError(err)))
		h.writeError(w, http.StatusInternalServerError, "usage_failed", "Failed to record usage")
		return
	}

	h.writeData(w, UsageResponse{UsageCount: count})
}

func (h *SignImagesHandler) writeData(w http.ResponseWriter, data any) {
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: data}); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (h *SignImagesHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}
