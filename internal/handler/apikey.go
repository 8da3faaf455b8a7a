package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/nodegate/nodegate/internal/auth"
	"github.com/nodegate/nodegate/internal/model"
	"github.com/nodegate/nodegate/internal/repository"
)

// APIKeyHandler handles API key lifecycle requests.
type APIKeyHandler struct {
	keys   KeyStore
	cache  KeyCache
	logger *slog.Logger
}

// NewAPIKeyHandler creates a new APIKeyHandler.
func NewAPIKeyHandler(keys KeyStore, cache KeyCache, logger *slog.Logger) *APIKeyHandler {
	return &APIKeyHandler{
		keys:   keys,
		cache:  cache,
		logger: logger,
	}
}

type keyRequestBody struct {
	APIKey string `json:"api_key"`
}

type keyListResponse struct {
	Keys []model.KeyWithRequests `json:"keys"`
}

// GetAPIKey handles GET /getapikey. It mints a new key for the
// session user and returns the user's full key listing, each key with
// its recorded requests.
func (h *APIKeyHandler) GetAPIKey(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	key := &model.APIKey{
		ID:        ulid.Make().String(),
		UserID:    userID,
		KeyValue:  newKeyValue(),
		Enabled:   true,
		CreatedAt: time.Now().UTC(),
	}

	if err := h.keys.CreateAPIKey(r.Context(), key); err != nil {
		h.internalError(w, "failed to create API key", err)
		return
	}

	h.logger.Info("api_key_created",
		"key_id", key.ID,
		"user_id", userID,
	)

	keys, err := h.keys.ListKeysWithRequests(r.Context(), userID)
	if err != nil {
		h.internalError(w, "failed to list API keys", err)
		return
	}

	if keys == nil {
		keys = []model.KeyWithRequests{}
	}

	writeJSON(w, http.StatusOK, keyListResponse{Keys: keys})
}

// EnableKey handles POST /enablekey.
func (h *APIKeyHandler) EnableKey(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, true)
}

// DisableKey handles POST /disablekey.
func (h *APIKeyHandler) DisableKey(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, false)
}

func (h *APIKeyHandler) setEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	keyValue, ok := h.ownedKeyValue(w, r)
	if !ok {
		return
	}

	if err := h.keys.SetAPIKeyEnabled(r.Context(), keyValue, enabled); err != nil {
		if errors.Is(err, repository.ErrAPIKeyNotFound) {
			writeError(w, http.StatusNotFound, "KEY_NOT_FOUND", "API key not found")
			return
		}
		h.internalError(w, "failed to update API key", err)
		return
	}

	// Drop the cached record so the flipped flag takes effect at once.
	if err := h.cache.DeleteAPIKey(r.Context(), keyValue); err != nil {
		h.logger.Warn("failed to invalidate API key cache", "error", err)
	}

	h.logger.Info("api_key_updated",
		"user_id", auth.UserIDFromContext(r.Context()),
		"enabled", enabled,
	)

	writeJSON(w, http.StatusOK, map[string]any{"key": keyValue, "enabled": enabled})
}

// DeleteKey handles POST /deletekey. Usage records go with the key via
// the schema's cascade.
func (h *APIKeyHandler) DeleteKey(w http.ResponseWriter, r *http.Request) {
	keyValue, ok := h.ownedKeyValue(w, r)
	if !ok {
		return
	}

	if err := h.keys.DeleteAPIKey(r.Context(), keyValue); err != nil {
		if errors.Is(err, repository.ErrAPIKeyNotFound) {
			writeError(w, http.StatusNotFound, "KEY_NOT_FOUND", "API key not found")
			return
		}
		h.internalError(w, "failed to delete API key", err)
		return
	}

	if err := h.cache.DeleteAPIKey(r.Context(), keyValue); err != nil {
		h.logger.Warn("failed to invalidate API key cache", "error", err)
	}

	h.logger.Info("api_key_deleted",
		"user_id", auth.UserIDFromContext(r.Context()),
	)

	writeJSON(w, http.StatusOK, map[string]string{"key": keyValue})
}

// ownedKeyValue parses the request body and verifies the named key
// exists and belongs to the session user. A key owned by someone else
// is reported the same way as an absent one. The returned value is the
// canonical UUID form, so store and cache operate on the same string
// no matter how the client spelled it.
func (h *APIKeyHandler) ownedKeyValue(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req keyRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return "", false
	}

	u, err := uuid.Parse(req.APIKey)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "api_key must be a UUID")
		return "", false
	}
	keyValue := u.String()

	key, err := h.keys.GetAPIKeyByValue(r.Context(), keyValue)
	if err != nil {
		if errors.Is(err, repository.ErrAPIKeyNotFound) {
			writeError(w, http.StatusNotFound, "KEY_NOT_FOUND", "API key not found")
			return "", false
		}
		h.internalError(w, "failed to look up API key", err)
		return "", false
	}

	if key.UserID != auth.UserIDFromContext(r.Context()) {
		writeError(w, http.StatusNotFound, "KEY_NOT_FOUND", "API key not found")
		return "", false
	}

	return keyValue, true
}

func (h *APIKeyHandler) internalError(w http.ResponseWriter, msg string, err error) {
	h.logger.Error(msg, "error", err)
	writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred")
}

// newKeyValue mints a fresh API key value.
func newKeyValue() string {
	return uuid.New().String()
}
