package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/nodegate/nodegate/internal/auth"
	"github.com/nodegate/nodegate/internal/model"
	"github.com/nodegate/nodegate/internal/node"
	"github.com/nodegate/nodegate/internal/repository"
)

// NodeInvoker triggers the node's reprovide action.
type NodeInvoker interface {
	Reprovide(ctx context.Context) (*node.Response, error)
}

// NodeHandler gates node actions behind API key checks.
type NodeHandler struct {
	keys   KeyStore
	cache  KeyCache
	usage  UsageStore
	node   NodeInvoker
	logger *slog.Logger
}

// NewNodeHandler creates a new NodeHandler.
func NewNodeHandler(keys KeyStore, cache KeyCache, usage UsageStore, invoker NodeInvoker, logger *slog.Logger) *NodeHandler {
	return &NodeHandler{
		keys:   keys,
		cache:  cache,
		usage:  usage,
		node:   invoker,
		logger: logger,
	}
}

// InteractNode handles POST /interactnode. The request names an API
// key; if it exists, belongs to the session user and is enabled, a
// usage record is written and the node action fires. The node's raw
// response body is passed through to the client.
func (h *NodeHandler) InteractNode(w http.ResponseWriter, r *http.Request) {
	var req keyRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}
	u, err := uuid.Parse(req.APIKey)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "api_key must be a UUID")
		return
	}

	// Canonical form only past this point, so the cache entry written
	// here is the same one the lifecycle handlers invalidate.
	key, err := h.lookupKey(r.Context(), u.String())
	if err != nil {
		if errors.Is(err, repository.ErrAPIKeyNotFound) {
			writeError(w, http.StatusNotFound, "KEY_NOT_FOUND", "API key not found")
			return
		}
		h.logger.Error("failed to look up API key", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred")
		return
	}

	// A key owned by another user reads the same as an absent one.
	if key.UserID != auth.UserIDFromContext(r.Context()) {
		writeError(w, http.StatusNotFound, "KEY_NOT_FOUND", "API key not found")
		return
	}

	if !key.Enabled {
		writeError(w, http.StatusPreconditionFailed, "KEY_DISABLED", "API key is disabled")
		return
	}

	if _, err := h.usage.RecordKeyRequest(r.Context(), key.ID); err != nil {
		h.logger.Error("failed to record key usage", "error", err, "key_id", key.ID)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred")
		return
	}

	resp, err := h.node.Reprovide(r.Context())
	if err != nil {
		h.logger.Error("node action failed", "error", err, "key_id", key.ID)
		writeError(w, http.StatusInternalServerError, "NODE_ERROR", "node action failed")
		return
	}

	h.logger.Info("node_action_invoked",
		"key_id", key.ID,
		"user_id", key.UserID,
		"node_status", resp.StatusCode,
	)

	contentType := resp.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(resp.Body); err != nil {
		_ = err
	}
}

// lookupKey reads through the cache; a hit skips Postgres entirely.
func (h *NodeHandler) lookupKey(ctx context.Context, keyValue string) (*model.APIKey, error) {
	if cached, err := h.cache.GetAPIKey(ctx, keyValue); err == nil && cached != nil {
		return cached, nil
	}

	key, err := h.keys.GetAPIKeyByValue(ctx, keyValue)
	if err != nil {
		return nil, err
	}

	if err := h.cache.SetAPIKey(ctx, key); err != nil {
		h.logger.Warn("failed to cache API key", "error", err)
	}
	return key, nil
}
