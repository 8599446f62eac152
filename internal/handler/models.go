package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/pocketllama/chat-relay/internal/backend"
	"github.com/pocketllama/chat-relay/internal/upstream"
	"github.com/pocketllama/chat-relay/pkg/logger"
)

// ModelsHandler serves the available-models endpoint, backed by the local
// daemon when reachable and by the on-disk cache otherwise.
type ModelsHandler struct {
	client   upstream.Client
	cache    *backend.ModelCache
	provider backend.Provider
	logger   *logger.Logger
}

// NewModelsHandler creates a new models handler.
func NewModelsHandler(client upstream.Client, cache *backend.ModelCache, provider backend.Provider, log *logger.Logger) *ModelsHandler {
	return &ModelsHandler{client: client, cache: cache, provider: provider, logger: log}
}

type modelsResponse struct {
	Models []json.RawMessage `json:"models"`
}

// List handles GET /api/models
func (h *ModelsHandler) List(w http.ResponseWriter, r *http.Request) {
	// Cloud and offline modes serve whatever the last successful local
	// probe cached; the cloud API has no tags endpoint to proxy.
	if h.provider.Mode() != backend.ModeLocal {
		writeJSON(w, http.StatusOK, modelsResponse{Models: h.cache.Load()})
		return
	}

	tags, err := h.client.ListLocalModels(r.Context())
	if err != nil {
		h.logger.Error("model fetch failed", zap.Error(err))
		// Live fetch failing in local mode still falls back to the cache.
		if cached := h.cache.Load(); len(cached) > 0 {
			writeJSON(w, http.StatusOK, modelsResponse{Models: cached})
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to list models")
		return
	}

	if len(tags.Models) > 0 {
		h.cache.Save(tags.Models)
	}
	writeJSON(w, http.StatusOK, modelsResponse{Models: tags.Models})
}
