// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package http

import (
	"net/http"
)

// handleListModels handles GET /v1/models
func (h *Handler) handleListModels(w http.ResponseWriter, r *http.Request) {
	models, err := h.modelsService.ListModels(r.Context())
	if err != nil {
		h.logger.Error("Failed to list models", "error", err)
		h.writeEngineError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, models)
}

// handleGetModel handles GET /v1/models/{id}
func (h *Handler) handleGetModel(w http.ResponseWriter, r *http.Request) {
	modelID := r.PathValue("id")

	model, err := h.modelsService.GetModel(r.Context(), modelID)
	if err != nil {
		h.logger.Error("Failed to get model", "error", err, "model_id", modelID)
		h.writeError(w, http.StatusNotFound, "model_not_found", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, model)
}
