// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package services holds thin application services shared by the HTTP
// adapter.
package services

import (
	"context"
	"fmt"

	"github.com/openresponses/inference-gw/pkg/core/schema"
	"github.com/openresponses/inference-gw/pkg/provider"
)

// ModelsService lists the models discovered across the provider pool.
type ModelsService struct {
	pool *provider.Pool
}

// NewModelsService creates a new models service
func NewModelsService(pool *provider.Pool) *ModelsService {
	return &ModelsService{pool: pool}
}

// ListModels returns the models available across all configured backends.
func (s *ModelsService) ListModels(ctx context.Context) (*schema.ListModelsResponse, error) {
	infos, err := s.pool.Models(ctx)
	if err != nil {
		return nil, err
	}
	models := make([]schema.Model, 0, len(infos))
	for _, info := range infos {
		models = append(models, schema.Model{
			ID:      info.ID,
			Object:  "model",
			Created: info.Created,
			OwnedBy: info.OwnedBy,
		})
	}
	return &schema.ListModelsResponse{Object: "list", Data: models}, nil
}

// GetModel returns information about a specific model
func (s *ModelsService) GetModel(ctx context.Context, modelID string) (*schema.Model, error) {
	models, err := s.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	for _, model := range models.Data {
		if model.ID == modelID {
			return &model, nil
		}
	}
	return nil, fmt.Errorf("model not found: %s", modelID)
}
