/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"klytic-pay-go/internal/models"

	"go.uber.org/zap"
)

// GetPriceSnapshot returns the cached row for token, or (nil, nil) if none exists.
func (s *Service) GetPriceSnapshot(ctx context.Context, token string) (*models.PriceSnapshot, error) {
	var snapshot models.PriceSnapshot
	err := s.db.QueryRowContext(ctx, queryGetPriceSnapshot, token).Scan(
		&snapshot.Token, &snapshot.PriceUsd, &snapshot.Source, &snapshot.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("unable to query price snapshot: %w", err)
	}
	snapshot.UpdatedAt = snapshot.UpdatedAt.UTC()
	return &snapshot, nil
}

func (s *Service) UpsertPriceSnapshot(ctx context.Context, snapshot models.PriceSnapshot) error {
	_, err := s.db.ExecContext(ctx, queryUpsertPriceSnapshot,
		snapshot.Token, snapshot.PriceUsd.String(), snapshot.Source, snapshot.UpdatedAt.UTC())
	if err != nil {
		zap.L().Error("Failed to upsert price snapshot", zap.String("token", snapshot.Token), zap.Error(err))
		return fmt.Errorf("unable to upsert price snapshot: %w", err)
	}
	return nil
}
