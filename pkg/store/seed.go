package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/herd-sh/herd/pkg/adapters"
	"github.com/herd-sh/herd/pkg/models"
)

// defaultModels is the built-in per-million-token pricing table. Seeded at
// startup when absent so token harvesting prices usage out of the box;
// operators can overwrite rows with their own numbers afterwards.
func defaultModels() []*models.Model {
	return []*models.Model{
		{ID: "claude-opus-4", DisplayName: "Claude Opus 4", InputPrice: 15, OutputPrice: 75, CacheReadPrice: 1.5, CacheWritePrice: 18.75},
		{ID: "claude-sonnet-4", DisplayName: "Claude Sonnet 4", InputPrice: 3, OutputPrice: 15, CacheReadPrice: 0.3, CacheWritePrice: 3.75},
		{ID: "claude-3-5-haiku", DisplayName: "Claude 3.5 Haiku", InputPrice: 0.8, OutputPrice: 4, CacheReadPrice: 0.08, CacheWritePrice: 1},
	}
}

// SeedModels inserts the default pricing rows that are not already present.
// Existing rows are never touched.
func SeedModels(ctx context.Context, s adapters.Store) error {
	seeded := 0
	for _, m := range defaultModels() {
		_, err := s.Get(ctx, models.TypeModel, m.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, adapters.ErrNotFound) {
			return fmt.Errorf("checking model %s: %w", m.ID, err)
		}
		if _, err := s.Save(ctx, m); err != nil {
			return fmt.Errorf("seeding model %s: %w", m.ID, err)
		}
		seeded++
	}
	if seeded > 0 {
		slog.Info("Seeded default model pricing", "models", seeded)
	}
	return nil
}
