package services

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sitepulse-io/sitepulse-engine/pkg/models"
	"github.com/sitepulse-io/sitepulse-engine/pkg/repositories"
)

// catalogSeedFile is the YAML shape of the core metric seed file.
type catalogSeedFile struct {
	Metrics []struct {
		ID          string `yaml:"id"`
		Name        string `yaml:"name"`
		Unit        string `yaml:"unit"`
		Description string `yaml:"description"`
	} `yaml:"metrics"`
}

// SeedMetricCatalog loads the core metric definitions from path and upserts
// them. Safe to run on every startup; a missing or empty path is a no-op.
func SeedMetricCatalog(ctx context.Context, path string, catalog repositories.MetricCatalogRepository, logger *zap.Logger) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read metric seed file: %w", err)
	}

	var seed catalogSeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("failed to parse metric seed file: %w", err)
	}

	metrics := make([]models.Metric, 0, len(seed.Metrics))
	for _, m := range seed.Metrics {
		if m.Name == "" {
			return fmt.Errorf("metric seed entry without a name in %s", path)
		}
		metrics = append(metrics, models.Metric{
			ID:          m.ID,
			Name:        m.Name,
			Unit:        m.Unit,
			Description: m.Description,
			IsCore:      true,
		})
	}

	if err := catalog.SeedCore(ctx, metrics); err != nil {
		return err
	}
	logger.Info("Metric catalog seeded", zap.Int("metrics", len(metrics)))
	return nil
}
