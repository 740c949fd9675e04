package repositories

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/jinzhu/inflection"

	"github.com/sitepulse-io/sitepulse-engine/pkg/database"
	"github.com/sitepulse-io/sitepulse-engine/pkg/models"
)

// MetricID derives a stable catalog slug from a raw metric name, e.g.
// "Water Levels (m)" -> "water_level_m". Plural last words are singularized
// so "levels" and "level" land on the same catalog entry.
func MetricID(name string) string {
	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore:
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	slug := strings.Trim(b.String(), "_")
	if slug == "" {
		return slug
	}

	parts := strings.Split(slug, "_")
	for i, p := range parts {
		parts[i] = inflection.Singular(p)
	}
	return strings.Join(parts, "_")
}

// MetricCatalogRepository manages catalog entries outside of ETL
// transactions: startup seeding of core metrics and catalog reads.
// Lazy per-project creation during ingestion goes through UnifiedTx.
type MetricCatalogRepository interface {
	// SeedCore upserts the core metric set. Core metrics have a nil project
	// and are visible to every project; re-seeding is idempotent.
	SeedCore(ctx context.Context, metrics []models.Metric) error
	// ListForProject returns core metrics plus the project's own entries.
	ListForProject(ctx context.Context, projectID uuid.UUID) ([]*models.Metric, error)
}

type metricCatalogRepository struct {
	db *database.DB
}

// NewMetricCatalogRepository creates a new metric catalog repository.
func NewMetricCatalogRepository(db *database.DB) MetricCatalogRepository {
	return &metricCatalogRepository{db: db}
}

func (r *metricCatalogRepository) SeedCore(ctx context.Context, metrics []models.Metric) error {
	for _, m := range metrics {
		id := m.ID
		if id == "" {
			id = MetricID(m.Name)
		}
		_, err := r.db.Exec(ctx, `
			INSERT INTO metric_catalog (project_id, id, name, unit, description, is_core)
			VALUES ($1, $2, $3, $4, $5, TRUE)
			ON CONFLICT (project_id, id) DO UPDATE
			SET name = EXCLUDED.name,
			    unit = EXCLUDED.unit,
			    description = EXCLUDED.description,
			    is_core = TRUE`,
			coreProjectID, id, m.Name, m.Unit, m.Description)
		if err != nil {
			return fmt.Errorf("failed to seed metric %q: %w", id, err)
		}
	}
	return nil
}

func (r *metricCatalogRepository) ListForProject(ctx context.Context, projectID uuid.UUID) ([]*models.Metric, error) {
	rows, err := r.db.Query(ctx, `
		SELECT project_id, id, name, unit, description, is_core
		FROM metric_catalog
		WHERE project_id = $1 OR project_id = $2
		ORDER BY is_core DESC, id`, coreProjectID, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list metrics: %w", err)
	}
	defer rows.Close()

	var metrics []*models.Metric
	for rows.Next() {
		var m models.Metric
		var pid uuid.UUID
		if err := rows.Scan(&pid, &m.ID, &m.Name, &m.Unit, &m.Description, &m.IsCore); err != nil {
			return nil, fmt.Errorf("failed to scan metric: %w", err)
		}
		if pid != coreProjectID {
			m.ProjectID = &pid
		}
		metrics = append(metrics, &m)
	}
	return metrics, rows.Err()
}
