//go:build integration

package repositories_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitepulse-io/sitepulse-engine/pkg/models"
	"github.com/sitepulse-io/sitepulse-engine/pkg/repositories"
	"github.com/sitepulse-io/sitepulse-engine/pkg/testhelpers"
)

func TestUnifiedUpsertIdempotent(t *testing.T) {
	db := testhelpers.GetEngineDB(t)
	projects := repositories.NewProjectRepository(db.DB)
	store := repositories.NewUnifiedStore(db.DB)
	ctx := context.Background()

	project := createProject(t, projects)
	lat, lon := 12.9, 77.5
	ts := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	ingestOnce := func() {
		require.NoError(t, store.InTx(ctx, func(tx repositories.UnifiedTx) error {
			id, err := tx.UpsertObject(ctx, &models.UnifiedObject{
				ProjectID:  project.ID,
				ExternalID: "W1",
				Name:       "W1",
				Latitude:   &lat,
				Longitude:  &lon,
				Extra:      map[string]any{"Depth_M": 10.0, "Status": "active"},
			})
			if err != nil {
				return err
			}
			metricID, err := tx.EnsureMetric(ctx, project.ID, "Water Level")
			if err != nil {
				return err
			}
			_, err = tx.UpsertReadings(ctx, []*models.UnifiedReading{{
				ProjectID: project.ID,
				ObjectID:  id,
				MetricID:  metricID,
				Timestamp: ts,
				Value:     3.2,
			}})
			return err
		}))
	}

	ingestOnce()
	ingestOnce()

	objects, err := store.ListObjects(ctx, project.ID)
	require.NoError(t, err)
	require.Len(t, objects, 1, "re-ingestion must not duplicate entities")
	obj := objects[0]
	assert.Equal(t, "W1", obj.ExternalID)
	require.NotNil(t, obj.Latitude)
	assert.InDelta(t, 12.9, *obj.Latitude, 1e-9)
	assert.Equal(t, map[string]any{"Depth_M": 10.0, "Status": "active"}, obj.Extra)

	readings, err := store.ListReadings(ctx, project.ID, repositories.ReadingFilter{})
	require.NoError(t, err)
	require.Len(t, readings, 1, "re-ingestion must not duplicate readings")
	assert.Equal(t, "water_level", readings[0].MetricID)
	assert.InDelta(t, 3.2, readings[0].Value, 1e-9)
}

func TestUnifiedTxRollsBack(t *testing.T) {
	db := testhelpers.GetEngineDB(t)
	projects := repositories.NewProjectRepository(db.DB)
	store := repositories.NewUnifiedStore(db.DB)
	ctx := context.Background()

	project := createProject(t, projects)

	wantErr := fmt.Errorf("abort")
	err := store.InTx(ctx, func(tx repositories.UnifiedTx) error {
		if _, err := tx.UpsertObject(ctx, &models.UnifiedObject{
			ProjectID:  project.ID,
			ExternalID: "ghost",
		}); err != nil {
			return err
		}
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)

	objects, err := store.ListObjects(ctx, project.ID)
	require.NoError(t, err)
	assert.Empty(t, objects, "a failed transaction must leave nothing behind")
}

func TestUnifiedReadingFilters(t *testing.T) {
	db := testhelpers.GetEngineDB(t)
	projects := repositories.NewProjectRepository(db.DB)
	store := repositories.NewUnifiedStore(db.DB)
	ctx := context.Background()

	project := createProject(t, projects)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.InTx(ctx, func(tx repositories.UnifiedTx) error {
		id, err := tx.UpsertObject(ctx, &models.UnifiedObject{ProjectID: project.ID, ExternalID: "S1"})
		if err != nil {
			return err
		}
		for _, name := range []string{"pH", "Water Level"} {
			metricID, err := tx.EnsureMetric(ctx, project.ID, name)
			if err != nil {
				return err
			}
			var readings []*models.UnifiedReading
			for day := 0; day < 5; day++ {
				readings = append(readings, &models.UnifiedReading{
					ProjectID: project.ID,
					ObjectID:  id,
					MetricID:  metricID,
					Timestamp: base.AddDate(0, 0, day),
					Value:     float64(day),
				})
			}
			if _, err := tx.UpsertReadings(ctx, readings); err != nil {
				return err
			}
		}
		return nil
	}))

	all, err := store.ListReadings(ctx, project.ID, repositories.ReadingFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 10)

	ph, err := store.ListReadings(ctx, project.ID, repositories.ReadingFilter{MetricID: "ph"})
	require.NoError(t, err)
	assert.Len(t, ph, 5)

	from := base.AddDate(0, 0, 1)
	to := base.AddDate(0, 0, 3) // exclusive
	window, err := store.ListReadings(ctx, project.ID, repositories.ReadingFilter{
		MetricID: "ph", From: &from, To: &to,
	})
	require.NoError(t, err)
	assert.Len(t, window, 2)

	limited, err := store.ListReadings(ctx, project.ID, repositories.ReadingFilter{Limit: 3})
	require.NoError(t, err)
	assert.Len(t, limited, 3)
}

func TestMetricCatalogSeedAndEnsure(t *testing.T) {
	db := testhelpers.GetEngineDB(t)
	projects := repositories.NewProjectRepository(db.DB)
	catalog := repositories.NewMetricCatalogRepository(db.DB)
	store := repositories.NewUnifiedStore(db.DB)
	ctx := context.Background()

	core := []models.Metric{{ID: "ph", Name: "pH", Unit: ""}}
	require.NoError(t, catalog.SeedCore(ctx, core))
	require.NoError(t, catalog.SeedCore(ctx, core), "re-seeding is idempotent")

	project := createProject(t, projects)

	// EnsureMetric resolves to the core entry instead of duplicating it.
	require.NoError(t, store.InTx(ctx, func(tx repositories.UnifiedTx) error {
		id, err := tx.EnsureMetric(ctx, project.ID, "pH")
		if err != nil {
			return err
		}
		assert.Equal(t, "ph", id)

		// A novel name creates a project-scoped entry.
		id, err = tx.EnsureMetric(ctx, project.ID, "Chloride Concentration")
		if err != nil {
			return err
		}
		assert.Equal(t, "chloride_concentration", id)
		return nil
	}))

	metrics, err := catalog.ListForProject(ctx, project.ID)
	require.NoError(t, err)

	var coreSeen, projectSeen bool
	for _, m := range metrics {
		switch m.ID {
		case "ph":
			coreSeen = true
			assert.True(t, m.IsCore)
			assert.Nil(t, m.ProjectID)
		case "chloride_concentration":
			projectSeen = true
			assert.False(t, m.IsCore)
			require.NotNil(t, m.ProjectID)
			assert.Equal(t, project.ID, *m.ProjectID)
		}
	}
	assert.True(t, coreSeen, "core metric visible to the project")
	assert.True(t, projectSeen, "lazily created metric visible to the project")
}
