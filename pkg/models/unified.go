package models

import (
	"time"

	"github.com/google/uuid"
)

// UnifiedObject is one canonical monitored entity (a well, site, station).
// Core fields are strictly typed; everything else from the source row lives
// in Extra under its original header name. (project_id, external_id) is
// unique, which makes re-ingestion an upsert rather than a duplicate.
type UnifiedObject struct {
	ID         uuid.UUID      `json:"id"`
	ProjectID  uuid.UUID      `json:"project_id"`
	ExternalID string         `json:"external_id"`
	Name       string         `json:"name,omitempty"`
	Latitude   *float64       `json:"latitude,omitempty"`
	Longitude  *float64       `json:"longitude,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// UnifiedReading is one timestamped metric observation tied to an entity.
// (object_id, metric_id, ts) is unique; re-ingestion upserts.
type UnifiedReading struct {
	ID        int64          `json:"id"`
	ProjectID uuid.UUID      `json:"project_id"`
	ObjectID  uuid.UUID      `json:"object_id"`
	MetricID  string         `json:"metric_id"`
	Timestamp time.Time      `json:"timestamp"`
	Value     float64        `json:"value"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// Metric is a catalog entry normalizing metric identity. Core metrics are
// seeded globally (nil project); the rest are created lazily on first
// encounter of a new metric name within a project.
type Metric struct {
	ID          string     `json:"id"`
	ProjectID   *uuid.UUID `json:"project_id,omitempty"`
	Name        string     `json:"name"`
	Unit        string     `json:"unit,omitempty"`
	Description string     `json:"description,omitempty"`
	IsCore      bool       `json:"is_core"`
}
