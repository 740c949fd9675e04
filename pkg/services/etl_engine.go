package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sitepulse-io/sitepulse-engine/pkg/logging"
	"github.com/sitepulse-io/sitepulse-engine/pkg/models"
	"github.com/sitepulse-io/sitepulse-engine/pkg/repositories"
)

// defaultMetricName is the catalog name used when the mapping has no
// METRIC_NAME column and the dataset declared no metric at upload.
const defaultMetricName = "default_metric"

// IngestError reasons. Drift and storage failures are retryable (retry
// re-runs against current state); a threshold failure means the mapping or
// the data is wrong and retrying the same input cannot succeed.
const (
	IngestReasonDrift     = "drift"
	IngestReasonStorage   = "storage"
	IngestReasonThreshold = "threshold"
)

// IngestError is a dataset-fatal ETL failure. Row-local problems never
// become an IngestError; they accumulate on the IngestResult instead.
type IngestError struct {
	Reason    string
	Message   string
	Retryable bool
}

// Error implements the error interface.
func (e *IngestError) Error() string {
	return fmt.Sprintf("ingestion failed (%s): %s", e.Reason, e.Message)
}

// RowSource supplies raw rows in index order. A non-nil return from fn stops
// the stream and is propagated unchanged.
type RowSource func(ctx context.Context, fn func(index int, cells map[string]string) error) error

// IngestPolicy holds the ETL policy knobs, mirrored from configuration.
type IngestPolicy struct {
	BatchSize         int
	RowErrorLimit     int
	MaxRejectFraction float64
	TimestampLayouts  []string
}

// ETLEngine transforms the raw rows of a confirmed dataset into unified
// objects and readings inside one transaction. It owns no dataset state;
// the lifecycle controller decides what a result or an error means for the
// dataset record.
type ETLEngine struct {
	store  repositories.UnifiedStore
	policy IngestPolicy
	logger *zap.Logger
}

// NewETLEngine creates an ETL engine.
func NewETLEngine(store repositories.UnifiedStore, policy IngestPolicy, logger *zap.Logger) *ETLEngine {
	return &ETLEngine{store: store, policy: policy, logger: logger.Named("etl")}
}

// Ingest runs the full ETL for one dataset. All accepted rows commit
// together or not at all; rejected rows are a normal outcome recorded on the
// result. Context cancellation is observed between write batches and aborts
// the run with the context error, leaving no partial data behind.
func (e *ETLEngine) Ingest(ctx context.Context, dataset *models.Dataset, mapping *models.ColumnMapping, rows RowSource) (*models.IngestResult, error) {
	if err := e.checkDrift(dataset, mapping); err != nil {
		return nil, err
	}

	run := &ingestRun{
		engine:    e,
		dataset:   dataset,
		mapping:   mapping,
		result:    &models.IngestResult{},
		objectIDs: make(map[string]uuid.UUID),
	}

	err := e.store.InTx(ctx, func(tx repositories.UnifiedTx) error {
		run.tx = tx
		if err := rows(ctx, func(index int, cells map[string]string) error {
			return run.processRow(ctx, index, cells)
		}); err != nil {
			return err
		}
		if err := run.flushReadings(ctx); err != nil {
			return err
		}

		// Threshold: rows that produced nothing at all. A row whose entity
		// was written but whose reading was rejected still counts as
		// (partial) progress, so a misassigned timestamp column does not
		// fail an otherwise sound entity ingestion.
		if run.rowsBarren > 0 {
			frac := float64(run.rowsBarren) / float64(run.rowsSeen)
			if frac >= e.policy.MaxRejectFraction {
				return &IngestError{
					Reason: IngestReasonThreshold,
					Message: fmt.Sprintf("%d of %d rows rejected without any output (%.0f%%, limit %.0f%%)",
						run.rowsBarren, run.rowsSeen, frac*100, e.policy.MaxRejectFraction*100),
					Retryable: false,
				}
			}
		}
		return nil
	})
	if err != nil {
		var ingErr *IngestError
		if errors.As(err, &ingErr) {
			return nil, ingErr
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ingestion aborted: %w", ctx.Err())
		}
		return nil, &IngestError{Reason: IngestReasonStorage, Message: logging.SanitizeError(err), Retryable: true}
	}

	e.logger.Info("Dataset ingested",
		zap.String("dataset_id", dataset.ID.String()),
		zap.Int("entities", run.result.EntitiesWritten),
		zap.Int("readings", run.result.ReadingsWritten),
		zap.Int("rejected", run.result.RowsRejected))
	return run.result, nil
}

// checkDrift verifies the confirmed mapping still matches the dataset's
// headers. Headers can change when a dataset is re-uploaded or re-parsed
// between confirmation and ingestion.
func (e *ETLEngine) checkDrift(dataset *models.Dataset, mapping *models.ColumnMapping) error {
	known := make(map[string]bool, len(dataset.Headers))
	for _, h := range dataset.Headers {
		known[h] = true
	}

	var missing []string
	for _, role := range models.CanonicalRoles {
		if col, ok := mapping.RoleColumn(role); ok && !known[col] {
			missing = append(missing, col)
		}
	}
	for col := range mapping.Columns {
		if !known[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return &IngestError{
			Reason:    IngestReasonDrift,
			Message:   fmt.Sprintf("mapping references columns no longer present: %s", strings.Join(missing, ", ")),
			Retryable: true,
		}
	}

	if !mapping.SupportsEntities() && !mapping.SupportsTimeSeries() {
		return &IngestError{
			Reason:    IngestReasonDrift,
			Message:   "mapping no longer supports any ingestion mode",
			Retryable: true,
		}
	}
	return nil
}

// ingestRun is the mutable state of one Ingest invocation.
type ingestRun struct {
	engine  *ETLEngine
	dataset *models.Dataset
	mapping *models.ColumnMapping
	tx      repositories.UnifiedTx
	result  *models.IngestResult

	rowsSeen   int
	rowsBarren int // rows that produced neither an entity nor a reading

	// objectIDs dedupes upserts per external ID within the run and counts
	// distinct entities.
	objectIDs map[string]uuid.UUID

	pendingReadings []*models.UnifiedReading
}

func (r *ingestRun) processRow(ctx context.Context, index int, cells map[string]string) error {
	r.rowsSeen++
	rejected := false
	wrote := false

	obj, rowErr := r.buildObject(index, cells)
	if rowErr != nil {
		r.recordError(*rowErr)
		rejected = true
	} else {
		id, err := r.upsertObject(ctx, obj)
		if err != nil {
			return err
		}
		wrote = true

		if r.mapping.SupportsTimeSeries() {
			reading, rowErr := r.buildReading(ctx, index, cells, id)
			if rowErr != nil {
				r.recordError(*rowErr)
				rejected = true
			} else {
				r.pendingReadings = append(r.pendingReadings, reading)
				if len(r.pendingReadings) >= r.engine.policy.BatchSize {
					if err := r.flushReadings(ctx); err != nil {
						return err
					}
				}
			}
		}
	}

	if rejected {
		r.result.RowsRejected++
	}
	if !wrote {
		r.rowsBarren++
	}
	return nil
}

// buildObject resolves the row's entity identity and assembles the unified
// object, including the extras document from unconsumed columns.
func (r *ingestRun) buildObject(index int, cells map[string]string) (*models.UnifiedObject, *models.RowError) {
	var lat, lon *float64
	if col, ok := r.mapping.RoleColumn(models.RoleLatitude); ok {
		v, rowErr := parseCoordinate(index, col, cells[col], -90, 90)
		if rowErr != nil {
			return nil, rowErr
		}
		lat = v
	}
	if col, ok := r.mapping.RoleColumn(models.RoleLongitude); ok {
		v, rowErr := parseCoordinate(index, col, cells[col], -180, 180)
		if rowErr != nil {
			return nil, rowErr
		}
		lon = v
	}

	externalID := ""
	if col, ok := r.mapping.RoleColumn(models.RoleEntityID); ok {
		externalID = strings.TrimSpace(cells[col])
	}
	if externalID == "" {
		if lat == nil || lon == nil {
			return nil, &models.RowError{Row: index, Reason: "no entity identity: ENTITY_ID empty and coordinates unavailable"}
		}
		externalID = synthesizeID(*lat, *lon)
	}

	return &models.UnifiedObject{
		ProjectID:  r.dataset.ProjectID,
		ExternalID: externalID,
		Name:       externalID,
		Latitude:   lat,
		Longitude:  lon,
		Extra:      r.buildExtra(cells),
	}, nil
}

func (r *ingestRun) upsertObject(ctx context.Context, obj *models.UnifiedObject) (uuid.UUID, error) {
	if id, ok := r.objectIDs[obj.ExternalID]; ok {
		// Still upsert so later rows can contribute coordinates or extras,
		// but count the entity once.
		if _, err := r.tx.UpsertObject(ctx, obj); err != nil {
			return uuid.Nil, err
		}
		return id, nil
	}
	id, err := r.tx.UpsertObject(ctx, obj)
	if err != nil {
		return uuid.Nil, err
	}
	r.objectIDs[obj.ExternalID] = id
	r.result.EntitiesWritten++
	return id, nil
}

// buildReading parses the time-series fields of the row.
func (r *ingestRun) buildReading(ctx context.Context, index int, cells map[string]string, objectID uuid.UUID) (*models.UnifiedReading, *models.RowError) {
	tsCol, _ := r.mapping.RoleColumn(models.RoleTimestamp)
	ts, ok := parseTimestamp(cells[tsCol], r.engine.policy.TimestampLayouts)
	if !ok {
		return nil, &models.RowError{Row: index, Column: tsCol, Reason: fmt.Sprintf("unparseable timestamp %q", cells[tsCol])}
	}

	valCol, _ := r.mapping.RoleColumn(models.RoleMetricValue)
	value, err := strconv.ParseFloat(strings.TrimSpace(cells[valCol]), 64)
	if err != nil {
		return nil, &models.RowError{Row: index, Column: valCol, Reason: fmt.Sprintf("non-numeric value %q", cells[valCol])}
	}

	metricName := ""
	if col, ok := r.mapping.RoleColumn(models.RoleMetricName); ok {
		metricName = strings.TrimSpace(cells[col])
	}
	if metricName == "" {
		if r.dataset.DefaultMetric != nil {
			metricName = *r.dataset.DefaultMetric
		} else {
			metricName = defaultMetricName
		}
	}
	metricID, err := r.tx.EnsureMetric(ctx, r.dataset.ProjectID, metricName)
	if err != nil {
		return nil, &models.RowError{Row: index, Reason: fmt.Sprintf("metric %q: %v", metricName, err)}
	}

	return &models.UnifiedReading{
		ProjectID: r.dataset.ProjectID,
		ObjectID:  objectID,
		MetricID:  metricID,
		Timestamp: ts,
		Value:     value,
		Extra:     r.buildExtra(cells),
	}, nil
}

func (r *ingestRun) flushReadings(ctx context.Context) error {
	if len(r.pendingReadings) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	n, err := r.tx.UpsertReadings(ctx, r.pendingReadings)
	if err != nil {
		return err
	}
	r.result.ReadingsWritten += n
	r.pendingReadings = r.pendingReadings[:0]
	return nil
}

// recordError appends a row error up to the configured cap; past it, only
// the overflow count grows.
func (r *ingestRun) recordError(rowErr models.RowError) {
	if len(r.result.Errors) < r.engine.policy.RowErrorLimit {
		r.result.Errors = append(r.result.Errors, rowErr)
	} else {
		r.result.Overflow++
	}
}

// buildExtra collects every classified, unconsumed column into the open
// extras document. Numeric-looking values in NUMERICAL columns are coerced;
// coercion failure keeps the raw string rather than failing the row.
func (r *ingestRun) buildExtra(cells map[string]string) map[string]any {
	extra := make(map[string]any)
	for col, class := range r.mapping.Columns {
		if class == models.ClassIgnored {
			continue
		}
		raw, ok := cells[col]
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		if class == models.ClassNumerical {
			if v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
				extra[col] = v
				continue
			}
		}
		extra[col] = raw
	}
	if len(extra) == 0 {
		return nil
	}
	return extra
}

// synthesizeID derives a stable entity identifier from coordinates, for
// sources that carry no explicit ID. Coordinates are fixed to six decimal
// places (about 0.1m) so float formatting noise does not split entities.
func synthesizeID(lat, lon float64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%.6f,%.6f", lat, lon)))
	return "geo-" + hex.EncodeToString(sum[:8])
}

func parseCoordinate(index int, col, raw string, min, max float64) (*float64, *models.RowError) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, &models.RowError{Row: index, Column: col, Reason: fmt.Sprintf("non-numeric coordinate %q", raw)}
	}
	if v < min || v > max {
		return nil, &models.RowError{Row: index, Column: col, Reason: fmt.Sprintf("coordinate %g out of range [%g, %g]", v, min, max)}
	}
	return &v, nil
}

func parseTimestamp(raw string, layouts []string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
