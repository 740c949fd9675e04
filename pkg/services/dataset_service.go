package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sitepulse-io/sitepulse-engine/pkg/apperrors"
	"github.com/sitepulse-io/sitepulse-engine/pkg/blobstore"
	"github.com/sitepulse-io/sitepulse-engine/pkg/logging"
	"github.com/sitepulse-io/sitepulse-engine/pkg/metrics"
	"github.com/sitepulse-io/sitepulse-engine/pkg/models"
	"github.com/sitepulse-io/sitepulse-engine/pkg/repositories"
	"github.com/sitepulse-io/sitepulse-engine/pkg/tabular"
)

// DatasetService is the dataset lifecycle controller: the single writer of
// dataset status. Every status change goes through the repository's guarded
// transition, so concurrent drivers of the same dataset serialize on the
// (status, revision) check instead of a lock held across slow calls.
type DatasetService struct {
	datasets  repositories.DatasetRepository
	rows      repositories.DatasetRowRepository
	projects  repositories.ProjectRepository
	inference *InferenceService
	validator *MappingValidator
	etl       *ETLEngine
	blob      blobstore.Store // nil disables the original-file archive
	batchSize int
	logger    *zap.Logger
}

// NewDatasetService creates the dataset lifecycle controller.
func NewDatasetService(
	datasets repositories.DatasetRepository,
	rows repositories.DatasetRowRepository,
	projects repositories.ProjectRepository,
	inference *InferenceService,
	validator *MappingValidator,
	etl *ETLEngine,
	blob blobstore.Store,
	batchSize int,
	logger *zap.Logger,
) *DatasetService {
	return &DatasetService{
		datasets:  datasets,
		rows:      rows,
		projects:  projects,
		inference: inference,
		validator: validator,
		etl:       etl,
		blob:      blob,
		batchSize: batchSize,
		logger:    logger.Named("dataset"),
	}
}

// Upload parses a tabular file, persists its raw rows and registers the
// dataset in UPLOADED. Parse failure means no dataset exists afterwards.
func (s *DatasetService) Upload(ctx context.Context, projectID uuid.UUID, filename string, file io.Reader, defaultMetric string) (*models.Dataset, error) {
	if _, err := s.projects.Get(ctx, projectID); err != nil {
		return nil, err
	}

	// The archive wants the original bytes; tee them while parsing.
	var archived bytes.Buffer
	src := file
	if s.blob != nil {
		src = io.TeeReader(file, &archived)
	}

	var records [][]string
	skipped := 0
	headers, rowCount, err := tabular.Stream(ctx, src, tabular.Options{TrimSpace: true},
		func(index int, cells []string) error {
			records = append(records, append([]string(nil), cells...))
			return nil
		},
		func(line int, err error) {
			skipped++
			s.logger.Debug("Skipped malformed line", zap.Int("line", line), zap.Error(err))
		})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrMalformedUpload, err)
	}
	if rowCount == 0 {
		return nil, fmt.Errorf("%w: no data rows", apperrors.ErrMalformedUpload)
	}

	rows := make([]map[string]string, len(records))
	for i, cells := range records {
		row := make(map[string]string, len(headers))
		for j, h := range headers {
			row[h] = cells[j]
		}
		rows[i] = row
	}
	if skipped > 0 {
		s.logger.Warn("Upload contained malformed lines",
			zap.String("filename", filename), zap.Int("skipped", skipped))
	}

	dataset := &models.Dataset{
		ID:               uuid.New(),
		ProjectID:        projectID,
		OriginalFilename: filename,
		Headers:          headers,
		RowCount:         rowCount,
		Status:           models.DatasetStatusUploaded,
	}
	if defaultMetric != "" {
		dataset.DefaultMetric = &defaultMetric
	}
	if err := s.datasets.Create(ctx, dataset); err != nil {
		return nil, err
	}

	for start := 0; start < len(rows); start += s.batchSize {
		end := min(start+s.batchSize, len(rows))
		if err := s.rows.InsertBatch(ctx, dataset.ID, start, rows[start:end]); err != nil {
			return nil, err
		}
	}

	if s.blob != nil {
		key := blobstore.DatasetKey(projectID.String(), dataset.ID.String(), filename)
		if err := s.blob.Put(ctx, key, &archived, "text/csv"); err != nil {
			// The archive is best-effort; Postgres holds the parsed rows.
			s.logger.Warn("Failed to archive original upload",
				zap.String("dataset_id", dataset.ID.String()), zap.Error(err))
		} else if err := s.datasets.SetStorageKey(ctx, dataset.ID, key); err != nil {
			return nil, err
		} else {
			dataset.StorageKey = key
		}
	}

	s.logger.Info("Dataset uploaded",
		zap.String("dataset_id", dataset.ID.String()),
		zap.String("project_id", projectID.String()),
		zap.Int("rows", rowCount))
	return dataset, nil
}

// Analyze drives UPLOADED/ANALYZED/FAILED(retryable) through ANALYZING and
// stores a fresh mapping proposal, overwriting any previous one.
func (s *DatasetService) Analyze(ctx context.Context, id uuid.UUID) (*models.Dataset, error) {
	dataset, err := s.datasets.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkTransition(dataset, models.DatasetStatusAnalyzing); err != nil {
		return nil, err
	}

	analyzing, err := s.datasets.Transition(ctx, dataset.ID, dataset.Status, dataset.Revision,
		models.DatasetStatusAnalyzing, repositories.StatusUpdate{})
	if err != nil {
		return nil, err
	}
	return s.runAnalysis(ctx, analyzing)
}

// runAnalysis assumes the dataset is in ANALYZING and owns driving it to
// ANALYZED or FAILED.
func (s *DatasetService) runAnalysis(ctx context.Context, dataset *models.Dataset) (*models.Dataset, error) {
	sample, err := s.rows.SampleRows(ctx, dataset.ID, dataset.Headers, s.inference.SampleLimit())
	if err != nil {
		return s.fail(ctx, dataset, logging.SanitizeError(err), true, err)
	}

	// The inference call happens outside any transaction or lock; only the
	// optimistic check below decides whose proposal wins.
	mapping, err := s.inference.Propose(ctx, dataset.Headers, sample)
	if err != nil {
		return s.fail(ctx, dataset, "mapping inference unavailable: "+logging.SanitizeError(err), true, err)
	}

	analyzed, err := s.datasets.Transition(ctx, dataset.ID, models.DatasetStatusAnalyzing, dataset.Revision,
		models.DatasetStatusAnalyzed, repositories.StatusUpdate{Mapping: mapping})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Dataset analyzed", zap.String("dataset_id", dataset.ID.String()))
	return analyzed, nil
}

// Confirm validates a user-edited mapping and, on success, drives the
// dataset through CONFIRMED and INGESTING to its final state. A validation
// failure changes nothing.
func (s *DatasetService) Confirm(ctx context.Context, id uuid.UUID, submitted *models.ColumnMapping) (*models.Dataset, *models.IngestResult, error) {
	dataset, err := s.datasets.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if err := s.checkTransition(dataset, models.DatasetStatusConfirmed); err != nil {
		return nil, nil, err
	}

	validated, err := s.validator.Validate(submitted, dataset.Headers)
	if err != nil {
		return nil, nil, err
	}

	confirmed, err := s.datasets.Transition(ctx, dataset.ID, dataset.Status, dataset.Revision,
		models.DatasetStatusConfirmed, repositories.StatusUpdate{Mapping: validated})
	if err != nil {
		return nil, nil, err
	}

	ingesting, err := s.datasets.Transition(ctx, confirmed.ID, models.DatasetStatusConfirmed, confirmed.Revision,
		models.DatasetStatusIngesting, repositories.StatusUpdate{Mapping: validated})
	if err != nil {
		return nil, nil, err
	}
	return s.runIngestion(ctx, ingesting)
}

// Retry re-drives a FAILED(retryable) dataset. With a confirmed mapping
// that still fits the headers it goes straight back to ingestion; otherwise
// it re-enters analysis.
func (s *DatasetService) Retry(ctx context.Context, id uuid.UUID) (*models.Dataset, *models.IngestResult, error) {
	dataset, err := s.datasets.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !dataset.CanRetry() {
		return nil, nil, fmt.Errorf("%w: dataset is %s and cannot be retried", apperrors.ErrConflict, dataset.Status)
	}

	if dataset.Mapping != nil {
		if _, verr := s.validator.Validate(dataset.Mapping, dataset.Headers); verr == nil {
			ingesting, err := s.datasets.Transition(ctx, dataset.ID, dataset.Status, dataset.Revision,
				models.DatasetStatusIngesting, repositories.StatusUpdate{})
			if err != nil {
				return nil, nil, err
			}
			return s.runIngestion(ctx, ingesting)
		}
	}

	analyzing, err := s.datasets.Transition(ctx, dataset.ID, dataset.Status, dataset.Revision,
		models.DatasetStatusAnalyzing, repositories.StatusUpdate{})
	if err != nil {
		return nil, nil, err
	}
	analyzed, err := s.runAnalysis(ctx, analyzing)
	return analyzed, nil, err
}

// runIngestion assumes the dataset is in INGESTING and owns driving it to
// INGESTED or FAILED.
func (s *DatasetService) runIngestion(ctx context.Context, dataset *models.Dataset) (*models.Dataset, *models.IngestResult, error) {
	src := func(ctx context.Context, fn func(index int, cells map[string]string) error) error {
		return s.rows.StreamRows(ctx, dataset.ID, fn)
	}

	result, err := s.etl.Ingest(ctx, dataset, dataset.Mapping, src)
	if err != nil {
		var ingErr *IngestError
		retryable := true
		// The message ends up in datasets.error_message and in API
		// responses; strip anything that looks like a credential first.
		message := logging.SanitizeError(err)
		if errors.As(err, &ingErr) {
			retryable = ingErr.Retryable
		}
		failed, ferr := s.fail(ctx, dataset, message, retryable, err)
		return failed, nil, ferr
	}

	ingested, err := s.datasets.Transition(ctx, dataset.ID, models.DatasetStatusIngesting, dataset.Revision,
		models.DatasetStatusIngested, repositories.StatusUpdate{})
	if err != nil {
		return nil, nil, err
	}

	metrics.DatasetsIngested.Inc()
	metrics.EntitiesWritten.Add(float64(result.EntitiesWritten))
	metrics.ReadingsWritten.Add(float64(result.ReadingsWritten))
	metrics.RowsRejected.Add(float64(result.RowsRejected))
	s.logger.Info("Dataset ingestion finished",
		zap.String("dataset_id", dataset.ID.String()),
		zap.String("summary", result.Summary()))
	return ingested, result, nil
}

// fail moves the dataset to FAILED carrying the message and retryability,
// then returns the original error. A lost race on the way to FAILED is
// logged, not masked: the original failure is what the caller needs.
func (s *DatasetService) fail(ctx context.Context, dataset *models.Dataset, message string, retryable bool, cause error) (*models.Dataset, error) {
	failed, err := s.datasets.Transition(ctx, dataset.ID, dataset.Status, dataset.Revision,
		models.DatasetStatusFailed, repositories.StatusUpdate{ErrorMessage: &message, Retryable: retryable})
	if err != nil {
		s.logger.Error("Failed to record dataset failure",
			zap.String("dataset_id", dataset.ID.String()), zap.Error(err))
		return nil, cause
	}
	metrics.DatasetsFailed.WithLabelValues(fmt.Sprintf("%t", retryable)).Inc()
	return failed, cause
}

// Get returns one dataset.
func (s *DatasetService) Get(ctx context.Context, id uuid.UUID) (*models.Dataset, error) {
	return s.datasets.Get(ctx, id)
}

// List returns a project's datasets, newest first.
func (s *DatasetService) List(ctx context.Context, projectID uuid.UUID) ([]*models.Dataset, error) {
	if _, err := s.projects.Get(ctx, projectID); err != nil {
		return nil, err
	}
	return s.datasets.ListByProject(ctx, projectID)
}

// checkTransition rejects requests whose target state is not reachable from
// the dataset's current state, including non-retryable FAILED.
func (s *DatasetService) checkTransition(dataset *models.Dataset, target models.DatasetStatus) error {
	if dataset.Status == models.DatasetStatusFailed && !dataset.Retryable {
		return fmt.Errorf("%w: dataset failed permanently: %s", apperrors.ErrConflict, deref(dataset.ErrorMessage))
	}
	if !dataset.Status.CanTransitionTo(target) {
		return fmt.Errorf("%w: cannot move dataset from %s to %s", apperrors.ErrConflict, dataset.Status, target)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
