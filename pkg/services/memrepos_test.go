package services

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/sitepulse-io/sitepulse-engine/pkg/apperrors"
	"github.com/sitepulse-io/sitepulse-engine/pkg/models"
	"github.com/sitepulse-io/sitepulse-engine/pkg/repositories"
)

// memProjectRepo is an in-memory ProjectRepository.
type memProjectRepo struct {
	mu       sync.Mutex
	projects map[uuid.UUID]*models.Project
}

func newMemProjectRepo() *memProjectRepo {
	return &memProjectRepo{projects: make(map[uuid.UUID]*models.Project)}
}

func (r *memProjectRepo) Create(ctx context.Context, p *models.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	stored := *p
	r.projects[p.ID] = &stored
	return nil
}

func (r *memProjectRepo) Get(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	out := *p
	return &out, nil
}

func (r *memProjectRepo) List(ctx context.Context) ([]*models.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Project
	for _, p := range r.projects {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

// memDatasetRepo is an in-memory DatasetRepository with the same guarded
// transition semantics as the SQL implementation. beforeTransition, when
// set, runs just before the guard check; tests use it to line up races.
type memDatasetRepo struct {
	mu               sync.Mutex
	datasets         map[uuid.UUID]*models.Dataset
	beforeTransition func()
}

func newMemDatasetRepo() *memDatasetRepo {
	return &memDatasetRepo{datasets: make(map[uuid.UUID]*models.Dataset)}
}

func (r *memDatasetRepo) Create(ctx context.Context, d *models.Dataset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.Status == "" {
		d.Status = models.DatasetStatusUploaded
	}
	stored := cloneDataset(d)
	r.datasets[d.ID] = stored
	return nil
}

func (r *memDatasetRepo) Get(ctx context.Context, id uuid.UUID) (*models.Dataset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.datasets[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return cloneDataset(d), nil
}

func (r *memDatasetRepo) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Dataset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Dataset
	for _, d := range r.datasets {
		if d.ProjectID == projectID {
			out = append(out, cloneDataset(d))
		}
	}
	return out, nil
}

func (r *memDatasetRepo) SetStorageKey(ctx context.Context, id uuid.UUID, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.datasets[id]; ok {
		d.StorageKey = key
	}
	return nil
}

func (r *memDatasetRepo) Transition(ctx context.Context, id uuid.UUID, expected models.DatasetStatus, expectedRevision int64, to models.DatasetStatus, upd repositories.StatusUpdate) (*models.Dataset, error) {
	if r.beforeTransition != nil {
		r.beforeTransition()
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.datasets[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	if d.Status != expected || d.Revision != expectedRevision {
		return nil, apperrors.ErrStaleTransition
	}

	d.Status = to
	d.Revision++
	if upd.Mapping != nil {
		d.Mapping = upd.Mapping.Clone()
	}
	d.ErrorMessage = upd.ErrorMessage
	d.Retryable = upd.Retryable
	return cloneDataset(d), nil
}

func cloneDataset(d *models.Dataset) *models.Dataset {
	out := *d
	out.Headers = append([]string(nil), d.Headers...)
	if d.Mapping != nil {
		out.Mapping = d.Mapping.Clone()
	}
	if d.ErrorMessage != nil {
		msg := *d.ErrorMessage
		out.ErrorMessage = &msg
	}
	return &out
}

// memRowRepo is an in-memory DatasetRowRepository.
type memRowRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID][]map[string]string
}

func newMemRowRepo() *memRowRepo {
	return &memRowRepo{rows: make(map[uuid.UUID][]map[string]string)}
}

func (r *memRowRepo) InsertBatch(ctx context.Context, datasetID uuid.UUID, startIndex int, rows []map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[datasetID] = append(r.rows[datasetID], rows...)
	return nil
}

func (r *memRowRepo) StreamRows(ctx context.Context, datasetID uuid.UUID, fn func(index int, cells map[string]string) error) error {
	r.mu.Lock()
	rows := r.rows[datasetID]
	r.mu.Unlock()
	for i, cells := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(i, cells); err != nil {
			return err
		}
	}
	return nil
}

func (r *memRowRepo) SampleRows(ctx context.Context, datasetID uuid.UUID, headers []string, limit int) ([][]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out [][]string
	for _, cells := range r.rows[datasetID] {
		if len(out) >= limit {
			break
		}
		row := make([]string, len(headers))
		for i, h := range headers {
			row[i] = cells[h]
		}
		out = append(out, row)
	}
	return out, nil
}

// count reports the stored rows for assertions.
func (r *memRowRepo) count(datasetID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows[datasetID])
}
