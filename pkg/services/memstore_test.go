package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/sitepulse-io/sitepulse-engine/pkg/models"
	"github.com/sitepulse-io/sitepulse-engine/pkg/repositories"
)

// memStore is an in-memory UnifiedStore with transactional semantics: a
// failed InTx leaves the committed state untouched.
type memStore struct {
	mu       sync.Mutex
	objects  map[string]*models.UnifiedObject  // project/external_id
	readings map[string]*models.UnifiedReading // object/metric/ts
	metrics  map[string]string                 // project/slug -> raw name

	failUpserts bool  // simulate storage failure
	upsertErr   error // overrides the generic failure message
}

func (s *memStore) failure() error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	return fmt.Errorf("simulated storage failure")
}

func newMemStore() *memStore {
	return &memStore{
		objects:  make(map[string]*models.UnifiedObject),
		readings: make(map[string]*models.UnifiedReading),
		metrics:  make(map[string]string),
	}
}

func (s *memStore) InTx(ctx context.Context, fn func(tx repositories.UnifiedTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		store:    s,
		objects:  cloneMap(s.objects),
		readings: cloneMap(s.readings),
		metrics:  cloneMap(s.metrics),
	}
	if err := fn(tx); err != nil {
		return err
	}
	s.objects = tx.objects
	s.readings = tx.readings
	s.metrics = tx.metrics
	return nil
}

func (s *memStore) ListObjects(ctx context.Context, projectID uuid.UUID) ([]*models.UnifiedObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.UnifiedObject
	for _, o := range s.objects {
		if o.ProjectID == projectID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *memStore) ListReadings(ctx context.Context, projectID uuid.UUID, filter repositories.ReadingFilter) ([]*models.UnifiedReading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.UnifiedReading
	for _, r := range s.readings {
		if r.ProjectID != projectID {
			continue
		}
		if filter.ObjectID != nil && r.ObjectID != *filter.ObjectID {
			continue
		}
		if filter.MetricID != "" && r.MetricID != filter.MetricID {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

type memTx struct {
	store    *memStore
	objects  map[string]*models.UnifiedObject
	readings map[string]*models.UnifiedReading
	metrics  map[string]string
}

func (t *memTx) UpsertObject(ctx context.Context, obj *models.UnifiedObject) (uuid.UUID, error) {
	if t.store.failUpserts {
		return uuid.Nil, t.store.failure()
	}
	key := obj.ProjectID.String() + "/" + obj.ExternalID
	if existing, ok := t.objects[key]; ok {
		// Copy-on-write keeps committed state intact when the tx rolls back.
		updated := *existing
		updated.Extra = cloneMap(existing.Extra)
		if obj.Name != "" {
			updated.Name = obj.Name
		}
		if obj.Latitude != nil {
			updated.Latitude = obj.Latitude
		}
		if obj.Longitude != nil {
			updated.Longitude = obj.Longitude
		}
		for k, v := range obj.Extra {
			if updated.Extra == nil {
				updated.Extra = make(map[string]any)
			}
			updated.Extra[k] = v
		}
		t.objects[key] = &updated
		return updated.ID, nil
	}
	stored := *obj
	stored.ID = uuid.New()
	if stored.Extra != nil {
		stored.Extra = cloneMap(stored.Extra)
	}
	t.objects[key] = &stored
	return stored.ID, nil
}

func (t *memTx) UpsertReadings(ctx context.Context, readings []*models.UnifiedReading) (int, error) {
	if t.store.failUpserts {
		return 0, t.store.failure()
	}
	for _, r := range readings {
		key := fmt.Sprintf("%s/%s/%d", r.ObjectID, r.MetricID, r.Timestamp.UnixNano())
		stored := *r
		t.readings[key] = &stored
	}
	return len(readings), nil
}

func (t *memTx) EnsureMetric(ctx context.Context, projectID uuid.UUID, rawName string) (string, error) {
	slug := repositories.MetricID(rawName)
	if slug == "" {
		return "", fmt.Errorf("metric name %q normalizes to an empty slug", rawName)
	}
	key := projectID.String() + "/" + slug
	if _, ok := t.metrics[key]; !ok {
		t.metrics[key] = rawName
	}
	return slug, nil
}

func cloneMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// sliceRows adapts in-memory rows to a RowSource.
func sliceRows(rows []map[string]string) RowSource {
	return func(ctx context.Context, fn func(index int, cells map[string]string) error) error {
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
}
