package blobstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDatasetKey(t *testing.T) {
	key := DatasetKey("p1", "d1", "wells 2024.csv")
	assert.Equal(t, "projects/p1/datasets/d1/wells 2024.csv", key)

	// Path separators in user filenames must not create nested keys.
	key = DatasetKey("p1", "d1", "../../etc/passwd")
	assert.Equal(t, "projects/p1/datasets/d1/.._.._etc_passwd", key)
}
