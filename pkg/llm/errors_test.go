package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sitepulse-io/sitepulse-engine/pkg/apperrors"
)

func TestClassify(t *testing.T) {
	assert.NoError(t, classify(nil))

	err := classify(context.DeadlineExceeded)
	assert.ErrorIs(t, err, apperrors.ErrInferenceUnavailable)

	err = classify(fmt.Errorf("error, status code: 429, message: slow down"))
	assert.ErrorIs(t, err, apperrors.ErrInferenceUnavailable)

	err = classify(errors.New("dial tcp: connection refused"))
	assert.ErrorIs(t, err, apperrors.ErrInferenceUnavailable)

	// Permanent failures pass through unclassified.
	permanent := errors.New("error, status code: 401, message: invalid api key")
	err = classify(permanent)
	assert.NotErrorIs(t, err, apperrors.ErrInferenceUnavailable)
	assert.Equal(t, permanent, err)
}
