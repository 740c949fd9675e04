package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/sitepulse-io/sitepulse-engine/pkg/apperrors"
)

// classify maps a transport-level inference failure onto the application
// error taxonomy. Unreachable endpoints, timeouts and throttling all mean
// "the capability is unavailable, retry later"; anything else is passed
// through for the caller to treat as permanent.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if isUnavailable(err) {
		return fmt.Errorf("%w: %v", apperrors.ErrInferenceUnavailable, err)
	}
	return err
}

func isUnavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"connection refused",
		"connection reset",
		"no such host",
		"timeout",
		"status code: 429",
		"status code: 500",
		"status code: 502",
		"status code: 503",
		"status code: 529",
		"overloaded",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
