package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sitepulse-io/sitepulse-engine/pkg/apperrors"
	"github.com/sitepulse-io/sitepulse-engine/pkg/llm"
	"github.com/sitepulse-io/sitepulse-engine/pkg/metrics"
	"github.com/sitepulse-io/sitepulse-engine/pkg/models"
	"github.com/sitepulse-io/sitepulse-engine/pkg/prompts"
)

// proposalTemperature keeps the mapping proposal near-deterministic.
const proposalTemperature = 0.1

// InferenceService proposes a column mapping for an uploaded dataset by
// showing its headers and a bounded row sample to an LLM. It never persists
// anything; the lifecycle controller owns what happens to the proposal.
type InferenceService struct {
	client     llm.LLMClient
	timeout    time.Duration
	sampleRows int
	logger     *zap.Logger
}

// NewInferenceService creates a mapping inference service.
func NewInferenceService(client llm.LLMClient, timeout time.Duration, sampleRows int, logger *zap.Logger) *InferenceService {
	return &InferenceService{
		client:     client,
		timeout:    timeout,
		sampleRows: sampleRows,
		logger:     logger.Named("inference"),
	}
}

// SampleLimit returns how many raw rows the service wants per proposal.
func (s *InferenceService) SampleLimit() int { return s.sampleRows }

// mappingProposal mirrors the JSON shape requested from the model.
type mappingProposal struct {
	Roles   map[string]struct {
		Column     string  `json:"column"`
		Confidence float64 `json:"confidence"`
	} `json:"roles"`
	Columns map[string]string `json:"columns"`
}

// Propose asks the model for a column mapping. Transport-level failure
// (timeout, connection refused, rate limit, server error) is returned as an
// error wrapping apperrors.ErrInferenceUnavailable. Malformed model output is
// NOT an error: it degrades to the all-TEXT fallback mapping so the user can
// still map columns by hand.
func (s *InferenceService) Propose(ctx context.Context, headers []string, sample [][]string) (*models.ColumnMapping, error) {
	if len(sample) > s.sampleRows {
		sample = sample[:s.sampleRows]
	}
	prompt := prompts.BuildColumnMappingPrompt(headers, sample)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	response, err := s.client.Complete(ctx, prompt, prompts.ColumnMappingSystemMessage, proposalTemperature)
	if err != nil {
		if errors.Is(err, apperrors.ErrInferenceUnavailable) {
			metrics.InferenceFailures.Inc()
		}
		return nil, fmt.Errorf("mapping proposal failed: %w", err)
	}

	mapping, ok := s.decodeProposal(response, headers)
	if !ok {
		s.logger.Warn("Model returned unusable mapping proposal, falling back to all-TEXT",
			zap.String("model", s.client.GetModel()))
		return models.FallbackMapping(headers), nil
	}
	return mapping, nil
}

// decodeProposal parses the model output into a mapping, dropping anything
// that does not line up with the dataset's real headers.
func (s *InferenceService) decodeProposal(response string, headers []string) (*models.ColumnMapping, bool) {
	payload, err := llm.ExtractJSON(response)
	if err != nil {
		s.logger.Debug("No JSON in model response", zap.Error(err))
		return nil, false
	}

	var proposal mappingProposal
	if err := json.Unmarshal([]byte(payload), &proposal); err != nil {
		s.logger.Debug("Failed to decode mapping proposal", zap.Error(err))
		return nil, false
	}

	known := make(map[string]bool, len(headers))
	for _, h := range headers {
		known[h] = true
	}

	mapping := models.NewColumnMapping()
	for rawRole, a := range proposal.Roles {
		role := models.CanonicalRole(rawRole)
		if !models.IsValidCanonicalRole(role) || a.Column == "" || !known[a.Column] {
			continue
		}
		if _, taken := mapping.RoleFor(a.Column); taken {
			continue
		}
		mapping.Roles[role] = models.RoleAssignment{
			Column:     a.Column,
			Confidence: clampConfidence(a.Confidence),
		}
	}
	for col, rawClass := range proposal.Columns {
		class := models.ColumnClass(rawClass)
		if !known[col] || !models.IsValidColumnClass(class) {
			continue
		}
		if _, taken := mapping.RoleFor(col); taken {
			continue
		}
		mapping.Columns[col] = class
	}

	// Headers the model said nothing about stay visible to the user.
	for _, h := range headers {
		if _, taken := mapping.RoleFor(h); taken {
			continue
		}
		if _, ok := mapping.Columns[h]; !ok {
			mapping.Columns[h] = models.ClassText
		}
	}
	return mapping, true
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
