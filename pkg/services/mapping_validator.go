package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sitepulse-io/sitepulse-engine/pkg/models"
)

// FieldProblem is one rejected aspect of a submitted mapping.
type FieldProblem struct {
	Field   string `json:"field"`
	Problem string `json:"problem"`
}

// ValidationError carries every problem found in a submitted mapping, so a
// caller can fix them all in one round trip.
type ValidationError struct {
	Problems []FieldProblem `json:"problems"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		parts[i] = fmt.Sprintf("%s: %s", p.Field, p.Problem)
	}
	return "invalid mapping: " + strings.Join(parts, "; ")
}

// MappingValidator is the confirmation gate: the single checkpoint between a
// user-edited mapping and the ETL engine. It is pure; persistence and status
// transitions belong to the lifecycle controller.
type MappingValidator struct{}

// NewMappingValidator creates a mapping validator.
func NewMappingValidator() *MappingValidator {
	return &MappingValidator{}
}

// Validate checks a submitted mapping against the dataset's headers and
// returns a normalized copy: role columns removed from the classification
// map, unreferenced headers classified TEXT. On any problem it returns a
// *ValidationError and no mapping.
func (v *MappingValidator) Validate(mapping *models.ColumnMapping, headers []string) (*models.ColumnMapping, error) {
	verr := &ValidationError{}
	if mapping == nil {
		verr.Problems = append(verr.Problems, FieldProblem{Field: "mapping", Problem: "mapping is required"})
		return nil, verr
	}

	known := make(map[string]bool, len(headers))
	for _, h := range headers {
		known[h] = true
	}

	// Referenced columns must exist, and no column may carry two roles.
	columnRoles := make(map[string][]models.CanonicalRole)
	for _, role := range models.CanonicalRoles {
		col, ok := mapping.RoleColumn(role)
		if !ok {
			continue
		}
		if !known[col] {
			verr.Problems = append(verr.Problems, FieldProblem{
				Field:   "roles." + string(role),
				Problem: fmt.Sprintf("column %q does not exist in the dataset", col),
			})
			continue
		}
		columnRoles[col] = append(columnRoles[col], role)
	}
	for _, role := range models.CanonicalRoles {
		col, ok := mapping.RoleColumn(role)
		if !ok || len(columnRoles[col]) < 2 {
			continue
		}
		verr.Problems = append(verr.Problems, FieldProblem{
			Field:   "roles." + string(role),
			Problem: fmt.Sprintf("column %q is assigned to multiple roles", col),
		})
	}

	for col, class := range mapping.Columns {
		if !known[col] {
			verr.Problems = append(verr.Problems, FieldProblem{
				Field:   "columns." + col,
				Problem: "column does not exist in the dataset",
			})
		} else if !models.IsValidColumnClass(class) {
			verr.Problems = append(verr.Problems, FieldProblem{
				Field:   "columns." + col,
				Problem: fmt.Sprintf("unknown classification %q", class),
			})
		}
	}

	if !mapping.SupportsEntities() && !mapping.SupportsTimeSeries() {
		verr.Problems = append(verr.Problems, FieldProblem{
			Field:   "roles",
			Problem: "mapping supports neither entity ingestion (ENTITY_ID or LATITUDE+LONGITUDE) nor time-series ingestion (TIMESTAMP and METRIC_VALUE)",
		})
	}

	if len(verr.Problems) > 0 {
		sort.Slice(verr.Problems, func(i, j int) bool { return verr.Problems[i].Field < verr.Problems[j].Field })
		return nil, verr
	}

	// Normalize: confirmed role assignments carry full confidence, the
	// classification map covers exactly the headers no role consumes.
	out := models.NewColumnMapping()
	for role, a := range mapping.Roles {
		if a.Column == "" {
			continue
		}
		out.Roles[role] = models.RoleAssignment{Column: a.Column, Confidence: 1}
	}
	for _, h := range headers {
		if _, taken := out.RoleFor(h); taken {
			continue
		}
		if class, ok := mapping.Columns[h]; ok {
			out.Columns[h] = class
		} else {
			out.Columns[h] = models.ClassText
		}
	}
	return out, nil
}
