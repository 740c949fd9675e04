package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitepulse-io/sitepulse-engine/pkg/models"
)

var wellHeaders = []string{"Well_ID", "Lat_N", "Long_E", "Depth_M", "Status"}

func TestValidateAcceptsAndNormalizes(t *testing.T) {
	v := NewMappingValidator()

	m := models.NewColumnMapping()
	m.Roles[models.RoleEntityID] = models.RoleAssignment{Column: "Well_ID", Confidence: 0.8}
	m.Roles[models.RoleLatitude] = models.RoleAssignment{Column: "Lat_N", Confidence: 0.6}
	m.Roles[models.RoleLongitude] = models.RoleAssignment{Column: "Long_E", Confidence: 0.6}
	m.Columns["Depth_M"] = models.ClassNumerical
	// Status deliberately omitted; it must default to TEXT.

	out, err := v.Validate(m, wellHeaders)
	require.NoError(t, err)

	// Confirmation means full confidence.
	assert.Equal(t, 1.0, out.Roles[models.RoleEntityID].Confidence)
	assert.Equal(t, models.ClassNumerical, out.Columns["Depth_M"])
	assert.Equal(t, models.ClassText, out.Columns["Status"])
	// Role columns are not also classified.
	_, classified := out.Columns["Well_ID"]
	assert.False(t, classified)
}

func TestValidateUnknownColumn(t *testing.T) {
	v := NewMappingValidator()

	m := models.NewColumnMapping()
	m.Roles[models.RoleEntityID] = models.RoleAssignment{Column: "Bore_ID", Confidence: 1}

	_, err := v.Validate(m, wellHeaders)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.NotEmpty(t, verr.Problems)
	assert.Equal(t, "roles.ENTITY_ID", verr.Problems[0].Field)
	assert.Contains(t, verr.Problems[0].Problem, "Bore_ID")
}

func TestValidateDuplicateRoleColumn(t *testing.T) {
	v := NewMappingValidator()

	m := models.NewColumnMapping()
	m.Roles[models.RoleEntityID] = models.RoleAssignment{Column: "Well_ID", Confidence: 1}
	m.Roles[models.RoleMetricName] = models.RoleAssignment{Column: "Well_ID", Confidence: 1}

	_, err := v.Validate(m, wellHeaders)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	found := false
	for _, p := range verr.Problems {
		if p.Problem == `column "Well_ID" is assigned to multiple roles` {
			found = true
		}
	}
	assert.True(t, found, "expected a multiple-roles problem, got %v", verr.Problems)
}

func TestValidateNoIngestionMode(t *testing.T) {
	v := NewMappingValidator()

	// Latitude alone satisfies neither mode.
	m := models.NewColumnMapping()
	m.Roles[models.RoleLatitude] = models.RoleAssignment{Column: "Lat_N", Confidence: 1}

	_, err := v.Validate(m, wellHeaders)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Problems, 1)
	assert.Equal(t, "roles", verr.Problems[0].Field)
}

func TestValidateInvalidClass(t *testing.T) {
	v := NewMappingValidator()

	m := models.NewColumnMapping()
	m.Roles[models.RoleEntityID] = models.RoleAssignment{Column: "Well_ID", Confidence: 1}
	m.Columns["Status"] = models.ColumnClass("FANCY")

	_, err := v.Validate(m, wellHeaders)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Problems, 1)
	assert.Equal(t, "columns.Status", verr.Problems[0].Field)
}

func TestValidateNilMapping(t *testing.T) {
	v := NewMappingValidator()
	_, err := v.Validate(nil, wellHeaders)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestValidateCollectsAllProblems(t *testing.T) {
	v := NewMappingValidator()

	m := models.NewColumnMapping()
	m.Roles[models.RoleEntityID] = models.RoleAssignment{Column: "Bore_ID", Confidence: 1}
	m.Columns["Nope"] = models.ClassText

	_, err := v.Validate(m, wellHeaders)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.GreaterOrEqual(t, len(verr.Problems), 3) // unknown role column, unknown class column, no mode
}
