package models

// CanonicalRole is one of the fixed semantic roles a raw column may fill.
type CanonicalRole string

const (
	RoleEntityID    CanonicalRole = "ENTITY_ID"
	RoleLatitude    CanonicalRole = "LATITUDE"
	RoleLongitude   CanonicalRole = "LONGITUDE"
	RoleTimestamp   CanonicalRole = "TIMESTAMP"
	RoleMetricName  CanonicalRole = "METRIC_NAME"
	RoleMetricValue CanonicalRole = "METRIC_VALUE"
)

// CanonicalRoles lists every role in a stable order.
var CanonicalRoles = []CanonicalRole{
	RoleEntityID,
	RoleLatitude,
	RoleLongitude,
	RoleTimestamp,
	RoleMetricName,
	RoleMetricValue,
}

// IsValidCanonicalRole checks if the given role is valid.
func IsValidCanonicalRole(r CanonicalRole) bool {
	for _, v := range CanonicalRoles {
		if v == r {
			return true
		}
	}
	return false
}

// ColumnClass classifies a raw column not consumed by a canonical role.
type ColumnClass string

const (
	ClassCategorical ColumnClass = "CATEGORICAL"
	ClassNumerical   ColumnClass = "NUMERICAL"
	ClassText        ColumnClass = "TEXT"
	ClassIgnored     ColumnClass = "IGNORED"
)

// IsValidColumnClass checks if the given class is valid.
func IsValidColumnClass(c ColumnClass) bool {
	switch c {
	case ClassCategorical, ClassNumerical, ClassText, ClassIgnored:
		return true
	}
	return false
}

// RoleAssignment binds a canonical role to exactly one raw column.
// Confidence is in [0,1] when the assignment was machine-proposed and 1 when
// user-confirmed.
type RoleAssignment struct {
	Column     string  `json:"column"`
	Confidence float64 `json:"confidence"`
}

// ColumnMapping is the schema contract between raw columns and canonical
// fields: optional role assignments plus a classification for every other
// column. It is the unit the inference service proposes and the confirmation
// gate validates.
type ColumnMapping struct {
	Roles   map[CanonicalRole]RoleAssignment `json:"roles"`
	Columns map[string]ColumnClass           `json:"columns"`
}

// NewColumnMapping returns an empty mapping with allocated maps.
func NewColumnMapping() *ColumnMapping {
	return &ColumnMapping{
		Roles:   make(map[CanonicalRole]RoleAssignment),
		Columns: make(map[string]ColumnClass),
	}
}

// FallbackMapping is the degraded result required on total inference
// failure: no roles set, every column classified TEXT with confidence zero.
func FallbackMapping(headers []string) *ColumnMapping {
	m := NewColumnMapping()
	for _, h := range headers {
		m.Columns[h] = ClassText
	}
	return m
}

// RoleColumn returns the raw column assigned to the role, if any.
func (m *ColumnMapping) RoleColumn(role CanonicalRole) (string, bool) {
	a, ok := m.Roles[role]
	if !ok || a.Column == "" {
		return "", false
	}
	return a.Column, true
}

// RoleFor returns the role that consumes the given raw column, if any.
func (m *ColumnMapping) RoleFor(column string) (CanonicalRole, bool) {
	for role, a := range m.Roles {
		if a.Column == column {
			return role, true
		}
	}
	return "", false
}

// SupportsEntities reports whether the mapping satisfies the entity-only
// ingestion invariant: ENTITY_ID, or both coordinates.
func (m *ColumnMapping) SupportsEntities() bool {
	if _, ok := m.RoleColumn(RoleEntityID); ok {
		return true
	}
	_, lat := m.RoleColumn(RoleLatitude)
	_, lon := m.RoleColumn(RoleLongitude)
	return lat && lon
}

// SupportsTimeSeries reports whether the mapping satisfies the time-series
// ingestion invariant: TIMESTAMP and METRIC_VALUE both populated.
func (m *ColumnMapping) SupportsTimeSeries() bool {
	_, ts := m.RoleColumn(RoleTimestamp)
	_, val := m.RoleColumn(RoleMetricValue)
	return ts && val
}

// Clone returns a deep copy.
func (m *ColumnMapping) Clone() *ColumnMapping {
	out := NewColumnMapping()
	for role, a := range m.Roles {
		out.Roles[role] = a
	}
	for col, class := range m.Columns {
		out.Columns[col] = class
	}
	return out
}
