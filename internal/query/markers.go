package query

// Markers is the set of structural field names used by the connection
// convention of the record query API. Structural fields organize selections
// but never become entities or properties themselves.
type Markers struct {
	// QueryWrapper is the field whose direct children are root entities
	QueryWrapper string

	// Connection is the field that wraps a list of records
	Connection string

	// RecordWrapper is the field that wraps a single record inside Connection
	RecordWrapper string

	// Structural lists every field name that is skipped during tree building.
	// It must contain QueryWrapper, Connection and RecordWrapper.
	Structural map[string]struct{}
}

// DefaultMarkers returns the markers of the UI API GraphQL convention:
//
//	uiapi { query { Account { edges { node { Name { value } } } } } }
func DefaultMarkers() Markers {
	return NewMarkers("query", "edges", "node",
		"uiapi", "value", "displayValue", "pageInfo", "totalCount", "cursor")
}

// NewMarkers builds a marker set. The three wrapper names are always included
// in the structural set.
func NewMarkers(queryWrapper, connection, recordWrapper string, extra ...string) Markers {
	m := Markers{
		QueryWrapper:  queryWrapper,
		Connection:    connection,
		RecordWrapper: recordWrapper,
		Structural:    make(map[string]struct{}, len(extra)+3),
	}
	for _, name := range append([]string{queryWrapper, connection, recordWrapper}, extra...) {
		m.Structural[name] = struct{}{}
	}
	return m
}

// IsStructural reports whether name is a structural marker.
func (m Markers) IsStructural(name string) bool {
	_, ok := m.Structural[name]
	return ok
}
