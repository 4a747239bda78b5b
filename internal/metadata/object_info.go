// Package metadata resolves per-type schema metadata through an in-memory
// map, a persisted store and the remote schema service, in that order.
package metadata

// ObjectInfo describes one record type of the remote schema.
type ObjectInfo struct {
	APIName            string               `json:"apiName"`
	Fields             map[string]FieldInfo `json:"fields"`
	ChildRelationships []ChildRelationship  `json:"childRelationships"`
}

// FieldInfo describes one field of a record type.
type FieldInfo struct {
	APIName  string `json:"apiName"`
	DataType string `json:"dataType,omitempty"`

	// Length is the maximum size of the field value in bytes
	Length int `json:"length"`

	// RelationshipName is set on reference fields, e.g. "Owner" for OwnerId
	RelationshipName      string            `json:"relationshipName,omitempty"`
	PolymorphicForeignKey bool              `json:"polymorphicForeignKey"`
	ReferenceToInfos      []ReferenceToInfo `json:"referenceToInfos,omitempty"`
}

// ReferenceToInfo names a type a reference field can point to.
type ReferenceToInfo struct {
	APIName string `json:"apiName"`
}

// ChildRelationship describes a list of child records referencing the type.
type ChildRelationship struct {
	RelationshipName   string `json:"relationshipName"`
	ChildObjectAPIName string `json:"childObjectApiName"`
	FieldName          string `json:"fieldName"`
}

// FieldSize returns the byte size of the named field.
func (o *ObjectInfo) FieldSize(name string) (int, bool) {
	if o == nil {
		return 0, false
	}
	f, ok := o.Fields[name]
	if !ok {
		return 0, false
	}
	return f.Length, true
}
