package message

// FieldDescription is the introspection form of a Field.
type FieldDescription struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	Namespaced  bool   `json:"namespaced,omitempty"`
	Optional    bool   `json:"optional,omitempty"`
	Unit        string `json:"unit,omitempty"`
	Description string `json:"description,omitempty"`
}

type VariableDescription struct {
	ID   uint32 `json:"id"`
	Name string `json:"name"`
}

// Description is the introspection form of a message type.
type Description struct {
	Name      string                `json:"name"`
	Code      uint64                `json:"code"`
	Fields    []FieldDescription    `json:"fields"`
	Variables []VariableDescription `json:"variables"`
}

// Describe returns the field layout and registered variables of this type.
func (manager *Manager[P]) Describe() Description {
	description := Description{
		Name:      manager.name,
		Code:      manager.code,
		Fields:    make([]FieldDescription, len(manager.fields)),
		Variables: make([]VariableDescription, 0, len(manager.variables)),
	}
	for i, field := range manager.fields {
		description.Fields[i] = FieldDescription{
			Name:        field.Name,
			Kind:        field.Kind.String(),
			Namespaced:  field.Namespaced,
			Optional:    field.Optional,
			Unit:        field.Unit,
			Description: field.Description,
		}
	}
	for _, id := range manager.VariableIDs() {
		description.Variables = append(description.Variables, VariableDescription{ID: id, Name: manager.variables[id].Name()})
	}
	return description
}
