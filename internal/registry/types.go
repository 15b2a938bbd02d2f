// Package registry is the directory of tool descriptors the executor
// resolves against before it ever touches a transport. A descriptor is
// mutable only through explicit register/unregister calls; nothing else
// in the runtime is allowed to mutate it in place.
package registry

// Category classifies a tool for directory browsing and filtering.
type Category string

const (
	CategoryGeneral Category = "general"
	CategoryFile    Category = "file"
	CategoryBuild   Category = "build"
	CategoryTest    Category = "test"
	CategoryNetwork Category = "network"
	CategoryShell   Category = "shell"
)

// ParamType is one of the primitive JSON schema types the parameter
// validator accepts.
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamNumber  ParamType = "number"
	ParamInteger ParamType = "integer"
	ParamBoolean ParamType = "boolean"
	ParamObject  ParamType = "object"
	ParamArray   ParamType = "array"
)

// ParamSchema describes one parameter: its type, whether it is required,
// a default value, and (for object/array types) the nested schema.
type ParamSchema struct {
	Type ParamType `json:"type"`

	// Required marks the parameter as mandatory. Requiredness lives on
	// the parameter itself rather than in a separate top-level list.
	Required bool `json:"required,omitempty"`

	Default any `json:"default,omitempty"`

	// Properties is required when Type == ParamObject.
	Properties map[string]ParamSchema `json:"properties,omitempty"`

	// Items is required when Type == ParamArray.
	Items *ParamSchema `json:"items,omitempty"`
}

// TransportBinding names which transport variant and endpoint a tool's
// calls are dispatched over.
type TransportBinding struct {
	Variant  string `json:"variant"` // "stdio", "http", "sse"
	Endpoint string `json:"endpoint"`
}

// Descriptor is the registered identity of a tool: what it's called, what
// parameters it accepts, and where calls to it are routed.
type Descriptor struct {
	ID          string                 `json:"id"`
	Description string                 `json:"description"`
	Category    Category               `json:"category"`
	Parameters  map[string]ParamSchema `json:"parameters"`
	Transport   TransportBinding       `json:"transport"`
}

// validTypes is used by Validate to check each parameter's declared type.
var validTypes = map[ParamType]bool{
	ParamString:  true,
	ParamNumber:  true,
	ParamInteger: true,
	ParamBoolean: true,
	ParamObject:  true,
	ParamArray:   true,
}

// Validate checks the descriptor's parameter schema: required keys are
// string identifiers (guaranteed by Go's map[string]ParamSchema), types
// must be one of the known primitives, nested objects must declare
// Properties, and arrays must declare Items.
func (d *Descriptor) Validate() error {
	if d.ID == "" {
		return ErrDescriptorIDEmpty
	}
	for name, schema := range d.Parameters {
		if err := schema.validate(name); err != nil {
			return err
		}
	}
	return nil
}

func (s ParamSchema) validate(name string) error {
	if !validTypes[s.Type] {
		return &SchemaError{Parameter: name, Reason: "unknown type: " + string(s.Type)}
	}
	if s.Type == ParamObject && s.Properties == nil {
		return &SchemaError{Parameter: name, Reason: "object type requires properties"}
	}
	if s.Type == ParamArray && s.Items == nil {
		return &SchemaError{Parameter: name, Reason: "array type requires items"}
	}
	if s.Type == ParamObject {
		for nested, nestedSchema := range s.Properties {
			if err := nestedSchema.validate(name + "." + nested); err != nil {
				return err
			}
		}
	}
	if s.Type == ParamArray {
		if err := s.Items.validate(name + "[]"); err != nil {
			return err
		}
	}
	return nil
}
