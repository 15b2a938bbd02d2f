package executor

import (
	"fmt"

	"rice/internal/registry"
)

// MissingParameterError reports a required parameter absent from a call.
type MissingParameterError struct {
	Name string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("missing required parameter %q", e.Name)
}

// TypeErrorParam reports a parameter whose value does not match its
// descriptor's declared type.
type TypeErrorParam struct {
	Name     string
	Expected registry.ParamType
	Actual   string
}

func (e *TypeErrorParam) Error() string {
	return fmt.Sprintf("parameter %q: expected %s, got %s", e.Name, e.Expected, e.Actual)
}

// validateParameters checks parameters against d's schema: every
// required parameter must be present, and every present parameter's
// runtime type must match its declared type.
func validateParameters(d *registry.Descriptor, parameters map[string]interface{}) error {
	for name, schema := range d.Parameters {
		v, present := parameters[name]
		if !present {
			if schema.Required {
				return &MissingParameterError{Name: name}
			}
			continue
		}
		if err := checkType(name, schema, v); err != nil {
			return err
		}
	}
	return nil
}

func checkType(name string, schema registry.ParamSchema, v interface{}) error {
	switch schema.Type {
	case registry.ParamString:
		if _, ok := v.(string); !ok {
			return &TypeErrorParam{Name: name, Expected: schema.Type, Actual: goTypeName(v)}
		}
	case registry.ParamNumber:
		if _, ok := v.(float64); !ok {
			return &TypeErrorParam{Name: name, Expected: schema.Type, Actual: goTypeName(v)}
		}
	case registry.ParamInteger:
		switch n := v.(type) {
		case float64:
			if n != float64(int64(n)) {
				return &TypeErrorParam{Name: name, Expected: schema.Type, Actual: "non-integer number"}
			}
		case int, int64:
		default:
			return &TypeErrorParam{Name: name, Expected: schema.Type, Actual: goTypeName(v)}
		}
	case registry.ParamBoolean:
		if _, ok := v.(bool); !ok {
			return &TypeErrorParam{Name: name, Expected: schema.Type, Actual: goTypeName(v)}
		}
	case registry.ParamObject:
		obj, ok := v.(map[string]interface{})
		if !ok {
			return &TypeErrorParam{Name: name, Expected: schema.Type, Actual: goTypeName(v)}
		}
		for propName, propSchema := range schema.Properties {
			propVal, present := obj[propName]
			if !present {
				if propSchema.Required {
					return &MissingParameterError{Name: name + "." + propName}
				}
				continue
			}
			if err := checkType(name+"."+propName, propSchema, propVal); err != nil {
				return err
			}
		}
	case registry.ParamArray:
		arr, ok := v.([]interface{})
		if !ok {
			return &TypeErrorParam{Name: name, Expected: schema.Type, Actual: goTypeName(v)}
		}
		if schema.Items != nil {
			for i, elem := range arr {
				if err := checkType(fmt.Sprintf("%s[%d]", name, i), *schema.Items, elem); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func goTypeName(v interface{}) string {
	if v == nil {
		return "null"
	}
	switch v.(type) {
	case string:
		return "string"
	case float64, int, int64:
		return "number"
	case bool:
		return "boolean"
	case map[string]interface{}:
		return "object"
	case []interface{}:
		return "array"
	default:
		return fmt.Sprintf("%T", v)
	}
}
