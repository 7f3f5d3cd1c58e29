package skill

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	dateRe  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// ParametersSchema extracts the "parameters" JSON Schema from a stored
// function_schema.
func ParametersSchema(functionSchema map[string]any) map[string]any {
	if functionSchema == nil {
		return nil
	}
	params, _ := functionSchema["parameters"].(map[string]any)
	return params
}

// ValidateParams checks model-supplied arguments against the skill's
// stored JSON Schema before dispatch: required fields, basic types, enum
// membership and string formats. Extra parameters are allowed.
func ValidateParams(schema map[string]any, params map[string]any) []string {
	var errs []string
	if schema == nil {
		return nil
	}
	props, _ := schema["properties"].(map[string]any)
	if props == nil {
		return nil
	}

	if required, ok := schema["required"].([]any); ok {
		for _, r := range required {
			name, _ := r.(string)
			if v, present := params[name]; !present || v == nil {
				errs = append(errs, fmt.Sprintf("missing required parameter: %s", name))
			}
		}
	}

	for name, value := range params {
		propAny, ok := props[name]
		if !ok || value == nil {
			continue
		}
		prop, ok := propAny.(map[string]any)
		if !ok {
			continue
		}
		errs = append(errs, validateValue(name, value, prop)...)
	}

	return errs
}

func validateValue(name string, value any, prop map[string]any) []string {
	var errs []string
	expected, _ := prop["type"].(string)

	switch expected {
	case "string":
		s, ok := value.(string)
		if !ok {
			return []string{fmt.Sprintf("parameter %s must be a string", name)}
		}
		if format, _ := prop["format"].(string); format != "" {
			switch format {
			case "email":
				if !emailRe.MatchString(s) {
					errs = append(errs, fmt.Sprintf("parameter %s must be a valid email address", name))
				}
			case "uri", "url":
				if u, err := url.Parse(s); err != nil || u.Scheme == "" || u.Host == "" {
					errs = append(errs, fmt.Sprintf("parameter %s must be a valid URL", name))
				}
			case "date":
				if !dateRe.MatchString(s) {
					errs = append(errs, fmt.Sprintf("parameter %s must be a valid date in YYYY-MM-DD format", name))
				}
			}
		}
	case "number", "integer":
		if _, ok := value.(float64); !ok {
			if _, ok := value.(int); !ok {
				errs = append(errs, fmt.Sprintf("parameter %s must be a number", name))
			}
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			errs = append(errs, fmt.Sprintf("parameter %s must be a boolean", name))
		}
	case "array":
		if _, ok := value.([]any); !ok {
			errs = append(errs, fmt.Sprintf("parameter %s must be an array", name))
		}
	case "object":
		if _, ok := value.(map[string]any); !ok {
			errs = append(errs, fmt.Sprintf("parameter %s must be an object", name))
		}
	}

	if enumAny, ok := prop["enum"].([]any); ok && len(enumAny) > 0 {
		found := false
		for _, e := range enumAny {
			if e == value {
				found = true
				break
			}
		}
		if !found {
			opts := make([]string, 0, len(enumAny))
			for _, e := range enumAny {
				opts = append(opts, fmt.Sprintf("%v", e))
			}
			errs = append(errs, fmt.Sprintf("parameter %s must be one of: %s", name, strings.Join(opts, ", ")))
		}
	}

	return errs
}

// ValidateForTool checks that a skill definition is usable as a callable
// tool at all.
func ValidateForTool(s WithAssociation) []string {
	var errs []string
	if s.Name == "" {
		errs = append(errs, "skill name is required")
	}
	if s.Description == "" {
		errs = append(errs, "skill description is required")
	}
	if s.FunctionSchema == nil {
		errs = append(errs, "function schema is required")
	} else if params := ParametersSchema(s.FunctionSchema); params != nil {
		if t, _ := params["type"].(string); t != "object" {
			errs = append(errs, `function parameters must be of type "object"`)
		}
	}
	if !s.IsActive {
		errs = append(errs, "skill must be active to be used as a tool")
	}
	if !s.Association.IsActive {
		errs = append(errs, "skill association must be active to be used as a tool")
	}
	return errs
}
