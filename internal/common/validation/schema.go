package validation

import (
	"fmt"
	"sort"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// SchemaValidator holds compiled JSON schemas keyed by name (usually a task type).
type SchemaValidator struct {
	mu      sync.RWMutex
	schemas map[string]*gojsonschema.Schema
}

func NewSchemaValidator() *SchemaValidator {
	return &SchemaValidator{schemas: make(map[string]*gojsonschema.Schema)}
}

// Register compiles schema and stores it under name, replacing any previous one.
func (v *SchemaValidator) Register(name string, schema map[string]interface{}) error {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
	if err != nil {
		return fmt.Errorf("compile schema %s: %w", name, err)
	}
	v.mu.Lock()
	v.schemas[name] = compiled
	v.mu.Unlock()
	return nil
}

func (v *SchemaValidator) Has(name string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.schemas[name]
	return ok
}

// ValidateJSON validates a raw JSON document. Unknown schema names pass.
func (v *SchemaValidator) ValidateJSON(name string, document []byte) (*ValidationResult, error) {
	return v.validate(name, gojsonschema.NewBytesLoader(document))
}

// ValidateValue validates an in-memory Go value.
func (v *SchemaValidator) ValidateValue(name string, document interface{}) (*ValidationResult, error) {
	return v.validate(name, gojsonschema.NewGoLoader(document))
}

func (v *SchemaValidator) validate(name string, doc gojsonschema.JSONLoader) (*ValidationResult, error) {
	v.mu.RLock()
	schema, ok := v.schemas[name]
	v.mu.RUnlock()
	if !ok {
		return &ValidationResult{Valid: true}, nil
	}

	result, err := schema.Validate(doc)
	if err != nil {
		return nil, fmt.Errorf("validate %s: %w", name, err)
	}
	if result.Valid() {
		return &ValidationResult{Valid: true}, nil
	}

	errs := make([]ValidationError, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		errs = append(errs, ValidationError{
			Field:   desc.Field(),
			Message: desc.Description(),
			Code:    desc.Type(),
		})
	}
	sort.Slice(errs, func(i, j int) bool { return errs[i].Field < errs[j].Field })
	return &ValidationResult{Valid: false, Errors: errs}, nil
}

// GetErrorMessages returns a simple list of error messages
func (vr *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, len(vr.Errors))
	for i, err := range vr.Errors {
		messages[i] = fmt.Sprintf("%s: %s", err.Field, err.Message)
	}
	return messages
}

// HasErrors checks if validation has errors for specific field
func (vr *ValidationResult) HasErrors(field string) bool {
	for _, err := range vr.Errors {
		if err.Field == field {
			return true
		}
	}
	return false
}
