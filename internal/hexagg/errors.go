package hexagg

import "fmt"

// InputSchemaError reports a required column missing from an input
// collection. Operations that return it produce no output.
type InputSchemaError struct {
	Operation string
	Field     string
}

func (e *InputSchemaError) Error() string {
	return fmt.Sprintf("hexagg: %s: required field %q not present in input", e.Operation, e.Field)
}

func schemaError(op, field string) error {
	return &InputSchemaError{Operation: op, Field: field}
}
