package integrity

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/kaptinlin/jsonschema"

	"soclog/internal/fault"
)

//go:embed manifest.schema.json
var manifestSchemaJSON []byte

var loadManifestSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile(manifestSchemaJSON)
	if err != nil {
		return nil, fmt.Errorf("compile manifest schema: %w", err)
	}
	return schema, nil
})

// ValidateManifestJSON checks serialized manifest bytes against the embedded schema.
func ValidateManifestJSON(data []byte) error {
	schema, err := loadManifestSchema()
	if err != nil {
		return err
	}
	result := schema.ValidateJSON(data)
	if result.IsValid() {
		return nil
	}
	return fault.Wrap(fmt.Errorf("%v", result.Errors), fault.KindValidation, "manifest schema validation failed")
}
