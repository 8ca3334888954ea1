package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/relaykit/relay/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed relay.schema.json
var embeddedSchemaData []byte

// validate checks a raw config document against the embedded JSON Schema.
func validate(doc interface{}) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("relay.json", strings.NewReader(string(embeddedSchemaData))); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigValidation, "failed to add embedded schema resource")
	}

	schema, err := compiler.Compile("relay.json")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigValidation, "failed to compile embedded schema")
	}

	// Round-trip through JSON so YAML-decoded values (numbers, nested maps)
	// become the plain JSON shapes the schema library expects.
	jsonData, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigValidation, "failed to marshal config for validation")
	}

	var dataToValidate interface{}
	if err := json.Unmarshal(jsonData, &dataToValidate); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigValidation, "failed to unmarshal config for validation")
	}

	if err := schema.Validate(dataToValidate); err != nil {
		if validationErr, ok := err.(*jsonschema.ValidationError); ok {
			var errorMessages []string
			collectErrors(validationErr, &errorMessages)
			return errors.New(errors.ErrCodeConfigValidation,
				fmt.Sprintf("schema validation failed:\n%s", strings.Join(errorMessages, "\n")))
		}
		return errors.Wrap(err, errors.ErrCodeConfigValidation, "schema validation failed")
	}

	return nil
}

// collectErrors recursively collects all validation errors into a slice
func collectErrors(err *jsonschema.ValidationError, messages *[]string) {
	if err.InstanceLocation != "" {
		*messages = append(*messages, fmt.Sprintf("- %s: %s", err.InstanceLocation, err.Message))
	}
	for _, cause := range err.Causes {
		collectErrors(cause, messages)
	}
}
