// Package schema validates the opaque JSON blobs the storage layer persists
// (tenant settings, repository policy overrides, job metadata patches)
// against compiled JSON schemas, so malformed operator input fails fast at
// the storage boundary instead of silently persisting garbage. Grounded on
// the teacher's internal/compute/config_validation.go
// (ValidateConfigAgainstSchema), generalized from a single provider-config
// schema to this domain's three blob kinds.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const settingsSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "maxConcurrentJobs": {"type": "integer", "minimum": 1},
    "notificationEmail": {"type": "string", "format": "email"},
    "defaultAgent": {"type": "string", "minLength": 1},
    "reviewPolicy": {"type": "string", "enum": ["strict", "lenient"]}
  },
  "additionalProperties": true
}`

const policyOverridesSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "maxReviewAttempts": {"type": "integer", "minimum": 1, "maximum": 10},
    "requireHumanApproval": {"type": "boolean"},
    "allowedFileGlobs": {"type": "array", "items": {"type": "string"}},
    "baseBranch": {"type": "string", "minLength": 1}
  },
  "additionalProperties": true
}`

const jobMetadataSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "attempts": {"type": "integer", "minimum": 0},
    "failedAt": {
      "type": "string",
      "enum": ["QUEUED", "PLANNING", "CODING", "REVIEWING", "PR_OPEN"]
    },
    "errorDetails": {"type": "string"}
  },
  "additionalProperties": true
}`

var (
	compileOnce sync.Once
	compileErr  error

	settingsSchema        *jsonschema.Schema
	policyOverridesSchema *jsonschema.Schema
	jobMetadataSchema     *jsonschema.Schema
)

func compile() {
	compileOnce.Do(func() {
		settingsSchema, compileErr = compileSchema("settings.json", settingsSchemaJSON)
		if compileErr != nil {
			return
		}
		policyOverridesSchema, compileErr = compileSchema("policy_overrides.json", policyOverridesSchemaJSON)
		if compileErr != nil {
			return
		}
		jobMetadataSchema, compileErr = compileSchema("job_metadata.json", jobMetadataSchemaJSON)
	})
}

func compileSchema(name, raw string) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader([]byte(raw))); err != nil {
		return nil, fmt.Errorf("schema: load %s: %w", name, err)
	}
	compiled, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("schema: compile %s: %w", name, err)
	}
	return compiled, nil
}

// ValidationError reports the schema a blob failed against and every
// validation failure location/message pair, flattened from the
// jsonschema library's nested cause tree.
type ValidationError struct {
	Kind    string
	Details []string
}

func (e *ValidationError) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("schema: %s failed validation", e.Kind)
	}
	return fmt.Sprintf("schema: %s failed validation: %s", e.Kind, e.Details[0])
}

// ValidateSettings validates a tenant's settings blob before it is written.
func ValidateSettings(settings map[string]interface{}) error {
	compile()
	if compileErr != nil {
		return fmt.Errorf("schema: compile schemas: %w", compileErr)
	}
	return validate("settings", settingsSchema, settings)
}

// ValidatePolicyOverrides validates a repository's policy_overrides blob
// before it is written.
func ValidatePolicyOverrides(overrides map[string]interface{}) error {
	compile()
	if compileErr != nil {
		return fmt.Errorf("schema: compile schemas: %w", compileErr)
	}
	return validate("policy_overrides", policyOverridesSchema, overrides)
}

// ValidateJobMetadata validates a job metadata patch before it is merged
// into jobs.metadata.
func ValidateJobMetadata(patch map[string]interface{}) error {
	compile()
	if compileErr != nil {
		return fmt.Errorf("schema: compile schemas: %w", compileErr)
	}
	return validate("job_metadata", jobMetadataSchema, patch)
}

func validate(kind string, compiled *jsonschema.Schema, value map[string]interface{}) error {
	if value == nil {
		value = map[string]interface{}{}
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("schema: marshal %s: %w", kind, err)
	}
	var payload interface{}
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("schema: unmarshal %s: %w", kind, err)
	}
	if err := compiled.Validate(payload); err != nil {
		if vErr, ok := err.(*jsonschema.ValidationError); ok {
			return &ValidationError{Kind: kind, Details: flattenValidationErrors(vErr)}
		}
		return fmt.Errorf("schema: validate %s: %w", kind, err)
	}
	return nil
}

func flattenValidationErrors(err *jsonschema.ValidationError) []string {
	var details []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		location := e.InstanceLocation
		if location == "" {
			location = "/"
		}
		details = append(details, fmt.Sprintf("%s: %s", location, e.Message))
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(err)
	return details
}
