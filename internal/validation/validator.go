package validation

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/record.json
var schemaFS embed.FS

const recordSchema = "record.json"

// Validator checks raw record files against the record schema.
type Validator struct {
	schema *jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	file, err := schemaFS.Open("schemas/" + recordSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to open record schema: %w", err)
	}
	defer file.Close()

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(recordSchema, file); err != nil {
		return nil, fmt.Errorf("failed to add record schema: %w", err)
	}
	schema, err := compiler.Compile(recordSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to compile record schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// Validate returns one issue per offending location, sorted, or nil when the
// document conforms.
func (v *Validator) Validate(raw []byte) []string {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return []string{fmt.Sprintf("/: invalid JSON: %v", err)}
	}

	err := v.schema.Validate(doc)
	if err == nil {
		return nil
	}

	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return []string{"/: " + err.Error()}
	}

	byLocation := make(map[string]string)
	collectLeaves(verr, byLocation)

	issues := make([]string, 0, len(byLocation))
	for loc, msg := range byLocation {
		issues = append(issues, loc+": "+msg)
	}
	sort.Strings(issues)
	return issues
}

func collectLeaves(verr *jsonschema.ValidationError, out map[string]string) {
	if len(verr.Causes) == 0 {
		loc := verr.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		if _, seen := out[loc]; !seen {
			out[loc] = verr.Message
		}
		return
	}
	for _, cause := range verr.Causes {
		collectLeaves(cause, out)
	}
}
