// Package schema validates request payloads before they reach the request
// gate. A payload that fails here never creates or mutates a request record.
package schema

import (
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/SimonPP123/verto-digital-app-sub002/pkg/models"
)

// payloadSchemas holds one JSON schema per request type. Compiled once at
// package init; a bad schema is a programming error.
var payloadSchemas = map[string]string{
	models.TypeAdCopy: `{
		"type": "object",
		"required": ["product", "channel"],
		"properties": {
			"product":      {"type": "string", "minLength": 1},
			"channel":      {"type": "string", "enum": ["google_ads", "linkedin", "meta", "email"]},
			"tone":         {"type": "string"},
			"keywords":     {"type": "array", "items": {"type": "string"}},
			"landing_page": {"type": "string"}
		},
		"additionalProperties": true
	}`,
	models.TypeAudienceAnalysis: `{
		"type": "object",
		"required": ["company_url"],
		"properties": {
			"company_url": {"type": "string", "minLength": 1},
			"market":      {"type": "string"},
			"competitors": {"type": "array", "items": {"type": "string"}}
		},
		"additionalProperties": true
	}`,
	models.TypeAnalyticsReport: `{
		"type": "object",
		"required": ["report", "date_range"],
		"properties": {
			"report":     {"type": "string", "minLength": 1},
			"date_range": {
				"type": "object",
				"required": ["from", "to"],
				"properties": {
					"from": {"type": "string"},
					"to":   {"type": "string"}
				}
			},
			"filters": {"type": "object"}
		},
		"additionalProperties": true
	}`,
}

var compiled = compileAll()

func compileAll() map[string]*jsonschema.Schema {
	out := make(map[string]*jsonschema.Schema, len(payloadSchemas))
	for typ, src := range payloadSchemas {
		compiler := jsonschema.NewCompiler()
		id := "inmemory://" + typ
		if err := compiler.AddResource(id, strings.NewReader(src)); err != nil {
			panic(fmt.Sprintf("add schema resource %s: %v", typ, err))
		}
		s, err := compiler.Compile(id)
		if err != nil {
			panic(fmt.Sprintf("compile schema %s: %v", typ, err))
		}
		out[typ] = s
	}
	return out
}

// ValidatePayload checks a payload against the schema for its request type.
// An unknown type is a validation failure, not a panic.
func ValidatePayload(requestType string, payload map[string]any) error {
	s, ok := compiled[requestType]
	if !ok {
		return fmt.Errorf("unknown request type %q", requestType)
	}
	if err := s.Validate(normalize(payload)); err != nil {
		return fmt.Errorf("payload validation failed: %w", err)
	}
	return nil
}

// normalize converts the payload to the any-typed tree jsonschema expects.
func normalize(payload map[string]any) any {
	if payload == nil {
		return map[string]any{}
	}
	return map[string]any(payload)
}
