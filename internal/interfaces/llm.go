package interfaces

import (
	"context"
	"encoding/json"
)

// ExtractionOutcome tags the result of a structured LLM extraction.
// Callers branch explicitly; schema failures are not errors.
type ExtractionOutcome int

const (
	// ExtractionOK means the payload validated against the requested schema
	ExtractionOK ExtractionOutcome = iota
	// ExtractionInvalidSchema means the model answered but the payload does
	// not fit the schema; Raw carries the payload for logging
	ExtractionInvalidSchema
)

// ExtractionResult is the tagged outcome of ExtractStructured. A transport
// failure is returned as a separate error, never encoded here.
type ExtractionResult struct {
	Outcome ExtractionOutcome
	Raw     json.RawMessage
}

// Valid reports whether the payload can be unmarshalled into the target type
func (r ExtractionResult) Valid() bool {
	return r.Outcome == ExtractionOK
}

// StructuredRequest describes one schema-constrained chat completion
type StructuredRequest struct {
	SystemPrompt string
	UserContent  string
	SchemaName   string
	// Schema is the raw JSON Schema object. A {name, strict, schema}
	// envelope is unwrapped before sending so the model receives the
	// actual schema.
	Schema      map[string]interface{}
	Temperature float32
}

// LLMService is the typed boundary to the OpenAI-compatible provider
type LLMService interface {
	// ExtractStructured runs a chat completion in JSON-schema response mode
	// and validates the payload shape against target (a pointer to the
	// expected struct). Transport failures return err; schema mismatches
	// return ExtractionInvalidSchema with the raw payload.
	ExtractStructured(ctx context.Context, req StructuredRequest, target interface{}) (ExtractionResult, error)

	// Embed returns a unit-length vector for the given text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds several texts in one request
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the configured embedding dimension
	Dimension() int
}
