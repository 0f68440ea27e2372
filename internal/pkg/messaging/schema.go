package messaging

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const envelopeSchemaURI = "urn:saga:schema:envelope"

// envelopeSchema is the wire contract every inbound envelope must satisfy
// before it reaches a handler.
const envelopeSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["messageId", "correlationId", "sagaId", "type", "timestamp", "payload"],
  "properties": {
    "messageId":     {"type": "string", "format": "uuid"},
    "correlationId": {"type": "string", "format": "uuid"},
    "sagaId":        {"type": "string", "format": "uuid"},
    "type":          {"type": "string", "minLength": 1},
    "timestamp":     {"type": "string", "format": "date-time"},
    "payload":       {"type": "object"}
  }
}`

var compileEnvelopeSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(envelopeSchema))
	if err != nil {
		return nil, fmt.Errorf("messaging: parse envelope schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(envelopeSchemaURI, doc); err != nil {
		return nil, fmt.Errorf("messaging: add envelope schema: %w", err)
	}
	return c.Compile(envelopeSchemaURI)
})

// Validate checks body against the envelope contract.
func Validate(body []byte) error {
	schema, err := compileEnvelopeSchema()
	if err != nil {
		return err
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("messaging: envelope is not JSON: %w", err)
	}
	if err := schema.Validate(inst); err != nil {
		return fmt.Errorf("messaging: invalid envelope: %w", err)
	}
	return nil
}
