package resend

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const webhookSchemaURL = "https://schemas.outflo.app/resend/webhook.json"

// Only types are constrained here; missing identifiers get their own errors in Decode.
const webhookSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "id": {"type": "string"},
    "type": {"type": "string"},
    "created_at": {"type": "string"},
    "data": {
      "type": "object",
      "properties": {
        "email_id": {"type": "string"},
        "message_id": {"type": ["string", "null"]},
        "created_at": {"type": "string"},
        "from": {"type": "string"},
        "subject": {"type": ["string", "null"]},
        "to": {
          "type": "array",
          "items": {"type": "string"}
        }
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func webhookEnvelopeSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(webhookSchema))
		if err != nil {
			schemaErr = err
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(webhookSchemaURL, doc); err != nil {
			schemaErr = err
			return
		}
		compiledSchema, schemaErr = c.Compile(webhookSchemaURL)
	})
	return compiledSchema, schemaErr
}

// validateEnvelope checks body against the webhook envelope schema.
func validateEnvelope(body []byte) error {
	sch, err := webhookEnvelopeSchema()
	if err != nil {
		return fmt.Errorf("compile webhook schema: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return err
	}
	return sch.Validate(inst)
}
