package document

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/dittotube/watchparty/internal/models"
)

// wireSchema pins the shape of a room payload: a JSON array of message
// records. Anything a peer publishes that does not match is discarded
// by the reconciliation loop rather than applied.
const wireSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["id", "user", "text", "timestamp"],
    "properties": {
      "id": {"type": "string", "minLength": 1},
      "user": {
        "type": "object",
        "required": ["id", "username"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "username": {"type": "string", "minLength": 1},
          "avatar": {"type": "string"}
        }
      },
      "text": {"type": "string"},
      "timestamp": {"type": "string"},
      "replyTo": {"type": "object"},
      "reactions": {
        "type": "object",
        "additionalProperties": {
          "type": "array",
          "items": {"type": "string"},
          "minItems": 1
        }
      }
    }
  }
}`

var compiledWireSchema = jsonschema.MustCompileString("chatdocument.schema.json", wireSchema)

// Encode serializes the document as the UTF-8 JSON array the broker
// retains. A nil document encodes as an empty array, never as null.
func Encode(doc models.ChatDocument) ([]byte, error) {
	if doc == nil {
		doc = models.ChatDocument{}
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode chat document: %w", err)
	}
	return payload, nil
}

// IsTombstone reports whether the payload is the empty retained value
// that marks a destroyed room. A tombstone is not a decode error; it is
// a distinct, meaningful signal.
func IsTombstone(payload []byte) bool {
	return len(bytes.TrimSpace(payload)) == 0
}

// Decode parses and validates a non-empty room payload. The payload
// must be a JSON array matching the wire schema; anything else is
// rejected so a single garbage publish cannot poison local state.
func Decode(payload []byte) (models.ChatDocument, error) {
	var raw interface{}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("malformed room payload: %w", err)
	}

	if err := compiledWireSchema.Validate(raw); err != nil {
		return nil, fmt.Errorf("room payload failed schema validation: %w", err)
	}

	var doc models.ChatDocument
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("malformed room payload: %w", err)
	}

	return doc, nil
}
