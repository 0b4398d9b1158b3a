package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ppiankov/certgrade/internal/model"
)

// ErrMalformedPayload is returned when the capability response is not a list of entries
var ErrMalformedPayload = errors.New("malformed extraction payload")

var (
	// arrayBlockPattern matches a JSON array inside a markdown code block
	arrayBlockPattern = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\\n?(\\[.*\\])\\s*```")
	// arrayPattern matches the outermost JSON array (greedy fallback)
	arrayPattern = regexp.MustCompile(`(?s)\[.*\]`)
	// trailingCommaPattern matches trailing commas before ] or }
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
)

const payloadSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["property_name"],
    "properties": {
      "property_name": {"type": "string", "minLength": 1}
    }
  }
}`

var schema = jsonschema.MustCompileString("extraction-payload.json", payloadSchema)

// PayloadError describes why a payload was rejected
type PayloadError struct {
	Reason string
	Err    error
}

func (e *PayloadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrMalformedPayload, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrMalformedPayload, e.Reason)
}

func (e *PayloadError) Is(target error) bool {
	return target == ErrMalformedPayload
}

func (e *PayloadError) Unwrap() error {
	return e.Err
}

// ParsePayload parses a capability response into ordered (property_name, value) entries.
// Markdown fences and prose around the array are tolerated; anything else rejects the whole payload.
func ParsePayload(raw string) ([]model.ExtractedProperty, error) {
	body := arrayBody(raw)
	if body == "" {
		return nil, &PayloadError{Reason: "no JSON array found"}
	}

	doc, err := decode(body)
	if err != nil {
		// strict decode failed: retry without trailing commas
		cleaned := trailingCommaPattern.ReplaceAllString(body, "$1")
		if cleaned == body {
			return nil, err
		}
		if doc, err = decode(cleaned); err != nil {
			return nil, err
		}
	}

	if err := schema.Validate(doc); err != nil {
		return nil, &PayloadError{Reason: "schema", Err: err}
	}

	items := doc.([]any)
	out := make([]model.ExtractedProperty, 0, len(items))
	for _, item := range items {
		entry := item.(map[string]any)
		out = append(out, model.ExtractedProperty{
			Name:  strings.TrimSpace(entry["property_name"].(string)),
			Value: entry["value"],
		})
	}
	return out, nil
}

func decode(body string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, &PayloadError{Reason: "decode", Err: err}
	}
	if dec.More() {
		return nil, &PayloadError{Reason: "trailing data after array"}
	}
	return doc, nil
}

// arrayBody locates the JSON array
func arrayBody(raw string) string {
	if m := arrayBlockPattern.FindStringSubmatch(raw); len(m) > 1 {
		return m[1]
	}
	return arrayPattern.FindString(raw)
}
