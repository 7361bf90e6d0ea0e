package rotation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Event is the payload Secrets Manager sends to a rotation function.
// Step is not validated on decode so that the staging precondition is
// checked before an unknown step is rejected.
type Event struct {
	SecretID           string `json:"SecretId"`
	ClientRequestToken string `json:"ClientRequestToken"`
	Step               Step   `json:"Step"`
}

const eventSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["SecretId", "ClientRequestToken", "Step"],
  "properties": {
    "SecretId": {"type": "string", "minLength": 1},
    "ClientRequestToken": {"type": "string", "minLength": 1},
    "Step": {"type": "string", "minLength": 1}
  }
}`

var eventSchemaLoader = gojsonschema.NewStringLoader(eventSchema)

// ParseEvent validates and decodes a rotation event
func ParseEvent(data []byte) (Event, error) {
	result, err := gojsonschema.Validate(eventSchemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return Event{}, fmt.Errorf("invalid rotation event: %w", err)
	}
	if !result.Valid() {
		var problems []string
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		return Event{}, fmt.Errorf("invalid rotation event: %s", strings.Join(problems, "; "))
	}

	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("invalid rotation event: %w", err)
	}
	return ev, nil
}
