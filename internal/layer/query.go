package layer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Query is the packaging request. Terraform external data sources pass
// every value as a string, so pre_package_commands arrives JSON encoded.
type Query struct {
	DependencyManager  string   `json:"dependency_manager"`
	Runtime            string   `json:"runtime"`
	DependencyLockFile string   `json:"dependency_lock_file"`
	DockerImage        string   `json:"docker_image,omitempty"`
	PrePackageCommands []string `json:"-"`
}

type rawQuery struct {
	DependencyManager  string `json:"dependency_manager"`
	Runtime            string `json:"runtime"`
	DependencyLockFile string `json:"dependency_lock_file"`
	DockerImage        string `json:"docker_image"`
	PrePackageCommands string `json:"pre_package_commands"`
}

const querySchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["dependency_manager", "runtime", "dependency_lock_file"],
  "properties": {
    "dependency_manager": {"type": "string", "enum": ["poetry", "npm", "yarn"]},
    "runtime": {"type": "string", "minLength": 1},
    "dependency_lock_file": {"type": "string", "minLength": 1},
    "docker_image": {"type": "string"},
    "pre_package_commands": {"type": "string"}
  }
}`

var querySchemaLoader = gojsonschema.NewStringLoader(querySchema)

// ParseQuery validates and decodes a packaging request
func ParseQuery(data []byte) (Query, error) {
	result, err := gojsonschema.Validate(querySchemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return Query{}, fmt.Errorf("invalid query: %w", err)
	}
	if !result.Valid() {
		var problems []string
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		return Query{}, fmt.Errorf("invalid query: %s", strings.Join(problems, "; "))
	}

	var raw rawQuery
	if err := json.Unmarshal(data, &raw); err != nil {
		return Query{}, fmt.Errorf("invalid query: %w", err)
	}

	q := Query{
		DependencyManager:  raw.DependencyManager,
		Runtime:            raw.Runtime,
		DependencyLockFile: raw.DependencyLockFile,
		DockerImage:        raw.DockerImage,
	}
	if raw.PrePackageCommands != "" {
		if err := json.Unmarshal([]byte(raw.PrePackageCommands), &q.PrePackageCommands); err != nil {
			return Query{}, fmt.Errorf("invalid query: pre_package_commands must be a JSON list of strings: %w", err)
		}
	}
	return q, nil
}

// Image returns the build image, defaulting to the lambci image for the runtime
func (q Query) Image() string {
	if q.DockerImage != "" {
		return q.DockerImage
	}
	return "lambci/lambda:build-" + q.Runtime
}
