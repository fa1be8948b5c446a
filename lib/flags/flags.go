// Package flags loads the static configuration handed to the application
// core at start-up. The content is opaque to the bridge: it is only
// normalized to JSON and passed through.
package flags

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ghodss/yaml"
)

var empty = json.RawMessage(`{}`)

// Load returns the flags blob as JSON. inline (YAML or JSON) wins over the
// file at path; with neither set the result is an empty object.
func Load(inline, path string) (json.RawMessage, error) {
	if strings.TrimSpace(inline) != "" {
		out, err := Parse([]byte(inline))
		if err != nil {
			return nil, fmt.Errorf("APP_FLAGS: %w", err)
		}
		return out, nil
	}
	if path == "" {
		return empty, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read flags file: %w", err)
	}
	out, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("flags file %s: %w", path, err)
	}
	return out, nil
}

// Parse converts a YAML or JSON document to JSON.
func Parse(data []byte) (json.RawMessage, error) {
	if strings.TrimSpace(string(data)) == "" {
		return empty, nil
	}
	out, err := yaml.YAMLToJSON(data)
	if err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}
	return json.RawMessage(out), nil
}
