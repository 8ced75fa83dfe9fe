package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultCodec is the serializer used when none is configured.
const DefaultCodec = "json"

// ErrUnsupportedCodec is returned when a codec name is not recognized.
var ErrUnsupportedCodec = errors.New("unsupported codec")

// Codec serializes the {value, expiration} record.
type Codec interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSONCodec serializes records as JSON objects.
type JSONCodec struct{}

// Name returns "json".
func (JSONCodec) Name() string { return "json" }

// Marshal encodes v as JSON.
func (JSONCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal decodes JSON data into v.
func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// YAMLCodec serializes records as YAML documents.
type YAMLCodec struct{}

// Name returns "yaml".
func (YAMLCodec) Name() string { return "yaml" }

// Marshal encodes v as YAML.
func (YAMLCodec) Marshal(v any) ([]byte, error) { return yaml.Marshal(v) }

// Unmarshal decodes YAML data into v.
func (YAMLCodec) Unmarshal(data []byte, v any) error { return yaml.Unmarshal(data, v) }

// LookupCodec returns the codec for name. An empty name selects DefaultCodec.
func LookupCodec(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return JSONCodec{}, nil
	case "yaml", "yml":
		return YAMLCodec{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCodec, name)
	}
}
