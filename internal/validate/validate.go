package validate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ValidateJSON validates an object (already converted to JSON types) with the given schema.
func ValidateJSON(obj any, schemaSrc string) error {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("mem://schema.json", strings.NewReader(schemaSrc)); err != nil {
		return err
	}
	sch, err := c.Compile("mem://schema.json")
	if err != nil {
		return err
	}
	return sch.Validate(obj)
}

// ValidateRegistrations validates a decoded registrations document. The
// document may come from YAML, so it is normalised to JSON types first.
func ValidateRegistrations(doc any) error {
	norm, err := normalize(doc)
	if err != nil {
		return err
	}
	return ValidateJSON(norm, registrationsSchema)
}

// ValidateConfigMap validates a generic agent configuration map.
func ValidateConfigMap(m map[string]any) error {
	norm, err := normalize(m)
	if err != nil {
		return err
	}
	return ValidateJSON(norm, configSchema)
}

func normalize(doc any) (any, error) {
	b, err := json.Marshal(stringKeys(doc))
	if err != nil {
		return nil, fmt.Errorf("normalize document: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("normalize document: %w", err)
	}
	return out, nil
}

// stringKeys converts YAML mappings with non-string keys (ports: {8080: 80})
// into JSON-compatible maps.
func stringKeys(v any) any {
	switch t := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = stringKeys(val)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = stringKeys(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = stringKeys(val)
		}
		return out
	default:
		return v
	}
}

const registrationsSchema = `{
  "$schema":"https://json-schema.org/draft/2020-12/schema",
  "type":"object",
  "required":["domino"],
  "properties":{
    "domino":{
      "type":"object",
      "required":["registrations"],
      "properties":{
        "runtimes":{
          "type":"array",
          "items":{
            "type":"object",
            "minProperties":1,
            "maxProperties":1,
            "additionalProperties":{
              "type":"object",
              "required":["binary"],
              "properties":{
                "binary":{"type":"string","minLength":1},
                "resource-marker":{"type":"string"}
              }
            }
          }
        },
        "registrations":{
          "type":"array",
          "items":{
            "type":"object",
            "minProperties":1,
            "maxProperties":1,
            "additionalProperties":{"$ref":"#/$defs/registration"}
          }
        }
      }
    }
  },
  "$defs":{
    "registration":{
      "type":"object",
      "required":["source","execution"],
      "properties":{
        "source":{
          "type":"object",
          "required":["type","resource"],
          "properties":{
            "type":{"type":"string"},
            "home":{"type":"string"},
            "resource":{"type":"string","minLength":1}
          }
        },
        "runtime":{"type":"string"},
        "execution":{
          "type":"object",
          "required":["via"],
          "properties":{
            "command-name":{"type":"string"},
            "as-user":{"type":"string"},
            "via":{"type":"string"},
            "args":{"type":["array","object","null"]}
          }
        },
        "health-check":{
          "type":"object",
          "properties":{
            "enabled":{"type":"boolean"},
            "delay":{"type":"string"},
            "timeout":{"type":"string"},
            "max-attempts":{"type":"integer","minimum":1},
            "endpoint":{"type":"string"}
          }
        },
        "info":{
          "type":"object",
          "properties":{
            "enabled":{"type":"boolean"},
            "endpoint":{"type":"string"},
            "field-mapping":{"type":"object","additionalProperties":{"type":"string"}}
          }
        }
      }
    }
  }
}`

const configSchema = `{
  "$schema":"https://json-schema.org/draft/2020-12/schema",
  "type":"object",
  "properties":{
    "registrations-path":{"type":"string"},
    "server":{"type":"object","properties":{"addr":{"type":"string"}}},
    "storage":{
      "type":"object",
      "properties":{
        "path":{"type":"string"},
        "state-path":{"type":"string"},
        "keep-versions":{"type":"integer","minimum":0}
      }
    },
    "lifecycle":{
      "type":"object",
      "properties":{
        "start-timeout":{"type":"integer","minimum":0},
        "service-handler":{"type":"string"}
      }
    },
    "docker":{
      "type":"object",
      "properties":{
        "socket":{"type":"string"},
        "request-timeout":{"type":"integer","minimum":0},
        "servers":{
          "type":"array",
          "items":{
            "type":"object",
            "required":["host"],
            "properties":{
              "host":{"type":"string"},
              "username":{"type":"string"},
              "password":{"type":"string"}
            }
          }
        }
      }
    },
    "events":{
      "type":"object",
      "properties":{"url":{"type":"string"},"subject":{"type":"string"}}
    }
  }
}`
