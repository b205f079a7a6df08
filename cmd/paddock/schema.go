package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"

	"github.com/paddockai/paddock/pkg/config"
)

// SchemaCmd prints the JSON Schema for agent config files.
type SchemaCmd struct {
	Compact bool `help:"Compact JSON output (no indentation)."`
	Service bool `help:"Emit the service config schema instead of the agent schema."`
}

func (c *SchemaCmd) Run() error {
	reflector := &jsonschema.Reflector{
		DoNotReference: true,
	}

	var schema *jsonschema.Schema
	if c.Service {
		schema = reflector.Reflect(&config.Config{})
		schema.Title = "Paddock Service Configuration"
	} else {
		schema = reflector.Reflect(&config.AgentConfig{})
		schema.Title = "Paddock Agent Configuration"
	}
	schema.Version = "http://json-schema.org/draft-07/schema#"

	encoder := json.NewEncoder(os.Stdout)
	if !c.Compact {
		encoder.SetIndent("", "  ")
	}
	if err := encoder.Encode(schema); err != nil {
		return fmt.Errorf("failed to encode schema: %w", err)
	}
	return nil
}
