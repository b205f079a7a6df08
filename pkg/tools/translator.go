package tools

import (
	"context"
	"fmt"
	"sort"

	"github.com/paddockai/paddock/pkg/llms"
)

// Descriptor is a tool as advertised by an MCP source: a name, an
// optional description, and a JSON-Schema-like input schema.
type Descriptor struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// CallFunc invokes a tool on its source by its original name.
type CallFunc func(ctx context.Context, name string, args map[string]any) (string, error)

// Translate converts a source tool descriptor into an internal tool.
// The internal name is "<sourceID>_<name>" so tools from different
// sources never collide; arguments are validated against the schema
// before the source is called.
func Translate(sourceID string, desc Descriptor, call CallFunc) *RemoteTool {
	description := desc.Description
	if description == "" {
		description = "Tool: " + desc.Name
	}

	return &RemoteTool{
		name:        sourceID + "_" + desc.Name,
		sourceName:  desc.Name,
		description: description,
		schema:      normalizeSchema(desc.InputSchema),
		spec:        buildArgSpec(desc.InputSchema),
		call:        call,
	}
}

// RemoteTool executes on an external MCP source.
type RemoteTool struct {
	name        string
	sourceName  string
	description string
	schema      map[string]any
	spec        *argSpec
	call        CallFunc
}

func (t *RemoteTool) Name() string        { return t.name }
func (t *RemoteTool) Description() string { return t.description }

func (t *RemoteTool) Definition() llms.ToolDefinition {
	return llms.ToolDefinition{
		Name:        t.name,
		Description: t.description,
		Parameters:  t.schema,
	}
}

// RequiredArguments returns the sorted top-level required keys.
func (t *RemoteTool) RequiredArguments() []string {
	var required []string
	for name := range t.spec.required {
		required = append(required, name)
	}
	sort.Strings(required)
	return required
}

func (t *RemoteTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	if err := t.spec.validate(args); err != nil {
		return "", fmt.Errorf("invalid arguments for tool '%s': %w", t.name, err)
	}
	return t.call(ctx, t.sourceName, args)
}

// normalizeSchema makes sure the model always sees a well-formed
// object schema, even when the source advertised none.
func normalizeSchema(schema map[string]any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	if _, ok := schema["type"]; !ok {
		schema["type"] = "object"
	}
	return schema
}

// argSpec is a validated argument decoder derived from an input
// schema. Only the shapes the MCP ecosystem actually produces are
// modeled; anything else degrades to opaque.
type argSpec struct {
	kind     string // record, freeform, enum, string, number, boolean, null, list, opaque
	fields   map[string]*argSpec
	required map[string]bool
	enum     []string
	items    *argSpec
}

func buildArgSpec(schema map[string]any) *argSpec {
	if schema == nil {
		return &argSpec{kind: "freeform", required: map[string]bool{}}
	}

	typ, _ := schema["type"].(string)
	switch typ {
	case "object", "":
		properties, ok := schema["properties"].(map[string]any)
		if !ok {
			return &argSpec{kind: "freeform", required: map[string]bool{}}
		}

		spec := &argSpec{
			kind:     "record",
			fields:   make(map[string]*argSpec, len(properties)),
			required: make(map[string]bool),
		}
		for name, raw := range properties {
			if propSchema, ok := raw.(map[string]any); ok {
				spec.fields[name] = buildArgSpec(propSchema)
			} else {
				spec.fields[name] = &argSpec{kind: "opaque"}
			}
		}
		if requiredList, ok := schema["required"].([]any); ok {
			for _, name := range requiredList {
				if s, ok := name.(string); ok {
					spec.required[s] = true
				}
			}
		}
		return spec

	case "string":
		if enumList, ok := schema["enum"].([]any); ok {
			spec := &argSpec{kind: "enum"}
			for _, v := range enumList {
				if s, ok := v.(string); ok {
					spec.enum = append(spec.enum, s)
				}
			}
			return spec
		}
		return &argSpec{kind: "string"}

	case "number", "integer":
		return &argSpec{kind: "number"}

	case "boolean":
		return &argSpec{kind: "boolean"}

	case "null":
		return &argSpec{kind: "null"}

	case "array":
		spec := &argSpec{kind: "list"}
		if items, ok := schema["items"].(map[string]any); ok {
			spec.items = buildArgSpec(items)
		}
		return spec

	default:
		return &argSpec{kind: "opaque"}
	}
}

func (s *argSpec) validate(value any) error {
	switch s.kind {
	case "record":
		args, ok := value.(map[string]any)
		if !ok {
			if value == nil {
				args = map[string]any{}
			} else {
				return fmt.Errorf("expected object, got %T", value)
			}
		}
		for name := range s.required {
			if _, present := args[name]; !present {
				return fmt.Errorf("missing required argument '%s'", name)
			}
		}
		for name, v := range args {
			field, known := s.fields[name]
			if !known {
				continue
			}
			if err := field.validate(v); err != nil {
				return fmt.Errorf("argument '%s': %w", name, err)
			}
		}
		return nil

	case "freeform", "opaque", "null":
		return nil

	case "enum":
		str, ok := value.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", value)
		}
		for _, allowed := range s.enum {
			if str == allowed {
				return nil
			}
		}
		return fmt.Errorf("value '%s' not in %v", str, s.enum)

	case "string":
		if _, ok := value.(string); !ok {
			return fmt.Errorf("expected string, got %T", value)
		}
		return nil

	case "number":
		switch value.(type) {
		case float64, float32, int, int32, int64:
			return nil
		}
		return fmt.Errorf("expected number, got %T", value)

	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("expected boolean, got %T", value)
		}
		return nil

	case "list":
		list, ok := value.([]any)
		if !ok {
			return fmt.Errorf("expected array, got %T", value)
		}
		if s.items != nil {
			for i, item := range list {
				if err := s.items.validate(item); err != nil {
					return fmt.Errorf("item %d: %w", i, err)
				}
			}
		}
		return nil
	}
	return nil
}
