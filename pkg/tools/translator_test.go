package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoCall(t *testing.T, wantName string) CallFunc {
	t.Helper()
	return func(ctx context.Context, name string, args map[string]any) (string, error) {
		assert.Equal(t, wantName, name)
		return "ok", nil
	}
}

func TestTranslate_Naming(t *testing.T) {
	tool := Translate("crm", Descriptor{Name: "lookup_customer"}, echoCall(t, "lookup_customer"))

	assert.Equal(t, "crm_lookup_customer", tool.Name())
	assert.Equal(t, "Tool: lookup_customer", tool.Description())

	described := Translate("crm", Descriptor{Name: "lookup_customer", Description: "Find a customer"}, nil)
	assert.Equal(t, "Find a customer", described.Description())
}

func TestTranslate_CallUsesSourceName(t *testing.T) {
	tool := Translate("crm", Descriptor{Name: "lookup"}, echoCall(t, "lookup"))

	result, err := tool.Execute(context.Background(), map[string]any{"anything": true})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
}

func TestTranslate_RequiredArguments(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"city":  map[string]any{"type": "string"},
			"units": map[string]any{"type": "string"},
		},
		"required": []any{"city"},
	}
	tool := Translate("weather", Descriptor{Name: "forecast", InputSchema: schema}, nil)

	assert.Equal(t, []string{"city"}, tool.RequiredArguments())

	_, err := tool.Execute(context.Background(), map[string]any{"units": "metric"})
	assert.ErrorContains(t, err, "missing required argument 'city'")
}

func TestTranslate_MissingSchemaIsFreeForm(t *testing.T) {
	tool := Translate("src", Descriptor{Name: "anything"}, echoCall(t, "anything"))

	_, err := tool.Execute(context.Background(), map[string]any{"whatever": 42})
	assert.NoError(t, err)

	def := tool.Definition()
	assert.Equal(t, "object", def.Parameters["type"])
}

func TestTranslate_ObjectWithoutProperties(t *testing.T) {
	tool := Translate("src", Descriptor{
		Name:        "raw",
		InputSchema: map[string]any{"type": "object"},
	}, echoCall(t, "raw"))

	_, err := tool.Execute(context.Background(), map[string]any{"free": "form"})
	assert.NoError(t, err)
}

func TestArgSpecValidation(t *testing.T) {
	tests := []struct {
		name    string
		schema  map[string]any
		args    map[string]any
		wantErr string
	}{
		{
			name: "enum_accepts_member",
			schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"mode": map[string]any{"type": "string", "enum": []any{"fast", "slow"}},
				},
			},
			args: map[string]any{"mode": "fast"},
		},
		{
			name: "enum_rejects_nonmember",
			schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"mode": map[string]any{"type": "string", "enum": []any{"fast", "slow"}},
				},
			},
			args:    map[string]any{"mode": "medium"},
			wantErr: "not in",
		},
		{
			name: "string_rejects_number",
			schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"q": map[string]any{"type": "string"},
				},
			},
			args:    map[string]any{"q": 7},
			wantErr: "expected string",
		},
		{
			name: "number_accepts_float",
			schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"count": map[string]any{"type": "integer"},
				},
			},
			args: map[string]any{"count": float64(3)},
		},
		{
			name: "boolean",
			schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"verbose": map[string]any{"type": "boolean"},
				},
			},
			args:    map[string]any{"verbose": "yes"},
			wantErr: "expected boolean",
		},
		{
			name: "array_with_items",
			schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"tags": map[string]any{
						"type":  "array",
						"items": map[string]any{"type": "string"},
					},
				},
			},
			args: map[string]any{"tags": []any{"a", "b"}},
		},
		{
			name: "array_item_type_mismatch",
			schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"tags": map[string]any{
						"type":  "array",
						"items": map[string]any{"type": "string"},
					},
				},
			},
			args:    map[string]any{"tags": []any{"a", 2}},
			wantErr: "item 1",
		},
		{
			name: "array_without_items_is_opaque",
			schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"payload": map[string]any{"type": "array"},
				},
			},
			args: map[string]any{"payload": []any{"a", 2, true}},
		},
		{
			name: "unknown_type_is_opaque",
			schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"blob": map[string]any{"type": "binary"},
				},
			},
			args: map[string]any{"blob": map[string]any{"anything": 1}},
		},
		{
			name: "unknown_keys_pass_through",
			schema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
			args: map[string]any{"extra": "value"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool := Translate("src", Descriptor{Name: "t", InputSchema: tt.schema},
				func(ctx context.Context, name string, args map[string]any) (string, error) {
					return "ok", nil
				})
			_, err := tool.Execute(context.Background(), tt.args)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
