package provider

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertTools(t *testing.T) {
	tools := []ToolInfo{
		{
			Name:        "get_weather",
			Description: "Get the weather for a city",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"city": {"type": "string", "description": "City name"},
					"days": {"type": "integer", "description": "Forecast days"}
				},
				"required": ["city"]
			}`),
		},
	}

	converted := ConvertTools(tools)
	require.Len(t, converted, 1)
	assert.Equal(t, "get_weather", converted[0].Name)
	assert.Equal(t, "Get the weather for a city", converted[0].Desc)
	assert.NotNil(t, converted[0].ParamsOneOf)
}

func TestConvertToolsEmptyParameters(t *testing.T) {
	converted := ConvertTools([]ToolInfo{{Name: "ping", Description: "Ping"}})

	require.Len(t, converted, 1)
	assert.Equal(t, "ping", converted[0].Name)
}

func TestParseJSONSchemaParams(t *testing.T) {
	params := parseJSONSchemaParams(json.RawMessage(`{
		"properties": {
			"enabled": {"type": "boolean"},
			"count": {"type": "number"},
			"items": {"type": "array"},
			"meta": {"type": "object"},
			"name": {"type": "string"}
		},
		"required": ["name"]
	}`))

	require.Len(t, params, 5)
	assert.True(t, params["name"].Required)
	assert.False(t, params["count"].Required)
}

func TestParseJSONSchemaParamsInvalid(t *testing.T) {
	assert.Nil(t, parseJSONSchemaParams(json.RawMessage(`not json`)))
}
