package claude

import (
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/florianilch/switchboard/internal/unified"
)

// toTools converts tool definitions to Anthropic tool params.
func toTools(tools []unified.ToolDefinition) ([]anthropic.ToolUnionParam, error) {
	if len(tools) == 0 {
		return nil, nil
	}

	params := make([]anthropic.ToolUnionParam, 0, len(tools))
	for i, tool := range tools {
		if tool.Name == "" {
			return nil, fmt.Errorf("tool %d has no name", i)
		}

		toolParam := anthropic.ToolParam{
			Name:        tool.Name,
			InputSchema: toInputSchema(tool.InputSchema),
		}
		if tool.Description != "" {
			toolParam.Description = anthropic.String(tool.Description)
		}

		params = append(params, anthropic.ToolUnionParam{OfTool: &toolParam})
	}
	return params, nil
}

// toInputSchema splits a flat JSON schema object into Anthropic's dedicated
// properties/required fields, keeping every other keyword in ExtraFields.
func toInputSchema(schema map[string]any) anthropic.ToolInputSchemaParam {
	var inputSchema anthropic.ToolInputSchemaParam
	if schema == nil {
		return inputSchema
	}

	if props, ok := schema["properties"]; ok {
		inputSchema.Properties = props
	}

	if req, ok := schema["required"].([]any); ok {
		var required []string
		for _, r := range req {
			if s, ok := r.(string); ok {
				required = append(required, s)
			}
		}
		inputSchema.Required = required
	}

	var extraFields map[string]any
	for key, value := range schema {
		if key == "type" || key == "properties" || key == "required" {
			continue
		}
		if extraFields == nil {
			extraFields = make(map[string]any)
		}
		extraFields[key] = value
	}
	inputSchema.ExtraFields = extraFields

	return inputSchema
}
