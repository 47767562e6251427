package agent

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/nugget/mcpgw-cli/internal/command"
	"github.com/nugget/mcpgw-cli/internal/llm"
	"github.com/nugget/mcpgw-cli/internal/prompts"
)

// Names of the tools offered to the model.
const (
	MCPCommandTool   = "mcp_command"
	RegistryTaskTool = "registry_task"
)

var mcpCommandSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"command": map[string]any{
			"type":        "string",
			"enum":        []string{"ping", "list", "call", "init"},
			"description": "Gateway command to run",
		},
		"tool": map[string]any{
			"type":        "string",
			"description": "Tool name, required for call",
		},
		"args": map[string]any{
			"type":        "object",
			"description": "Tool arguments for call",
		},
	},
	"required": []string{"command"},
}

// callRequiresTool is checked on top of mcpCommandSchema during
// validation. Combinators are not accepted at the top level of a tool's
// input_schema, so it never goes to the model.
var callRequiresTool = []any{
	map[string]any{
		"if":   map[string]any{"properties": map[string]any{"command": map[string]any{"const": "call"}}},
		"then": map[string]any{"required": []string{"tool"}},
	},
}

var registryTaskSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"command": map[string]any{
			"type":        "string",
			"minLength":   1,
			"description": `Task command line, e.g. "service list" or "user delete username=bob"`,
		},
	},
	"required": []string{"command"},
}

// toolDef pairs a tool's model-facing spec with its compiled schema.
type toolDef struct {
	spec   llm.ToolSpec
	schema *gojsonschema.Schema
}

// newToolDef compiles schema plus any extra allOf constraints. Only the
// plain schema is offered to the model.
func newToolDef(name, description string, schema map[string]any, allOf []any) toolDef {
	validation := schema
	if len(allOf) > 0 {
		validation = maps.Clone(schema)
		validation["allOf"] = allOf
	}
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(validation))
	if err != nil {
		panic(fmt.Sprintf("agent: invalid schema for %s: %v", name, err))
	}
	return toolDef{
		spec:   llm.ToolSpec{Name: name, Description: description, InputSchema: schema},
		schema: compiled,
	}
}

var toolDefs = []toolDef{
	newToolDef(MCPCommandTool, prompts.MCPCommandDescription, mcpCommandSchema, callRequiresTool),
	newToolDef(RegistryTaskTool, prompts.RegistryTaskDescription, registryTaskSchema, nil),
}

// ToolSpecs returns the tools offered to the model.
func ToolSpecs() []llm.ToolSpec {
	specs := make([]llm.ToolSpec, len(toolDefs))
	for i, d := range toolDefs {
		specs[i] = d.spec
	}
	return specs
}

// validateInput checks input against the named tool's schema.
func validateInput(name string, input map[string]any) error {
	for _, d := range toolDefs {
		if d.spec.Name != name {
			continue
		}
		if input == nil {
			input = map[string]any{}
		}
		result, err := d.schema.Validate(gojsonschema.NewGoLoader(input))
		if err != nil {
			return fmt.Errorf("validate %s input: %w", name, err)
		}
		if result.Valid() {
			return nil
		}
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("invalid %s input: %s", name, strings.Join(msgs, "; "))
	}
	return fmt.Errorf("unknown tool %q", name)
}

// toInvocation maps a model tool call onto the same invocations the
// operator can type. A registry task re-enters the command resolver.
func (l *Loop) toInvocation(tc llm.ToolCall) (command.Invocation, error) {
	if err := validateInput(tc.Name, tc.Input); err != nil {
		return nil, err
	}

	switch tc.Name {
	case MCPCommandTool:
		cmd, _ := tc.Input["command"].(string)
		switch cmd {
		case "ping":
			return command.Ping{}, nil
		case "list":
			return command.List{}, nil
		case "init":
			return command.Init{}, nil
		default:
			call := command.Call{}
			call.Tool, _ = tc.Input["tool"].(string)
			if args, ok := tc.Input["args"]; ok && args != nil {
				data, err := json.Marshal(args)
				if err != nil {
					return nil, fmt.Errorf("encode args: %w", err)
				}
				call.ArgsJSON = string(data)
			}
			return call, nil
		}

	default:
		line, _ := tc.Input["command"].(string)
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, command.Prefix) {
			line = command.Prefix + line
		}
		inv, _ := l.resolver.Resolve(line)
		return inv, nil
	}
}
