package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/uep-labs/companion/observability"
)

// InitialParam describes one extractable parameter of a workflow
// definition, used to coach the LLM's parameter extraction.
type InitialParam struct {
	Type           string `yaml:"type"`
	Optional       bool   `yaml:"optional"`
	Description    string `yaml:"description"`
	ExtractionHint string `yaml:"extraction_hint"`
}

// ToolParamConfig overrides per-parameter tool settings for a definition.
type ToolParamConfig struct {
	Required bool `yaml:"required"`
}

// WorkflowDefinition is one externally declared workflow type.
type WorkflowDefinition struct {
	Description   string                     `yaml:"description"`
	InitialParams map[string]InitialParam    `yaml:"initial_params"`
	ToolParams    map[string]ToolParamConfig `yaml:"mcp_tool_params"`
}

type workflowDefinitionsDoc struct {
	Workflows map[string]WorkflowDefinition `yaml:"workflows"`
}

// definitionsSchema is the structural contract for the definitions
// document. Validation failure is non-fatal and yields zero definitions.
const definitionsSchema = `{
	"type": "object",
	"required": ["workflows"],
	"properties": {
		"workflows": {
			"type": "object",
			"additionalProperties": {
				"type": "object",
				"properties": {
					"description": {"type": "string"},
					"initial_params": {
						"type": "object",
						"additionalProperties": {
							"type": "object",
							"properties": {
								"type": {"type": "string"},
								"optional": {"type": "boolean"},
								"description": {"type": "string"},
								"extraction_hint": {"type": "string"}
							}
						}
					},
					"mcp_tool_params": {
						"type": "object",
						"additionalProperties": {
							"type": "object",
							"properties": {
								"required": {"type": "boolean"}
							}
						}
					}
				}
			}
		}
	}
}`

// LoadWorkflowDefinitionsFile loads workflow definitions from a YAML file.
// Any failure is logged and yields an empty map, never an error: a broken
// definitions file must not take the control plane down with it.
func LoadWorkflowDefinitionsFile(path string, logger observability.Logger) map[string]WorkflowDefinition {
	f, err := os.Open(path)
	if err != nil {
		logger.WithErr(err).Error("failed to open workflow definitions")
		return map[string]WorkflowDefinition{}
	}
	defer f.Close()
	return LoadWorkflowDefinitions(f, logger)
}

// LoadWorkflowDefinitions parses and structurally validates a workflow
// definitions document.
func LoadWorkflowDefinitions(r io.Reader, logger observability.Logger) map[string]WorkflowDefinition {
	data, err := io.ReadAll(r)
	if err != nil {
		logger.WithErr(err).Error("failed to read workflow definitions")
		return map[string]WorkflowDefinition{}
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		logger.WithErr(err).Error("failed to parse workflow definitions")
		return map[string]WorkflowDefinition{}
	}

	rawJSON, err := json.Marshal(raw)
	if err != nil {
		logger.WithErr(err).Error("failed to encode workflow definitions for validation")
		return map[string]WorkflowDefinition{}
	}

	validation, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(definitionsSchema),
		gojsonschema.NewBytesLoader(rawJSON),
	)
	if err != nil {
		logger.WithErr(err).Error("workflow definitions validation error")
		return map[string]WorkflowDefinition{}
	}
	if !validation.Valid() {
		var msgs []string
		for _, desc := range validation.Errors() {
			msgs = append(msgs, desc.String())
		}
		logger.WithFields(map[string]interface{}{
			"errors": strings.Join(msgs, "; "),
		}).Error("workflow definitions rejected")
		return map[string]WorkflowDefinition{}
	}

	var doc workflowDefinitionsDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		logger.WithErr(err).Error("failed to decode workflow definitions")
		return map[string]WorkflowDefinition{}
	}
	if doc.Workflows == nil {
		return map[string]WorkflowDefinition{}
	}

	logger.WithFields(map[string]interface{}{"count": len(doc.Workflows)}).
		Debug("loaded workflow definitions")
	return doc.Workflows
}

// drivePathPattern matches Windows drive prefixes whose backslashes would
// break JSON parsing, e.g. `"path": "D:\"` as emitted by some models.
var drivePathPattern = regexp.MustCompile(`([A-Za-z]:)\\+`)

// RegisterWorkflowTools registers one WORK-lane tool per workflow
// definition, on top of the six built-ins. Returns how many were added.
func (s *Server) RegisterWorkflowTools(definitions map[string]WorkflowDefinition) int {
	names := make([]string, 0, len(definitions))
	for name := range definitions {
		names = append(names, name)
	}
	sort.Strings(names)

	registered := 0
	for _, name := range names {
		def := definitions[name]
		initialDataRequired := false
		if cfg, ok := def.ToolParams["initial_data"]; ok {
			initialDataRequired = cfg.Required
		}

		workflowType := name
		s.RegisterTool(&Tool{
			Name:        name,
			Description: buildToolDescription(name, def),
			Parameters: []ToolParameter{
				{Name: "command", Type: TypeString, Description: "User's original command", Required: true},
				// initial_data travels as a JSON-encoded string so that
				// function-calling APIs without nested object support can
				// still fill it in.
				{Name: "initial_data", Type: TypeString, Description: buildInitialDataDescription(def.InitialParams), Required: initialDataRequired},
			},
			Handler: func(ctx context.Context, params map[string]any) (ToolResult, error) {
				return s.startDefinedWorkflow(ctx, workflowType, params)
			},
			AllowedPaths: []ToolPath{PathWork},
		})
		registered++
	}

	s.logger.WithFields(map[string]interface{}{"count": registered}).
		Debug("registered workflow tools")
	return registered
}

// startDefinedWorkflow is the shared handler behind every dynamically
// registered workflow tool: decode initial_data, forward to the engine's
// start entry point, wrap the raw result.
func (s *Server) startDefinedWorkflow(ctx context.Context, workflowType string, params map[string]any) (ToolResult, error) {
	if s.engine == nil {
		return NewErrorResult("workflow engine not configured", ""), nil
	}

	initialData := decodeInitialData(params["initial_data"], s.logger)
	command := stringParam(params, "command")

	result, err := s.engine.StartWorkflow(ctx, workflowType, command, initialData)
	if err != nil {
		s.logger.WithErr(err).Error("workflow tool failed")
		return NewErrorResult(fmt.Sprintf("failed to start workflow: %s", err), ""), nil
	}

	status := resultString(result, "status", "")
	if status == "error" || status == "failed" {
		return NewErrorResult(resultString(result, "message", "workflow execution failed"), ""), nil
	}

	return NewSuccessResult(
		resultString(result, "message", fmt.Sprintf("workflow '%s' started", workflowType)),
		result,
	), nil
}

// decodeInitialData accepts either an already-parsed object or a
// JSON-encoded string; absence and parse failures degrade to an empty
// object. Lone-backslash Windows drive paths are repaired to forward
// slashes before parsing.
func decodeInitialData(raw any, logger observability.Logger) map[string]any {
	switch v := raw.(type) {
	case map[string]any:
		return v
	case string:
		if v == "" {
			return map[string]any{}
		}
		fixed := drivePathPattern.ReplaceAllString(v, "$1/")
		var parsed map[string]any
		if err := json.Unmarshal([]byte(fixed), &parsed); err != nil {
			logger.WithErr(err).WithFields(map[string]interface{}{"initial_data": v}).
				Warn("invalid initial_data JSON, using empty object")
			return map[string]any{}
		}
		if parsed == nil {
			return map[string]any{}
		}
		return parsed
	default:
		return map[string]any{}
	}
}

func buildToolDescription(name string, def WorkflowDefinition) string {
	description := def.Description
	if description == "" {
		description = fmt.Sprintf("%s workflow", name)
	}
	if len(def.InitialParams) == 0 {
		return description
	}

	var b strings.Builder
	b.WriteString(description)
	b.WriteString("\n\nParameter Extraction (if available in user input):")
	for _, paramName := range sortedParamNames(def.InitialParams) {
		p := def.InitialParams[paramName]
		requirement := "required"
		if p.Optional {
			requirement = "optional"
		}
		paramType := p.Type
		if paramType == "" {
			paramType = "string"
		}
		fmt.Fprintf(&b, "\n- %s (%s, %s): %s", paramName, paramType, requirement, p.ExtractionHint)
	}
	return b.String()
}

func buildInitialDataDescription(initialParams map[string]InitialParam) string {
	if len(initialParams) == 0 {
		return `Initial workflow data as JSON string (optional). Provide "{}" if no parameters to extract.`
	}

	var lines []string
	var exampleFields []string
	for _, paramName := range sortedParamNames(initialParams) {
		p := initialParams[paramName]
		requirement := "required"
		if p.Optional {
			requirement = "optional"
		}
		paramType := p.Type
		if paramType == "" {
			paramType = "string"
		}
		lines = append(lines, fmt.Sprintf("  - %s (%s, %s): %s", paramName, paramType, requirement, p.Description))

		switch paramType {
		case "str", "string":
			exampleFields = append(exampleFields, fmt.Sprintf(`"%s": "value"`, paramName))
		case "int", "integer":
			exampleFields = append(exampleFields, fmt.Sprintf(`"%s": 0`, paramName))
		default:
			exampleFields = append(exampleFields, fmt.Sprintf(`"%s": null`, paramName))
		}
	}

	return fmt.Sprintf(
		"JSON string containing initial workflow data. Extract from user input if available:\n%s\n"+
			"Example format: {%s}\n"+
			`Important: for file paths use forward slashes (/) or double backslashes (\\) in JSON, e.g. "C:/Users" or "C:\\Users". `+
			`If no parameters can be extracted, provide "{}".`,
		strings.Join(lines, "\n"),
		strings.Join(exampleFields, ", "),
	)
}

func sortedParamNames(params map[string]InitialParam) []string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
