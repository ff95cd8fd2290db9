package mcp

import (
	"context"
	"fmt"
	"math"
	"reflect"
)

// ParameterType enumerates the value types a tool parameter may declare.
type ParameterType string

const (
	TypeString  ParameterType = "string"
	TypeInteger ParameterType = "integer"
	TypeFloat   ParameterType = "float"
	TypeBoolean ParameterType = "boolean"
	TypeObject  ParameterType = "object"
	TypeArray   ParameterType = "array"
)

// ToolPath is a caller-context lane. Tools are only visible to the lanes
// they allow.
type ToolPath string

const (
	PathChat ToolPath = "CHAT"
	PathWork ToolPath = "WORK"
)

// ToolParameter declares one parameter of a tool. Declared once at
// registration time and immutable thereafter.
type ToolParameter struct {
	Name        string
	Type        ParameterType
	Description string
	Required    bool
	Default     any
	Enum        []any
}

// Validate checks a candidate value against the declaration. A nil value
// stands for "not provided".
func (p ToolParameter) Validate(value any) error {
	if value == nil {
		if p.Required {
			return fmt.Errorf("parameter '%s' is required", p.Name)
		}
		return nil
	}

	switch p.Type {
	case TypeString:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("parameter '%s' must be a string", p.Name)
		}
	case TypeInteger:
		if !isIntegral(value) {
			return fmt.Errorf("parameter '%s' must be an integer", p.Name)
		}
	case TypeFloat:
		if !isNumeric(value) {
			return fmt.Errorf("parameter '%s' must be a number", p.Name)
		}
	case TypeBoolean:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("parameter '%s' must be a boolean", p.Name)
		}
	case TypeObject:
		if _, ok := value.(map[string]any); !ok {
			return fmt.Errorf("parameter '%s' must be an object", p.Name)
		}
	case TypeArray:
		if _, ok := value.([]any); !ok {
			return fmt.Errorf("parameter '%s' must be an array", p.Name)
		}
	}

	if len(p.Enum) > 0 {
		for _, allowed := range p.Enum {
			if reflect.DeepEqual(value, allowed) {
				return nil
			}
		}
		return fmt.Errorf("parameter '%s' must be one of %v", p.Name, p.Enum)
	}

	return nil
}

// isIntegral accepts native Go ints and float64s carrying whole numbers,
// since JSON decoding surfaces every number as float64.
func isIntegral(value any) bool {
	switch v := value.(type) {
	case int, int32, int64:
		return true
	case float64:
		return v == math.Trunc(v)
	default:
		return false
	}
}

func isNumeric(value any) bool {
	switch value.(type) {
	case int, int32, int64, float32, float64:
		return true
	default:
		return false
	}
}

// ToolResultStatus is the domain-level outcome of a tool execution.
type ToolResultStatus string

const (
	StatusSuccess ToolResultStatus = "success"
	StatusError   ToolResultStatus = "error"
	// StatusPending means the tool needs external input (for example the
	// user) before it can be considered finished. It is still wrapped as a
	// protocol-success response; callers must inspect Status.
	StatusPending ToolResultStatus = "pending"
)

// ToolResult is what a tool handler returns.
type ToolResult struct {
	Status      ToolResultStatus `json:"status"`
	Message     string           `json:"message"`
	Data        map[string]any   `json:"data"`
	ErrorDetail string           `json:"error_detail,omitempty"`
}

// NewSuccessResult creates a success result.
func NewSuccessResult(message string, data map[string]any) ToolResult {
	if data == nil {
		data = map[string]any{}
	}
	return ToolResult{Status: StatusSuccess, Message: message, Data: data}
}

// NewErrorResult creates an error result. An empty detail defaults to the
// message itself.
func NewErrorResult(message, errorDetail string) ToolResult {
	if errorDetail == "" {
		errorDetail = message
	}
	return ToolResult{
		Status:      StatusError,
		Message:     message,
		Data:        map[string]any{},
		ErrorDetail: errorDetail,
	}
}

// NewPendingResult creates a pending result.
func NewPendingResult(message string, data map[string]any) ToolResult {
	if data == nil {
		data = map[string]any{}
	}
	return ToolResult{Status: StatusPending, Message: message, Data: data}
}

// ToolHandler executes a tool call. Expected domain failures come back as
// an error ToolResult with a nil error; a non-nil error (or a panic) is
// treated as an unexpected failure and converted by Execute.
type ToolHandler func(ctx context.Context, params map[string]any) (ToolResult, error)

// Tool is one invocable operation in the server's registry.
type Tool struct {
	Name        string
	Description string
	Parameters  []ToolParameter
	Handler     ToolHandler
	// AllowedPaths restricts which lanes may see and call the tool.
	// Empty means both CHAT and WORK.
	AllowedPaths []ToolPath
}

// AllowedOn reports whether the tool is visible to the given lane.
func (t *Tool) AllowedOn(path ToolPath) bool {
	if len(t.AllowedPaths) == 0 {
		return true
	}
	for _, p := range t.AllowedPaths {
		if p == path {
			return true
		}
	}
	return false
}

// ValidateParams checks the values against the declared parameters in
// order, stopping at the first failure.
func (t *Tool) ValidateParams(params map[string]any) error {
	for _, decl := range t.Parameters {
		if err := decl.Validate(params[decl.Name]); err != nil {
			return err
		}
	}
	return nil
}

// ToLLMSpec renders the tool as a function-calling declaration. The
// "float" type is rendered as "number" for API compatibility; everything
// else passes through unchanged.
func (t *Tool) ToLLMSpec() map[string]any {
	properties := map[string]any{}
	required := []string{}

	for _, param := range t.Parameters {
		typeName := string(param.Type)
		if param.Type == TypeFloat {
			typeName = "number"
		}

		prop := map[string]any{
			"type":        typeName,
			"description": param.Description,
		}
		if len(param.Enum) > 0 {
			prop["enum"] = param.Enum
		}
		if param.Default != nil {
			prop["default"] = param.Default
		}
		properties[param.Name] = prop

		if param.Required {
			required = append(required, param.Name)
		}
	}

	return map[string]any{
		"name":        t.Name,
		"description": t.Description,
		"parameters": map[string]any{
			"type":       "object",
			"properties": properties,
			"required":   required,
		},
	}
}

// Execute validates the parameters and runs the handler. Validation
// failures and handler errors never escape as Go errors; they come back as
// error ToolResults. A panicking handler is recovered the same way.
func (t *Tool) Execute(ctx context.Context, params map[string]any) (result ToolResult) {
	if err := t.ValidateParams(params); err != nil {
		return NewErrorResult(fmt.Sprintf("parameter validation failed: %s", err), "")
	}

	if t.Handler == nil {
		return NewErrorResult(fmt.Sprintf("tool '%s' has no registered handler", t.Name), "")
	}

	defer func() {
		if r := recover(); r != nil {
			result = NewErrorResult("tool execution failed", fmt.Sprintf("panic: %v", r))
		}
	}()

	res, err := t.Handler(ctx, params)
	if err != nil {
		return NewErrorResult("tool execution failed", err.Error())
	}
	return res
}
