package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/uep-labs/companion/observability"
)

// FunctionCall is the shape a function-calling model hands back: a tool
// name plus arguments that may arrive as an already-parsed map or as a
// JSON-encoded string.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments any    `json:"arguments"`
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientLogger sets the client's logger.
func WithClientLogger(logger observability.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// Client is the controller-side wrapper around a Server. It turns a
// model's function calls into validated requests and formats the results
// back into model-consumable text. Domain and protocol failures never
// surface as Go errors; every call returns a status-tagged map so the
// orchestration loop keeps running.
type Client struct {
	server *Server
	logger observability.Logger
	nextID atomic.Int64
}

// NewClient creates a client bound to the given server.
func NewClient(server *Server, opts ...ClientOption) *Client {
	c := &Client{
		server: server,
		logger: observability.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) nextRequestID() int64 {
	return c.nextID.Add(1)
}

// CallTool issues a request for the named tool and unwraps the response
// into a plain {status, ...} map.
func (c *Client) CallTool(ctx context.Context, name string, params map[string]any) map[string]any {
	if c.server == nil {
		c.logger.Error("mcp server not configured")
		return map[string]any{
			"status":  "error",
			"message": "mcp server not configured",
			"error":   "SERVER_NOT_SET",
		}
	}

	id := c.nextRequestID()
	request := NewRequest(&id, name, params)

	response := c.server.HandleRequest(ctx, request)
	if response.IsSuccess() {
		return map[string]any{
			"status":     "success",
			"data":       response.Result,
			"request_id": id,
		}
	}

	c.logger.WithFields(map[string]interface{}{
		"tool":       name,
		"error_code": int(response.Error.Code),
	}).Warn(response.Error.Message)
	return map[string]any{
		"status":     "error",
		"message":    response.Error.Message,
		"error_code": int(response.Error.Code),
		"error_data": response.Error.Data,
		"request_id": id,
	}
}

// GetToolsForLLM returns the function-calling declarations visible to the
// given lane. An empty lane defaults to CHAT.
func (c *Client) GetToolsForLLM(path ToolPath) []map[string]any {
	if c.server == nil {
		c.logger.Error("mcp server not configured, no tool specs available")
		return nil
	}
	if path == "" {
		path = PathChat
	}
	return c.server.GetToolsSpecForLLM(path)
}

// ParseLLMToolCall extracts the tool name and parameters from a model's
// function call. String-form arguments are parsed as JSON; a parse
// failure degrades to empty parameters rather than an error.
func (c *Client) ParseLLMToolCall(call FunctionCall) (string, map[string]any) {
	switch args := call.Arguments.(type) {
	case map[string]any:
		return call.Name, args
	case string:
		var parsed map[string]any
		if err := json.Unmarshal([]byte(args), &parsed); err != nil {
			c.logger.WithErr(err).WithFields(map[string]interface{}{"tool": call.Name}).
				Warn("failed to parse tool call arguments")
			return call.Name, map[string]any{}
		}
		if parsed == nil {
			parsed = map[string]any{}
		}
		return call.Name, parsed
	default:
		return call.Name, map[string]any{}
	}
}

// HandleLLMFunctionCall runs the full parse → call → format cycle for one
// model function call and returns a result suitable for re-insertion into
// the model's conversation context.
func (c *Client) HandleLLMFunctionCall(ctx context.Context, call FunctionCall) map[string]any {
	toolName, params := c.ParseLLMToolCall(call)
	c.logger.WithFields(map[string]interface{}{"tool": toolName}).Info("handling llm function call")

	result := c.CallTool(ctx, toolName, params)

	if result["status"] == "success" {
		data, _ := result["data"].(map[string]any)
		return map[string]any{
			"tool_name":         toolName,
			"status":            "success",
			"content":           data,
			"formatted_message": formatSuccessMessage(toolName, data),
		}
	}

	errMsg := resultString(result, "message", "unknown error")
	return map[string]any{
		"tool_name":         toolName,
		"status":            "error",
		"error":             errMsg,
		"formatted_message": formatErrorMessage(toolName, errMsg),
	}
}

// IsWorkflowTool reports whether the named tool is one of the six
// built-in workflow-control tools, so callers can treat it as workflow
// control rather than a conversational tool.
func (c *Client) IsWorkflowTool(name string) bool {
	return IsWorkflowToolName(name)
}

// formatSuccessMessage renders a tool result as a short human-readable
// line for the model's context. data is the protocol-level result map
// {status, message, data}.
func formatSuccessMessage(toolName string, data map[string]any) string {
	inner := resultData(data)

	switch toolName {
	case "start_workflow":
		sessionID := resultString(inner, "session_id", "unknown")
		workflowType := resultString(inner, "workflow_type", "unknown")
		return fmt.Sprintf("workflow '%s' started (session: %s)", workflowType, sessionID)

	case "get_workflow_status":
		workflowType := resultString(inner, "workflow_type", "unknown")
		status := resultString(inner, "status", "unknown")
		progress, _ := inner["progress"].(float64)
		return fmt.Sprintf("workflow '%s' status: %s, progress: %.1f%%", workflowType, status, progress*100)

	case "review_step":
		stepID := resultString(inner, "step_id", "unknown")
		status := resultString(inner, "status", "unknown")
		message := resultString(inner, "message", "")
		return fmt.Sprintf("step '%s' result: %s\n%s", stepID, status, message)

	case "approve_step":
		return resultString(data, "message", "step approved, workflow continuing")

	case "cancel_workflow":
		return resultString(data, "message", "workflow cancelled")

	default:
		if message := resultString(data, "message", ""); message != "" {
			return message
		}
		encoded, err := json.Marshal(data)
		if err != nil {
			return fmt.Sprintf("%v", data)
		}
		return string(encoded)
	}
}

func formatErrorMessage(toolName, errMsg string) string {
	return fmt.Sprintf("error executing tool '%s': %s", toolName, errMsg)
}
