package mcp

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/uep-labs/companion/observability"
)

// ReviewAction is the controller's verdict on a step awaiting review.
type ReviewAction string

const (
	ActionApprove ReviewAction = "approve"
	ActionModify  ReviewAction = "modify"
	ActionCancel  ReviewAction = "cancel"
)

// WorkflowEngine is the external executor of workflow steps. The server
// treats every result as an opaque map and only reads the documented
// fields: "status" ("error" signals failure, with "message"), "session_id",
// "message" and "data".
type WorkflowEngine interface {
	// StartWorkflow launches a workflow and returns the engine's raw
	// result, which must include a session_id on success.
	StartWorkflow(ctx context.Context, workflowType, command string, initialData map[string]any) (map[string]any, error)

	// HandleReviewResponse delivers the controller's verdict on the step
	// currently under review.
	HandleReviewResponse(ctx context.Context, sessionID string, action ReviewAction, modifiedParams map[string]any) (map[string]any, error)

	// CancelWorkflow aborts a session outside of the review cycle.
	CancelWorkflow(ctx context.Context, sessionID, reason string) (map[string]any, error)

	// IsAwaitingReview reports whether the session is parked waiting for
	// a review verdict.
	IsAwaitingReview(sessionID string) bool
}

// workflowToolNames is the fixed set of built-in workflow-control tools.
var workflowToolNames = map[string]struct{}{
	"start_workflow":      {},
	"review_step":         {},
	"approve_step":        {},
	"modify_step":         {},
	"cancel_workflow":     {},
	"get_workflow_status": {},
}

// IsWorkflowToolName reports whether name is one of the six built-in
// workflow-control tools.
func IsWorkflowToolName(name string) bool {
	_, ok := workflowToolNames[name]
	return ok
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the server's logger.
func WithLogger(logger observability.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// WithServerInfo sets the server name and version reported in logs.
func WithServerInfo(name, version string) ServerOption {
	return func(s *Server) {
		s.serverName = name
		s.serverVersion = version
	}
}

// Server owns the tool registry and the resource store, and dispatches
// requests from the controller to tool handlers. All engine-touching
// handlers are context-aware; the server itself enforces no deadlines
// (the TIMEOUT code exists for collaborators to report).
//
// Registration is expected at setup time, not under concurrent dispatch.
type Server struct {
	tools         map[string]*Tool
	store         *ResourceStore
	engine        WorkflowEngine
	logger        observability.Logger
	serverName    string
	serverVersion string
}

// NewServer creates a server wired to the given engine and registers the
// six built-in workflow-control tools, all restricted to the WORK lane.
func NewServer(engine WorkflowEngine, opts ...ServerOption) *Server {
	s := &Server{
		tools:         make(map[string]*Tool),
		store:         NewResourceStore(),
		engine:        engine,
		logger:        observability.NewNullLogger(),
		serverName:    "companion-mcp-server",
		serverVersion: "0.1.0",
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerCoreTools()
	s.logger.WithFields(map[string]interface{}{
		"server":  s.serverName,
		"version": s.serverVersion,
	}).Debug("mcp server initialized")
	return s
}

// Store exposes the resource store, e.g. for teardown of finished
// sessions. The server remains the only writer during dispatch.
func (s *Server) Store() *ResourceStore { return s.store }

// RegisterTool adds a tool to the registry. Name collisions overwrite.
func (s *Server) RegisterTool(tool *Tool) {
	s.tools[tool.Name] = tool
	s.logger.WithFields(map[string]interface{}{"tool": tool.Name}).Debug("registered tool")
}

// UnregisterTool removes a tool by name.
func (s *Server) UnregisterTool(name string) {
	delete(s.tools, name)
}

// GetTool looks up a tool by name.
func (s *Server) GetTool(name string) (*Tool, bool) {
	tool, ok := s.tools[name]
	return tool, ok
}

// ListTools returns all registered tools sorted by name.
func (s *Server) ListTools() []*Tool {
	names := make([]string, 0, len(s.tools))
	for name := range s.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	tools := make([]*Tool, 0, len(names))
	for _, name := range names {
		tools = append(tools, s.tools[name])
	}
	return tools
}

// GetToolsForPath returns the tools visible to the given lane.
func (s *Server) GetToolsForPath(path ToolPath) []*Tool {
	var tools []*Tool
	for _, tool := range s.ListTools() {
		if tool.AllowedOn(path) {
			tools = append(tools, tool)
		}
	}
	return tools
}

// GetToolsSpecForLLM renders the lane-filtered tool set as function-calling
// declarations.
func (s *Server) GetToolsSpecForLLM(path ToolPath) []map[string]any {
	tools := s.GetToolsForPath(path)
	specs := make([]map[string]any, 0, len(tools))
	for _, tool := range tools {
		specs = append(specs, tool.ToLLMSpec())
	}
	return specs
}

// HandleRequest dispatches one request to its tool and wraps the outcome
// in a response. It never lets a handler failure escape: unknown tools
// come back as METHOD_NOT_FOUND, error ToolResults as INTERNAL_ERROR, and
// anything that panics during dispatch is recovered into INTERNAL_ERROR.
func (s *Server) HandleRequest(ctx context.Context, request *Request) (response *Response) {
	ctx, span := startSpan(ctx, "mcp.Server.HandleRequest")
	span.SetAttributes(attribute.String("tool_name", request.Method))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			s.logger.WithFields(map[string]interface{}{"tool": request.Method}).
				Error(fmt.Sprintf("panic during dispatch: %v", r))
			span.SetStatus(codes.Error, fmt.Sprintf("panic: %v", r))
			response = NewErrorResponse(request.ID, ErrCodeInternalError,
				fmt.Sprintf("tool execution failed: %v", r), nil)
		}
	}()

	tool, ok := s.GetTool(request.Method)
	if !ok {
		s.logger.WithFields(map[string]interface{}{"tool": request.Method}).Warn("unknown tool")
		span.SetStatus(codes.Error, "method not found")
		return NewErrorResponse(request.ID, ErrCodeMethodNotFound,
			fmt.Sprintf("tool '%s' is not registered", request.Method), nil)
	}

	result := tool.Execute(ctx, request.Params)
	span.SetAttributes(attribute.String("result_status", string(result.Status)))

	switch result.Status {
	case StatusSuccess, StatusPending:
		return NewSuccessResponse(request.ID, map[string]any{
			"status":  string(result.Status),
			"message": result.Message,
			"data":    result.Data,
		})
	default:
		span.SetStatus(codes.Error, result.Message)
		return NewErrorResponse(request.ID, ErrCodeInternalError, result.Message, map[string]any{
			"error_detail": result.ErrorDetail,
			"data":         result.Data,
		})
	}
}

// HandleBatch dispatches each request in order and collects the responses.
func (s *Server) HandleBatch(ctx context.Context, batch *BatchRequest) *BatchResponse {
	responses := make([]*Response, 0, len(batch.Requests))
	for _, request := range batch.Requests {
		responses = append(responses, s.HandleRequest(ctx, request))
	}
	return &BatchResponse{Responses: responses}
}

// NotifyStepCompleted is called by the workflow engine, out of band,
// whenever it finishes a step. The raw result's status/message/data fields
// default to "unknown"/""/{} when absent.
func (s *Server) NotifyStepCompleted(sessionID, stepID string, stepResult map[string]any) {
	status := "unknown"
	if v, ok := stepResult["status"].(string); ok {
		status = v
	}
	message, _ := stepResult["message"].(string)
	data, _ := stepResult["data"].(map[string]any)

	s.store.AddStepResult(StepResultResource{
		SessionID: sessionID,
		StepID:    stepID,
		Status:    status,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().Format(time.RFC3339),
	})
	s.logger.WithFields(map[string]interface{}{
		"session_id": sessionID,
		"step_id":    stepID,
		"status":     status,
	}).Debug("step completed")
}

func startSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return trace.SpanFromContext(ctx).TracerProvider().
		Tracer("github.com/uep-labs/companion/mcp").
		Start(ctx, name, opts...)
}
