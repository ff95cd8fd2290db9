package mcp

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// mockEngine is a testify mock for the WorkflowEngine interface.
type mockEngine struct {
	mock.Mock
}

func (m *mockEngine) StartWorkflow(ctx context.Context, workflowType, command string, initialData map[string]any) (map[string]any, error) {
	args := m.Called(ctx, workflowType, command, initialData)
	result, _ := args.Get(0).(map[string]any)
	return result, args.Error(1)
}

func (m *mockEngine) HandleReviewResponse(ctx context.Context, sessionID string, action ReviewAction, modifiedParams map[string]any) (map[string]any, error) {
	args := m.Called(ctx, sessionID, action, modifiedParams)
	result, _ := args.Get(0).(map[string]any)
	return result, args.Error(1)
}

func (m *mockEngine) CancelWorkflow(ctx context.Context, sessionID, reason string) (map[string]any, error) {
	args := m.Called(ctx, sessionID, reason)
	result, _ := args.Get(0).(map[string]any)
	return result, args.Error(1)
}

func (m *mockEngine) IsAwaitingReview(sessionID string) bool {
	return m.Called(sessionID).Bool(0)
}

func callTool(t *testing.T, server *Server, name string, params map[string]any) *Response {
	t.Helper()
	id := int64(1)
	return server.HandleRequest(context.Background(), NewRequest(&id, name, params))
}

func startSession(t *testing.T, server *Server, engine *mockEngine, workflowType, command string) string {
	t.Helper()
	sessionID := uuid.NewString()
	engine.On("StartWorkflow", mock.Anything, workflowType, command, mock.Anything).
		Return(map[string]any{"status": "started", "session_id": sessionID}, nil).Once()

	resp := callTool(t, server, "start_workflow", map[string]any{
		"workflow_type": workflowType,
		"command":       command,
	})
	require.True(t, resp.IsSuccess())
	return sessionID
}

func TestNewServerRegistersExactlyCoreTools(t *testing.T) {
	server := NewServer(&mockEngine{})

	tools := server.ListTools()
	require.Len(t, tools, 6)

	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{
		"approve_step",
		"cancel_workflow",
		"get_workflow_status",
		"modify_step",
		"review_step",
		"start_workflow",
	}, names)

	for _, name := range names {
		assert.True(t, IsWorkflowToolName(name), name)
	}
	assert.False(t, IsWorkflowToolName("resolve_path"))
}

func TestCoreToolsRestrictedToWorkPath(t *testing.T) {
	server := NewServer(&mockEngine{})

	assert.Len(t, server.GetToolsForPath(PathWork), 6)
	assert.Empty(t, server.GetToolsForPath(PathChat))

	// a tool with no lane restriction is visible to both
	server.RegisterTool(&Tool{
		Name:        "lookup_weather",
		Description: "look up the weather",
		Handler: func(ctx context.Context, params map[string]any) (ToolResult, error) {
			return NewSuccessResult("sunny", nil), nil
		},
	})
	assert.Len(t, server.GetToolsForPath(PathWork), 7)
	assert.Len(t, server.GetToolsForPath(PathChat), 1)

	specs := server.GetToolsSpecForLLM(PathChat)
	require.Len(t, specs, 1)
	assert.Equal(t, "lookup_weather", specs[0]["name"])
}

func TestHandleRequestUnknownTool(t *testing.T) {
	server := NewServer(&mockEngine{})

	resp := callTool(t, server, "no_such_tool", nil)
	require.True(t, resp.IsError())
	assert.Equal(t, ErrCodeMethodNotFound, resp.Error.Code)
	assert.Equal(t, "tool 'no_such_tool' is not registered", resp.Error.Message)
}

func TestHandleRequestValidationFailure(t *testing.T) {
	server := NewServer(&mockEngine{})

	// start_workflow requires workflow_type and command
	resp := callTool(t, server, "start_workflow", map[string]any{})
	require.True(t, resp.IsError())
	assert.Equal(t, ErrCodeInternalError, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "workflow_type")
}

func TestHandleRequestRecoversPanic(t *testing.T) {
	server := NewServer(&mockEngine{})
	server.RegisterTool(&Tool{
		Name:        "explode",
		Description: "always panics",
		Handler: func(ctx context.Context, params map[string]any) (ToolResult, error) {
			panic("kaboom")
		},
	})

	resp := callTool(t, server, "explode", nil)
	require.True(t, resp.IsError())
	assert.Equal(t, ErrCodeInternalError, resp.Error.Code)
}

func TestDomainErrorsMapToInternalError(t *testing.T) {
	engine := &mockEngine{}
	server := NewServer(engine)

	// unknown session looks like any other tool-level failure to the wire
	resp := callTool(t, server, "get_workflow_status", map[string]any{
		"session_id": "nope",
	})
	require.True(t, resp.IsError())
	assert.Equal(t, ErrCodeInternalError, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "workflow not found")

	engine.On("StartWorkflow", mock.Anything, "broken", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("engine offline")).Once()
	resp = callTool(t, server, "start_workflow", map[string]any{
		"workflow_type": "broken",
		"command":       "go",
	})
	require.True(t, resp.IsError())
	assert.Equal(t, ErrCodeInternalError, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "engine offline")
}

func TestStartWorkflowRegistersResource(t *testing.T) {
	engine := &mockEngine{}
	server := NewServer(engine)

	sessionID := startSession(t, server, engine, "intelligent_archive", "archive the desktop")

	workflow := server.Store().GetWorkflow(sessionID)
	require.NotNil(t, workflow)
	assert.Equal(t, "intelligent_archive", workflow.WorkflowType)
	assert.Equal(t, "running", workflow.Status)
	assert.Equal(t, 0.0, workflow.Progress)
	assert.Equal(t, "archive the desktop", workflow.Metadata["command"])
	engine.AssertExpectations(t)
}

func TestStartWorkflowCompletedStatusNotTracked(t *testing.T) {
	engine := &mockEngine{}
	server := NewServer(engine)

	sessionID := uuid.NewString()
	engine.On("StartWorkflow", mock.Anything, "quick_lookup", mock.Anything, mock.Anything).
		Return(map[string]any{"status": "completed", "session_id": sessionID}, nil).Once()

	resp := callTool(t, server, "start_workflow", map[string]any{
		"workflow_type": "quick_lookup",
		"command":       "lookup",
	})
	require.True(t, resp.IsSuccess())
	assert.Nil(t, server.Store().GetWorkflow(sessionID))
}

func TestStartWorkflowEngineErrorStatus(t *testing.T) {
	engine := &mockEngine{}
	server := NewServer(engine)

	engine.On("StartWorkflow", mock.Anything, "translate_document", mock.Anything, mock.Anything).
		Return(map[string]any{"status": "error", "message": "no such document"}, nil).Once()

	resp := callTool(t, server, "start_workflow", map[string]any{
		"workflow_type": "translate_document",
		"command":       "translate x",
	})
	require.True(t, resp.IsError())
	assert.Equal(t, "no such document", resp.Error.Message)
}

func TestReviewStepAfterNotification(t *testing.T) {
	engine := &mockEngine{}
	server := NewServer(engine)
	sessionID := startSession(t, server, engine, "summarize_tag", "summarize the meeting notes")

	server.NotifyStepCompleted(sessionID, "step_1", map[string]any{
		"status":  "success",
		"message": "summary produced",
		"data":    map[string]any{"summary": "short"},
	})

	resp := callTool(t, server, "review_step", map[string]any{
		"session_id": sessionID,
		"step_id":    "step_1",
	})
	require.True(t, resp.IsSuccess())
	data := resp.Result["data"].(map[string]any)
	assert.Equal(t, "success", data["status"])
	assert.Equal(t, "summary produced", data["message"])

	resp = callTool(t, server, "review_step", map[string]any{
		"session_id": sessionID,
		"step_id":    "step_9",
	})
	require.True(t, resp.IsError())
	assert.Contains(t, resp.Error.Message, "step result not found")
}

func TestNotifyStepCompletedDefaults(t *testing.T) {
	server := NewServer(&mockEngine{})

	server.NotifyStepCompleted("s1", "step_1", map[string]any{})

	result, ok := server.Store().GetStepResult("s1", "step_1")
	require.True(t, ok)
	assert.Equal(t, "unknown", result.Status)
	assert.Empty(t, result.Message)
	assert.NotEmpty(t, result.Timestamp)
}

func TestApproveStepAdvancesWorkflow(t *testing.T) {
	engine := &mockEngine{}
	server := NewServer(engine)
	sessionID := startSession(t, server, engine, "drop_and_read", "read the dropped file")

	engine.On("HandleReviewResponse", mock.Anything, sessionID, ActionApprove, mock.Anything).
		Return(map[string]any{
			"status":  "running",
			"message": "continuing",
			"data":    map[string]any{"next_step": "step_2"},
		}, nil).Once()

	resp := callTool(t, server, "approve_step", map[string]any{
		"session_id": sessionID,
	})
	require.True(t, resp.IsSuccess())

	workflow := server.Store().GetWorkflow(sessionID)
	require.NotNil(t, workflow)
	assert.Equal(t, "running", workflow.Status)
	assert.Equal(t, "step_2", workflow.CurrentStep)
	engine.AssertExpectations(t)
}

func TestModifyStepDoesNotUpdateWorkflow(t *testing.T) {
	engine := &mockEngine{}
	server := NewServer(engine)
	sessionID := startSession(t, server, engine, "drop_and_read", "read the dropped file")

	before := *server.Store().GetWorkflow(sessionID)

	engine.On("HandleReviewResponse", mock.Anything, sessionID, ActionModify,
		map[string]any{"target_dir": "/tmp/out"}).
		Return(map[string]any{"status": "running", "message": "re-executing"}, nil).Once()

	resp := callTool(t, server, "modify_step", map[string]any{
		"session_id":    sessionID,
		"modifications": map[string]any{"target_dir": "/tmp/out"},
	})
	require.True(t, resp.IsSuccess())

	after := server.Store().GetWorkflow(sessionID)
	assert.Equal(t, before.Status, after.Status)
	assert.Equal(t, before.CurrentStep, after.CurrentStep)
	assert.Equal(t, before.Progress, after.Progress)
	engine.AssertExpectations(t)
}

func TestCancelWorkflowDirect(t *testing.T) {
	engine := &mockEngine{}
	server := NewServer(engine)
	sessionID := startSession(t, server, engine, "intelligent_archive", "archive the desktop")

	engine.On("IsAwaitingReview", sessionID).Return(false).Once()
	engine.On("CancelWorkflow", mock.Anything, sessionID, "cancelled by controller").
		Return(map[string]any{"status": "cancelled"}, nil).Once()

	resp := callTool(t, server, "cancel_workflow", map[string]any{
		"session_id": sessionID,
	})
	require.True(t, resp.IsSuccess())
	assert.Equal(t, "cancelled", server.Store().GetWorkflow(sessionID).Status)
	engine.AssertExpectations(t)
}

func TestCancelWorkflowViaReviewPath(t *testing.T) {
	engine := &mockEngine{}
	server := NewServer(engine)
	sessionID := startSession(t, server, engine, "intelligent_archive", "archive the desktop")

	engine.On("IsAwaitingReview", sessionID).Return(true).Once()
	engine.On("HandleReviewResponse", mock.Anything, sessionID, ActionCancel, mock.Anything).
		Return(map[string]any{"status": "cancelled"}, nil).Once()

	resp := callTool(t, server, "cancel_workflow", map[string]any{
		"session_id": sessionID,
		"reason":     "controller changed its mind",
	})
	require.True(t, resp.IsSuccess())
	assert.Equal(t, "cancelled", server.Store().GetWorkflow(sessionID).Status)
	engine.AssertExpectations(t)
}

func TestGetWorkflowStatus(t *testing.T) {
	engine := &mockEngine{}
	server := NewServer(engine)
	sessionID := startSession(t, server, engine, "summarize_tag", "summarize the meeting notes")

	server.NotifyStepCompleted(sessionID, "step_1", map[string]any{"status": "success"})
	server.NotifyStepCompleted(sessionID, "step_2", map[string]any{"status": "success"})

	resp := callTool(t, server, "get_workflow_status", map[string]any{
		"session_id": sessionID,
	})
	require.True(t, resp.IsSuccess())
	data := resp.Result["data"].(map[string]any)
	assert.Equal(t, sessionID, data["session_id"])
	assert.Equal(t, "summarize_tag", data["workflow_type"])
	assert.Equal(t, "running", data["status"])
	assert.Equal(t, 2, data["step_count"])
}

func TestWorkflowLifecycle(t *testing.T) {
	engine := &mockEngine{}
	server := NewServer(engine)
	sessionID := startSession(t, server, engine, "intelligent_archive", "archive the desktop")

	assert.Equal(t, "running", server.Store().GetWorkflow(sessionID).Status)

	server.NotifyStepCompleted(sessionID, "step_1", map[string]any{
		"status": "success", "message": "scanned files",
	})

	engine.On("HandleReviewResponse", mock.Anything, sessionID, ActionApprove, mock.Anything).
		Return(map[string]any{
			"status": "running",
			"data":   map[string]any{"next_step": "step_2"},
		}, nil).Once()
	resp := callTool(t, server, "approve_step", map[string]any{"session_id": sessionID})
	require.True(t, resp.IsSuccess())
	assert.Equal(t, "step_2", server.Store().GetWorkflow(sessionID).CurrentStep)

	engine.On("IsAwaitingReview", sessionID).Return(false).Once()
	engine.On("CancelWorkflow", mock.Anything, sessionID, mock.Anything).
		Return(map[string]any{"status": "cancelled"}, nil).Once()
	resp = callTool(t, server, "cancel_workflow", map[string]any{"session_id": sessionID})
	require.True(t, resp.IsSuccess())
	assert.Equal(t, "cancelled", server.Store().GetWorkflow(sessionID).Status)
	engine.AssertExpectations(t)
}

func TestIndependentSessions(t *testing.T) {
	engine := &mockEngine{}
	server := NewServer(engine)

	s1 := startSession(t, server, engine, "intelligent_archive", "archive the desktop")
	s2 := startSession(t, server, engine, "translate_document", "translate the report")
	require.NotEqual(t, s1, s2)

	// each session keeps its own originating command
	assert.Equal(t, "archive the desktop", server.Store().GetWorkflow(s1).Metadata["command"])
	assert.Equal(t, "translate the report", server.Store().GetWorkflow(s2).Metadata["command"])

	server.NotifyStepCompleted(s1, "step_1", map[string]any{"status": "success"})

	engine.On("IsAwaitingReview", s2).Return(false).Once()
	engine.On("CancelWorkflow", mock.Anything, s2, mock.Anything).
		Return(map[string]any{"status": "cancelled"}, nil).Once()
	resp := callTool(t, server, "cancel_workflow", map[string]any{"session_id": s2})
	require.True(t, resp.IsSuccess())

	// cancelling S2 leaves S1 untouched
	s2Workflow := server.Store().GetWorkflow(s2)
	assert.Equal(t, "running", server.Store().GetWorkflow(s1).Status)
	assert.Equal(t, "cancelled", s2Workflow.Status)
	assert.Equal(t, "translate the report", s2Workflow.Metadata["command"])
	assert.Len(t, server.Store().GetAllStepResults(s1), 1)
	assert.Empty(t, server.Store().GetAllStepResults(s2))
}

func TestHandleBatch(t *testing.T) {
	server := NewServer(&mockEngine{})

	id1, id2 := int64(1), int64(2)
	batch := &BatchRequest{Requests: []*Request{
		NewRequest(&id1, "get_workflow_status", map[string]any{"session_id": "missing"}),
		NewRequest(&id2, "no_such_tool", nil),
	}}

	resp := server.HandleBatch(context.Background(), batch)
	require.Len(t, resp.Responses, 2)
	assert.Equal(t, ErrCodeInternalError, resp.Responses[0].Error.Code)
	assert.Equal(t, ErrCodeMethodNotFound, resp.Responses[1].Error.Code)
	assert.Equal(t, &id2, resp.Responses[1].ID)
}

func TestUnregisterTool(t *testing.T) {
	server := NewServer(&mockEngine{})

	server.UnregisterTool("modify_step")
	_, ok := server.GetTool("modify_step")
	assert.False(t, ok)
	assert.Len(t, server.ListTools(), 5)
}
