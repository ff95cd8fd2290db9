package mcp

import (
	"context"
	"fmt"
)

// Engine result statuses that mean a workflow actually got under way and
// should be tracked in the store.
var startedStatuses = map[string]struct{}{
	"started":   {},
	"success":   {},
	"submitted": {},
	"pending":   {},
}

func (s *Server) registerCoreTools() {
	workOnly := []ToolPath{PathWork}

	s.RegisterTool(&Tool{
		Name:        "start_workflow",
		Description: "Generic workflow starter. Prefer the direct workflow tools when one exists for the task, as they carry better parameter extraction guidance.",
		Parameters: []ToolParameter{
			{Name: "workflow_type", Type: TypeString, Description: "Workflow type, e.g. drop_and_read, intelligent_archive, summarize_tag, translate_document", Required: true},
			{Name: "command", Type: TypeString, Description: "Original command that triggered this workflow", Required: true},
			{Name: "initial_data", Type: TypeObject, Description: "Initial data for workflow initialization", Required: false},
		},
		Handler:      s.handleStartWorkflow,
		AllowedPaths: workOnly,
	})

	s.RegisterTool(&Tool{
		Name:        "review_step",
		Description: "Review a workflow step's execution result and decide whether to continue",
		Parameters: []ToolParameter{
			{Name: "session_id", Type: TypeString, Description: "Workflow session ID", Required: true},
			{Name: "step_id", Type: TypeString, Description: "Step ID", Required: true},
		},
		Handler:      s.handleReviewStep,
		AllowedPaths: workOnly,
	})

	s.RegisterTool(&Tool{
		Name:        "approve_step",
		Description: "Approve the current step result and continue to the next step",
		Parameters: []ToolParameter{
			{Name: "session_id", Type: TypeString, Description: "Workflow session ID", Required: true},
			{Name: "continue_data", Type: TypeObject, Description: "Data to pass to the next step", Required: false},
		},
		Handler:      s.handleApproveStep,
		AllowedPaths: workOnly,
	})

	s.RegisterTool(&Tool{
		Name:        "modify_step",
		Description: "Modify the current step's parameters and re-execute it",
		Parameters: []ToolParameter{
			{Name: "session_id", Type: TypeString, Description: "Workflow session ID", Required: true},
			{Name: "modifications", Type: TypeObject, Description: "Parameters to modify", Required: true},
		},
		Handler:      s.handleModifyStep,
		AllowedPaths: workOnly,
	})

	s.RegisterTool(&Tool{
		Name:        "cancel_workflow",
		Description: "Cancel an ongoing workflow",
		Parameters: []ToolParameter{
			{Name: "session_id", Type: TypeString, Description: "Workflow session ID to cancel", Required: true},
			{Name: "reason", Type: TypeString, Description: "Reason for cancellation", Required: false},
		},
		Handler:      s.handleCancelWorkflow,
		AllowedPaths: workOnly,
	})

	s.RegisterTool(&Tool{
		Name:        "get_workflow_status",
		Description: "Query the current status and progress of a workflow",
		Parameters: []ToolParameter{
			{Name: "session_id", Type: TypeString, Description: "Workflow session ID", Required: true},
		},
		Handler:      s.handleGetWorkflowStatus,
		AllowedPaths: workOnly,
	})
}

func (s *Server) handleStartWorkflow(ctx context.Context, params map[string]any) (ToolResult, error) {
	workflowType := stringParam(params, "workflow_type")
	command := stringParam(params, "command")
	initialData := objectParam(params, "initial_data")

	if s.engine == nil {
		return NewErrorResult("workflow engine not configured", ""), nil
	}

	result, err := s.engine.StartWorkflow(ctx, workflowType, command, initialData)
	if err != nil {
		s.logger.WithErr(err).Error("start_workflow failed")
		return NewErrorResult(fmt.Sprintf("failed to start workflow: %s", err), ""), nil
	}

	if resultString(result, "status", "") == "error" {
		return NewErrorResult(resultString(result, "message", "workflow failed to start"), ""), nil
	}

	sessionID := resultString(result, "session_id", "")
	status := resultString(result, "status", "")

	// A "completed" start needs no tracking; anything under way does.
	if _, started := startedStatuses[status]; started && sessionID != "" {
		s.store.RegisterWorkflow(&WorkflowResource{
			SessionID:    sessionID,
			WorkflowType: workflowType,
			Status:       "running",
			Progress:     0.0,
			Metadata:     map[string]any{"command": command},
		})
	}

	return NewSuccessResult(fmt.Sprintf("workflow '%s' started", workflowType), result), nil
}

func (s *Server) handleReviewStep(ctx context.Context, params map[string]any) (ToolResult, error) {
	sessionID := stringParam(params, "session_id")
	stepID := stringParam(params, "step_id")

	stepResult, ok := s.store.GetStepResult(sessionID, stepID)
	if !ok {
		return NewErrorResult(fmt.Sprintf("step result not found: %s/%s", sessionID, stepID), ""), nil
	}

	return NewSuccessResult("step result retrieved", map[string]any{
		"session_id": sessionID,
		"step_id":    stepID,
		"status":     stepResult.Status,
		"message":    stepResult.Message,
		"data":       stepResult.Data,
		"timestamp":  stepResult.Timestamp,
	}), nil
}

func (s *Server) handleApproveStep(ctx context.Context, params map[string]any) (ToolResult, error) {
	sessionID := stringParam(params, "session_id")
	continueData := objectParam(params, "continue_data")

	if s.engine == nil {
		return NewErrorResult("workflow engine not configured", ""), nil
	}

	result, err := s.engine.HandleReviewResponse(ctx, sessionID, ActionApprove, continueData)
	if err != nil {
		s.logger.WithErr(err).Error("approve_step failed")
		return NewErrorResult(fmt.Sprintf("failed to approve step: %s", err), ""), nil
	}

	if s.store.GetWorkflow(sessionID) != nil && resultString(result, "status", "") != "error" {
		status := resultString(result, "status", "running")
		nextStep := resultString(resultData(result), "next_step", "")
		s.store.UpdateWorkflow(sessionID, WorkflowUpdate{
			Status:      &status,
			CurrentStep: &nextStep,
		})
	}

	return NewSuccessResult(resultString(result, "message", "step approved, workflow continuing"), result), nil
}

// handleModifyStep deliberately does not touch the WorkflowResource: the
// engine re-executes the step and reports back through the usual
// step-completion notification.
func (s *Server) handleModifyStep(ctx context.Context, params map[string]any) (ToolResult, error) {
	sessionID := stringParam(params, "session_id")
	modifications := objectParam(params, "modifications")

	if s.engine == nil {
		return NewErrorResult("workflow engine not configured", ""), nil
	}

	result, err := s.engine.HandleReviewResponse(ctx, sessionID, ActionModify, modifications)
	if err != nil {
		s.logger.WithErr(err).Error("modify_step failed")
		return NewErrorResult(fmt.Sprintf("failed to modify step: %s", err), ""), nil
	}

	return NewSuccessResult(resultString(result, "message", "step modified and re-executed"), result), nil
}

func (s *Server) handleCancelWorkflow(ctx context.Context, params map[string]any) (ToolResult, error) {
	sessionID := stringParam(params, "session_id")
	reason := stringParam(params, "reason")
	if reason == "" {
		reason = "cancelled by controller"
	}

	if s.engine == nil {
		return NewErrorResult("workflow engine not configured", ""), nil
	}

	var result map[string]any
	var err error
	if s.engine.IsAwaitingReview(sessionID) {
		// Parked at a review checkpoint: cancel through the review path so
		// the engine can unwind the pending step.
		result, err = s.engine.HandleReviewResponse(ctx, sessionID, ActionCancel, nil)
	} else {
		result, err = s.engine.CancelWorkflow(ctx, sessionID, reason)
	}
	if err != nil {
		s.logger.WithErr(err).Error("cancel_workflow failed")
		return NewErrorResult(fmt.Sprintf("failed to cancel workflow: %s", err), ""), nil
	}

	cancelled := "cancelled"
	s.store.UpdateWorkflow(sessionID, WorkflowUpdate{Status: &cancelled})

	return NewSuccessResult(fmt.Sprintf("workflow cancelled: %s", reason), result), nil
}

func (s *Server) handleGetWorkflowStatus(ctx context.Context, params map[string]any) (ToolResult, error) {
	sessionID := stringParam(params, "session_id")

	workflow := s.store.GetWorkflow(sessionID)
	if workflow == nil {
		return NewErrorResult(fmt.Sprintf("workflow not found: %s", sessionID), ""), nil
	}

	stepResults := s.store.GetAllStepResults(sessionID)

	return NewSuccessResult("workflow status retrieved", map[string]any{
		"session_id":    workflow.SessionID,
		"workflow_type": workflow.WorkflowType,
		"current_step":  workflow.CurrentStep,
		"status":        workflow.Status,
		"progress":      workflow.Progress,
		"metadata":      workflow.Metadata,
		"step_count":    len(stepResults),
	}), nil
}

func stringParam(params map[string]any, name string) string {
	v, _ := params[name].(string)
	return v
}

func objectParam(params map[string]any, name string) map[string]any {
	v, _ := params[name].(map[string]any)
	return v
}

func resultString(result map[string]any, key, fallback string) string {
	if v, ok := result[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func resultData(result map[string]any) map[string]any {
	v, _ := result["data"].(map[string]any)
	return v
}
