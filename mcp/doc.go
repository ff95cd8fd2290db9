// Package mcp implements the in-process control protocol between the
// companion's LLM controller and the workflow engine that executes
// multi-step system tasks. It covers the JSON-RPC style request/response
// envelope, a registry of typed tools, an in-memory store for workflow and
// step-result state, and the server/client pair that ties them together
// with a human-or-LLM-in-the-loop review cycle between workflow steps.
//
// The engine that actually runs steps is a collaborator behind the
// WorkflowEngine interface; the server never inspects engine internals
// beyond the documented result fields.
//
// Example:
//
//	engine := newEngine() // your WorkflowEngine implementation
//	server := mcp.NewServer(engine)
//	client := mcp.NewClient(server)
//
//	result := client.CallTool(ctx, "start_workflow", map[string]any{
//		"workflow_type": "intelligent_archive",
//		"command":       "archive everything on the desktop",
//	})
//	fmt.Println(result["status"])
package mcp
