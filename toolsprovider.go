// Package companion wires the MCP control plane into the LLM
// orchestration layer of the desktop companion.
package companion

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/uep-labs/companion/mcp"
	"github.com/uep-labs/companion/observability"
)

// ToolChoice is the function-calling mode handed to the model.
type ToolChoice string

const (
	// ToolChoiceAny forces the model to call a tool.
	ToolChoiceAny ToolChoice = "ANY"
	// ToolChoiceAuto lets the model decide between tools and text.
	ToolChoiceAuto ToolChoice = "AUTO"
)

// ToolsProviderOption configures a ToolsProvider.
type ToolsProviderOption func(*ToolsProvider)

// WithProviderLogger sets the provider's logger.
func WithProviderLogger(logger observability.Logger) ToolsProviderOption {
	return func(p *ToolsProvider) { p.logger = logger }
}

// ToolsProvider decides which MCP tools the LLM layer gets to see for a
// given turn, and which function-calling mode to request. It wraps an
// mcp.Client and never touches server state directly.
type ToolsProvider struct {
	client *mcp.Client
	logger observability.Logger
}

// NewToolsProvider creates a provider around the given client.
func NewToolsProvider(client *mcp.Client, opts ...ToolsProviderOption) *ToolsProvider {
	p := &ToolsProvider{
		client: client,
		logger: observability.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Available reports whether a client is wired in.
func (p *ToolsProvider) Available() bool {
	return p.client != nil
}

// ToolsForWorkflow returns the lane-filtered tool declarations for this
// turn, or nil when tools should be withheld: during a step-response turn
// the model must produce text, not another tool call, and callers can
// suppress tools outright.
func (p *ToolsProvider) ToolsForWorkflow(ctx context.Context, path mcp.ToolPath, isStepResponse, suppressTools bool) []map[string]any {
	_, span := StartSpan(ctx, "ToolsProvider.ToolsForWorkflow")
	span.SetAttributes(attribute.String("path", string(path)))
	defer span.End()

	if suppressTools {
		p.logger.Debug("tool provisioning suppressed")
		return nil
	}
	if isStepResponse {
		p.logger.Debug("step response turn, withholding tools")
		return nil
	}
	if p.client == nil {
		p.logger.Debug("no mcp client configured")
		return nil
	}

	specs := p.client.GetToolsForLLM(path)
	if len(specs) == 0 {
		return nil
	}
	span.SetAttributes(attribute.Int("tool_count", len(specs)))
	p.logger.WithFields(map[string]interface{}{"count": len(specs)}).Debug("tools prepared")
	return specs
}

// DetermineToolChoice picks the function-calling mode: with tools on offer
// and no workflow in flight, force a tool call so the model starts one;
// otherwise let it decide.
func (p *ToolsProvider) DetermineToolChoice(hasTools, hasActiveWorkflow, isReviewingStep bool) ToolChoice {
	if hasTools && !hasActiveWorkflow && !isReviewingStep {
		return ToolChoiceAny
	}
	return ToolChoiceAuto
}
