package mcp

// WorkflowResource tracks one in-flight workflow session. The server is
// the only writer; removal is explicit, never automatic.
type WorkflowResource struct {
	SessionID    string         `json:"session_id"`
	WorkflowType string         `json:"workflow_type"`
	CurrentStep  string         `json:"current_step,omitempty"`
	Status       string         `json:"status"`
	Progress     float64        `json:"progress"`
	Metadata     map[string]any `json:"metadata"`
}

// StepResultResource is one step's reported outcome, overwritten if the
// same step reports again.
type StepResultResource struct {
	SessionID string         `json:"session_id"`
	StepID    string         `json:"step_id"`
	Status    string         `json:"status"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data"`
	Timestamp string         `json:"timestamp"`
}

// WorkflowUpdate is a partial update: nil fields are left untouched.
// Callers must not assume unspecified fields reset to defaults.
type WorkflowUpdate struct {
	WorkflowType *string
	CurrentStep  *string
	Status       *string
	Progress     *float64
	Metadata     map[string]any
}

// ResourceStore is the in-memory record of workflow state and per-step
// results. It assumes a single event-loop thread; implementations that
// spread server calls across real threads must add their own
// synchronization around mutation.
type ResourceStore struct {
	workflows   map[string]*WorkflowResource
	stepResults map[string]map[string]StepResultResource
}

// NewResourceStore creates an empty store.
func NewResourceStore() *ResourceStore {
	return &ResourceStore{
		workflows:   make(map[string]*WorkflowResource),
		stepResults: make(map[string]map[string]StepResultResource),
	}
}

// RegisterWorkflow records a workflow resource keyed by its session id.
// A duplicate session id replaces the previous record.
func (s *ResourceStore) RegisterWorkflow(resource *WorkflowResource) {
	if resource.Metadata == nil {
		resource.Metadata = map[string]any{}
	}
	s.workflows[resource.SessionID] = resource
}

// UpdateWorkflow applies the non-nil fields of the update to an existing
// workflow. It reports whether the session was found.
func (s *ResourceStore) UpdateWorkflow(sessionID string, update WorkflowUpdate) bool {
	workflow, ok := s.workflows[sessionID]
	if !ok {
		return false
	}
	if update.WorkflowType != nil {
		workflow.WorkflowType = *update.WorkflowType
	}
	if update.CurrentStep != nil {
		workflow.CurrentStep = *update.CurrentStep
	}
	if update.Status != nil {
		workflow.Status = *update.Status
	}
	if update.Progress != nil {
		workflow.Progress = *update.Progress
	}
	if update.Metadata != nil {
		workflow.Metadata = update.Metadata
	}
	return true
}

// GetWorkflow returns the workflow for the session id, or nil.
func (s *ResourceStore) GetWorkflow(sessionID string) *WorkflowResource {
	return s.workflows[sessionID]
}

// ListWorkflows returns all tracked workflows.
func (s *ResourceStore) ListWorkflows() []*WorkflowResource {
	list := make([]*WorkflowResource, 0, len(s.workflows))
	for _, w := range s.workflows {
		list = append(list, w)
	}
	return list
}

// RemoveWorkflow deletes a workflow and cascades to its step results.
func (s *ResourceStore) RemoveWorkflow(sessionID string) {
	delete(s.workflows, sessionID)
	delete(s.stepResults, sessionID)
}

// AddStepResult records a step result, replacing any earlier report for
// the same (session, step) pair.
func (s *ResourceStore) AddStepResult(result StepResultResource) {
	if result.Data == nil {
		result.Data = map[string]any{}
	}
	bySession, ok := s.stepResults[result.SessionID]
	if !ok {
		bySession = make(map[string]StepResultResource)
		s.stepResults[result.SessionID] = bySession
	}
	bySession[result.StepID] = result
}

// GetStepResult returns the stored result for one step of a session.
func (s *ResourceStore) GetStepResult(sessionID, stepID string) (StepResultResource, bool) {
	result, ok := s.stepResults[sessionID][stepID]
	return result, ok
}

// GetAllStepResults returns every stored step result for a session.
func (s *ResourceStore) GetAllStepResults(sessionID string) []StepResultResource {
	bySession := s.stepResults[sessionID]
	results := make([]StepResultResource, 0, len(bySession))
	for _, r := range bySession {
		results = append(results, r)
	}
	return results
}

// Clear drops every workflow and step result.
func (s *ResourceStore) Clear() {
	s.workflows = make(map[string]*WorkflowResource)
	s.stepResults = make(map[string]map[string]StepResultResource)
}
