package models

// AgentSignal is an asynchronous completion callback from an external agent
// process reporting that it finished a workflow stage. Signals are consumed
// at most once by the workflow awaiting that stage; an orphaned signal is
// dropped, never queued.
type AgentSignal struct {
	SessionID  string                 `json:"sessionId"`
	WorkflowID string                 `json:"workflowId"`
	Stage      string                 `json:"stage"`
	Result     string                 `json:"result"`
	TaskID     string                 `json:"taskId,omitempty"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
}

// Succeeded reports whether the signal carries a successful result.
func (s AgentSignal) Succeeded() bool {
	return s.Result == "success" || s.Result == "completed" || s.Result == "ok"
}
