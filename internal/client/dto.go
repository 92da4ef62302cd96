package client

import "surface/internal/types"

type SessionsResponse struct {
	Sessions []*types.Session `json:"sessions"`
}

type MergeSessionRequest struct {
	Mode          types.MergeMode `json:"mode"`
	CommitMessage string          `json:"commit_message,omitempty"`
}

type CreateSessionRequest struct {
	ProjectPath  string `json:"project_path"`
	Branch       string `json:"branch,omitempty"`
	ParentBranch string `json:"parent_branch,omitempty"`
	AgentType    string `json:"agent_type,omitempty"`
	Prompt       string `json:"prompt,omitempty"`
	AsSpec       bool   `json:"as_spec,omitempty"`
}

type PromoteSpecRequest struct {
	AgentType string `json:"agent_type,omitempty"`
	Prompt    string `json:"prompt,omitempty"`
}

type ConvertToSpecResponse struct {
	NewID string `json:"new_id,omitempty"`
}

type StartAgentRequest struct {
	AgentType string `json:"agent_type,omitempty"`
}

type AgentStatusResponse struct {
	Running bool `json:"running"`
}
