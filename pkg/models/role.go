package models

import "time"

// Role describes an agent role: what kind of engineer the agent plays and the
// model/timeout defaults used when one is allocated for it.
type Role struct {
	// ID is the role identifier, e.g. "engineer".
	ID string `json:"id" yaml:"id"`
	// DisplayName is the human-facing name.
	DisplayName string `json:"display_name" yaml:"display_name"`
	// Description explains what the role does.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	// BuiltIn marks roles shipped with the daemon. Only built-in roles can be
	// reset to their defaults.
	BuiltIn bool `json:"built_in" yaml:"built_in"`
	// DefaultModel is the model used for agents in this role.
	DefaultModel string `json:"default_model" yaml:"default_model"`
	// Timeout bounds a single stage of work for this role.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}
