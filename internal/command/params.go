// Package command translates category.action command strings plus loose
// parameters into typed domain calls. The router is stateless; all durable
// state lives in the components it dispatches to.
package command

import (
	"log"
	"strings"

	"github.com/mkade/foreman/internal/protocol"
	"github.com/mkade/foreman/pkg/models"
)

// Params is the loose parameter bag carried by a request. Handlers pull
// required fields through the typed accessors, which raise MissingParameter
// naming the field.
type Params map[string]interface{}

// String returns a required string parameter.
func (p Params) String(key string) (string, error) {
	v, ok := p[key]
	if !ok {
		return "", protocol.MissingParameter(key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", protocol.MissingParameter(key)
	}
	return s, nil
}

// OptString returns an optional string parameter, empty when absent.
func (p Params) OptString(key string) string {
	s, _ := p[key].(string)
	return s
}

// Int returns a required integer parameter. JSON numbers decode as float64.
func (p Params) Int(key string) (int, error) {
	v, ok := p[key]
	if !ok {
		return 0, protocol.MissingParameter(key)
	}
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case int:
		return n, nil
	default:
		return 0, protocol.MissingParameter(key)
	}
}

// OptInt returns an optional integer parameter with a default.
func (p Params) OptInt(key string, def int) int {
	n, err := p.Int(key)
	if err != nil {
		return def
	}
	return n
}

// OptBool returns an optional boolean parameter.
func (p Params) OptBool(key string) bool {
	b, _ := p[key].(bool)
	return b
}

// StringSlice returns an optional list-of-strings parameter. Both []string
// and []interface{} decodings are accepted.
func (p Params) StringSlice(key string) []string {
	switch v := p[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Map returns an optional nested-object parameter.
func (p Params) Map(key string) map[string]interface{} {
	m, _ := p[key].(map[string]interface{})
	return m
}

// normalizeTaskType maps caller-supplied task type synonyms onto the closed
// set, logging the original value as a diagnostic trail.
func normalizeTaskType(raw string) (models.TaskType, error) {
	switch raw {
	case "", string(models.TaskTypeImplementation):
		return models.TaskTypeImplementation, nil
	case string(models.TaskTypeErrorFix):
		return models.TaskTypeErrorFix, nil
	case "bugfix", "fix":
		log.Printf("[command] task type %q normalized to %s", raw, models.TaskTypeErrorFix)
		return models.TaskTypeErrorFix, nil
	default:
		return "", protocol.InvalidStatef("unknown task type %q", raw)
	}
}

// localTaskID strips this session's prefix from a caller-supplied task id so
// creation stores the bare local form. Ids prefixed with another session, or
// otherwise carrying "_", pass through for the graph to reject.
func localTaskID(sessionID, taskID string) string {
	if strings.HasPrefix(taskID, sessionID+"_") {
		local := strings.TrimPrefix(taskID, sessionID+"_")
		log.Printf("[command] task id %q carried session prefix; using local id %q", taskID, local)
		return local
	}
	return taskID
}

// normalizeTaskID strips an already-prefixed task id down to its local part
// before re-prefixing with the session, so callers may pass either form.
func normalizeTaskID(sessionID, taskID string) string {
	if strings.HasPrefix(taskID, sessionID+"_") {
		local := strings.TrimPrefix(taskID, sessionID+"_")
		log.Printf("[command] task id %q carried session prefix; using local id %q", taskID, local)
		return models.GlobalTaskID(sessionID, local)
	}
	if strings.Contains(taskID, "_") {
		// Prefixed with some session id, just not this one; the graph will
		// reject cross-session references.
		return taskID
	}
	return models.GlobalTaskID(sessionID, taskID)
}
