// Package tools implements the dynamic tool registry for voicebridge.
//
// A tool is a named, schema-described callable that the remote Realtime
// service may invoke during a conversation. Four built-in tools let the
// service manage the registry itself: create_tool compiles a new handler
// from source text at runtime, list_tools and remove_tool inspect and
// shrink the dynamic set, and execute_code runs an anonymous snippet.
package tools

import (
	"regexp"
	"time"
)

// Handler executes a tool invocation. It receives the parsed argument
// bag and returns a result value that is serialized back to the caller.
type Handler func(args map[string]any) (any, error)

// Tool is a named callable the remote service may invoke.
type Tool struct {
	// Name is the unique identifier and registry lookup key.
	Name string `json:"name"`

	// Description explains what the tool does, helping the model
	// decide when to use it.
	Description string `json:"description"`

	// Parameters is the JSON schema for the tool's arguments.
	Parameters map[string]any `json:"parameters"`

	// Async marks tools whose handler body is asynchronous.
	Async bool `json:"async"`

	// BuiltIn marks the statically defined registry-management tools.
	// Built-ins cannot be removed or overwritten.
	BuiltIn bool `json:"builtin"`

	// CreatedAt is set when the tool is registered. Display only.
	CreatedAt time.Time `json:"created_at"`

	// Handler is called when the tool is invoked.
	Handler Handler `json:"-"`
}

// Info is the listing view of a dynamically created tool.
type Info struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	Async       bool           `json:"async"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Result is the uniform outcome of a registry operation. It is returned
// to the remote service as an ordinary function-call output, so failures
// are observed as tool results rather than channel errors.
type Result struct {
	Success bool     `json:"success"`
	Error   string   `json:"error,omitempty"`
	Tool    string   `json:"tool,omitempty"`
	Tools   []string `json:"tools,omitempty"`
	Result  any      `json:"result,omitempty"`
}

// Fail builds a failed Result from an error.
func Fail(err error) Result {
	return Result{Success: false, Error: err.Error()}
}

var nameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidName reports whether s is a valid tool identifier.
func ValidName(s string) bool {
	return nameRe.MatchString(s)
}

// DefaultSchema returns the schema used when a tool is created without
// one: an object accepting no required properties.
func DefaultSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
		"required":   []string{},
	}
}
