package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/voicebridge/voicebridge/internal/log"
)

// Errors returned by registry operations.
var (
	ErrUnknownTool = errors.New("tools: unknown tool")
	ErrBuiltIn     = errors.New("tools: built-in tools cannot be removed or overwritten")
)

// Registry maintains the mapping from tool name to Tool and produces the
// canonical tool list for advertisement to the remote service.
//
// The registry is process-local and in-memory; it starts with only the
// built-in tools and is never persisted. Names are unique across built-in
// and dynamic tools; re-creating a dynamic name replaces it wholesale
// (last write wins).
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool

	// onChange is invoked after every mutation of the tool set, for both
	// creation and removal, so the advertised list never goes stale.
	onChange func()

	// budget is the per-invocation wall-clock limit for compiled
	// handlers. Zero means unlimited.
	budget time.Duration
}

// New creates a registry pre-populated with the built-in tools.
func New() *Registry {
	r := &Registry{
		tools: make(map[string]*Tool),
	}
	registerBuiltins(r)
	return r
}

// SetExecBudget limits the wall-clock time of each compiled handler
// invocation. Applies to tools created after the call.
func (r *Registry) SetExecBudget(d time.Duration) {
	r.mu.Lock()
	r.budget = d
	r.mu.Unlock()
}

// OnChange registers the callback fired whenever the tool set changes.
func (r *Registry) OnChange(fn func()) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

// CreateSpec describes a tool to be created at runtime.
type CreateSpec struct {
	// Name, Description and Code are mandatory.
	Name        string
	Description string
	Code        string

	// Parameters is the argument schema: a map[string]any, a serialized
	// JSON string, or nil for the default empty-object schema.
	Parameters any

	// Async wraps the body so its eventual result is awaited.
	Async bool
}

// Create compiles the spec's handler source and inserts the tool,
// overwriting any prior dynamic tool of the same name. On success the
// change notification fires so the full tool list is re-advertised.
func (r *Registry) Create(spec CreateSpec) Result {
	if spec.Name == "" || spec.Description == "" || spec.Code == "" {
		return Fail(errors.New("tools: name, description and code are required"))
	}
	if !ValidName(spec.Name) {
		return Fail(fmt.Errorf("tools: invalid tool name %q", spec.Name))
	}

	schema, err := normalizeSchema(spec.Parameters)
	if err != nil {
		return Fail(err)
	}

	r.mu.RLock()
	budget := r.budget
	r.mu.RUnlock()

	script, err := CompileScript(spec.Name, spec.Code, spec.Async)
	if err != nil {
		return Fail(err)
	}
	script.SetBudget(budget)

	tool := &Tool{
		Name:        spec.Name,
		Description: spec.Description,
		Parameters:  schema,
		Async:       spec.Async,
		CreatedAt:   time.Now(),
		Handler:     script.Handler(),
	}

	r.mu.Lock()
	if existing, ok := r.tools[spec.Name]; ok && existing.BuiltIn {
		r.mu.Unlock()
		return Fail(ErrBuiltIn)
	}
	r.tools[spec.Name] = tool
	names := r.namesLocked()
	fn := r.onChange
	r.mu.Unlock()

	log.Info("tool created", "name", spec.Name, "async", spec.Async)
	if fn != nil {
		fn()
	}
	return Result{Success: true, Tool: spec.Name, Tools: names}
}

// List returns the dynamically created tools, oldest first.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.tools))
	for _, t := range r.tools {
		if t.BuiltIn {
			continue
		}
		infos = append(infos, Info{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
			Async:       t.Async,
			CreatedAt:   t.CreatedAt,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].Name < infos[j].Name
		}
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

// Remove deletes a dynamic tool. Built-ins are protected; an absent name
// is a not-found error and leaves the registry unchanged. Removal fires
// the change notification so the remote view does not go stale.
func (r *Registry) Remove(name string) Result {
	r.mu.Lock()
	t, ok := r.tools[name]
	if !ok {
		r.mu.Unlock()
		return Fail(fmt.Errorf("%w: %s", ErrUnknownTool, name))
	}
	if t.BuiltIn {
		r.mu.Unlock()
		return Fail(ErrBuiltIn)
	}
	delete(r.tools, name)
	names := r.namesLocked()
	fn := r.onChange
	r.mu.Unlock()

	log.Info("tool removed", "name", name)
	if fn != nil {
		fn()
	}
	return Result{Success: true, Tool: name, Tools: names}
}

// Eval compiles and immediately runs an anonymous unit of code.
func (r *Registry) Eval(code string, async bool) Result {
	if code == "" {
		return Fail(errors.New("tools: code is required"))
	}
	r.mu.RLock()
	budget := r.budget
	r.mu.RUnlock()

	v, err := EvalScript(code, async, budget)
	if err != nil {
		return Fail(err)
	}
	return Result{Success: true, Result: v}
}

// Call invokes the named tool's handler with the given argument bag.
// Returns ErrUnknownTool if the name is not registered.
func (r *Registry) Call(name string, args map[string]any) (any, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return t.Handler(args)
}

// Lookup returns the named tool.
func (r *Registry) Lookup(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// All returns every registered tool, built-ins first, for advertisement.
func (r *Registry) All() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BuiltIn != out[j].BuiltIn {
			return out[i].BuiltIn
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Names returns the current tool names, built-ins included.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// register inserts a tool directly. Used for built-ins and Go-native
// tools wired in by the host application.
func (r *Registry) register(t *Tool) {
	if t.Parameters == nil {
		t.Parameters = DefaultSchema()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	r.mu.Lock()
	r.tools[t.Name] = t
	r.mu.Unlock()
}

// Register adds a Go-native tool to the registry and fires the change
// notification. The name must be valid and not shadow a built-in.
func (r *Registry) Register(t Tool) error {
	if !ValidName(t.Name) {
		return fmt.Errorf("tools: invalid tool name %q", t.Name)
	}
	if t.Handler == nil {
		return errors.New("tools: handler is required")
	}
	r.mu.RLock()
	existing, ok := r.tools[t.Name]
	r.mu.RUnlock()
	if ok && existing.BuiltIn {
		return ErrBuiltIn
	}
	r.register(&t)

	r.mu.RLock()
	fn := r.onChange
	r.mu.RUnlock()
	if fn != nil {
		fn()
	}
	return nil
}

// normalizeSchema accepts a schema as a structured object or serialized
// JSON string and validates that the result is a usable JSON schema.
func normalizeSchema(v any) (map[string]any, error) {
	var schema map[string]any
	switch s := v.(type) {
	case nil:
		return DefaultSchema(), nil
	case string:
		if err := json.Unmarshal([]byte(s), &schema); err != nil {
			return nil, fmt.Errorf("tools: parse parameter schema: %w", err)
		}
	case map[string]any:
		schema = s
	default:
		return nil, fmt.Errorf("tools: unsupported parameter schema type %T", v)
	}

	if _, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema)); err != nil {
		return nil, fmt.Errorf("tools: invalid parameter schema: %w", err)
	}
	return schema, nil
}
