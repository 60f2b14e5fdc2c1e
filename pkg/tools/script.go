package tools

import (
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"
)

// argsParam is the fixed parameter name under which the argument bag is
// exposed to handler source.
const argsParam = "args"

// ErrBudgetExceeded is returned when a handler runs past the registry's
// execution budget.
var ErrBudgetExceeded = errors.New("tools: execution budget exceeded")

// Script is a handler compiled from source text at runtime.
//
// The source is a JavaScript function body; compilation wraps it in a
// (possibly async) function taking the argument bag as "args". Each
// invocation runs in a fresh VM, so compiled handlers are safe to call
// from concurrent dispatches and cannot leak state between calls.
type Script struct {
	prog   *goja.Program
	async  bool
	budget time.Duration
}

// CompileScript compiles a handler body. A syntax error in the source is
// reported at creation time, before the tool enters the registry.
func CompileScript(name, source string, async bool) (*Script, error) {
	kw := "function"
	if async {
		kw = "async function"
	}
	wrapped := fmt.Sprintf("(%s (%s) {\n%s\n})", kw, argsParam, source)

	prog, err := goja.Compile(name+".js", wrapped, false)
	if err != nil {
		return nil, fmt.Errorf("tools: compile %s: %w", name, err)
	}
	return &Script{prog: prog, async: async}, nil
}

// SetBudget sets the wall-clock budget per invocation. Zero disables it.
func (s *Script) SetBudget(d time.Duration) {
	s.budget = d
}

// Handler adapts the script to the registry's Handler signature.
func (s *Script) Handler() Handler {
	return s.Run
}

// Run executes the compiled body with the given argument bag.
//
// Asynchronous bodies are awaited: goja drains the microtask queue before
// the call returns, so a promise that does not depend on external events
// is settled by then. A still-pending promise means the body awaited
// something that can never resolve inside the VM, and is surfaced as an
// error rather than left unanswered.
func (s *Script) Run(args map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("tools: handler panicked: %v", r)
		}
	}()

	vm := goja.New()

	if s.budget > 0 {
		timer := time.AfterFunc(s.budget, func() {
			vm.Interrupt(ErrBudgetExceeded)
		})
		defer timer.Stop()
	}

	v, err := vm.RunProgram(s.prog)
	if err != nil {
		return nil, fmt.Errorf("tools: load handler: %w", err)
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return nil, errors.New("tools: compiled source is not callable")
	}

	if args == nil {
		args = map[string]any{}
	}

	ret, err := fn(goja.Undefined(), vm.ToValue(args))
	if err != nil {
		return nil, runtimeError(err)
	}

	if p, ok := ret.Export().(*goja.Promise); ok {
		switch p.State() {
		case goja.PromiseStateFulfilled:
			return p.Result().Export(), nil
		case goja.PromiseStateRejected:
			return nil, fmt.Errorf("tools: handler rejected: %s", p.Result().String())
		default:
			return nil, errors.New("tools: handler promise never settled")
		}
	}

	return ret.Export(), nil
}

// EvalScript compiles and immediately runs an anonymous unit of code with
// no argument bag, returning its result value.
func EvalScript(code string, async bool, budget time.Duration) (any, error) {
	s, err := CompileScript("eval", code, async)
	if err != nil {
		return nil, err
	}
	s.SetBudget(budget)
	return s.Run(nil)
}

// runtimeError unwraps goja's error types into something readable,
// preserving the budget sentinel for callers that care.
func runtimeError(err error) error {
	var ie *goja.InterruptedError
	if errors.As(err, &ie) {
		if v, ok := ie.Value().(error); ok && errors.Is(v, ErrBudgetExceeded) {
			return ErrBudgetExceeded
		}
		return fmt.Errorf("tools: handler interrupted: %v", ie.Value())
	}
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return fmt.Errorf("tools: handler threw: %s", ex.Value().String())
	}
	return fmt.Errorf("tools: handler failed: %w", err)
}
