// Package dispatch connects a tool registry to a Realtime peer channel:
// it advertises the tool set, resolves inbound function calls to local
// handlers, and returns their results.
package dispatch

import (
	"encoding/json"
	"fmt"

	"github.com/voicebridge/voicebridge/internal/log"
	"github.com/voicebridge/voicebridge/pkg/realtime"
	"github.com/voicebridge/voicebridge/pkg/tools"
)

// Channel is the bidirectional message channel to the remote service.
// Implementations must be safe for concurrent Send.
type Channel interface {
	Send(data []byte) error
}

// Config holds the session parameters advertised to the service.
type Config struct {
	// Instructions is the system prompt for the session.
	Instructions string

	// Voice selects the TTS voice.
	Voice string

	// Modalities defaults to text+audio.
	Modalities []string
}

// Dispatcher owns the function-call loop for one session.
//
// Handler invocations run concurrently: a second call arriving while a
// prior one is pending is dispatched immediately, so executions may
// interleave. Failures are returned to the service as ordinary tool
// output and never close the channel.
type Dispatcher struct {
	reg *tools.Registry
	ch  Channel
	cfg Config

	// Observability callbacks. Set before the channel opens.
	OnTranscript func(role, text string)
	OnToolCall   func(name, callID string)
	OnToolResult func(name, callID, output string)
	OnError      func(err error)
}

// New creates a dispatcher and subscribes it to registry changes, so
// every create or remove re-advertises the full tool list.
func New(reg *tools.Registry, ch Channel, cfg Config) *Dispatcher {
	if len(cfg.Modalities) == 0 {
		cfg.Modalities = []string{"text", "audio"}
	}
	d := &Dispatcher{reg: reg, ch: ch, cfg: cfg}
	reg.OnChange(func() {
		if err := d.Advertise(); err != nil {
			d.fail(fmt.Errorf("dispatch: re-advertise tools: %w", err))
		}
	})
	return d
}

// Advertise sends the current full tool list (built-in + dynamic) as a
// session.update. Called on channel open and after every registry change.
func (d *Dispatcher) Advertise() error {
	all := d.reg.All()
	schemas := make([]realtime.ToolSchema, len(all))
	for i, t := range all {
		schemas[i] = realtime.ToolSchema{
			Type:        "function",
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		}
	}

	log.Debug("advertising tools", "count", len(schemas))
	return d.send(realtime.NewSessionUpdate(realtime.Session{
		Modalities:   d.cfg.Modalities,
		Instructions: d.cfg.Instructions,
		Voice:        d.cfg.Voice,
		Tools:        schemas,
		ToolChoice:   "auto",
	}))
}

// HandleOpen advertises the session configuration once the channel is
// established.
func (d *Dispatcher) HandleOpen() {
	if err := d.Advertise(); err != nil {
		d.fail(fmt.Errorf("dispatch: initial session.update: %w", err))
	}
}

// HandleMessage processes one inbound protocol message.
func (d *Dispatcher) HandleMessage(data []byte) {
	ev, err := realtime.ParseEvent(data)
	if err != nil {
		log.Debug("ignoring unparsable event", "err", err)
		return
	}

	switch ev.Type {
	case realtime.TypeFunctionCallArgsDone:
		go d.invoke(ev)

	case realtime.TypeInputTranscriptDone:
		if d.OnTranscript != nil && ev.Transcript != "" {
			d.OnTranscript("user", ev.Transcript)
		}

	case realtime.TypeResponseTranscriptDone:
		if d.OnTranscript != nil && ev.Transcript != "" {
			d.OnTranscript("assistant", ev.Transcript)
		}

	case realtime.TypeSessionCreated, realtime.TypeSessionUpdated:
		log.Debug("session event", "type", ev.Type)

	case realtime.TypeError:
		if ev.Error != nil {
			d.fail(fmt.Errorf("dispatch: service error: %s", ev.Error.Message))
		}
	}
}

// invoke resolves and runs the named handler, then returns its result
// correlated by the originating call ID. An unregistered name yields an
// explicit error result rather than a silent drop.
func (d *Dispatcher) invoke(ev *realtime.Event) {
	if d.OnToolCall != nil {
		d.OnToolCall(ev.Name, ev.CallID)
	}
	log.Info("tool call", "name", ev.Name, "call_id", ev.CallID)

	if _, ok := d.reg.Lookup(ev.Name); !ok {
		d.reply(ev, tools.Fail(fmt.Errorf("unknown tool: %s", ev.Name)))
		return
	}

	args := map[string]any{}
	if ev.Arguments != "" {
		if err := json.Unmarshal([]byte(ev.Arguments), &args); err != nil {
			d.reply(ev, tools.Fail(fmt.Errorf("parse arguments: %w", err)))
			return
		}
	}

	result, err := d.reg.Call(ev.Name, args)
	if err != nil {
		d.reply(ev, tools.Fail(err))
		return
	}
	d.reply(ev, result)
}

// reply serializes the result, sends it as a function_call_output item
// and asks the service to continue generating a response.
func (d *Dispatcher) reply(ev *realtime.Event, result any) {
	out, err := json.Marshal(result)
	if err != nil {
		out, _ = json.Marshal(tools.Fail(fmt.Errorf("serialize result: %w", err)))
	}

	if d.OnToolResult != nil {
		d.OnToolResult(ev.Name, ev.CallID, string(out))
	}

	if err := d.send(realtime.NewFunctionCallOutput(ev.CallID, string(out))); err != nil {
		d.fail(fmt.Errorf("dispatch: send tool result: %w", err))
		return
	}
	if err := d.send(realtime.NewResponseCreate()); err != nil {
		d.fail(fmt.Errorf("dispatch: request response: %w", err))
	}
}

func (d *Dispatcher) send(e *realtime.Event) error {
	data, err := e.Marshal()
	if err != nil {
		return err
	}
	return d.ch.Send(data)
}

func (d *Dispatcher) fail(err error) {
	log.Error("dispatch error", "err", err)
	if d.OnError != nil {
		d.OnError(err)
	}
}
