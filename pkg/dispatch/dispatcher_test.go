package dispatch

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicebridge/voicebridge/pkg/realtime"
	"github.com/voicebridge/voicebridge/pkg/tools"
)

// fakeChannel records every outbound protocol message.
type fakeChannel struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (c *fakeChannel) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	c.msgs = append(c.msgs, cp)
	return nil
}

func (c *fakeChannel) events(t *testing.T) []*realtime.Event {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*realtime.Event, len(c.msgs))
	for i, m := range c.msgs {
		ev, err := realtime.ParseEvent(m)
		require.NoError(t, err)
		out[i] = ev
	}
	return out
}

func (c *fakeChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func callMessage(t *testing.T, name, callID, args string) []byte {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"type":      string(realtime.TypeFunctionCallArgsDone),
		"name":      name,
		"call_id":   callID,
		"arguments": args,
	})
	require.NoError(t, err)
	return data
}

func waitFor(t *testing.T, ch *fakeChannel, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return ch.count() >= n },
		5*time.Second, 10*time.Millisecond, "expected %d outbound messages, got %d", n, ch.count())
}

func TestAdvertiseOnOpen(t *testing.T) {
	reg := tools.New()
	ch := &fakeChannel{}
	d := New(reg, ch, Config{Instructions: "be helpful", Voice: "verse"})

	d.HandleOpen()

	evs := ch.events(t)
	require.Len(t, evs, 1)
	ev := evs[0]
	assert.Equal(t, realtime.TypeSessionUpdate, ev.Type)
	assert.NotEmpty(t, ev.EventID)
	require.NotNil(t, ev.Session)
	assert.Equal(t, []string{"text", "audio"}, ev.Session.Modalities)
	assert.Equal(t, "be helpful", ev.Session.Instructions)
	assert.Equal(t, "auto", ev.Session.ToolChoice)

	// The four built-ins are advertised even with no dynamic tools.
	require.Len(t, ev.Session.Tools, 4)
	for _, schema := range ev.Session.Tools {
		assert.Equal(t, "function", schema.Type)
		assert.NotEmpty(t, schema.Name)
		assert.NotEmpty(t, schema.Description)
	}
}

func TestReAdvertiseOnCreateAndRemove(t *testing.T) {
	reg := tools.New()
	ch := &fakeChannel{}
	New(reg, ch, Config{})

	res := reg.Create(tools.CreateSpec{
		Name:        "extra",
		Description: "d",
		Code:        "return 1",
	})
	require.True(t, res.Success)

	evs := ch.events(t)
	require.Len(t, evs, 1)
	assert.Equal(t, realtime.TypeSessionUpdate, evs[0].Type)
	assert.Len(t, evs[0].Session.Tools, 5)

	require.True(t, reg.Remove("extra").Success)

	evs = ch.events(t)
	require.Len(t, evs, 2)
	assert.Len(t, evs[1].Session.Tools, 4)
}

func TestEndToEndAddOne(t *testing.T) {
	reg := tools.New()
	ch := &fakeChannel{}
	d := New(reg, ch, Config{})

	require.True(t, reg.Create(tools.CreateSpec{
		Name:        "addOne",
		Description: "Adds one to x",
		Code:        "return args.x + 1",
	}).Success)
	base := ch.count() // the create triggered a session.update

	d.HandleMessage(callMessage(t, "addOne", "call_1", `{"x":4}`))
	waitFor(t, ch, base+2)

	evs := ch.events(t)[base:]
	require.Len(t, evs, 2)

	out := evs[0]
	assert.Equal(t, realtime.TypeConversationItemCreate, out.Type)
	require.NotNil(t, out.Item)
	assert.Equal(t, "function_call_output", out.Item.Type)
	assert.Equal(t, "call_1", out.Item.CallID)
	assert.Equal(t, "5", out.Item.Output)

	assert.Equal(t, realtime.TypeResponseCreate, evs[1].Type)
}

func TestUnknownToolYieldsErrorOutput(t *testing.T) {
	reg := tools.New()
	ch := &fakeChannel{}
	d := New(reg, ch, Config{})

	d.HandleMessage(callMessage(t, "no_such_tool", "call_9", `{}`))
	waitFor(t, ch, 2)

	evs := ch.events(t)
	out := evs[0]
	require.Equal(t, realtime.TypeConversationItemCreate, out.Type)
	assert.Equal(t, "call_9", out.Item.CallID)

	var res tools.Result
	require.NoError(t, json.Unmarshal([]byte(out.Item.Output), &res))
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "unknown tool")

	assert.Equal(t, realtime.TypeResponseCreate, evs[1].Type)
}

func TestMalformedArgumentsYieldErrorOutput(t *testing.T) {
	reg := tools.New()
	ch := &fakeChannel{}
	d := New(reg, ch, Config{})

	require.True(t, reg.Create(tools.CreateSpec{
		Name:        "echo",
		Description: "d",
		Code:        "return args",
	}).Success)
	base := ch.count()

	d.HandleMessage(callMessage(t, "echo", "call_2", `{broken`))
	waitFor(t, ch, base+2)

	out := ch.events(t)[base]
	var res tools.Result
	require.NoError(t, json.Unmarshal([]byte(out.Item.Output), &res))
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "parse arguments")
}

func TestHandlerErrorReturnedAsFailureResult(t *testing.T) {
	reg := tools.New()
	ch := &fakeChannel{}
	d := New(reg, ch, Config{})

	require.True(t, reg.Create(tools.CreateSpec{
		Name:        "kaput",
		Description: "d",
		Code:        "throw new Error('busted')",
	}).Success)
	base := ch.count()

	d.HandleMessage(callMessage(t, "kaput", "call_3", `{}`))
	waitFor(t, ch, base+2)

	out := ch.events(t)[base]
	var res tools.Result
	require.NoError(t, json.Unmarshal([]byte(out.Item.Output), &res))
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "busted")
}

func TestCreateToolOverChannelThenInvoke(t *testing.T) {
	reg := tools.New()
	ch := &fakeChannel{}
	d := New(reg, ch, Config{})

	args, err := json.Marshal(map[string]any{
		"name":        "shout",
		"description": "Upper-cases text",
		"code":        "return args.text.toUpperCase()",
	})
	require.NoError(t, err)

	d.HandleMessage(callMessage(t, tools.BuiltinCreateTool, "call_a", string(args)))
	// create fires a session.update plus the output pair
	waitFor(t, ch, 3)

	d.HandleMessage(callMessage(t, "shout", "call_b", `{"text":"hi"}`))
	waitFor(t, ch, 5)

	var shoutOut *realtime.Event
	for _, ev := range ch.events(t) {
		if ev.Item != nil && ev.Item.CallID == "call_b" {
			shoutOut = ev
		}
	}
	require.NotNil(t, shoutOut)
	assert.Equal(t, `"HI"`, shoutOut.Item.Output)
}

func TestTranscriptCallback(t *testing.T) {
	reg := tools.New()
	ch := &fakeChannel{}
	d := New(reg, ch, Config{})

	var mu sync.Mutex
	var got []string
	d.OnTranscript = func(role, text string) {
		mu.Lock()
		got = append(got, fmt.Sprintf("%s:%s", role, text))
		mu.Unlock()
	}

	d.HandleMessage([]byte(`{"type":"conversation.item.input_audio_transcription.completed","transcript":"hello"}`))
	d.HandleMessage([]byte(`{"type":"response.audio_transcript.done","transcript":"hi there"}`))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"user:hello", "assistant:hi there"}, got)
}

func TestUnparsableMessageIgnored(t *testing.T) {
	reg := tools.New()
	ch := &fakeChannel{}
	d := New(reg, ch, Config{})

	d.HandleMessage([]byte("not json"))
	d.HandleMessage([]byte(`{"no_type":true}`))

	assert.Zero(t, ch.count())
}
