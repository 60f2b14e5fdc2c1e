// agent: Go-native Realtime peer. Connects to the OpenAI Realtime API
// over a WebRTC data channel (or WebSocket), advertises the tool
// registry, and dispatches function calls, including tools the model
// creates at runtime through create_tool.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/voicebridge/voicebridge/internal/config"
	"github.com/voicebridge/voicebridge/internal/log"
	"github.com/voicebridge/voicebridge/pkg/dispatch"
	"github.com/voicebridge/voicebridge/pkg/session"
	"github.com/voicebridge/voicebridge/pkg/tools"
	"github.com/voicebridge/voicebridge/pkg/transport"
	"github.com/voicebridge/voicebridge/pkg/web"
)

const defaultInstructions = "You are a helpful voice assistant. You can create new tools for yourself at runtime with create_tool when the user asks for a capability you lack."

var (
	issuerURL     = flag.String("issuer", "", "voicebridge issuer base URL; uses OPENAI_API_KEY directly when empty")
	transportKind = flag.String("transport", "webrtc", "channel transport: webrtc or websocket")
	instructions  = flag.String("instructions", defaultInstructions, "system instructions for the session")
	execBudget    = flag.Duration("exec-budget", 5*time.Second, "wall-clock budget per dynamic handler invocation; 0 disables")
	dashboardPort = flag.String("dashboard-port", "", "serve the tool dashboard on this port; disabled when empty")
	connectWait   = flag.Duration("connect-timeout", 30*time.Second, "timeout for channel establishment")
	logLevel      = flag.String("log-level", "info", "log level: debug, info, warn, error")
)

func main() {
	flag.Parse()
	log.Init(*logLevel)

	fmt.Println()
	fmt.Println("🤖 voicebridge agent")
	fmt.Println("   Dynamic tool dispatch over a Realtime peer channel")
	fmt.Println()

	reg := tools.New()
	if *execBudget > 0 {
		reg.SetExecBudget(*execBudget)
	}
	registerLocalTools(reg)

	model := config.Model()
	secret, model := resolveCredential(model)

	d, closer, err := connect(reg, secret, model)
	if err != nil {
		log.Error("connect", "err", err)
		os.Exit(1)
	}
	defer closer()

	if *dashboardPort != "" {
		srv := web.NewServer(web.Config{
			Port:     *dashboardPort,
			Registry: reg,
		})
		srv.StartAsync()

		d.OnTranscript = func(role, text string) {
			srv.AddEvent("speech", role+": "+text)
		}
		d.OnToolCall = func(name, callID string) {
			srv.AddEvent("tool", "call: "+name)
		}
		d.OnToolResult = func(name, callID, output string) {
			srv.AddEvent("tool", name+" -> "+output)
		}
		d.OnError = func(err error) {
			srv.AddEvent("error", err.Error())
		}
	}

	log.Info("agent running", "transport", *transportKind, "model", model)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")
}

// resolveCredential obtains the bearer secret for channel establishment:
// an ephemeral client secret from the issuer when one is configured,
// otherwise the raw API key.
func resolveCredential(model string) (string, string) {
	if *issuerURL == "" {
		return config.OpenAIKey(), model
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	cred, err := session.Fetch(ctx, strings.TrimRight(*issuerURL, "/")+"/session")
	if err != nil {
		log.Error("fetch credential", "err", err)
		os.Exit(1)
	}
	if cred.Model != "" {
		model = cred.Model
	}
	return cred.ClientSecret.Value, model
}

// connect establishes the chosen transport and wires it to a dispatcher.
func connect(reg *tools.Registry, secret, model string) (*dispatch.Dispatcher, func(), error) {
	cfg := dispatch.Config{
		Instructions: *instructions,
		Voice:        config.Voice(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), *connectWait)
	defer cancel()

	switch *transportKind {
	case "webrtc":
		t := transport.NewWebRTC(secret, model)
		d := dispatch.New(reg, t, cfg)
		t.OnOpen = d.HandleOpen
		t.OnMessage = d.HandleMessage
		if err := t.Connect(ctx); err != nil {
			return nil, nil, err
		}
		return d, func() { t.Close() }, nil

	case "websocket":
		t := transport.NewWebSocket(secret, model)
		d := dispatch.New(reg, t, cfg)
		t.OnOpen = d.HandleOpen
		t.OnMessage = d.HandleMessage
		t.OnError = func(err error) {
			log.Error("websocket", "err", err)
		}
		if err := t.Connect(ctx); err != nil {
			return nil, nil, err
		}
		return d, func() { t.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown transport %q", *transportKind)
	}
}

// registerLocalTools adds the Go-native tools every agent session gets.
func registerLocalTools(reg *tools.Registry) {
	reg.Register(tools.Tool{
		Name:        "get_time",
		Description: "Get the current local time",
		Handler: func(args map[string]any) (any, error) {
			return time.Now().Format("Mon Jan 2 15:04:05 MST 2006"), nil
		},
	})
}
