// voicebridge: credential issuer and browser demo server.
// Mints short-lived OpenAI Realtime session credentials so the browser
// never sees the operator API key.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/voicebridge/voicebridge/internal/config"
	"github.com/voicebridge/voicebridge/internal/log"
	"github.com/voicebridge/voicebridge/pkg/session"
	"github.com/voicebridge/voicebridge/pkg/web"
)

var version = "1.0.0"

var (
	port      = flag.String("port", "", "HTTP listen port (default $PORT or 8000)")
	staticDir = flag.String("static", "./web", "directory with the browser demo")
	logLevel  = flag.String("log-level", "info", "log level: debug, info, warn, error")
)

func main() {
	flag.Parse()
	log.Init(*logLevel)

	apiKey := config.OpenAIKey()
	listenPort := *port
	if listenPort == "" {
		listenPort = config.Port()
	}

	fmt.Println()
	fmt.Println("🎙  voicebridge v" + version)
	fmt.Println("   Realtime session issuer + browser demo")
	fmt.Println()

	minter := &session.Minter{
		APIKey: apiKey,
		Model:  config.Model(),
		Voice:  config.Voice(),
	}

	srv := web.NewServer(web.Config{
		Port:      listenPort,
		Minter:    minter,
		StaticDir: *staticDir,
	})
	srv.StartAsync()

	log.Info("ready", "port", listenPort, "model", config.Model())

	// Block until interrupted
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("shutting down")
	if err := srv.Shutdown(); err != nil {
		log.Error("shutdown", "err", err)
	}
}
