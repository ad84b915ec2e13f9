package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NovaClaw/NovaClaw/internal/agent"
	"github.com/NovaClaw/NovaClaw/internal/config"
	"github.com/NovaClaw/NovaClaw/internal/gateway"
	"github.com/NovaClaw/NovaClaw/internal/policy"
	"github.com/NovaClaw/NovaClaw/internal/state"
	"github.com/NovaClaw/NovaClaw/internal/stream"
	"github.com/NovaClaw/NovaClaw/internal/whatsapp"
	"github.com/spf13/cobra"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the agent gateway (webhook, dashboard, WhatsApp sends)",
	Run:   runGateway,
}

var gatewaySignalNotify = signal.Notify

func runGateway(cmd *cobra.Command, args []string) {
	printHeader("🌐 NovaClaw Gateway")
	fmt.Println("Starting NovaClaw Gateway...")

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Config error: %v\n", err)
		os.Exit(1)
	}

	// 2. Conversation store
	persona := state.DefaultPersona(cfg.Agent.Name)
	var store state.Store
	switch cfg.Store.Backend {
	case "sqlite":
		dbPath := config.ResolvePath(cfg.Store.Path)
		sqliteStore, err := state.NewSQLiteStore(dbPath, persona)
		if err != nil {
			fmt.Printf("Failed to open state store: %v\n", err)
			os.Exit(1)
		}
		defer sqliteStore.Close()
		store = sqliteStore
		fmt.Println("💾 State store: sqlite (" + dbPath + ")")
	default:
		store = state.NewMemoryStore(persona)
		fmt.Println("💾 State store: memory")
	}

	// 3. Messaging client
	messenger := whatsapp.NewClient(
		cfg.WhatsApp.APIBase,
		cfg.WhatsApp.AccessToken,
		cfg.WhatsApp.PhoneNumberID,
		cfg.WhatsApp.Timeout,
	)

	// 4. Reply policy
	var engine policy.Engine
	if cfg.Policy.AutoReply {
		engine = policy.Mention{}
		fmt.Println("💬 Auto-reply: enabled (mention policy)")
	} else {
		engine = policy.Noop{}
		fmt.Println("💬 Auto-reply: disabled")
	}

	// 5. Optional event stream mirror
	var publisher *stream.Publisher
	var streamSeam agent.EventPublisher
	if cfg.Stream.Brokers != "" {
		publisher = stream.NewPublisher(cfg.Stream.Brokers, cfg.Stream.Topic)
		defer publisher.Close()
		streamSeam = publisher
		fmt.Printf("📡 Event stream: %s (topic %s)\n", cfg.Stream.Brokers, cfg.Stream.Topic)
	}

	// 6. Runtime
	runtime := agent.New(agent.Options{
		Store:       store,
		Messenger:   messenger,
		Policy:      engine,
		Stream:      streamSeam,
		AgentName:   cfg.Agent.Name,
		SendTimeout: cfg.WhatsApp.Timeout,
	})

	// 7. HTTP surface
	srv := gateway.New(store, runtime, cfg.WhatsApp.VerifyToken, cfg.Gateway.AuthToken)
	addr := fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: srv.Handler(),
	}
	srv.LogRoutes(addr)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	gatewaySignalNotify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	fmt.Println("Gateway running on http://" + addr + ". Press Ctrl+C to stop.")
	select {
	case err := <-serverErr:
		fmt.Printf("❌ Gateway FAILED to start: %v\n", err)
		os.Exit(1)
	case <-sigChan:
	}

	fmt.Println("Shutting down...")
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := server.Shutdown(stopCtx); err != nil {
		fmt.Printf("⚠️ Shutdown incomplete: %v\n", err)
	}
}
