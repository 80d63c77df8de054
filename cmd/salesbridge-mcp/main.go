package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Raphahf6/raio-x-360-back/internal/mcp"
)

// Version is set at build time
var Version = "dev"

func main() {
	_ = godotenv.Load()

	// stdout carries the protocol, keep logs on stderr
	log.SetOutput(os.Stderr)

	apiURL := os.Getenv("BRIDGE_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}

	server := mcp.NewServer(mcp.NewHandler(mcp.NewClient(apiURL)), Version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("[MCP] salesbridge operator tools, bridge at %s", apiURL)
	if err := server.Run(ctx, &mcpsdk.StdioTransport{}); err != nil && ctx.Err() == nil {
		log.Fatalf("[MCP] server error: %v", err)
	}
}
