package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Raphahf6/raio-x-360-back/internal/api"
	"github.com/Raphahf6/raio-x-360-back/internal/conf"
	"github.com/Raphahf6/raio-x-360-back/internal/mcp"
	"github.com/Raphahf6/raio-x-360-back/internal/observability"
	"github.com/Raphahf6/raio-x-360-back/internal/server"
)

// Version is set at build time via -ldflags "-X main.Version=v1.0.0"
var Version = "dev"

var (
	verbose bool
	apiURL  string
)

var rootCmd = &cobra.Command{
	Use:   "salesbridge",
	Short: "Multi-tenant sales conversation bridge",
	Long:  "salesbridge keeps one messaging session per store, aggregates customer bursts and answers them through a menu/assistant/human dialogue.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(notifyCmd())
	rootCmd.AddCommand(versionCmd())
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge and the operator API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func notifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify <tenant> <phone> <status> [order-number] [customer-name]",
		Short: "Send an order status notification through a running bridge",
		Args:  cobra.RangeArgs(3, 5),
		RunE: func(cmd *cobra.Command, args []string) error {
			notice := mcp.OrderNotice{Phone: args[1], Status: args[2]}
			if len(args) > 3 {
				notice.OrderNumber = args[3]
			}
			if len(args) > 4 {
				notice.CustomerName = args[4]
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			sent, err := mcp.NewClient(apiURL).NotifyOrder(ctx, args[0], notice)
			if err != nil {
				return err
			}
			if sent {
				fmt.Println("notification sent")
			} else {
				fmt.Println("no template for this status, nothing sent")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&apiURL, "api", envOr("BRIDGE_API_URL", "http://127.0.0.1:8080"), "operator API base URL")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("salesbridge %s\n", Version)
		},
	}
}

func runServe() error {
	cfg := conf.LoadFromEnv()
	if verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := observability.NewLogger(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine, err := server.NewEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}

	apiServer := api.NewServer(engine, engine.Events(), engine.Metrics().Handler(), cfg.Server.Addr, logger)
	apiErr := make(chan error, 1)
	go func() {
		apiErr <- apiServer.Start()
	}()

	if err := engine.Start(ctx); err != nil {
		engine.Shutdown()
		return err
	}
	logger.Info("salesbridge running", "transport", cfg.Transport.Kind, "version", Version)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-apiErr:
		if err != nil {
			logger.Error("operator api failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Stop(shutdownCtx); err != nil {
		logger.Warn("operator api shutdown", "error", err)
	}
	return engine.Shutdown()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
