package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/ghcp-gateway/internal/adapter"
	"github.com/jbctechsolutions/ghcp-gateway/internal/adapter/anthropic"
	"github.com/jbctechsolutions/ghcp-gateway/internal/adapter/ollama"
	"github.com/jbctechsolutions/ghcp-gateway/internal/adapter/openaichat"
	"github.com/jbctechsolutions/ghcp-gateway/internal/adapter/responses"
	"github.com/jbctechsolutions/ghcp-gateway/internal/auth"
	"github.com/jbctechsolutions/ghcp-gateway/internal/config"
	"github.com/jbctechsolutions/ghcp-gateway/internal/mcpserver"
	"github.com/jbctechsolutions/ghcp-gateway/internal/modelcatalog"
	"github.com/jbctechsolutions/ghcp-gateway/internal/pipeline"
	"github.com/jbctechsolutions/ghcp-gateway/internal/telemetry"
)

func adapters() map[string]adapter.Adapter {
	return map[string]adapter.Adapter{
		"ollama":    ollama.New(),
		"openai":    openaichat.New(),
		"anthropic": anthropic.New(),
		"responses": responses.New(),
	}
}

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "ghcp-gateway",
		Short: "Local multi-protocol chat-completion gateway for Copilot",
		Long:  "Bridges the Ollama, OpenAI Chat Completions, and Anthropic Messages protocols to a single upstream OpenAI-format endpoint.",
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default: ./ghcp-gateway.yaml, then ~/.config/ghcp-gateway/config.yaml)")

	resolveConfig := func() string {
		if configPath != "" {
			return configPath
		}
		if _, err := os.Stat("ghcp-gateway.yaml"); err == nil {
			return "ghcp-gateway.yaml"
		}
		home, err := os.UserHomeDir()
		if err == nil {
			candidate := filepath.Join(home, ".config", "ghcp-gateway", "config.yaml")
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
		return "ghcp-gateway.yaml"
	}

	modelProviderPath := func() string {
		home, err := os.UserHomeDir()
		if err != nil {
			return "model.yaml"
		}
		return filepath.Join(home, ".config", "ghcp-gateway", "model.yaml")
	}

	// -------------------------------------------------------------------------
	// serve — start the HTTP gateway
	// -------------------------------------------------------------------------
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfig())
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if port, _ := cmd.Flags().GetString("port"); port != "" {
				cfg.ListenPort = port
			}

			authProvider := auth.NewFileProvider(cfg.TokenPath, cfg.CopilotBaseURL)
			models := modelcatalog.NewYAMLProvider(modelProviderPath())

			var tel *telemetry.Collector
			if cfg.TelemetryDBPath != "" {
				tel, err = telemetry.NewCollector(cfg.TelemetryDBPath)
				if err != nil {
					fmt.Fprintf(os.Stderr, "warning: telemetry disabled: %v\n", err)
					tel = nil
				}
			}

			srv := pipeline.New(cfg, authProvider, models, tel)
			return srv.Start()
		},
	}
	serveCmd.Flags().String("port", "", "Port to listen on (overrides config)")

	// -------------------------------------------------------------------------
	// models — print the active and fallback model
	// -------------------------------------------------------------------------
	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "Print the currently active model and the hard-coded fallback",
		RunE: func(cmd *cobra.Command, args []string) error {
			models := modelcatalog.NewYAMLProvider(modelProviderPath())
			active, err := models.GetCurrentModel()
			if err != nil {
				fmt.Printf("Active model:   (unavailable: %v)\n", err)
			} else {
				fmt.Printf("Active model:   %s (%s)\n", active.ModelID, active.ModelName)
			}
			fmt.Printf("Fallback model: %s (%s)\n", modelcatalog.Fallback.ModelID, modelcatalog.Fallback.ModelName)
			return nil
		},
	}

	// -------------------------------------------------------------------------
	// convert — feed a fixture through Adapter.ConvertRequest
	// -------------------------------------------------------------------------
	convertCmd := &cobra.Command{
		Use:   "convert <protocol> <file>",
		Short: "Convert a protocol JSON fixture to upstream JSON without sending it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			protocol, path := args[0], args[1]
			a, ok := adapters()[protocol]
			if !ok {
				return fmt.Errorf("unknown protocol: %q (want ollama, openai, anthropic, or responses)", protocol)
			}

			payload, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading fixture: %w", err)
			}

			upstream, err := a.ConvertRequest(payload)
			if err != nil {
				return fmt.Errorf("converting request: %w", err)
			}

			out, err := json.MarshalIndent(map[string]interface{}(upstream), "", "  ")
			if err != nil {
				return fmt.Errorf("marshalling result: %w", err)
			}
			fmt.Println(string(out))
			return nil
		},
	}

	// -------------------------------------------------------------------------
	// stats — print telemetry aggregates
	// -------------------------------------------------------------------------
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Print telemetry aggregates",
		RunE: func(cmd *cobra.Command, args []string) error {
			protocolFilter, _ := cmd.Flags().GetString("protocol")

			cfg, err := config.Load(resolveConfig())
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if cfg.TelemetryDBPath == "" {
				return fmt.Errorf("telemetry is disabled (telemetry_db_path is unset)")
			}

			col, err := telemetry.NewCollector(cfg.TelemetryDBPath)
			if err != nil {
				return fmt.Errorf("opening telemetry database: %w", err)
			}
			defer col.Close()

			stats, err := col.GetStats(protocolFilter)
			if err != nil {
				return fmt.Errorf("retrieving stats: %w", err)
			}

			fmt.Printf("Total Requests: %d\n", stats.TotalRequests)
			fmt.Printf("Streaming:      %d\n", stats.StreamingCount)
			fmt.Printf("Vision:         %d\n", stats.VisionCount)
			fmt.Printf("Errors:         %d\n", stats.ErrorCount)

			if len(stats.ByProtocol) > 0 {
				fmt.Println("\nBy Protocol:")
				for name, count := range stats.ByProtocol {
					fmt.Printf("  %-12s %d\n", name, count)
				}
			}
			if len(stats.ByModel) > 0 {
				fmt.Println("\nBy Model:")
				for name, count := range stats.ByModel {
					fmt.Printf("  %-30s %d\n", name, count)
				}
			}
			return nil
		},
	}
	statsCmd.Flags().String("protocol", "", "Filter stats by protocol name")

	// -------------------------------------------------------------------------
	// mcp — start MCP server (stdio transport)
	// -------------------------------------------------------------------------
	mcpCmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP dev-tool server (stdio transport)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfig())
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			models := modelcatalog.NewYAMLProvider(modelProviderPath())
			srv := mcpserver.New(cfg, models)
			return srv.Start()
		},
	}

	// -------------------------------------------------------------------------
	// config — configuration management subcommand group
	// -------------------------------------------------------------------------
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the YAML config",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(resolveConfig())
			if err != nil {
				return fmt.Errorf("config validation failed: %w", err)
			}
			fmt.Println("Config is valid!")
			return nil
		},
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Show the config path being used and whether it exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := resolveConfig()
			abs, err := filepath.Abs(path)
			if err != nil {
				abs = path
			}
			fmt.Printf("Config path: %s\n", abs)
			if _, err := os.Stat(path); os.IsNotExist(err) {
				fmt.Println("File does not exist; defaults will be used.")
			} else {
				fmt.Println("File exists.")
			}
			return nil
		},
	}

	configCmd.AddCommand(validateCmd, initCmd)

	rootCmd.AddCommand(serveCmd, modelsCmd, convertCmd, statsCmd, mcpCmd, configCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
