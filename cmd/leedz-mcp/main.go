// Leedz MCP server translates natural-language requests into calls against
// the Leedz CRUD service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/pflag"

	"github.com/scottgrossworks/invoicer-sub001/internal/agent"
	"github.com/scottgrossworks/invoicer-sub001/internal/config"
	"github.com/scottgrossworks/invoicer-sub001/internal/crud"
	"github.com/scottgrossworks/invoicer-sub001/internal/diag"
	"github.com/scottgrossworks/invoicer-sub001/internal/llm"
	"github.com/scottgrossworks/invoicer-sub001/internal/rpc"
	"github.com/scottgrossworks/invoicer-sub001/internal/tool"
)

const name = "leedz-mcp"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
		os.Exit(1)
	}
}

func run() error {
	var configPath, envFile, logFile, logLevel string

	flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", config.DefaultPath(name), "path to config file (.json, .jsonc, .yaml)")
	flagSet.StringVar(&envFile, "env-file", "", "path to dotenv file with LLM_API_KEY")
	flagSet.StringVar(&logFile, "log-file", "", "path to log file, overrides logging.file")
	flagSet.StringVar(&logLevel, "log-level", "", "log level, overrides logging.level")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(configPath, name, !flagSet.Changed("config"))
	if err != nil {
		return fmt.Errorf("config.Load failed: %w", err)
	}
	if envFile != "" {
		if err := cfg.ApplyEnvFile(envFile); err != nil {
			return fmt.Errorf("cfg.ApplyEnvFile failed: %w", err)
		}
	}
	if cfg.Database.APIURL == "" {
		return errors.New("database.apiUrl is required")
	}

	if logFile == "" {
		logFile = cfg.LogFile()
	}
	if logLevel == "" {
		logLevel = cfg.Logging.Level
	}
	logger, closeLog, err := diag.Setup(logFile, logLevel)
	if err != nil {
		return fmt.Errorf("diag.Setup failed: %w", err)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	crudClient := crud.NewClient(cfg.Database.APIURL, &http.Client{})
	apiKey := agent.ResolveAPIKey(ctx, crudClient, logger, cfg.LLM.APIKey, cfg.EnvAPIKey)

	llmClient := llm.NewClient(llm.Options{
		Provider:         cfg.LLM.Provider,
		URL:              cfg.CompletionsURL(),
		APIKey:           apiKey,
		Model:            cfg.LLM.Model,
		MaxTokens:        cfg.LLM.MaxTokens,
		AnthropicVersion: cfg.LLM.AnthropicVersion,
		HTTPClient:       &http.Client{},
	})

	broker := agent.NewBroker(llmClient, crudClient,
		agent.WithSystemPrompt(cfg.LLM.SystemPrompt),
		agent.WithTimeouts(cfg.LLM.Timeout.Std(), cfg.Database.Timeout.Std()),
		agent.WithLogger(logger),
	)

	leedzT := tool.NewLeedzServer(
		&mcp.Implementation{Name: cfg.MCP.Name, Version: cfg.MCP.Version},
		broker,
		rpc.WithLogger(logger),
		rpc.WithProtocolVersion(cfg.MCP.ProtocolVersion),
	)

	logger.Info("starting stdio transport", "crud", crudClient.BaseURL(), "provider", cfg.LLM.Provider, "model", cfg.LLM.Model)
	if err := leedzT.Run(ctx, os.Stdin, os.Stdout); err != nil {
		logger.Error("stdio transport failed", "error", err)
		return fmt.Errorf("leedzT.Run failed: %w", err)
	}
	logger.Info("stdio transport stopped")
	return nil
}
