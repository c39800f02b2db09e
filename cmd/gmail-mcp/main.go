// Gmail MCP server sends mail through the Gmail API on behalf of a user
// whose OAuth token is pushed to it over a loopback HTTP side-channel.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/scottgrossworks/invoicer-sub001/internal/auth"
	"github.com/scottgrossworks/invoicer-sub001/internal/config"
	"github.com/scottgrossworks/invoicer-sub001/internal/diag"
	"github.com/scottgrossworks/invoicer-sub001/internal/gservice"
	"github.com/scottgrossworks/invoicer-sub001/internal/rpc"
	"github.com/scottgrossworks/invoicer-sub001/internal/tool"
)

const name = "gmail-mcp"

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
	flagSet.StringVar(&envFile, "env-file", "", "path to dotenv file with PORT")
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

	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(cfg.HTTP.Port)))
	if err != nil {
		return fmt.Errorf("net.Listen failed: %w", err)
	}

	tok := auth.NewToken(cfg.Auth.TokenTTL.Std())

	authHTTP := auth.NewHTTPHandler(tok, cfg.MCP.Name, cfg.MCP.Version, logger)
	srv := &http.Server{
		Handler:           authHTTP.Router(cfg.HTTP.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	gmailSvc := gservice.NewGmail(tok, cfg.Gmail.APIURL, &http.Client{})
	gmailT := tool.NewGmailServer(
		&mcp.Implementation{Name: cfg.MCP.Name, Version: cfg.MCP.Version},
		tok,
		gmailSvc,
		rpc.WithLogger(logger),
		rpc.WithProtocolVersion(cfg.MCP.ProtocolVersion),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return serveHTTP(ctx, srv, ln, logger)
	})
	g.Go(func() error {
		// End of stdin ends the session and takes the side-channel down with it.
		defer stop()
		return serveStdio(ctx, gmailT, logger)
	})

	if err := g.Wait(); err != nil {
		logger.Error("shutting down", "error", err)
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

func serveStdio(ctx context.Context, srv *rpc.Server, logger *slog.Logger) error {
	logger.Info("starting stdio transport")
	if err := srv.Run(ctx, os.Stdin, os.Stdout); err != nil {
		return fmt.Errorf("srv.Run failed: %w", err)
	}
	logger.Info("stdio transport stopped")
	return nil
}

func serveHTTP(ctx context.Context, srv *http.Server, ln net.Listener, logger *slog.Logger) error {
	errHTTPCh := make(chan error, 1)
	go func() {
		defer close(errHTTPCh)

		logger.Info("starting http server", "addr", ln.Addr().String())

		err := srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errHTTPCh <- fmt.Errorf("srv.Serve failed: %w", err)
		}
	}()

	select {
	case err, ok := <-errHTTPCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("srv.Shutdown failed", "error", err)
	}

	<-errHTTPCh
	logger.Info("http server stopped")
	return nil
}
