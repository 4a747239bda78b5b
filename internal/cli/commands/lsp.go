package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/querylint/querylint/internal/lsp"
)

// NewLSPCommand creates the LSP command
func NewLSPCommand(global *globalOptions) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "lsp",
		Short: "Start the Language Server Protocol server",
		Long: `Start the querylint Language Server Protocol (LSP) server.

The server publishes informational diagnostics on query fields and records
whose size could exceed the 32 KB limit. It checks .graphql documents and gql
tagged templates inside JavaScript and TypeScript sources.

Run the workspace command "querylint.resetMetadataCache" after switching
orgs or credentials to discard cached metadata.

The LSP server communicates via JSON-RPC over stdin/stdout.
It is typically started automatically by your editor/IDE.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLSP(cmd, global, metricsAddr)
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve /metrics and /healthz on this address (overrides metrics.addr)")

	return cmd
}

func runLSP(cmd *cobra.Command, global *globalOptions, metricsAddr string) error {
	a, err := newApp(cmd, global, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	if metricsAddr == "" {
		metricsAddr = a.cfg.Metrics.Addr
	}

	server := lsp.NewServer(lsp.Options{
		API:      a.api,
		Metadata: a.resolver,
		Logger:   a.logger.Named("lsp"),
		Version:  Version,
	})

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	if metricsAddr != "" {
		srv := &http.Server{
			Addr:              metricsAddr,
			Handler:           a.metrics.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			a.logger.Info("serving metrics", zap.String("addr", metricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	// Run server
	return server.Run(ctx)
}
