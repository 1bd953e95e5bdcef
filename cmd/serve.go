// File: cmd/serve.go
package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-agent/api/schemas"
	"github.com/xkilldash9x/scalpel-agent/internal/agent"
	"github.com/xkilldash9x/scalpel-agent/internal/mcp"
	"github.com/xkilldash9x/scalpel-agent/internal/memory"
	"github.com/xkilldash9x/scalpel-agent/internal/observability"
)

// newServeCmd creates the `serve` command, which hosts the console server.
func newServeCmd(components componentFactory) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept runs over HTTP and stream their transcript over WebSocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.SetServerListenAddr(listen)
			}
			logger := observability.GetLogger()

			client, err := components.LLMClient(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer client.Close()

			archive, closeArchive, err := components.Archive(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer closeArchive()
			if archive == nil {
				logger.Info("Recall storage disabled; archiving to memory for this process only.")
				archive = memory.NewRecall()
			}

			runners := make(map[string]mcp.RunFunc, 2)
			for _, ns := range []schemas.Namespace{schemas.NamespaceBrowser, schemas.NamespaceTerminal} {
				runners[string(ns)] = func(ctx context.Context, objective, start string, observer agent.Observer) (agent.RunResult, error) {
					return runOnce(ctx, components, cfg, logger, client, ns, archive, objective, start, observer)
				}
			}

			server, err := mcp.NewServer(logger, cfg.Server(), runners, archive)
			if err != nil {
				return err
			}
			logger.Info("Console server configured", zap.String("address", cfg.Server().ListenAddr))
			return server.Serve(ctx)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address, e.g. 127.0.0.1:8089 (overrides config)")
	return cmd
}
