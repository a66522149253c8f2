package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/docfeat/internal/server"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Start the feature server",
	Long: `Start the feature server. It loads the provider manifest, reloads it when
it changes, accepts extension hosts on /ws and answers queries on
/api/hover, /api/definition and /api/diagnostics.

Examples:
  docfeat serve                          # Serve on localhost:7777
  docfeat serve -p 9000 --host 0.0.0.0   # Listen on all interfaces
  docfeat serve -m providers.yml --no-watch`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 7777, "Port to serve on")
	serveCmd.Flags().String("host", "localhost", "Host to bind to")
	serveCmd.Flags().StringP("manifest", "m", "docfeat.yml", "Provider manifest (empty disables it)")
	serveCmd.Flags().Bool("no-watch", false, "Load the manifest once instead of watching it")
	serveCmd.Flags().Duration("request-timeout", 0, "Timeout for requests to extension hosts")

	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("manifest.path", serveCmd.Flags().Lookup("manifest"))
	_ = viper.BindPFlag("transport.request_timeout", serveCmd.Flags().Lookup("request-timeout"))
}

func runServe(cmd *cobra.Command, args []string) error {
	if noWatch, _ := cmd.Flags().GetBool("no-watch"); noWatch {
		viper.Set("manifest.watch", false)
	}

	cfg, logger, err := loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "Starting docfeat server at http://%s\n", cfg.Server.Addr())
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
