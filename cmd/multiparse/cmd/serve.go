/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/MathisTLD/multiparse/pkg/api"
	"github.com/MathisTLD/multiparse/pkg/config"
	"github.com/spf13/cobra"
)

const autoAPIKey = "auto"

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start the multiparse REST API server. Streams posted to /api/v1/decode are
returned as NDJSON, streams posted to /api/v1/capture are stored.

An api_key of "auto" generates a key for this run and prints it. Use
--no-auth to serve without authentication.

Examples:
  multiparse serve --port=9300
  multiparse serve --api-key=mysecretkey --bind=0.0.0.0`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if container == nil {
			return errors.New("dependency container not initialized")
		}

		server := appConfig.Server
		if cmd.Flags().Changed("bind") {
			server.Bind, _ = cmd.Flags().GetString("bind")
		}
		if cmd.Flags().Changed("port") {
			server.Port, _ = cmd.Flags().GetInt("port")
		}
		if cmd.Flags().Changed("api-key") {
			server.APIKey, _ = cmd.Flags().GetString("api-key")
		}
		if noAuth, _ := cmd.Flags().GetBool("no-auth"); noAuth {
			server.APIKey = ""
		}
		if server.APIKey == autoAPIKey {
			key, err := config.GenerateSecureKey(32)
			if err != nil {
				return err
			}
			server.APIKey = key
			cmd.Printf("🔑 Generated API key for this run: %s\n", key)
		}
		if server.APIKey == "" {
			logger.Warn().Msg("authentication disabled")
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cmd.Printf("🚀 Starting multiparse server on %s:%d\n", server.Bind, server.Port)
		cmd.Printf("📁 Data directory: %s\n", appConfig.Storage.DataDir)

		starter := container.GetServerFactory().CreateServerStarter()
		if err := starter.StartServer(ctx, store, api.ServerConfig{
			Bind:    server.Bind,
			Port:    server.Port,
			APIKey:  server.APIKey,
			Decoder: appConfig.DecoderConfig(""),
			Logger:  &logger,
		}); err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("bind", "", "Address to bind server to (default: server.bind)")
	serveCmd.Flags().IntP("port", "p", 0, "Port to listen on (default: server.port)")
	serveCmd.Flags().String("api-key", "", "API key required in the X-API-Key header (default: server.api_key)")
	serveCmd.Flags().Bool("no-auth", false, "Serve without authentication")
}
