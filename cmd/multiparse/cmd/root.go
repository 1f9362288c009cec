/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/MathisTLD/multiparse/pkg/config"
	"github.com/MathisTLD/multiparse/pkg/di"
	"github.com/MathisTLD/multiparse/pkg/logging"
	"github.com/MathisTLD/multiparse/pkg/storage"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	container  *di.Container
	appConfig  = config.DefaultConfig()
	configPath string
	logger     = zerolog.Nop()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "multiparse",
	Short: "multiparse - multipart/x-mixed-replace stream decoder",
	Long: `multiparse decodes multipart/x-mixed-replace streams (MJPEG cameras,
server push feeds) into individual parts. Parts can be printed, captured into
a local store and served over HTTP.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ = cmd.Flags().GetString("config")
		if configPath == "" {
			configPath = config.GetDefaultConfigPath()
		}

		cfg := config.DefaultConfig()
		if config.ConfigExists(configPath) {
			loaded, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			cfg = loaded
		}

		if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
			cfg.Storage.DataDir = dataDir
		}
		if level, _ := cmd.Flags().GetString("log-level"); level != "" {
			cfg.Logging.Level = level
		}
		if format, _ := cmd.Flags().GetString("log-format"); format != "" {
			cfg.Logging.Format = format
		}

		l, err := logging.New("multiparse", logging.Options{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
			Output: cmd.ErrOrStderr(),
		})
		if err != nil {
			return err
		}

		appConfig = cfg
		logger = l
		return nil
	},
}

// SetContainer sets the dependency container used by the commands
func SetContainer(c *di.Container) {
	container = c
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to config file (default: ~/.config/multiparse/config.yaml)")
	rootCmd.PersistentFlags().StringP("data-dir", "d", "", "Data directory for captured parts")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: trace, debug, info, warn, error, disabled")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: console or json")
}

// openStore opens the part store in the configured data directory
func openStore() (*storage.PartStore, error) {
	if container == nil {
		return nil, errors.New("dependency container not initialized")
	}

	dataDir := appConfig.Storage.DataDir
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	store, err := container.GetStoreOpener()(storage.StoreConfig{DataDir: dataDir})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return store, nil
}

// openInput returns the named file, or stdin for no argument or "-"
func openInput(cmd *cobra.Command, args []string) (io.ReadCloser, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	f, err := os.Open(args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	return f, nil
}
