/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"github.com/MathisTLD/multiparse/pkg/config"
	"github.com/spf13/cobra"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write a default configuration file with a generated API key.

This command will:
- Create the configuration directory
- Generate a 256 bit API key for the HTTP server
- Record the data directory used for captured parts

Examples:
	  multiparse init
	  multiparse init --config=./multiparse.yaml --data-dir=./data`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		dataDir, _ := cmd.Flags().GetString("data-dir")

		if config.ConfigExists(configPath) && !force {
			cmd.Printf("Configuration already exists at %s. Use --force to overwrite.\n", configPath)
			return nil
		}

		cfg, err := config.BootstrapConfig(configPath, dataDir)
		if err != nil {
			return err
		}

		cmd.Printf("✅ Configuration created at %s\n", configPath)
		cmd.Printf("Data directory: %s\n", cfg.Storage.DataDir)
		cmd.Printf("API key: %s\n", cfg.Server.APIKey)
		cmd.Printf("\nYou can now start the server with:\n")
		cmd.Printf("  multiparse serve --config=%s\n", configPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().Bool("force", false, "Overwrite an existing configuration file")
}
