/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/MathisTLD/multiparse/pkg/multipart"
	"github.com/spf13/cobra"
)

// captureCmd represents the capture command
var captureCmd = &cobra.Command{
	Use:   "capture [file]",
	Short: "Decode a multipart stream and store its parts",
	Long: `Decode a multipart/x-mixed-replace stream and save every part in the local
store. The id of each stored part is printed on its own line. Parts stored
before a decode error are kept.

Example:
  multiparse capture --boundary frame stream.bin`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		decoderConfig, err := decoderConfigFromFlags(cmd)
		if err != nil {
			return err
		}

		in, err := openInput(cmd, args)
		if err != nil {
			return err
		}
		defer in.Close()

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		reader, err := multipart.NewReader(in, decoderConfig)
		if err != nil {
			return err
		}
		defer reader.Close()

		stored := 0
		for reader.Next(cmd.Context()) {
			id, err := store.Save(reader.Part())
			if err != nil {
				return fmt.Errorf("failed to store part %d: %w", stored, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), id.String())
			stored++
		}
		if err := reader.Err(); err != nil {
			return fmt.Errorf("decode failed after %d stored parts: %w", stored, err)
		}

		logger.Info().Int("stored", stored).Str("data_dir", appConfig.Storage.DataDir).Msg("capture complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(captureCmd)
	addDecoderFlags(captureCmd)
}
