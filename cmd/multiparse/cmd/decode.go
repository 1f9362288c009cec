/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MathisTLD/multiparse/pkg/api"
	"github.com/MathisTLD/multiparse/pkg/multipart"
	"github.com/spf13/cobra"
)

// decodeCmd represents the decode command
var decodeCmd = &cobra.Command{
	Use:   "decode [file]",
	Short: "Decode a multipart stream to NDJSON",
	Long: `Decode a multipart/x-mixed-replace stream and print one JSON object per
part. JSON bodies are parsed, text bodies are printed as strings and binary
bodies as base64. The stream is read from stdin when no file is given.

Examples:
  multiparse decode --boundary frame capture.bin
  curl -sN http://camera/stream | multiparse decode -b myboundary`,
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

		reader, err := multipart.NewReader(in, decoderConfig)
		if err != nil {
			return err
		}
		defer reader.Close()

		encoder := json.NewEncoder(cmd.OutOrStdout())
		n := 0
		for reader.Next(cmd.Context()) {
			resp, err := api.NewPartResponse(reader.Part(), n)
			if err != nil {
				return fmt.Errorf("part %d: %w", n, err)
			}
			if err := encoder.Encode(resp); err != nil {
				return fmt.Errorf("failed to write part %d: %w", n, err)
			}
			n++
		}
		if err := reader.Err(); err != nil {
			return fmt.Errorf("decode failed after %d parts: %w", n, err)
		}

		logger.Info().Int("parts", n).Msg("decode complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(decodeCmd)
	addDecoderFlags(decodeCmd)
}

func addDecoderFlags(c *cobra.Command) {
	c.Flags().StringP("boundary", "b", "", "Boundary delimiter without the leading dashes (default: decoder.boundary)")
	c.Flags().Bool("strict", false, "Fail on stray lines between parts instead of skipping them")
	c.Flags().String("truncated", "", "Handling of a part cut off by end of input: drop or error")
	c.Flags().Int("max-part-size", 0, "Largest accepted Content-Length in bytes (default: decoder.max_part_size)")
	c.Flags().Int("max-line-size", 0, "Longest boundary or header line in bytes, 0 for no limit (default: decoder.max_line_size)")
}

// decoderConfigFromFlags overlays the decoder flags on the loaded config
func decoderConfigFromFlags(cmd *cobra.Command) (multipart.DecoderConfig, error) {
	boundary, _ := cmd.Flags().GetString("boundary")
	decoderConfig := appConfig.DecoderConfig(boundary)
	decoderConfig.Logger = &logger

	if cmd.Flags().Changed("strict") {
		decoderConfig.StrictBoundary, _ = cmd.Flags().GetBool("strict")
	}
	if cmd.Flags().Changed("truncated") {
		raw, _ := cmd.Flags().GetString("truncated")
		policy, err := multipart.ParseTruncatedFramePolicy(raw)
		if err != nil {
			return decoderConfig, err
		}
		decoderConfig.TruncatedFrame = policy
	}
	if cmd.Flags().Changed("max-part-size") {
		size, _ := cmd.Flags().GetInt("max-part-size")
		if size < 0 {
			return decoderConfig, errors.New("--max-part-size must not be negative")
		}
		decoderConfig.MaxPartSize = size
	}
	if cmd.Flags().Changed("max-line-size") {
		size, _ := cmd.Flags().GetInt("max-line-size")
		if size < 0 {
			return decoderConfig, errors.New("--max-line-size must not be negative")
		}
		decoderConfig.MaxLineSize = size
	}

	if decoderConfig.Boundary == "" {
		return decoderConfig, errors.New("a boundary is required: pass --boundary or set decoder.boundary in the config file")
	}
	return decoderConfig, nil
}
