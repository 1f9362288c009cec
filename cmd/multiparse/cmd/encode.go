/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bufio"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/MathisTLD/multiparse/pkg/multipart"
	"github.com/spf13/cobra"
)

const defaultEncodeBoundary = "multiparse"

// encodeCmd represents the encode command
var encodeCmd = &cobra.Command{
	Use:   "encode <file>...",
	Short: "Build a multipart stream from files",
	Long: `Write a multipart/x-mixed-replace stream to stdout with one part per file.
The content type of each part is guessed from the file extension, then from
the file content, unless --type is given.

Example:
  multiparse encode --boundary frame a.json b.jpg > stream.bin`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		boundary, _ := cmd.Flags().GetString("boundary")
		if boundary == "" {
			boundary = appConfig.Decoder.Boundary
		}
		if boundary == "" {
			boundary = defaultEncodeBoundary
		}
		contentType, _ := cmd.Flags().GetString("type")

		out := bufio.NewWriter(cmd.OutOrStdout())
		writer, err := multipart.NewWriter(out, boundary)
		if err != nil {
			return err
		}

		for _, path := range args {
			body, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}
			partType := contentType
			if partType == "" {
				partType = detectContentType(path, body)
			}
			if err := writer.WritePart(map[string]string{"Content-Type": partType}, body); err != nil {
				return fmt.Errorf("failed to write %s: %w", path, err)
			}
			logger.Debug().Str("file", path).Str("content_type", partType).Int("size", len(body)).Msg("part written")
		}

		if err := writer.Close(); err != nil {
			return err
		}
		if err := out.Flush(); err != nil {
			return err
		}

		logger.Info().Int("parts", len(args)).Str("content_type", writer.ContentType()).Msg("encode complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(encodeCmd)

	encodeCmd.Flags().StringP("boundary", "b", "", "Boundary delimiter (default: decoder.boundary, then \"multiparse\")")
	encodeCmd.Flags().StringP("type", "t", "", "Content-Type for every part (default: detected per file)")
}

func detectContentType(path string, body []byte) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return http.DetectContentType(body)
}
