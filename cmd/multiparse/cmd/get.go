package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/MathisTLD/multiparse/pkg/api"
	"github.com/MathisTLD/multiparse/pkg/storage"
	"github.com/spf13/cobra"
)

// getCmd represents the get command
var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a captured part",
	Long: `Show a captured part as JSON, or write its original body with --raw.

Example:
  multiparse get <id> --raw > frame.jpg`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := storage.ParseID(args[0])
		if err != nil {
			return err
		}
		raw, _ := cmd.Flags().GetBool("raw")

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		entry, err := store.Get(id)
		if err != nil {
			return err
		}

		if raw {
			_, err := cmd.OutOrStdout().Write(entry.Part.Body)
			return err
		}

		resp, err := api.NewPartResponse(entry.Part, 0)
		if err != nil {
			return fmt.Errorf("failed to decode part body: %w", err)
		}
		capturedAt := entry.CapturedAt
		resp.ID = entry.ID.String()
		resp.CapturedAt = &capturedAt

		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(resp)
	},
}

func init() {
	rootCmd.AddCommand(getCmd)

	getCmd.Flags().Bool("raw", false, "Write the stored body instead of JSON")
}
