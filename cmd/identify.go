package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/constants"
)

var identifyCmd = &cobra.Command{
	Use:   "identify <photo>",
	Short: "Find the enrolled persons nearest to a photo",
	Long: `Search an organization's templates for the persons whose faces are
closest to the face in a photo.

Example:
  face-attendance identify --tenant acme --org 42 --limit 3 unknown.jpg`,
	Args: cobra.ExactArgs(1),
	RunE: runIdentify,
}

func init() {
	rootCmd.AddCommand(identifyCmd)
	addBucketFlags(identifyCmd)
	identifyCmd.Flags().Int("limit", 0, "Maximum number of persons (defaults to IDENTIFY_LIMIT)")
	identifyCmd.Flags().Bool("json", false, "Output as JSON")
}

func runIdentify(cmd *cobra.Command, args []string) error {
	limit := mustGetInt(cmd, "limit")
	if limit < 0 || limit > constants.MaxIdentifyLimit {
		return fmt.Errorf("--limit must be between 1 and %d", constants.MaxIdentifyLimit)
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if limit == 0 {
		limit = a.cfg.Identify.DefaultLimit
	}

	ctx := context.Background()
	embedding, err := a.embedPhoto(ctx, args[0])
	if err != nil {
		return err
	}

	matches, err := a.service.Identify(ctx, mustGetString(cmd, "tenant"), mustGetString(cmd, "org"), embedding, limit)
	if err != nil {
		return fmt.Errorf("identification failed: %w", err)
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(matches)
	}
	if len(matches) == 0 {
		fmt.Println("No enrolled persons in this organization")
		return nil
	}
	fmt.Printf("%-24s %10s %12s  %s\n", "PERSON", "DISTANCE", "WEIGHTED SUM", "VERIFIED")
	for _, m := range matches {
		fmt.Printf("%-24s %10.4f %12.4f  %t\n", m.PersonID, m.Distance, m.Score, m.Verified)
	}
	return nil
}
