package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-attendance/internal/audit"
	"github.com/kozaktomas/face-attendance/internal/constants"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <photo>",
	Short: "Verify a photo against a person's templates",
	Long: `Verify an attendance photo against the stored templates of a person.

The attempt is appended to the audit log unless --no-log is given.

Example:
  face-attendance verify --tenant acme --org 42 --person 1001 checkin.jpg`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

// verifyOutput is the JSON form of a verification.
type verifyOutput struct {
	Status         string  `json:"status"`
	PersonID       string  `json:"person_id"`
	OrganizationID string  `json:"organization_id"`
	WeightedSum    float64 `json:"weighted_sum"`
	Templates      int     `json:"templates"`
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	addPersonFlags(verifyCmd)
	verifyCmd.Flags().String("name", "", "Person name for the audit log")
	verifyCmd.Flags().String("location", "", "Location as \"lat&&lon\" for the audit log")
	verifyCmd.Flags().Bool("no-log", false, "Do not append the attempt to the audit log")
	verifyCmd.Flags().Bool("json", false, "Output as JSON")
}

func runVerify(cmd *cobra.Command, args []string) error {
	tenant := mustGetString(cmd, "tenant")
	orgID := mustGetString(cmd, "org")
	personID := mustGetString(cmd, "person")

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	embedding, err := a.embedPhoto(ctx, args[0])
	if err != nil {
		return err
	}

	result, err := a.service.Verify(ctx, tenant, orgID, personID, embedding)
	if err != nil {
		return fmt.Errorf("verification failed: %w", err)
	}

	if !mustGetBool(cmd, "no-log") {
		lat, lon := audit.ParseLocation(mustGetString(cmd, "location"))
		err := a.service.RecordAttempt(ctx, audit.Record{
			Timestamp:      time.Now(),
			PersonName:     mustGetString(cmd, "name"),
			PersonID:       personID,
			OrganizationID: orgID,
			Verified:       result.Verified,
			Score:          result.Score,
			Latitude:       lat,
			Longitude:      lon,
			SystemName:     "cli",
			Tenant:         tenant,
		})
		if err != nil {
			a.logger.Warn("attempt not logged", zap.Error(err))
		}
	}

	status := constants.StatusNotVerified
	if result.Verified {
		status = constants.StatusVerified
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(verifyOutput{
			Status:         status,
			PersonID:       personID,
			OrganizationID: orgID,
			WeightedSum:    result.Score,
			Templates:      result.Templates,
		})
	}

	fmt.Printf("%s: %s\n", personID, status)
	fmt.Printf("  Weighted sum: %.4f (threshold %.2f)\n", result.Score, a.service.Thresholds().VerifyThreshold)
	fmt.Printf("  Templates:    %d\n", result.Templates)
	return nil
}
