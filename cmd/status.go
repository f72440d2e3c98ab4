package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether a person is registered",
	Long: `Show whether a person has stored templates and how many.

Example:
  face-attendance status --tenant acme --org 42 --person 1001`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

type statusOutput struct {
	PersonID   string `json:"person_id"`
	Registered bool   `json:"registered"`
	Templates  int    `json:"templates"`
}

func init() {
	rootCmd.AddCommand(statusCmd)
	addPersonFlags(statusCmd)
	statusCmd.Flags().Bool("json", false, "Output as JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	tenant := mustGetString(cmd, "tenant")
	orgID := mustGetString(cmd, "org")
	personID := mustGetString(cmd, "person")

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	count, err := a.service.TemplateCount(context.Background(), tenant, orgID, personID)
	if err != nil {
		return fmt.Errorf("counting templates: %w", err)
	}

	out := statusOutput{PersonID: personID, Registered: count > 0, Templates: count}
	if mustGetBool(cmd, "json") {
		return outputJSON(out)
	}
	if !out.Registered {
		fmt.Printf("%s is not registered\n", personID)
		return nil
	}
	fmt.Printf("%s is registered with %d templates\n", personID, count)
	return nil
}
