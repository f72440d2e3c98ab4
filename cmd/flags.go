package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// mustGetBool gets a bool flag value or panics if the flag doesn't exist.
// This is appropriate for flags defined in init() - errors indicate programming bugs.
func mustGetBool(cmd *cobra.Command, name string) bool {
	val, err := cmd.Flags().GetBool(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// mustGetInt gets an int flag value or panics if the flag doesn't exist.
func mustGetInt(cmd *cobra.Command, name string) int {
	val, err := cmd.Flags().GetInt(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// mustGetString gets a string flag value or panics if the flag doesn't exist.
func mustGetString(cmd *cobra.Command, name string) string {
	val, err := cmd.Flags().GetString(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// addBucketFlags registers the flags naming a tenant and organization.
func addBucketFlags(cmd *cobra.Command) {
	cmd.Flags().String("tenant", "", "Tenant name")
	cmd.Flags().String("org", "", "Organization ID")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("org")
}

// addPersonFlags registers the bucket flags plus --person.
func addPersonFlags(cmd *cobra.Command) {
	addBucketFlags(cmd)
	cmd.Flags().String("person", "", "Person ID")
	_ = cmd.MarkFlagRequired("person")
}
