package commands

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage application tokens",
	Long:  `Generate application tokens for change attribution`,
}

var generateAppTokenCmd = &cobra.Command{
	Use:   "app [name]",
	Short: "Generate an application token",
	Long: `Generate a random token for an application that writes through the API.

The application sends the token's name in the X-Application header so the
change journal records which tool made each commit.

Examples:
  serverhub token app deploy-pipeline
  serverhub token app monitoring`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerateAppToken,
}

func init() {
	tokenCmd.AddCommand(generateAppTokenCmd)
}

func runGenerateAppToken(cmd *cobra.Command, args []string) error {
	name := args[0]
	token := uuid.NewString()

	fmt.Printf("Application Token Generated\n")
	fmt.Printf("===========================\n\n")
	fmt.Printf("Application: %s\n", name)
	fmt.Printf("Token:       %s\n\n", token)
	fmt.Printf("Send the application name with every write:\n")
	fmt.Printf("  X-Application: %s\n", name)

	return nil
}
