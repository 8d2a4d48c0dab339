package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeNotLinked indicates no upstream account was linked in time.
	ExitCodeNotLinked = 2
)

// rootCmd represents the base command for the larkgate application.
var rootCmd = &cobra.Command{
	Use:   "larkgate",
	Short: "OAuth token broker and API gateway for Feishu/Lark",
	Long: `larkgate links a Feishu/Lark account through the upstream OAuth flow,
keeps the user token fresh, and exposes the Open Platform API to agents
through a curated tool catalog, a raw /openapi proxy and an MCP endpoint.

Start the gateway with 'larkgate serve', link an account with
'larkgate link', and inspect the catalog offline with 'larkgate tools'.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// This function is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "larkgate version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
func getExitCode(err error) int {
	var notLinked *NotLinkedError
	if errors.As(err, &notLinked) {
		return ExitCodeNotLinked
	}
	return ExitCodeError
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newToolsCmd())
	rootCmd.AddCommand(newFixPathCmd())
	rootCmd.AddCommand(newLinkCmd())
}
