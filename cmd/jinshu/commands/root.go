// Package commands implements the CLI that runs the jinshu services.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFiles []string
	cfgRoot  string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "jinshu",
	Short: "Jinshu - distributed instant messaging backend",
	Long: `Jinshu is a distributed instant messaging backend. Every service runs
as a subcommand of this binary: comet terminates client connections, receiver
feeds the message broker, pusher delivers queued messages, authorizer checks
sign-in credentials, gateway serves the account API and storage archives
message history.

Use "jinshu [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global persistent flags
	rootCmd.PersistentFlags().StringSliceVarP(&cfgFiles, "config", "c", nil,
		"configuration file; may repeat, the first file wins on conflicts")
	rootCmd.PersistentFlags().StringVarP(&cfgRoot, "config-root", "r", "",
		"directory relative configuration paths are resolved against")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(cometCmd)
	rootCmd.AddCommand(receiverCmd)
	rootCmd.AddCommand(pusherCmd)
	rootCmd.AddCommand(authorizerCmd)
	rootCmd.AddCommand(gatewayCmd)
	rootCmd.AddCommand(storageCmd)
}

// PrintErr prints an error message to stderr.
func PrintErr(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
}
