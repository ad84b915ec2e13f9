package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/NovaClaw/NovaClaw/internal/cli.version=1.2.3"
	version = "0.4.1"
	logo    = "\n" +
		"  _   _                  ____ _\n" +
		" | \\ | | _____   ____ _ / ___| | __ ___      __\n" +
		" |  \\| |/ _ \\ \\ / / _` | |   | |/ _` \\ \\ /\\ / /\n" +
		" | |\\  | (_) \\ V / (_| | |___| | (_| |\\ V  V /\n" +
		" |_| \\_|\\___/ \\_/ \\__,_|\\____|_|\\__,_| \\_/\\_/\n"
)

var rootCmd = &cobra.Command{
	Use:   "novaclaw",
	Short: "NovaClaw - WhatsApp Persona Agent",
	Long:  color.CyanString(logo) + "\nA WhatsApp group agent with a configurable persona, written in Go.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func printHeader(title string) {
	fmt.Println(color.CyanString(logo))
	if title != "" {
		fmt.Println(title)
		fmt.Println("─────────────────────")
	}
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(gatewayCmd)
}
