// Package cmd provides the command-line interface of metersim.
package cmd

import (
	"log"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "metersim",
	Short: "Metersim simulates a smart energy meter and the devices behind it.",
	Long: `Metersim simulates a smart energy meter and the devices behind it. ` +
		`The simulated time follows a virtual clock that can be paused, ` +
		`sped up and moved, and every device reports the current it draws.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringSlice("env", []string{".env"},
		"Environment files to load before reading the configuration")
}

// Execute adds all child commands to the root command and sets flags
// appropriately. Registered exit functions run before the process ends.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		log.Print(err)
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
