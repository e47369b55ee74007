// Command predictctl is the operator CLI: key management, fee previews, and
// one-shot resolver scans against a configured deployment.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "predictctl",
	Short: "operator tools for predictbot",
	Long:  ``,
}

func main() {
	rootCmd.AddCommand(keyCmd)
	rootCmd.AddCommand(splitCmd)
	rootCmd.AddCommand(chainsCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(proofCmd)
	rootCmd.AddCommand(versionCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
