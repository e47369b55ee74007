package main

import (
	"github.com/spf13/cobra"

	"github.com/imperfectform/predictbot/internal/app"
)

type chainsArguments struct {
	Config string
}

var chainsArgs chainsArguments

var chainsCmd = &cobra.Command{
	Use:   "chains",
	Short: "list the chains the config would serve",
	Long:  ``,
	RunE:  chainsRun,
}

func init() {
	configFlag(chainsCmd, &chainsArgs.Config)
}

func chainsRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(chainsArgs.Config)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), app.ChainDescriptors(cfg.Chains))
}
