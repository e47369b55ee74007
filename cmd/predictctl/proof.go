package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/imperfectform/predictbot/internal/app"
)

type proofArguments struct {
	Config  string
	Verbose bool
}

var proofArgs proofArguments

var proofCmd = &cobra.Command{
	Use:   "proof",
	Short: "read archived challenge proofs",
	Long:  ``,
}

var proofGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "copy an archived object to stdout",
	Args:  cobra.ExactArgs(1),
	RunE:  proofGetRun,
}

func init() {
	configFlag(proofGetCmd, &proofArgs.Config)
	verboseFlag(proofGetCmd, &proofArgs.Verbose)
	proofCmd.AddCommand(proofGetCmd)
}

func proofGetRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(proofArgs.Config)
	if err != nil {
		return err
	}
	if !cfg.S3.Enabled {
		return errors.New("s3 is disabled in this config; nothing is archived")
	}

	ctx := context.Background()
	deps, cleanup, err := app.Wire(ctx, cfg, cliLogger(proofArgs.Verbose))
	if err != nil {
		return err
	}
	defer cleanup()

	rc, err := deps.BlobReader.Get(ctx, args[0])
	if err != nil {
		return err
	}
	defer rc.Close()
	if _, err := io.Copy(cmd.OutOrStdout(), rc); err != nil {
		return fmt.Errorf("copy %s: %w", args[0], err)
	}
	return nil
}
