package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/imperfectform/predictbot/internal/app"
)

type scanArguments struct {
	Config  string
	Verbose bool
}

var scanArgs scanArguments

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "run one auto-resolve scan and print the report",
	Long:  ``,
	RunE:  scanRun,
}

func init() {
	configFlag(scanCmd, &scanArgs.Config)
	verboseFlag(scanCmd, &scanArgs.Verbose)
}

func scanRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(scanArgs.Config)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := app.New(cfg, cliLogger(scanArgs.Verbose))
	defer a.Close()

	report, err := a.Scan(ctx)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), report)
}
